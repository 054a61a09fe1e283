package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"tillsync/internal/agent"
	"tillsync/internal/config"
	"tillsync/internal/http/handlers"
)

// fakeERP records what the agent sends and answers with handle.
type fakeERP struct {
	*httptest.Server
	mu     sync.Mutex
	calls  []*http.Request
	bodies []string
	handle func(w http.ResponseWriter, r *http.Request)
}

func newFakeERP(t *testing.T) *fakeERP {
	t.Helper()
	f := &fakeERP{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.calls = append(f.calls, r.Clone(r.Context()))
		f.bodies = append(f.bodies, string(b))
		h := f.handle
		f.mu.Unlock()
		if h != nil {
			h(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":{"code":"S-1"}}`))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeERP) setHandler(h func(w http.ResponseWriter, r *http.Request)) {
	f.mu.Lock()
	f.handle = h
	f.mu.Unlock()
}

func (f *fakeERP) requests(path string) []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*http.Request
	for _, r := range f.calls {
		if r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func newTestAgent(t *testing.T, upstreamURL string, mut ...func(*config.Config)) *agent.Agent {
	t.Helper()
	cfg := config.Defaults()
	cfg.UpstreamURL = upstreamURL
	cfg.TemplatesDir = "../../web/templates"
	cfg.Precache = nil
	for _, m := range mut {
		m(&cfg)
	}
	a, err := agent.New(cfg)
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func newTestApp(t *testing.T, a *agent.Agent) *fiber.App {
	t.Helper()
	return handlers.NewApp(a)
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, hdr ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Err    string         `json:"err"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	b  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	oldW := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&lockedBuf{b: &buf, mu: &mu})
	log.SetFlags(0)
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	mu.Lock()
	defer mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &e); err == nil && e.Action != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func hasAction(entries []logEntry, action string) bool {
	for _, e := range entries {
		if e.Action == action {
			return true
		}
	}
	return false
}
