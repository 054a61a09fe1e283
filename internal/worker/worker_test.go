package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/cache"
	"tillsync/internal/domain"
	"tillsync/internal/repos"
	"tillsync/internal/worker"
)

const origin = "http://erp.test"

type stubResp struct {
	status int
	ctype  string
	body   string
}

// stubFetcher serves canned responses by path; down makes every fetch fail.
type stubFetcher struct {
	mu     sync.Mutex
	routes map[string]stubResp
	down   bool
	hits   map[string]int
}

func newStub() *stubFetcher {
	return &stubFetcher{routes: map[string]stubResp{}, hits: map[string]int{}}
}

func (s *stubFetcher) set(path string, r stubResp) {
	s.mu.Lock()
	s.routes[path] = r
	s.mu.Unlock()
}

func (s *stubFetcher) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *stubFetcher) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *stubFetcher) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[req.URL.Path]++
	if s.down {
		return nil, errors.New("dial tcp: connection refused")
	}
	r, ok := s.routes[req.URL.Path]
	if !ok {
		r = stubResp{status: http.StatusNotFound, ctype: "text/html", body: "<h1>404</h1>"}
	}
	h := http.Header{}
	h.Set("Content-Type", r.ctype)
	return &http.Response{StatusCode: r.status, Header: h, Body: io.NopCloser(strings.NewReader(r.body))}, nil
}

type stubProc struct {
	res   domain.SyncResult
	calls int
}

func (p *stubProc) Process(context.Context) (domain.SyncResult, error) {
	p.calls++
	return p.res, nil
}

type fixture struct {
	w       *worker.Worker
	fetch   *stubFetcher
	storage cache.Storage
	queue   *repos.SyncQueueRepo
	proc    *stubProc
}

func newFixture(t *testing.T, mut ...func(*worker.Options)) fixture {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	opts := worker.Options{Origin: origin, Version: "v2", SkipWaiting: true, FetchTimeout: time.Second}
	for _, m := range mut {
		m(&opts)
	}
	f := fixture{
		fetch:   newStub(),
		storage: repos.NewCacheRepo(db),
		queue:   repos.NewSyncQueueRepo(db),
		proc:    &stubProc{},
	}
	f.w, err = worker.New(opts, f.fetch, f.storage, repos.NewRecordRepo(db), f.queue, f.proc)
	require.NoError(t, err)
	t.Cleanup(f.w.Wait)
	return f
}

func get(t *testing.T, f fixture, path, accept string) *worker.Response {
	t.Helper()
	u, err := url.Parse(origin + path)
	require.NoError(t, err)
	h := http.Header{}
	if accept != "" {
		h.Set("Accept", accept)
	}
	resp, err := f.w.HandleFetch(context.Background(), worker.Request{Method: http.MethodGet, URL: u, Header: h})
	require.NoError(t, err)
	return resp
}

func TestNewRejectsRelativeOrigin(t *testing.T) {
	_, err := worker.New(worker.Options{Origin: "/relative"}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		method, path, accept string
		want                 worker.Strategy
	}{
		{"POST", "/api/pos/checkout", "", worker.Bypass},
		{"GET", "/api/products", "application/json", worker.NetworkFirst},
		{"GET", "/build/assets/app-3f2a.js", "*/*", worker.CacheFirst},
		{"GET", "/img/logo.PNG", "image/*", worker.CacheFirst},
		{"GET", "/pos", "text/html,application/xhtml+xml", worker.NetworkFirstOfflinePage},
		{"GET", "/manifest", "application/json", worker.NetworkFirst},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, worker.Classify(tc.method, tc.path, tc.accept), tc.path)
	}
}

func TestNotInterceptedUntilActivated(t *testing.T) {
	f := newFixture(t, func(o *worker.Options) { o.SkipWaiting = false })
	u, _ := url.Parse(origin + "/api/x")
	req := worker.Request{Method: http.MethodGet, URL: u, Header: http.Header{}}

	_, err := f.w.HandleFetch(context.Background(), req)
	assert.ErrorIs(t, err, worker.ErrNotIntercepted)

	require.NoError(t, f.w.Start(context.Background()))
	assert.Equal(t, worker.StateWaiting, f.w.State())
	_, err = f.w.HandleFetch(context.Background(), req)
	assert.ErrorIs(t, err, worker.ErrNotIntercepted)

	_, err = f.w.HandleMessage(context.Background(), worker.Message{Type: string(worker.CmdSkipWaiting)})
	require.NoError(t, err)
	assert.True(t, f.w.Controlling())

	other, _ := url.Parse("http://cdn.test/lib.js")
	_, err = f.w.HandleFetch(context.Background(), worker.Request{Method: http.MethodGet, URL: other, Header: http.Header{}})
	assert.ErrorIs(t, err, worker.ErrNotIntercepted, "cross-origin requests pass through")

	_, err = f.w.HandleFetch(context.Background(), worker.Request{Method: http.MethodPost, URL: u, Header: http.Header{}})
	assert.ErrorIs(t, err, worker.ErrNotIntercepted, "writes pass through")
}

func TestSkipWaitingBeforeInstall(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.w.SkipWaiting(context.Background()), worker.ErrNotInstalled)
}

func TestCacheFirstServesCachedAsset(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	f.fetch.set("/build/app.js", stubResp{200, "application/javascript", "v1"})

	first := get(t, f, "/build/app.js", "")
	assert.Equal(t, worker.FromNetwork, first.Source)

	f.fetch.setDown(true)
	second := get(t, f, "/build/app.js", "")
	assert.Equal(t, worker.FromCache, second.Source)
	assert.Equal(t, "v1", string(second.Body))
}

func TestCacheFirstEvictsHTMLUnderAssetURL(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	ctx := context.Background()
	require.NoError(t, f.storage.Put(ctx, f.w.StaticCache(), &cache.Entry{
		Key: "/build/app.js", Status: 200, ContentType: "text/html", Body: []byte("<h1>error</h1>"),
	}))
	f.fetch.set("/build/app.js", stubResp{200, "text/javascript; charset=utf-8", "real()"})

	resp := get(t, f, "/build/app.js", "")
	assert.Equal(t, worker.FromNetwork, resp.Source)
	assert.Equal(t, "real()", string(resp.Body))

	e, err := f.storage.Get(ctx, f.w.StaticCache(), "/build/app.js")
	require.NoError(t, err)
	assert.Equal(t, "text/javascript; charset=utf-8", e.ContentType)
}

func TestCacheFirstDoesNotStoreMismatchedType(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	f.fetch.set("/build/app.css", stubResp{200, "text/html", "<h1>login</h1>"})

	get(t, f, "/build/app.css", "")
	_, err := f.storage.Get(context.Background(), f.w.StaticCache(), "/build/app.css")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCacheFirstRevalidatesInBackground(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	ctx := context.Background()
	f.fetch.set("/build/app.js", stubResp{200, "application/javascript", "v1"})
	get(t, f, "/build/app.js", "")

	f.fetch.set("/build/app.js", stubResp{200, "application/javascript", "v2"})
	stale := get(t, f, "/build/app.js", "")
	assert.Equal(t, worker.FromCache, stale.Source)
	assert.Equal(t, "v1", string(stale.Body))

	f.w.Wait()
	e, err := f.storage.Get(ctx, f.w.StaticCache(), "/build/app.js")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(e.Body))

	f.fetch.set("/build/app.js", stubResp{200, "text/html", "<h1>login</h1>"})
	get(t, f, "/build/app.js", "")
	f.w.Wait()
	e, err = f.storage.Get(ctx, f.w.StaticCache(), "/build/app.js")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(e.Body))
	assert.Equal(t, "application/javascript", e.ContentType)
}

func TestOversizedBodyIsNeverCached(t *testing.T) {
	f := newFixture(t, func(o *worker.Options) { o.MaxBody = 8 })
	require.NoError(t, f.w.Start(context.Background()))
	ctx := context.Background()

	f.fetch.set("/build/big.js", stubResp{200, "application/javascript", "0123456789abcdef"})
	resp := get(t, f, "/build/big.js", "")
	assert.NotEqual(t, worker.FromNetwork, resp.Source)
	assert.NotEqual(t, "01234567", string(resp.Body))
	_, err := f.storage.Get(ctx, f.w.StaticCache(), "/build/big.js")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	f.fetch.set("/api/report", stubResp{200, "application/json", `{"rows":[1,2,3,4]}`})
	api := get(t, f, "/api/report", "application/json")
	assert.Equal(t, worker.FromOffline, api.Source)
	_, err = f.storage.Get(ctx, f.w.DynamicCache(), "/api/report")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	// a cached asset survives an oversized refresh
	f.fetch.set("/build/app.js", stubResp{200, "application/javascript", "ok()"})
	get(t, f, "/build/app.js", "")
	f.fetch.set("/build/app.js", stubResp{200, "application/javascript", "0123456789abcdef"})
	assert.Equal(t, "ok()", string(get(t, f, "/build/app.js", "").Body))
	f.w.Wait()
	e, err := f.storage.Get(ctx, f.w.StaticCache(), "/build/app.js")
	require.NoError(t, err)
	assert.Equal(t, "ok()", string(e.Body))
}

func TestNetworkFirstAPIOffline(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	f.fetch.setDown(true)

	resp := get(t, f, "/api/customers", "application/json")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, worker.FromOffline, resp.Source)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["offline"])
	assert.NotEmpty(t, body["message"])
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	f.fetch.set("/api/customers", stubResp{200, "application/json", `{"data":[1]}`})

	assert.Equal(t, worker.FromNetwork, get(t, f, "/api/customers", "").Source)
	f.fetch.setDown(true)
	resp := get(t, f, "/api/customers", "")
	assert.Equal(t, worker.FromCache, resp.Source)
	assert.JSONEq(t, `{"data":[1]}`, string(resp.Body))
}

func TestNetworkFirstDoesNotCacheErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.Start(context.Background()))
	f.fetch.set("/api/report", stubResp{500, "application/json", `{"success":false}`})

	assert.Equal(t, 500, get(t, f, "/api/report", "").Status)
	_, err := f.storage.Get(context.Background(), f.w.DynamicCache(), "/api/report")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestNavigationOfflinePage(t *testing.T) {
	f := newFixture(t, func(o *worker.Options) { o.OfflinePage = []byte("<p>offline till</p>") })
	require.NoError(t, f.w.Start(context.Background()))
	f.fetch.setDown(true)

	resp := get(t, f, "/pos", "text/html")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "<p>offline till</p>", string(resp.Body))
	assert.Contains(t, resp.ContentType(), "text/html")
}

func TestInstallToleratesFailures(t *testing.T) {
	f := newFixture(t, func(o *worker.Options) {
		o.Precache = []string{"/", "/build/app.js", "/build/missing.css", "/build/wrong.js"}
	})
	f.fetch.set("/", stubResp{200, "text/html", "<html></html>"})
	f.fetch.set("/build/app.js", stubResp{200, "application/javascript", "ok()"})
	f.fetch.set("/build/wrong.js", stubResp{200, "text/html", "<h1>oops</h1>"})

	require.NoError(t, f.w.Start(context.Background()))
	assert.Equal(t, worker.StateActivated, f.w.State())

	ctx := context.Background()
	_, err := f.storage.Get(ctx, f.w.StaticCache(), "/")
	assert.NoError(t, err)
	_, err = f.storage.Get(ctx, f.w.StaticCache(), "/build/app.js")
	assert.NoError(t, err)
	_, err = f.storage.Get(ctx, f.w.StaticCache(), "/build/missing.css")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = f.storage.Get(ctx, f.w.StaticCache(), "/build/wrong.js")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestActivateDropsOldCachesAndNavigates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"tillsync-static-v1", "tillsync-dynamic-v1", "unrelated"} {
		require.NoError(t, f.storage.Put(ctx, name, &cache.Entry{Key: "/x", Status: 200}))
	}
	_, msgs, cancel := f.w.Clients().Subscribe(4)
	defer cancel()

	require.NoError(t, f.w.Start(ctx))

	names, err := f.storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"unrelated"}, names)

	select {
	case m := <-msgs:
		assert.Equal(t, worker.MsgNavigate, m.Type)
	case <-time.After(time.Second):
		t.Fatal("expected NAVIGATE after rotation")
	}
}

func TestClearAllKeepsForeignCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.w.Start(ctx))
	require.NoError(t, f.storage.Put(ctx, f.w.StaticCache(), &cache.Entry{Key: "/a", Status: 200}))
	require.NoError(t, f.storage.Put(ctx, "other", &cache.Entry{Key: "/a", Status: 200}))

	_, err := f.w.HandleMessage(ctx, worker.Message{Type: string(worker.CmdClearCache)})
	require.NoError(t, err)
	names, err := f.storage.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, names)
}
