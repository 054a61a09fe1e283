package log

import (
	"bytes"
	"encoding/json"
	"errors"
	stdlog "log"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, fn func()) []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	oldW, oldF := stdlog.Writer(), stdlog.Flags()
	stdlog.SetOutput(&buf)
	stdlog.SetFlags(0)
	defer func() {
		stdlog.SetOutput(oldW)
		stdlog.SetFlags(oldF)
	}()
	fn()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestBackgroundEntryLiftsComponent(t *testing.T) {
	fields := map[string]any{"component": "sync", "sale_id": 4}
	entries := capture(t, func() {
		Error(nil, "sync.halt", errors.New("boom"), fields)
	})
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "error", e["level"])
	assert.Equal(t, "sync", e["component"])
	assert.Equal(t, "boom", e["err"])
	assert.Equal(t, map[string]any{"sale_id": float64(4)}, e["fields"])
	assert.Contains(t, fields, "component", "caller's map is left alone")
}

func TestRequestEntryCarriesRequestData(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	var entries []map[string]any
	app.Get("/x", func(c *fiber.Ctx) error {
		entries = capture(t, func() { Security(c, "validation.fail", map[string]any{"field": "q"}) })
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)

	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "warn", e["level"])
	assert.Equal(t, "GET", e["method"])
	assert.Equal(t, "/x", e["path"])
	assert.NotEmpty(t, e["req_id"])
	assert.Nil(t, e["component"])
}

func TestLevels(t *testing.T) {
	entries := capture(t, func() {
		Info(nil, "a", nil)
		Audit(nil, "b", nil)
		Warn(nil, "c", nil, nil)
	})
	require.Len(t, entries, 3)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "audit", entries[1]["level"])
	assert.Equal(t, "warn", entries[2]["level"])
}
