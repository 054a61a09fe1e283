package handlers_test

import (
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"tillsync/internal/config"
)

func pinAgentConfig(t *testing.T) func(*config.Config) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return func(c *config.Config) { c.AdminPinHash = string(hash) }
}

// Logs: a requeue without the admin PIN emits access.denied.pin
func TestRequeueWithoutPinLogged(t *testing.T) {
	app := newTestApp(t, newTestAgent(t, "http://127.0.0.1:1", pinAgentConfig(t)))

	var status int
	entries := captureLogs(t, func() {
		resp, _ := doJSON(t, app, "POST", "/pos/queue/1/requeue", nil)
		status = resp.StatusCode
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if !hasAction(entries, "access.denied.pin") {
		t.Fatalf("expected access.denied.pin log")
	}
}

func TestRequeueWrongPinDenied(t *testing.T) {
	app := newTestApp(t, newTestAgent(t, "http://127.0.0.1:1", pinAgentConfig(t)))

	resp, _ := doJSON(t, app, "POST", "/pos/queue/1/requeue", nil, "X-Admin-Pin", "0000")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", resp.StatusCode)
	}
	// right pin reaches the handler; nothing is dead so it is a 404
	resp, _ = doJSON(t, app, "POST", "/pos/queue/1/requeue", nil, "X-Admin-Pin", "4321")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 with valid pin, got %d", resp.StatusCode)
	}
}

func TestClearCacheRequiresPin(t *testing.T) {
	app := newTestApp(t, newTestAgent(t, "http://127.0.0.1:1", pinAgentConfig(t)))

	var status int
	entries := captureLogs(t, func() {
		resp, _ := doJSON(t, app, "POST", "/sw/message", map[string]any{"type": "CLEAR_CACHE"})
		status = resp.StatusCode
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if !hasAction(entries, "access.denied.pin") {
		t.Fatalf("expected access.denied.pin log")
	}

	entries = captureLogs(t, func() {
		resp, body := doJSON(t, app, "POST", "/sw/message", map[string]any{"type": "CLEAR_CACHE"}, "X-Admin-Pin", "4321")
		status = resp.StatusCode
		if body["success"] != true {
			t.Errorf("expected success body, got %v", body)
		}
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 with pin, got %d", status)
	}
	if !hasAction(entries, "sw.clear_cache") {
		t.Fatalf("expected sw.clear_cache audit log")
	}
}
