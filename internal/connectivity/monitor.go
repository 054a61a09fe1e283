// Package connectivity tracks whether the ERP is reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	applog "tillsync/internal/log"
)

// Prober checks the ERP once; any error means offline.
type Prober interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	online bool
	since  time.Time
	subs   []func(online bool)
}

// New starts online; the first failed probe flips it.
func New(p Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Monitor{prober: p, interval: interval, timeout: timeout, online: true, since: time.Now()}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Since returns when the current state began.
func (m *Monitor) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Subscribe registers fn to run on every transition. fn runs on the
// goroutine that caused the transition.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Set records the observed state and reports whether it changed.
// Subscribers are only notified on a change.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.since = time.Now()
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()

	applog.Info(nil, "connectivity.change", map[string]any{"component": "connectivity", "online": online})
	for _, fn := range subs {
		fn(online)
	}
	return true
}

// Probe pings the ERP once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	online := m.prober.Ping(ctx, m.timeout) == nil
	m.Set(online)
	return online
}

// Run probes on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Probe(ctx)
		}
	}
}
