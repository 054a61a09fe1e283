package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	applog "tillsync/internal/log"
)

const precacheConcurrency = 4

var ErrNotInstalled = errors.New("worker: not installed")

// Start installs the worker and, when SkipWaiting is set, activates it
// straight away. Otherwise the worker waits for a SKIP_WAITING message.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	if w.opts.SkipWaiting {
		return w.Activate(ctx)
	}
	w.setState(StateWaiting)
	return nil
}

// Install precaches the static manifest. Individual fetch failures are
// logged and skipped.
func (w *Worker) Install(ctx context.Context) error {
	return w.bus.Dispatch(ctx, Event{Kind: EventInstall})
}

// Activate removes stale cache partitions and starts intercepting fetches.
func (w *Worker) Activate(ctx context.Context) error {
	return w.bus.Dispatch(ctx, Event{Kind: EventActivate})
}

func (w *Worker) SkipWaiting(ctx context.Context) error {
	switch w.State() {
	case StateActivated:
		return nil
	case StateNew:
		return ErrNotInstalled
	}
	return w.Activate(ctx)
}

func (w *Worker) onInstall(ctx context.Context, _ Event) error {
	var (
		mu     sync.Mutex
		cached int
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(precacheConcurrency)
	for _, p := range w.opts.Precache {
		p := p
		g.Go(func() error {
			ok := w.precache(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				cached++
			} else {
				failed = append(failed, p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fields := map[string]any{"component": "worker", "cache": w.StaticCache(), "cached": cached}
	if len(failed) > 0 {
		fields["failed"] = failed
		applog.Warn(nil, "worker.install", nil, fields)
	} else {
		applog.Info(nil, "worker.install", fields)
	}
	if w.State() == StateNew {
		w.setState(StateInstalled)
	}
	return nil
}

func (w *Worker) precache(ctx context.Context, p string) bool {
	u, err := w.resolve(p)
	if err != nil {
		return false
	}
	resp, err := w.fetch(ctx, Request{Method: http.MethodGet, URL: u, Header: http.Header{}})
	if err != nil || resp.Status != http.StatusOK {
		return false
	}
	if isStaticAsset(u.Path) && !contentTypeFits(u.Path, resp.ContentType()) {
		return false
	}
	w.put(ctx, w.StaticCache(), cacheKey(u), resp)
	return true
}

func (w *Worker) onActivate(ctx context.Context, _ Event) error {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	current := map[string]bool{w.StaticCache(): true, w.DynamicCache(): true}
	var dropped []string
	for _, name := range names {
		if !strings.HasPrefix(name, cachePrefix) || current[name] {
			continue
		}
		if err := w.storage.DropCache(ctx, name); err != nil {
			return fmt.Errorf("drop cache %s: %w", name, err)
		}
		dropped = append(dropped, name)
	}
	w.setState(StateActivated)
	applog.Info(nil, "worker.activate", map[string]any{
		"component": "worker", "version": w.version, "dropped": dropped,
	})
	// pages loaded from an older version reload themselves
	if len(dropped) > 0 {
		w.Post(MsgNavigate, map[string]string{"url": "/"})
	}
	return nil
}

// ClearAll drops every cache partition owned by the worker.
func (w *Worker) ClearAll(ctx context.Context) error {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, cachePrefix) {
			continue
		}
		if err := w.storage.DropCache(ctx, name); err != nil {
			return fmt.Errorf("drop cache %s: %w", name, err)
		}
	}
	applog.Audit(nil, "worker.cache.clear", map[string]any{"component": "worker", "caches": len(names)})
	return nil
}
