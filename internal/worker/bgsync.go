package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	applog "tillsync/internal/log"
)

const (
	TagOfflineSales = "sync-offline-sales"
	TagOfflineData  = "sync-offline-data"
)

var syncMessages = map[string]string{
	TagOfflineSales: MsgSyncOfflineSales,
	TagOfflineData:  MsgSyncOfflineData,
}

var ErrUnknownTag = errors.New("worker: unknown sync tag")

// RegisterSync records a background sync tag to fire on the next FireSync.
func (w *Worker) RegisterSync(tag string) error {
	if _, ok := syncMessages[tag]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	w.mu.Lock()
	w.syncTags[tag] = struct{}{}
	w.mu.Unlock()
	return nil
}

// PendingSyncs returns the registered tags in a stable order.
func (w *Worker) PendingSyncs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.syncTags))
	for t := range w.syncTags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// FireSync dispatches a sync event per registered tag. A tag whose event
// fails stays registered and is retried by the next FireSync.
func (w *Worker) FireSync(ctx context.Context) error {
	var errs []error
	for _, tag := range w.PendingSyncs() {
		if err := w.bus.Dispatch(ctx, Event{Kind: EventSync, Tag: tag}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tag, err))
			continue
		}
		w.mu.Lock()
		delete(w.syncTags, tag)
		w.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (w *Worker) onSync(_ context.Context, ev Event) error {
	typ, ok := syncMessages[ev.Tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, ev.Tag)
	}
	n := w.Post(typ, map[string]string{"tag": ev.Tag})
	applog.Info(nil, "worker.sync", map[string]any{"component": "worker", "tag": ev.Tag, "clients": n})
	if n == 0 {
		return ErrNoClients
	}
	return nil
}
