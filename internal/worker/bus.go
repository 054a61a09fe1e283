package worker

import (
	"context"
	"errors"
	"sync"
)

type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventMessage  EventKind = "message"
	EventSync     EventKind = "sync"
)

type Event struct {
	Kind    EventKind
	Tag     string   // background sync tag
	Message *Message // page command
	// Reply delivers a direct answer to the sender of a message event.
	Reply func(Message)
}

// Handler must finish all work for the event before returning; Dispatch
// treats the event as settled once every handler has returned.
type Handler func(ctx context.Context, ev Event) error

// Bus runs the handlers registered for an event kind in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind][]Handler
}

func NewBus() *Bus { return &Bus{handlers: map[EventKind][]Handler{}} }

func (b *Bus) On(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Dispatch runs every handler for ev.Kind and joins their errors.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[ev.Kind]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
