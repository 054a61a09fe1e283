// Package worker intercepts the POS page's GET requests and serves them
// from the network or the local cache depending on the resource class. It
// follows the service worker lifecycle: install, wait, activate, control.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tillsync/internal/cache"
	"tillsync/internal/domain"
)

var (
	// ErrNotIntercepted tells the caller to pass the request through untouched.
	ErrNotIntercepted = errors.New("worker: request not intercepted")
	ErrUnknownCommand = errors.New("worker: unknown command")
	ErrNoClients      = errors.New("worker: no page to deliver to")
	ErrBodyTooLarge   = errors.New("worker: response body too large")
)

const cachePrefix = "tillsync-"

type State int

const (
	StateNew State = iota
	StateInstalled
	StateWaiting
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateWaiting:
		return "waiting"
	case StateActivated:
		return "activated"
	default:
		return "new"
	}
}

// Fetcher performs network requests; *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Records is the narrow offline record store the worker exposes to pages.
type Records interface {
	Put(store, key string, data json.RawMessage) (domain.OfflineRecord, error)
	Get(store, key string) (domain.OfflineRecord, error)
	List(store string) ([]domain.OfflineRecord, error)
}

// SyncQueue is the generic queue pages append to while offline.
type SyncQueue interface {
	Add(syncType string, payload json.RawMessage) (domain.SyncItem, error)
	Count() (int, error)
}

// QueueProcessor replays the generic sync queue.
type QueueProcessor interface {
	Process(ctx context.Context) (domain.SyncResult, error)
}

type Options struct {
	Origin       string // upstream base URL, e.g. http://erp.local
	Version      string
	Precache     []string
	SkipWaiting  bool
	OfflinePage  []byte
	FetchTimeout time.Duration
	MaxBody      int64 // largest response body read from the network
}

type Worker struct {
	origin  *url.URL
	version string
	opts    Options

	fetcher Fetcher
	storage cache.Storage
	records Records
	queue   SyncQueue
	proc    QueueProcessor

	bus      *Bus
	clients  *Clients
	commands map[Command]commandHandler

	mu       sync.RWMutex
	state    State
	syncTags map[string]struct{}

	bg sync.WaitGroup
}

func New(opts Options, fetcher Fetcher, storage cache.Storage, records Records, queue SyncQueue, proc QueueProcessor) (*Worker, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Host == "" {
		return nil, errors.New("worker: origin must be an absolute URL")
	}
	if opts.Version == "" {
		opts.Version = "v1"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	if len(opts.OfflinePage) == 0 {
		opts.OfflinePage = []byte("<!doctype html><title>Offline</title><h1>You are offline</h1>")
	}
	w := &Worker{
		origin:   origin,
		version:  opts.Version,
		opts:     opts,
		fetcher:  fetcher,
		storage:  storage,
		records:  records,
		queue:    queue,
		proc:     proc,
		bus:      NewBus(),
		clients:  NewClients(),
		syncTags: map[string]struct{}{},
	}
	w.commands = w.commandTable()
	w.bus.On(EventInstall, w.onInstall)
	w.bus.On(EventActivate, w.onActivate)
	w.bus.On(EventMessage, w.onMessage)
	w.bus.On(EventSync, w.onSync)
	return w, nil
}

func (w *Worker) Bus() *Bus           { return w.bus }
func (w *Worker) Clients() *Clients   { return w.clients }
func (w *Worker) Origin() *url.URL    { return w.origin }
func (w *Worker) StaticCache() string { return cachePrefix + "static-" + w.version }
func (w *Worker) DynamicCache() string {
	return cachePrefix + "dynamic-" + w.version
}

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Controlling reports whether fetches are being intercepted.
func (w *Worker) Controlling() bool { return w.State() == StateActivated }

// Wait blocks until background cache refreshes have finished.
func (w *Worker) Wait() { w.bg.Wait() }

// Post sends a message to every connected page.
func (w *Worker) Post(typ string, payload any) int {
	msg, err := NewMessage(typ, payload)
	if err != nil {
		return 0
	}
	return w.clients.Broadcast(msg)
}
