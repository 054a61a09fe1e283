package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	applog "tillsync/internal/log"
	"tillsync/internal/validate"
)

// Command is a page->worker message type.
type Command string

const (
	CmdSkipWaiting      Command = "SKIP_WAITING"
	CmdCacheURLs        Command = "CACHE_URLS"
	CmdClearCache       Command = "CLEAR_CACHE"
	CmdStoreOfflineData Command = "STORE_OFFLINE_DATA"
	CmdGetOfflineData   Command = "GET_OFFLINE_DATA"
	CmdAddToSyncQueue   Command = "ADD_TO_SYNC_QUEUE"
	CmdProcessSyncQueue Command = "PROCESS_SYNC_QUEUE"
)

// worker->page message types
const (
	MsgOfflineDataStored = "OFFLINE_DATA_STORED"
	MsgOfflineDataResult = "OFFLINE_DATA_RESULT"
	MsgSyncQueueUpdated  = "SYNC_QUEUE_UPDATED"
	MsgSyncComplete      = "SYNC_COMPLETE"
	MsgSyncOfflineSales  = "SYNC_OFFLINE_SALES"
	MsgSyncOfflineData   = "SYNC_OFFLINE_DATA"
	MsgNavigate          = "NAVIGATE"
	MsgConnectivity      = "CONNECTIVITY"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(typ string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: typ}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return Message{Type: typ, Payload: b}, nil
}

// ErrBadPayload wraps payload decoding and validation failures.
var ErrBadPayload = errors.New("worker: bad message payload")

// commandHandler runs a page command. A non-nil reply goes back to the sender.
type commandHandler func(ctx context.Context, payload json.RawMessage) (*Message, error)

func (w *Worker) commandTable() map[Command]commandHandler {
	return map[Command]commandHandler{
		CmdSkipWaiting:      w.cmdSkipWaiting,
		CmdCacheURLs:        w.cmdCacheURLs,
		CmdClearCache:       w.cmdClearCache,
		CmdStoreOfflineData: w.cmdStoreOfflineData,
		CmdGetOfflineData:   w.cmdGetOfflineData,
		CmdAddToSyncQueue:   w.cmdAddToSyncQueue,
		CmdProcessSyncQueue: w.cmdProcessSyncQueue,
	}
}

// Commands lists the command types the worker understands.
func (w *Worker) Commands() []Command {
	out := make([]Command, 0, len(w.commands))
	for c := range w.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HandleMessage dispatches a page command through the event bus and returns
// the direct reply, if the command produces one.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) (*Message, error) {
	var reply *Message
	err := w.bus.Dispatch(ctx, Event{
		Kind:    EventMessage,
		Message: &msg,
		Reply:   func(m Message) { reply = &m },
	})
	return reply, err
}

func (w *Worker) onMessage(ctx context.Context, ev Event) error {
	if ev.Message == nil {
		return nil
	}
	h, ok := w.commands[Command(ev.Message.Type)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, ev.Message.Type)
	}
	reply, err := h(ctx, ev.Message.Payload)
	if err != nil {
		applog.Error(nil, "worker.message", err, map[string]any{"component": "worker", "type": ev.Message.Type})
		return err
	}
	if reply != nil && ev.Reply != nil {
		ev.Reply(*reply)
	}
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty", ErrBadPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func (w *Worker) cmdSkipWaiting(ctx context.Context, _ json.RawMessage) (*Message, error) {
	return nil, w.SkipWaiting(ctx)
}

// cmdCacheURLs fetches each URL and stores successful responses in the
// dynamic partition. URLs are resolved against the origin.
func (w *Worker) cmdCacheURLs(ctx context.Context, payload json.RawMessage) (*Message, error) {
	var in struct {
		URLs []string `json:"urls"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	var errs []error
	for _, raw := range in.URLs {
		u, err := w.resolve(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resp, err := w.fetch(ctx, Request{Method: http.MethodGet, URL: u, Header: http.Header{}})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if resp.Status != http.StatusOK {
			errs = append(errs, fmt.Errorf("cache %s: status %d", u.Path, resp.Status))
			continue
		}
		w.put(ctx, w.DynamicCache(), cacheKey(u), resp)
	}
	return nil, errors.Join(errs...)
}

func (w *Worker) cmdClearCache(ctx context.Context, _ json.RawMessage) (*Message, error) {
	return nil, w.ClearAll(ctx)
}

func (w *Worker) cmdStoreOfflineData(_ context.Context, payload json.RawMessage) (*Message, error) {
	var in struct {
		Store string          `json:"store"`
		Key   string          `json:"key"`
		Data  json.RawMessage `json:"data"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	store, ok := validate.Store(in.Store)
	if !ok || in.Key == "" || len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: store, key and data are required", ErrBadPayload)
	}
	rec, err := w.records.Put(store, in.Key, in.Data)
	if err != nil {
		return nil, fmt.Errorf("store offline data: %w", err)
	}
	msg, err := NewMessage(MsgOfflineDataStored, map[string]any{"store": rec.Store, "key": rec.Key, "id": rec.ID})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (w *Worker) cmdGetOfflineData(_ context.Context, payload json.RawMessage) (*Message, error) {
	var in struct {
		Store string `json:"store"`
		Key   string `json:"key"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	store, ok := validate.Store(in.Store)
	if !ok {
		return nil, fmt.Errorf("%w: invalid store", ErrBadPayload)
	}

	out := map[string]any{"store": store}
	if in.Key != "" {
		rec, err := w.records.Get(store, in.Key)
		switch {
		case err == nil:
			out["key"] = in.Key
			out["data"] = rec.Data
		case isNoRows(err):
			out["key"] = in.Key
			out["data"] = nil
		default:
			return nil, fmt.Errorf("get offline data: %w", err)
		}
	} else {
		recs, err := w.records.List(store)
		if err != nil {
			return nil, fmt.Errorf("list offline data: %w", err)
		}
		out["data"] = recs
	}
	msg, err := NewMessage(MsgOfflineDataResult, out)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (w *Worker) cmdAddToSyncQueue(_ context.Context, payload json.RawMessage) (*Message, error) {
	var in struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}
	typ, ok := validate.SyncType(in.Type)
	if !ok || len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: type and payload are required", ErrBadPayload)
	}
	if _, err := w.queue.Add(typ, in.Payload); err != nil {
		return nil, fmt.Errorf("add to sync queue: %w", err)
	}
	n, err := w.queue.Count()
	if err != nil {
		return nil, err
	}
	w.Post(MsgSyncQueueUpdated, map[string]int{"count": n})
	return nil, nil
}

func (w *Worker) cmdProcessSyncQueue(ctx context.Context, _ json.RawMessage) (*Message, error) {
	res, err := w.proc.Process(ctx)
	if err != nil {
		return nil, err
	}
	w.Post(MsgSyncQueueUpdated, map[string]int{"count": res.Remaining})
	msg, err := NewMessage(MsgSyncComplete, res)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (w *Worker) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	u := w.origin.ResolveReference(ref)
	if !w.sameOrigin(u) {
		return nil, fmt.Errorf("%w: %s is not same-origin", ErrBadPayload, raw)
	}
	return u, nil
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
