package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tillsync/internal/cache"
	applog "tillsync/internal/log"
)

const defaultMaxBody = 16 << 20

// forwarded are the request headers passed on to the network.
var forwarded = []string{"Accept", "Accept-Language", "Authorization", "Cookie", "X-Requested-With", "X-Csrf-Token", "X-Xsrf-Token"}

// kept are the response headers stored with a cache entry.
var kept = []string{"Cache-Control", "Etag", "Last-Modified", "Content-Language"}

type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
}

type Source string

const (
	FromNetwork Source = "network"
	FromCache   Source = "cache"
	FromOffline Source = "offline"
)

type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

func (r *Response) ContentType() string { return r.Header.Get("Content-Type") }

// HandleFetch serves an intercepted request. It returns ErrNotIntercepted
// for non-GET or cross-origin requests, and while the worker does not yet
// control the page.
func (w *Worker) HandleFetch(ctx context.Context, req Request) (*Response, error) {
	if req.Method != http.MethodGet || !w.sameOrigin(req.URL) || !w.Controlling() {
		return nil, ErrNotIntercepted
	}
	switch Classify(req.Method, req.URL.Path, req.Header.Get("Accept")) {
	case CacheFirst:
		return w.cacheFirst(ctx, req)
	case NetworkFirstOfflinePage:
		return w.networkFirstOfflinePage(ctx, req)
	default:
		return w.networkFirst(ctx, req)
	}
}

func (w *Worker) sameOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, w.origin.Scheme) && strings.EqualFold(u.Host, w.origin.Host)
}

func cacheKey(u *url.URL) string { return u.RequestURI() }

func (w *Worker) cacheFirst(ctx context.Context, req Request) (*Response, error) {
	key := cacheKey(req.URL)
	e, err := w.storage.Get(ctx, w.StaticCache(), key)
	switch {
	case err == nil && contentTypeFits(req.URL.Path, e.ContentType):
		w.revalidate(req)
		return entryResponse(e), nil
	case err == nil:
		// an error page was cached under an asset URL; drop it and refetch
		applog.Warn(nil, "worker.cache.evict", nil, map[string]any{
			"component": "worker", "key": key, "content_type": e.ContentType,
		})
		if derr := w.storage.Delete(ctx, w.StaticCache(), key); derr != nil {
			applog.Error(nil, "worker.cache.evict", derr, map[string]any{"component": "worker", "key": key})
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		applog.Error(nil, "worker.cache.read", err, map[string]any{"component": "worker", "key": key})
	}

	resp, err := w.fetch(ctx, req)
	if err != nil {
		return offlineResponse(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("offline")), nil
	}
	if resp.Status == http.StatusOK && contentTypeFits(req.URL.Path, resp.ContentType()) {
		w.put(ctx, w.StaticCache(), key, resp)
	}
	return resp, nil
}

// revalidate refreshes a cached asset in the background.
func (w *Worker) revalidate(req Request) {
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.FetchTimeout)
		defer cancel()
		resp, err := w.fetch(ctx, req)
		if err != nil {
			return
		}
		if resp.Status == http.StatusOK && contentTypeFits(req.URL.Path, resp.ContentType()) {
			w.put(ctx, w.StaticCache(), cacheKey(req.URL), resp)
		}
	}()
}

func (w *Worker) networkFirst(ctx context.Context, req Request) (*Response, error) {
	key := cacheKey(req.URL)
	resp, err := w.fetch(ctx, req)
	if err == nil {
		if resp.Status == http.StatusOK {
			w.put(ctx, w.DynamicCache(), key, resp)
		}
		return resp, nil
	}
	if e := w.lookup(ctx, key); e != nil {
		return entryResponse(e), nil
	}
	if strings.HasPrefix(req.URL.Path, apiPrefix) {
		return offlineAPIResponse(), nil
	}
	return offlineResponse(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("offline")), nil
}

func (w *Worker) networkFirstOfflinePage(ctx context.Context, req Request) (*Response, error) {
	key := cacheKey(req.URL)
	resp, err := w.fetch(ctx, req)
	if err == nil {
		if resp.Status == http.StatusOK {
			w.put(ctx, w.DynamicCache(), key, resp)
		}
		return resp, nil
	}
	if e := w.lookup(ctx, key); e != nil {
		return entryResponse(e), nil
	}
	return offlineResponse(http.StatusServiceUnavailable, "text/html; charset=utf-8", w.opts.OfflinePage), nil
}

// lookup searches the dynamic cache first, then the static one.
func (w *Worker) lookup(ctx context.Context, key string) *cache.Entry {
	for _, name := range []string{w.DynamicCache(), w.StaticCache()} {
		e, err := w.storage.Get(ctx, name, key)
		if err == nil {
			return e
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			applog.Error(nil, "worker.cache.read", err, map[string]any{"component": "worker", "cache": name, "key": key})
		}
	}
	return nil
}

func (w *Worker) put(ctx context.Context, cacheName, key string, resp *Response) {
	e := &cache.Entry{
		Key:         key,
		Status:      resp.Status,
		ContentType: resp.ContentType(),
		Header:      map[string]string{},
		Body:        resp.Body,
		StoredAt:    time.Now(),
	}
	for _, h := range kept {
		if v := resp.Header.Get(h); v != "" {
			e.Header[h] = v
		}
	}
	if err := w.storage.Put(ctx, cacheName, e); err != nil {
		applog.Error(nil, "worker.cache.write", err, map[string]any{"component": "worker", "cache": cacheName, "key": key})
	}
}

// fetch performs the network request. Only transport failures are errors;
// any HTTP status is a successful fetch.
func (w *Worker) fetch(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
	defer cancel()

	hr, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	for _, h := range forwarded {
		if v := req.Header.Get(h); v != "" {
			hr.Header.Set(h, v)
		}
	}
	resp, err := w.fetcher.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, w.opts.MaxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Path, err)
	}
	// a cut-off body must never reach a cache
	if int64(len(body)) > w.opts.MaxBody {
		applog.Warn(nil, "worker.fetch.too_large", ErrBodyTooLarge, map[string]any{
			"component": "worker", "path": req.URL.Path, "limit": w.opts.MaxBody,
		})
		return nil, fmt.Errorf("%w: %s", ErrBodyTooLarge, req.URL.Path)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body, Source: FromNetwork}, nil
}

func entryResponse(e *cache.Entry) *Response {
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{Status: status, Header: e.HTTPHeader(), Body: e.Body, Source: FromCache}
}

func offlineResponse(status int, contentType string, body []byte) *Response {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	return &Response{Status: status, Header: h, Body: body, Source: FromOffline}
}

func offlineAPIResponse() *Response {
	body, _ := json.Marshal(map[string]any{
		"success": false,
		"offline": true,
		"message": "You are offline. This data is not available offline.",
	})
	return offlineResponse(http.StatusServiceUnavailable, "application/json", body)
}
