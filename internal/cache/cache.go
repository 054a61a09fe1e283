package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// Entry is a response snapshot stored under a request key in a named partition.
type Entry struct {
	Key         string            `json:"key"`
	Status      int               `json:"status"`
	ContentType string            `json:"content_type"`
	Header      map[string]string `json:"header,omitempty"`
	Body        []byte            `json:"body"`
	StoredAt    time.Time         `json:"stored_at"`
}

// MediaType returns the content type without parameters, lower-cased.
func (e *Entry) MediaType() string {
	return MediaType(e.ContentType)
}

func MediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// HTTPHeader rebuilds a header set for replaying the entry.
func (e *Entry) HTTPHeader() http.Header {
	h := http.Header{}
	for k, v := range e.Header {
		h.Set(k, v)
	}
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	return h
}

// Storage is a set of named cache partitions. Writes to one key are atomic:
// a reader sees either the previous entry or the new one.
type Storage interface {
	Get(ctx context.Context, cacheName, key string) (*Entry, error)
	Put(ctx context.Context, cacheName string, e *Entry) error
	Delete(ctx context.Context, cacheName, key string) error
	Names(ctx context.Context) ([]string, error)
	DropCache(ctx context.Context, cacheName string) error
}
