package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tillsync/internal/cache"
)

// CacheRepo is the SQLite implementation of cache.Storage.
type CacheRepo struct{ db *sqlx.DB }

var _ cache.Storage = (*CacheRepo)(nil)

func NewCacheRepo(db *sqlx.DB) *CacheRepo { return &CacheRepo{db: db} }

type cacheRow struct {
	Key         string         `db:"req_key"`
	Status      int            `db:"status"`
	ContentType string         `db:"content_type"`
	HeaderJSON  sql.NullString `db:"header_json"`
	Body        []byte         `db:"body"`
	StoredAt    string         `db:"stored_at"`
}

func (r *CacheRepo) Get(ctx context.Context, cacheName, key string) (*cache.Entry, error) {
	var row cacheRow
	err := r.db.GetContext(ctx, &row, `
		SELECT req_key, status, content_type, header_json, body, stored_at
		FROM cache_entries
		WHERE cache_name = ? AND req_key = ?
	`, cacheName, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	e := &cache.Entry{
		Key: row.Key, Status: row.Status, ContentType: row.ContentType,
		Body: row.Body, StoredAt: parseTime(row.StoredAt),
	}
	if row.HeaderJSON.Valid && row.HeaderJSON.String != "" {
		if err := json.Unmarshal([]byte(row.HeaderJSON.String), &e.Header); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (r *CacheRepo) Put(ctx context.Context, cacheName string, e *cache.Entry) error {
	hdr, err := json.Marshal(e.Header)
	if err != nil {
		return err
	}
	stored := e.StoredAt
	if stored.IsZero() {
		stored = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cache_entries(cache_name, req_key, status, content_type, header_json, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, req_key) DO UPDATE SET
		  status = excluded.status, content_type = excluded.content_type,
		  header_json = excluded.header_json, body = excluded.body, stored_at = excluded.stored_at
	`, cacheName, e.Key, e.Status, e.ContentType, string(hdr), e.Body, stored.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *CacheRepo) Delete(ctx context.Context, cacheName, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ? AND req_key = ?`, cacheName, key)
	return err
}

func (r *CacheRepo) Names(ctx context.Context) ([]string, error) {
	names := []string{}
	err := r.db.SelectContext(ctx, &names, `SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name`)
	return names, err
}

func (r *CacheRepo) DropCache(ctx context.Context, cacheName string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_name = ?`, cacheName)
	return err
}
