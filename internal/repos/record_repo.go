package repos

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"tillsync/internal/domain"
)

// RecordRepo stores arbitrary JSON records the page keeps for offline use.
type RecordRepo struct{ db *sqlx.DB }

func NewRecordRepo(db *sqlx.DB) *RecordRepo { return &RecordRepo{db: db} }

type recordRow struct {
	ID        int64  `db:"id"`
	Store     string `db:"store"`
	Key       string `db:"rec_key"`
	Data      string `db:"data"`
	CreatedAt string `db:"created_at"`
	Synced    bool   `db:"synced"`
}

func (r recordRow) record() domain.OfflineRecord {
	return domain.OfflineRecord{
		ID: r.ID, Store: r.Store, Key: r.Key, Data: json.RawMessage(r.Data),
		CreatedAt: parseTime(r.CreatedAt), Synced: r.Synced,
	}
}

// Put inserts or replaces the record (store, key); replacing resets synced.
func (r *RecordRepo) Put(store, key string, data json.RawMessage) (domain.OfflineRecord, error) {
	if _, err := r.db.Exec(`
		INSERT INTO offline_records(store, rec_key, data, created_at, synced)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(store, rec_key) DO UPDATE SET data = excluded.data, synced = 0
	`, store, key, string(data), now()); err != nil {
		return domain.OfflineRecord{}, err
	}
	return r.Get(store, key)
}

// Get returns sql.ErrNoRows when the record does not exist.
func (r *RecordRepo) Get(store, key string) (domain.OfflineRecord, error) {
	var row recordRow
	if err := r.db.Get(&row, `
		SELECT id, store, rec_key, data, created_at, synced
		FROM offline_records
		WHERE store = ? AND rec_key = ?
	`, store, key); err != nil {
		return domain.OfflineRecord{}, err
	}
	return row.record(), nil
}

// List returns a store's records in creation order.
func (r *RecordRepo) List(store string) ([]domain.OfflineRecord, error) {
	var rows []recordRow
	if err := r.db.Select(&rows, `
		SELECT id, store, rec_key, data, created_at, synced
		FROM offline_records
		WHERE store = ?
		ORDER BY created_at, id
	`, store); err != nil {
		return nil, err
	}
	out := make([]domain.OfflineRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// Unsynced lists records not yet confirmed by the server, across stores.
func (r *RecordRepo) Unsynced() ([]domain.OfflineRecord, error) {
	var rows []recordRow
	if err := r.db.Select(&rows, `
		SELECT id, store, rec_key, data, created_at, synced
		FROM offline_records
		WHERE synced = 0
		ORDER BY created_at, id
	`); err != nil {
		return nil, err
	}
	out := make([]domain.OfflineRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (r *RecordRepo) MarkSynced(id int64) error {
	_, err := r.db.Exec(`UPDATE offline_records SET synced = 1 WHERE id = ?`, id)
	return err
}

func (r *RecordRepo) Delete(store, key string) error {
	res, err := r.db.Exec(`DELETE FROM offline_records WHERE store = ? AND rec_key = ?`, store, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether err means the row was missing.
func IsNotFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }
