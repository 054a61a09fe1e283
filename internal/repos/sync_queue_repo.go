package repos

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"tillsync/internal/domain"
)

// SyncQueueRepo is the generic FIFO of typed payloads replayed against /api/sync.
type SyncQueueRepo struct{ db *sqlx.DB }

func NewSyncQueueRepo(db *sqlx.DB) *SyncQueueRepo { return &SyncQueueRepo{db: db} }

type syncRow struct {
	ID        int64  `db:"id"`
	SyncType  string `db:"sync_type"`
	Payload   string `db:"payload"`
	CreatedAt string `db:"created_at"`
	Attempts  int    `db:"attempts"`
	Status    string `db:"status"`
}

func (r syncRow) item() domain.SyncItem {
	return domain.SyncItem{
		ID: r.ID, SyncType: r.SyncType, Payload: json.RawMessage(r.Payload),
		CreatedAt: parseTime(r.CreatedAt), Attempts: r.Attempts, Status: r.Status,
	}
}

func (r *SyncQueueRepo) Add(syncType string, payload json.RawMessage) (domain.SyncItem, error) {
	ts := now()
	res, err := r.db.Exec(`
		INSERT INTO sync_queue(sync_type, payload, created_at, attempts, status)
		VALUES (?, ?, ?, 0, 'pending')
	`, syncType, string(payload), ts)
	if err != nil {
		return domain.SyncItem{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.SyncItem{}, err
	}
	return syncRow{ID: id, SyncType: syncType, Payload: string(payload), CreatedAt: ts, Status: "pending"}.item(), nil
}

// Head returns the oldest pending item; ok is false when the queue is empty.
func (r *SyncQueueRepo) Head() (it domain.SyncItem, ok bool, err error) {
	var row syncRow
	err = r.db.Get(&row, `
		SELECT id, sync_type, payload, created_at, attempts, status
		FROM sync_queue
		WHERE status = 'pending'
		ORDER BY id
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncItem{}, false, nil
	}
	if err != nil {
		return domain.SyncItem{}, false, err
	}
	return row.item(), true, nil
}

func (r *SyncQueueRepo) List() ([]domain.SyncItem, error) {
	var rows []syncRow
	if err := r.db.Select(&rows, `
		SELECT id, sync_type, payload, created_at, attempts, status
		FROM sync_queue
		WHERE status = 'pending'
		ORDER BY id
	`); err != nil {
		return nil, err
	}
	out := make([]domain.SyncItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.item())
	}
	return out, nil
}

func (r *SyncQueueRepo) Count() (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM sync_queue WHERE status = 'pending'`)
	return n, err
}

func (r *SyncQueueRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	return err
}

func (r *SyncQueueRepo) RecordFailure(id int64) error {
	_, err := r.db.Exec(`UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}
