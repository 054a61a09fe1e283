package repos

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tillsync/internal/domain"
)

// SaleQueueRepo is the durable per-branch FIFO of offline sales.
type SaleQueueRepo struct{ db *sqlx.DB }

func NewSaleQueueRepo(db *sqlx.DB) *SaleQueueRepo { return &SaleQueueRepo{db: db} }

type saleRow struct {
	ID        int64          `db:"id"`
	BranchID  int64          `db:"branch_id"`
	Ref       string         `db:"ref"`
	Payload   string         `db:"payload"`
	QueuedAt  string         `db:"queued_at"`
	Attempts  int            `db:"attempts"`
	Status    string         `db:"status"`
	LastError sql.NullString `db:"last_error"`
}

func (r saleRow) sale() (domain.QueuedSale, error) {
	s := domain.QueuedSale{
		ID:        r.ID,
		BranchID:  r.BranchID,
		Ref:       r.Ref,
		QueuedAt:  parseTime(r.QueuedAt),
		Attempts:  r.Attempts,
		Status:    r.Status,
		LastError: r.LastError.String,
	}
	err := json.Unmarshal([]byte(r.Payload), &s.Payload)
	return s, err
}

const saleCols = `id, branch_id, ref, payload, queued_at, attempts, status, last_error`

// Enqueue appends a sale to the tail of the branch queue.
func (r *SaleQueueRepo) Enqueue(branchID int64, ref string, payload domain.CheckoutRequest, at time.Time) (domain.QueuedSale, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return domain.QueuedSale{}, err
	}
	res, err := r.db.Exec(`
	  INSERT INTO offline_sales(branch_id, ref, payload, queued_at, attempts, status)
	  VALUES (?, ?, ?, ?, 0, 'pending')
	`, branchID, ref, string(b), at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.QueuedSale{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.QueuedSale{}, err
	}
	return domain.QueuedSale{
		ID: id, BranchID: branchID, Ref: ref, Payload: payload,
		QueuedAt: at.UTC(), Status: domain.SaleStatusPending,
	}, nil
}

// Head returns the oldest pending sale of the branch; ok is false when the queue is empty.
func (r *SaleQueueRepo) Head(branchID int64) (s domain.QueuedSale, ok bool, err error) {
	var row saleRow
	err = r.db.Get(&row, `
	  SELECT `+saleCols+`
	  FROM offline_sales
	  WHERE branch_id = ? AND status = 'pending'
	  ORDER BY id
	  LIMIT 1
	`, branchID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QueuedSale{}, false, nil
	}
	if err != nil {
		return domain.QueuedSale{}, false, err
	}
	s, err = row.sale()
	return s, err == nil, err
}

// Pending lists pending sales oldest first.
func (r *SaleQueueRepo) Pending(branchID int64) ([]domain.QueuedSale, error) {
	return r.list(branchID, domain.SaleStatusPending)
}

// Dead lists dead-lettered sales oldest first.
func (r *SaleQueueRepo) Dead(branchID int64) ([]domain.QueuedSale, error) {
	return r.list(branchID, domain.SaleStatusDead)
}

func (r *SaleQueueRepo) list(branchID int64, status string) ([]domain.QueuedSale, error) {
	var rows []saleRow
	if err := r.db.Select(&rows, `
	  SELECT `+saleCols+`
	  FROM offline_sales
	  WHERE branch_id = ? AND status = ?
	  ORDER BY id
	`, branchID, status); err != nil {
		return nil, err
	}
	out := make([]domain.QueuedSale, 0, len(rows))
	for _, row := range rows {
		s, err := row.sale()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Count returns the number of pending sales.
func (r *SaleQueueRepo) Count(branchID int64) (int, error) {
	var n int
	err := r.db.Get(&n, `SELECT COUNT(*) FROM offline_sales WHERE branch_id = ? AND status = 'pending'`, branchID)
	return n, err
}

// Delete removes a sale the server confirmed.
func (r *SaleQueueRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM offline_sales WHERE id = ?`, id)
	return err
}

// RecordFailure bumps the attempt counter and returns the new value.
func (r *SaleQueueRepo) RecordFailure(id int64, reason string) (int, error) {
	if _, err := r.db.Exec(`
	  UPDATE offline_sales SET attempts = attempts + 1, last_error = ? WHERE id = ?
	`, reason, id); err != nil {
		return 0, err
	}
	var n int
	err := r.db.Get(&n, `SELECT attempts FROM offline_sales WHERE id = ?`, id)
	return n, err
}

func (r *SaleQueueRepo) MarkDead(id int64) error {
	_, err := r.db.Exec(`UPDATE offline_sales SET status = 'dead' WHERE id = ?`, id)
	return err
}

// Requeue puts a dead sale back at its original position with a fresh attempt budget.
func (r *SaleQueueRepo) Requeue(id int64) error {
	res, err := r.db.Exec(`
	  UPDATE offline_sales SET status = 'pending', attempts = 0 WHERE id = ? AND status = 'dead'
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
