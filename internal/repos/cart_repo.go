package repos

import (
	"github.com/jmoiron/sqlx"

	"tillsync/internal/domain"
)

type CartRepo struct{ db *sqlx.DB }

func NewCartRepo(db *sqlx.DB) *CartRepo { return &CartRepo{db: db} }

// Load returns the persisted cart of a branch in line order.
func (r *CartRepo) Load(branchID int64) ([]domain.CartItem, error) {
	items := []domain.CartItem{}
	err := r.db.Select(&items, `
	  SELECT product_id, name, qty, price, discount, percent, tax_id
	  FROM cart_items
	  WHERE branch_id = ?
	  ORDER BY position
	`, branchID)
	return items, err
}

// Save replaces the branch cart with items in a single transaction.
func (r *CartRepo) Save(branchID int64, items []domain.CartItem) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM cart_items WHERE branch_id = ?`, branchID); err != nil {
		return err
	}
	ts := now()
	for i, it := range items {
		if _, err := tx.Exec(`
			INSERT INTO cart_items(branch_id, position, product_id, name, qty, price, discount, percent, tax_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, branchID, i, it.ProductID, it.Name, it.Quantity, it.Price, it.Discount, it.Percent, it.TaxID, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *CartRepo) Clear(branchID int64) error {
	_, err := r.db.Exec(`DELETE FROM cart_items WHERE branch_id = ?`, branchID)
	return err
}
