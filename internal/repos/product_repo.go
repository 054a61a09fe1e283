package repos

import (
	"strings"

	"github.com/jmoiron/sqlx"

	"tillsync/internal/domain"
)

// ProductRepo keeps the branch's product snapshots for offline lookup.
type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

// Upsert stores the latest server view of products.
func (r *ProductRepo) Upsert(branchID int64, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	for _, p := range products {
		if _, err := tx.Exec(`
			INSERT INTO product_snapshots(branch_id, id, name, price, barcode, tax_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(branch_id, id) DO UPDATE SET
			  name = excluded.name, price = excluded.price, barcode = excluded.barcode,
			  tax_id = excluded.tax_id, updated_at = excluded.updated_at
		`, branchID, p.ID, p.Name, p.Price, p.Barcode, p.TaxID, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ProductRepo) Get(branchID, id int64) (domain.Product, error) {
	var p domain.Product
	err := r.db.Get(&p, `
	  SELECT id, name, price, barcode, tax_id
	  FROM product_snapshots
	  WHERE branch_id = ? AND id = ?
	`, branchID, id)
	return p, err
}

// Search matches name substrings or an exact barcode, case-insensitively.
func (r *ProductRepo) Search(branchID int64, q string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 20
	}
	q = strings.ToLower(strings.TrimSpace(q))
	out := []domain.Product{}
	err := r.db.Select(&out, `
	  SELECT id, name, price, barcode, tax_id
	  FROM product_snapshots
	  WHERE branch_id = ? AND (LOWER(name) LIKE ? OR LOWER(barcode) = ?)
	  ORDER BY name
	  LIMIT ?
	`, branchID, "%"+q+"%", q, limit)
	return out, err
}
