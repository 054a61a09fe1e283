package domain

import (
	"encoding/json"
	"time"
)

// Product is the snapshot the till keeps of an ERP product.
type Product struct {
	ID      int64   `json:"id" db:"id"`
	Name    string  `json:"name" db:"name"`
	Price   float64 `json:"price" db:"price"`
	Barcode string  `json:"barcode,omitempty" db:"barcode"`
	TaxID   *int64  `json:"tax_id,omitempty" db:"tax_id"`
}

type CartItem struct {
	ProductID int64   `json:"product_id" db:"product_id"`
	Name      string  `json:"name" db:"name"`
	Quantity  int     `json:"quantity" db:"qty"`
	Price     float64 `json:"price" db:"price"`
	Discount  float64 `json:"discount" db:"discount"`
	Percent   float64 `json:"percent" db:"percent"` // discount percentage, 0-100
	TaxID     *int64  `json:"tax_id,omitempty" db:"tax_id"`
}

func (it CartItem) Subtotal() float64 { return float64(it.Quantity) * it.Price }

// CheckoutItem is the wire shape the ERP checkout endpoint expects.
type CheckoutItem struct {
	ProductID int64   `json:"product_id"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price"`
	Discount  float64 `json:"discount"`
	Percent   float64 `json:"percent"`
	TaxID     *int64  `json:"tax_id"`
}

type CheckoutRequest struct {
	BranchID int64          `json:"branch_id"`
	Items    []CheckoutItem `json:"items"`
}

func NewCheckoutRequest(branchID int64, items []CartItem) CheckoutRequest {
	req := CheckoutRequest{BranchID: branchID, Items: make([]CheckoutItem, 0, len(items))}
	for _, it := range items {
		req.Items = append(req.Items, CheckoutItem{
			ProductID: it.ProductID,
			Qty:       it.Quantity,
			Price:     it.Price,
			Discount:  it.Discount,
			Percent:   it.Percent,
			TaxID:     it.TaxID,
		})
	}
	return req
}

const (
	SaleStatusPending = "pending"
	SaleStatusDead    = "dead"
)

// QueuedSale is a checkout captured while the ERP was unreachable.
type QueuedSale struct {
	ID        int64           `json:"id"`
	BranchID  int64           `json:"branch_id"`
	Ref       string          `json:"ref"` // idempotency key sent on replay
	Payload   CheckoutRequest `json:"payload"`
	QueuedAt  time.Time       `json:"queued_at"`
	Attempts  int             `json:"attempts"`
	Status    string          `json:"status"`
	LastError string          `json:"last_error,omitempty"`
}

// SyncItem is an entry of the generic sync queue replayed against /api/sync.
type SyncItem struct {
	ID        int64           `json:"id"`
	SyncType  string          `json:"sync_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	Status    string          `json:"status"`
}

// OfflineRecord is an arbitrary JSON record kept in a named local store.
type OfflineRecord struct {
	ID        int64           `json:"id"`
	Store     string          `json:"store"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	Synced    bool            `json:"synced"`
}

const (
	MessageSuccess = "success"
	MessageInfo    = "info"
	MessageWarning = "warning"
	MessageError   = "error"
)

// Message is the only error/notice shape that reaches the cashier.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type SyncResult struct {
	Success      int `json:"success"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
	Remaining    int `json:"remaining"`
}
