package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tillsync/internal/domain"
	"tillsync/internal/repos"
	"tillsync/internal/validate"
)

var ErrIndexOutOfRange = errors.New("cart: index out of range")

type Limits struct {
	MaxQuantity int
	MaxPrice    float64
}

// CartService holds the in-progress sale for one branch. Every mutation is
// written through to the cart repo before it returns.
type CartService struct {
	Carts    *repos.CartRepo
	BranchID int64
	Limits   Limits

	mu    sync.Mutex
	items []domain.CartItem
}

func NewCartService(carts *repos.CartRepo, branchID int64, limits Limits) (*CartService, error) {
	if limits.MaxQuantity <= 0 {
		limits.MaxQuantity = 9999
	}
	if limits.MaxPrice <= 0 {
		limits.MaxPrice = 999999999
	}
	s := &CartService{Carts: carts, BranchID: branchID, Limits: limits}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory cart with the persisted one.
func (s *CartService) Load() error {
	items, err := s.Carts.Load(s.BranchID)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

func (s *CartService) persist() error {
	if err := s.Carts.Save(s.BranchID, s.items); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// AddItem bumps the quantity of an existing line for the product or appends
// a new line priced at the product's current price.
func (s *CartService) AddItem(p domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ProductID == p.ID {
			if s.items[i].Quantity < s.Limits.MaxQuantity {
				s.items[i].Quantity++
			}
			return s.persist()
		}
	}
	s.items = append(s.items, domain.CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  1,
		Price:     validate.ClampMoney(p.Price, 0, s.Limits.MaxPrice),
		TaxID:     p.TaxID,
	})
	return s.persist()
}

// UpdateQuantity sets the quantity of line index from raw cashier input.
// clamped is true when the value was cut down to MaxQuantity.
func (s *CartService) UpdateQuantity(index int, raw string) (clamped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return false, ErrIndexOutOfRange
	}
	qty, clamped := validate.Qty(raw, s.Limits.MaxQuantity)
	s.items[index].Quantity = qty
	s.items[index].Discount = clampDiscount(s.items[index].Discount, s.items[index])
	return clamped, s.persist()
}

func (s *CartService) UpdatePrice(index int, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	s.items[index].Price = validate.Price(raw, s.Limits.MaxPrice)
	s.items[index].Discount = clampDiscount(s.items[index].Discount, s.items[index])
	return s.persist()
}

// UpdateDiscount sets a flat line discount, clamped to the line subtotal.
func (s *CartService) UpdateDiscount(index int, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	s.items[index].Discount = clampDiscount(validate.Price(raw, s.Limits.MaxPrice), s.items[index])
	return s.persist()
}

// UpdatePercent sets the line discount percentage, clamped to [0, 100].
func (s *CartService) UpdatePercent(index int, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	s.items[index].Percent = validate.Price(raw, 100)
	return s.persist()
}

func clampDiscount(d float64, it domain.CartItem) float64 {
	return validate.ClampMoney(d, 0, it.Subtotal())
}

// RemoveItem drops line index. Out-of-range indices are ignored.
func (s *CartService) RemoveItem(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return nil
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	return s.persist()
}

func (s *CartService) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartItem(nil), s.items...)
}

func (s *CartService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Total is the sum of quantity x price over the current lines.
func (s *CartService) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return total(s.items)
}

func total(items []domain.CartItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum.Round(2).InexactFloat64()
}

func (s *CartService) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	if err := s.Carts.Clear(s.BranchID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
