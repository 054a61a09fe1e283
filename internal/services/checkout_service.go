package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/upstream"
)

// SaleSender submits a sale to the ERP.
type SaleSender interface {
	Checkout(ctx context.Context, branchID int64, req domain.CheckoutRequest, idemKey string) (upstream.CheckoutResult, error)
}

// OnlineChecker reports the last known connectivity state.
type OnlineChecker interface {
	Online() bool
}

const (
	CheckoutCompleted = "completed"
	CheckoutQueued    = "queued"
	CheckoutFailed    = "failed"
	CheckoutEmpty     = "empty"
)

type CheckoutOutcome struct {
	Status  string              `json:"status"`
	Message domain.Message      `json:"message"`
	Code    string              `json:"code,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Sale    *domain.QueuedSale  `json:"sale,omitempty"`
}

type CheckoutService struct {
	Cart   *CartService
	Sales  *repos.SaleQueueRepo
	Sender SaleSender
	Net    OnlineChecker
	P      *i18n.Printer

	mu sync.Mutex
}

func NewCheckoutService(cart *CartService, sales *repos.SaleQueueRepo, sender SaleSender, net OnlineChecker, p *i18n.Printer) *CheckoutService {
	return &CheckoutService{Cart: cart, Sales: sales, Sender: sender, Net: net, P: p}
}

// Checkout submits the cart. While offline the sale is queued and the cart
// cleared; online failures leave the cart untouched. The returned error is
// only set for local storage failures.
func (s *CheckoutService) Checkout(ctx context.Context) (CheckoutOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.Cart.Items()
	if len(items) == 0 {
		return CheckoutOutcome{Status: CheckoutEmpty, Message: msg(domain.MessageWarning, s.P.Sprintf(i18n.CartEmpty))}, nil
	}
	req := domain.NewCheckoutRequest(s.Cart.BranchID, items)

	if !s.Net.Online() {
		return s.enqueue(req)
	}

	res, err := s.Sender.Checkout(ctx, s.Cart.BranchID, req, uuid.NewString())
	if err != nil {
		applog.Error(nil, "checkout.failed", err, map[string]any{
			"component": "checkout", "branch_id": s.Cart.BranchID, "kind": upstream.KindOf(err).String(),
		})
		m, fields := Describe(s.P, err)
		return CheckoutOutcome{Status: CheckoutFailed, Message: m, Errors: fields}, nil
	}
	if err := s.Cart.Clear(); err != nil {
		return CheckoutOutcome{}, err
	}
	applog.Audit(nil, "checkout.completed", map[string]any{
		"component": "checkout", "branch_id": s.Cart.BranchID, "code": res.Code, "items": len(items),
	})
	text := res.Message
	if res.Code != "" {
		text = s.P.Sprintf(i18n.CheckoutSuccess, res.Code)
	}
	return CheckoutOutcome{Status: CheckoutCompleted, Message: msg(domain.MessageSuccess, text), Code: res.Code}, nil
}

// enqueue stores the sale before clearing the cart, so a crash in between
// leaves a duplicate cart rather than a lost sale.
func (s *CheckoutService) enqueue(req domain.CheckoutRequest) (CheckoutOutcome, error) {
	sale, err := s.Sales.Enqueue(s.Cart.BranchID, uuid.NewString(), req, time.Now())
	if err != nil {
		return CheckoutOutcome{}, fmt.Errorf("enqueue sale: %w", err)
	}
	if err := s.Cart.Clear(); err != nil {
		return CheckoutOutcome{}, err
	}
	applog.Audit(nil, "checkout.queued", map[string]any{
		"component": "checkout", "branch_id": sale.BranchID, "sale_id": sale.ID, "ref": sale.Ref, "items": len(req.Items),
	})
	return CheckoutOutcome{
		Status:  CheckoutQueued,
		Message: msg(domain.MessageInfo, s.P.Sprintf(i18n.OfflineAccepted)),
		Sale:    &sale,
	}, nil
}
