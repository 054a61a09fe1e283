package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	"tillsync/internal/repos"
	"tillsync/internal/upstream"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type sentSale struct {
	BranchID int64
	Req      domain.CheckoutRequest
	Key      string
}

// fakeSender answers checkouts from a script; calls past its end succeed.
type fakeSender struct {
	mu     sync.Mutex
	script []error
	sent   []sentSale
	block  chan struct{}
}

func (f *fakeSender) Checkout(ctx context.Context, branchID int64, req domain.CheckoutRequest, key string) (upstream.CheckoutResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sent)
	f.sent = append(f.sent, sentSale{BranchID: branchID, Req: req, Key: key})
	if n < len(f.script) && f.script[n] != nil {
		return upstream.CheckoutResult{}, f.script[n]
	}
	return upstream.CheckoutResult{Code: "S-1", Message: "ok"}, nil
}

func (f *fakeSender) calls() []sentSale {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSale(nil), f.sent...)
}

type fakeNet struct{ online bool }

func (f *fakeNet) Online() bool { return f.online }

type sentData struct {
	Type    string
	Payload string
}

type fakeDataSender struct {
	mu   sync.Mutex
	fail map[int]error
	sent []sentData
}

func (f *fakeDataSender) Sync(_ context.Context, syncType string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sent)
	f.sent = append(f.sent, sentData{Type: syncType, Payload: string(payload)})
	return f.fail[n]
}

func printer() *i18n.Printer { return i18n.New("en") }

func newCart(t *testing.T, db *sqlx.DB) *CartService {
	t.Helper()
	c, err := NewCartService(repos.NewCartRepo(db), 1, Limits{MaxQuantity: 10, MaxPrice: 1000})
	require.NoError(t, err)
	return c
}
