package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"tillsync/internal/domain"
	"tillsync/internal/i18n"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
	"tillsync/internal/upstream"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// SyncEngine replays queued sales oldest first. A sale is removed only after
// the ERP acknowledged it; the first halting failure stops the drain.
type SyncEngine struct {
	Sales       *repos.SaleQueueRepo
	Sender      SaleSender
	BranchID    int64
	MaxAttempts int // 0 never dead-letters

	// OnComplete runs after every drain, including failed ones.
	OnComplete func(domain.SyncResult)

	running atomic.Bool
}

func NewSyncEngine(sales *repos.SaleQueueRepo, sender SaleSender, branchID int64, maxAttempts int) *SyncEngine {
	return &SyncEngine{Sales: sales, Sender: sender, BranchID: branchID, MaxAttempts: maxAttempts}
}

func (e *SyncEngine) Running() bool { return e.running.Load() }

func (e *SyncEngine) SyncQueue(ctx context.Context) (domain.SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return domain.SyncResult{}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	res, err := e.drain(ctx)
	if n, cerr := e.Sales.Count(e.BranchID); cerr == nil {
		res.Remaining = n
	} else if err == nil {
		err = cerr
	}
	applog.Info(nil, "sync.sales", map[string]any{
		"component": "sync", "branch_id": e.BranchID, "success": res.Success,
		"failed": res.Failed, "dead_lettered": res.DeadLettered, "remaining": res.Remaining,
	})
	if e.OnComplete != nil {
		e.OnComplete(res)
	}
	return res, err
}

func (e *SyncEngine) drain(ctx context.Context) (domain.SyncResult, error) {
	var res domain.SyncResult
	for ctx.Err() == nil {
		sale, ok, err := e.Sales.Head(e.BranchID)
		if err != nil {
			return res, fmt.Errorf("read queue head: %w", err)
		}
		if !ok {
			return res, nil
		}

		_, sendErr := e.Sender.Checkout(ctx, e.BranchID, sale.Payload, sale.Ref)
		if sendErr == nil {
			if err := e.Sales.Delete(sale.ID); err != nil {
				return res, fmt.Errorf("delete synced sale %d: %w", sale.ID, err)
			}
			res.Success++
			continue
		}

		attempts, err := e.Sales.RecordFailure(sale.ID, sendErr.Error())
		if err != nil {
			return res, fmt.Errorf("record failure of sale %d: %w", sale.ID, err)
		}
		if e.poisoned(sendErr, attempts) {
			if err := e.Sales.MarkDead(sale.ID); err != nil {
				return res, fmt.Errorf("dead-letter sale %d: %w", sale.ID, err)
			}
			applog.Warn(nil, "sync.dead_letter", sendErr, map[string]any{
				"component": "sync", "sale_id": sale.ID, "ref": sale.Ref, "attempts": attempts,
			})
			res.DeadLettered++
			continue
		}

		applog.Error(nil, "sync.halt", sendErr, map[string]any{
			"component": "sync", "sale_id": sale.ID, "ref": sale.Ref, "attempts": attempts,
		})
		res.Failed++
		return res, nil
	}
	return res, nil
}

// poisoned reports whether a sale the ERP keeps refusing should stop
// blocking the queue. Outages, auth problems and throttling never qualify.
func (e *SyncEngine) poisoned(err error, attempts int) bool {
	if e.MaxAttempts <= 0 || attempts < e.MaxAttempts {
		return false
	}
	var ue *upstream.Error
	if !errors.As(err, &ue) || ue.Retryable() {
		return false
	}
	// 408 is classified as a timeout and a throttled 429 is retryable, so
	// neither reaches here.
	switch ue.Kind {
	case upstream.KindValidation, upstream.KindRejected:
		return true
	default:
		return false
	}
}

// Requeue returns a dead-lettered sale to the pending queue.
func (e *SyncEngine) Requeue(id int64) error {
	if err := e.Sales.Requeue(id); err != nil {
		return err
	}
	applog.Audit(nil, "sync.requeue", map[string]any{"component": "sync", "sale_id": id})
	return nil
}

// Summary renders a drain result for the cashier.
func Summary(p *i18n.Printer, res domain.SyncResult) domain.Message {
	switch {
	case res.Success == 0 && res.Failed == 0 && res.DeadLettered == 0:
		return msg(domain.MessageInfo, p.Sprintf(i18n.SyncNothing))
	case res.Failed == 0 && res.DeadLettered == 0:
		return msg(domain.MessageSuccess, p.Sprintf(i18n.SyncComplete, res.Success))
	default:
		return msg(domain.MessageWarning, p.Sprintf(i18n.SyncPartial, res.Success, res.Remaining+res.DeadLettered))
	}
}
