package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"tillsync/internal/domain"
	applog "tillsync/internal/log"
	"tillsync/internal/repos"
)

// DataSender posts one generic payload to the ERP sync endpoint.
type DataSender interface {
	Sync(ctx context.Context, syncType string, payload json.RawMessage) error
}

// DataSyncService replays the generic sync queue, then pushes unsynced
// records of the stores listed in Push. Records are sent with the store name
// as their sync type.
type DataSyncService struct {
	Queue   *repos.SyncQueueRepo
	Records *repos.RecordRepo
	Sender  DataSender
	Push    map[string]bool

	running atomic.Bool
}

func NewDataSyncService(queue *repos.SyncQueueRepo, records *repos.RecordRepo, sender DataSender, push ...string) *DataSyncService {
	s := &DataSyncService{Queue: queue, Records: records, Sender: sender, Push: map[string]bool{}}
	for _, p := range push {
		s.Push[p] = true
	}
	return s
}

func (s *DataSyncService) Process(ctx context.Context) (domain.SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.SyncResult{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	var res domain.SyncResult
	halted, err := s.drainQueue(ctx, &res)
	if err == nil && !halted {
		err = s.pushRecords(ctx, &res)
	}
	if n, cerr := s.Queue.Count(); cerr == nil {
		res.Remaining = n
	} else if err == nil {
		err = cerr
	}
	applog.Info(nil, "sync.data", map[string]any{
		"component": "sync", "success": res.Success, "failed": res.Failed, "remaining": res.Remaining,
	})
	return res, err
}

func (s *DataSyncService) drainQueue(ctx context.Context, res *domain.SyncResult) (halted bool, err error) {
	for ctx.Err() == nil {
		it, ok, err := s.Queue.Head()
		if err != nil {
			return false, fmt.Errorf("read sync queue head: %w", err)
		}
		if !ok {
			return false, nil
		}
		if sendErr := s.Sender.Sync(ctx, it.SyncType, it.Payload); sendErr != nil {
			if err := s.Queue.RecordFailure(it.ID); err != nil {
				return true, err
			}
			applog.Error(nil, "sync.data.halt", sendErr, map[string]any{
				"component": "sync", "item_id": it.ID, "sync_type": it.SyncType,
			})
			res.Failed++
			return true, nil
		}
		if err := s.Queue.Delete(it.ID); err != nil {
			return false, fmt.Errorf("delete synced item %d: %w", it.ID, err)
		}
		res.Success++
	}
	return true, nil
}

func (s *DataSyncService) pushRecords(ctx context.Context, res *domain.SyncResult) error {
	if len(s.Push) == 0 {
		return nil
	}
	recs, err := s.Records.Unsynced()
	if err != nil {
		return fmt.Errorf("list unsynced records: %w", err)
	}
	for _, r := range recs {
		if !s.Push[r.Store] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		if sendErr := s.Sender.Sync(ctx, r.Store, r.Data); sendErr != nil {
			applog.Error(nil, "sync.data.record", sendErr, map[string]any{
				"component": "sync", "store": r.Store, "key": r.Key,
			})
			res.Failed++
			return nil
		}
		if err := s.Records.MarkSynced(r.ID); err != nil {
			return err
		}
		res.Success++
	}
	return nil
}
