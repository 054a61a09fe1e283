package services

import (
	"context"
	"errors"

	applog "tillsync/internal/log"
	"tillsync/internal/worker"
)

// Listen acts on the worker's background sync pushes until msgs is closed or
// ctx is cancelled. It is the in-process page: browsers get the same
// messages over the event stream.
func Listen(ctx context.Context, msgs <-chan worker.Message, sales *SyncEngine, data *DataSyncService) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			var err error
			switch m.Type {
			case worker.MsgSyncOfflineSales:
				_, err = sales.SyncQueue(ctx)
			case worker.MsgSyncOfflineData:
				_, err = data.Process(ctx)
			default:
				continue
			}
			if err != nil && !errors.Is(err, ErrSyncInProgress) {
				applog.Error(nil, "sync.listen", err, map[string]any{"component": "sync", "type": m.Type})
			}
		}
	}
}
