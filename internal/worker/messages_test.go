package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/domain"
	"tillsync/internal/worker"
)

func send(t *testing.T, f fixture, typ worker.Command, payload any) (*worker.Message, error) {
	t.Helper()
	m, err := worker.NewMessage(string(typ), payload)
	require.NoError(t, err)
	return f.w.HandleMessage(context.Background(), m)
}

func TestCommandsAreExhaustive(t *testing.T) {
	f := newFixture(t)
	assert.ElementsMatch(t, []worker.Command{
		worker.CmdSkipWaiting,
		worker.CmdCacheURLs,
		worker.CmdClearCache,
		worker.CmdStoreOfflineData,
		worker.CmdGetOfflineData,
		worker.CmdAddToSyncQueue,
		worker.CmdProcessSyncQueue,
	}, f.w.Commands())
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.HandleMessage(context.Background(), worker.Message{Type: "REBOOT"})
	assert.ErrorIs(t, err, worker.ErrUnknownCommand)
}

func TestStoreAndGetOfflineData(t *testing.T) {
	f := newFixture(t)

	reply, err := send(t, f, worker.CmdStoreOfflineData, map[string]any{
		"store": "customers", "key": "c1", "data": map[string]string{"name": "Ana"},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, worker.MsgOfflineDataStored, reply.Type)

	reply, err = send(t, f, worker.CmdGetOfflineData, map[string]any{"store": "customers", "key": "c1"})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, worker.MsgOfflineDataResult, reply.Type)
	var one struct {
		Key  string          `json:"key"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload, &one))
	assert.Equal(t, "c1", one.Key)
	assert.JSONEq(t, `{"name":"Ana"}`, string(one.Data))

	reply, err = send(t, f, worker.CmdGetOfflineData, map[string]any{"store": "customers", "key": "nobody"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"store":"customers","key":"nobody","data":null}`, string(reply.Payload))

	reply, err = send(t, f, worker.CmdGetOfflineData, map[string]any{"store": "customers"})
	require.NoError(t, err)
	var all struct {
		Data []domain.OfflineRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(reply.Payload, &all))
	assert.Len(t, all.Data, 1)
}

func TestStoreOfflineDataValidates(t *testing.T) {
	f := newFixture(t)
	cases := []any{
		nil,
		map[string]any{"store": "Bad Store!", "key": "k", "data": 1},
		map[string]any{"store": "customers", "data": 1},
		map[string]any{"store": "customers", "key": "k"},
	}
	for _, p := range cases {
		_, err := send(t, f, worker.CmdStoreOfflineData, p)
		assert.ErrorIs(t, err, worker.ErrBadPayload, "%v", p)
	}
}

func TestAddToSyncQueueNotifiesPages(t *testing.T) {
	f := newFixture(t)
	_, msgs, cancel := f.w.Clients().Subscribe(4)
	defer cancel()

	_, err := send(t, f, worker.CmdAddToSyncQueue, map[string]any{"type": "customer.create", "payload": map[string]string{"name": "Ana"}})
	require.NoError(t, err)

	n, err := f.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case m := <-msgs:
		assert.Equal(t, worker.MsgSyncQueueUpdated, m.Type)
		assert.JSONEq(t, `{"count":1}`, string(m.Payload))
	case <-time.After(time.Second):
		t.Fatal("expected SYNC_QUEUE_UPDATED")
	}

	_, err = send(t, f, worker.CmdAddToSyncQueue, map[string]any{"type": "bad type!", "payload": 1})
	assert.ErrorIs(t, err, worker.ErrBadPayload)
}

func TestProcessSyncQueueReplies(t *testing.T) {
	f := newFixture(t)
	f.proc.res = domain.SyncResult{Success: 2, Remaining: 1}

	reply, err := send(t, f, worker.CmdProcessSyncQueue, nil)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, worker.MsgSyncComplete, reply.Type)
	var res domain.SyncResult
	require.NoError(t, json.Unmarshal(reply.Payload, &res))
	assert.Equal(t, f.proc.res, res)
	assert.Equal(t, 1, f.proc.calls)
}

func TestCacheURLs(t *testing.T) {
	f := newFixture(t)
	f.fetch.set("/api/products", stubResp{200, "application/json", `[]`})

	_, err := send(t, f, worker.CmdCacheURLs, map[string]any{"urls": []string{"/api/products", "http://evil.test/x", "/api/missing"}})
	require.Error(t, err, "failures are reported")

	e, err := f.storage.Get(context.Background(), f.w.DynamicCache(), "/api/products")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(e.Body))
	assert.Zero(t, f.fetch.count("/x"), "cross-origin URLs are never fetched")
}

func TestBackgroundSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.w.RegisterSync("sync-everything"), worker.ErrUnknownTag)
	require.NoError(t, f.w.RegisterSync(worker.TagOfflineSales))
	require.NoError(t, f.w.RegisterSync(worker.TagOfflineData))

	// nobody listening: tags stay registered
	err := f.w.FireSync(ctx)
	assert.ErrorIs(t, err, worker.ErrNoClients)
	assert.Equal(t, []string{worker.TagOfflineData, worker.TagOfflineSales}, f.w.PendingSyncs())

	_, msgs, cancel := f.w.Clients().Subscribe(4)
	defer cancel()
	require.NoError(t, f.w.FireSync(ctx))
	assert.Empty(t, f.w.PendingSyncs())

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-msgs:
			got[m.Type] = true
		case <-time.After(time.Second):
			t.Fatal("expected sync pushes")
		}
	}
	assert.True(t, got[worker.MsgSyncOfflineSales])
	assert.True(t, got[worker.MsgSyncOfflineData])
}

func TestClientsBroadcast(t *testing.T) {
	c := worker.NewClients()
	_, a, cancelA := c.Subscribe(1)
	_, _, cancelB := c.Subscribe(1)
	assert.Equal(t, 2, c.Count())

	m, err := worker.NewMessage("PING", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Broadcast(m))
	// full buffers drop instead of blocking
	assert.Equal(t, 0, c.Broadcast(m))

	cancelB()
	cancelB()
	assert.Equal(t, 1, c.Count())
	assert.Equal(t, "PING", (<-a).Type)
	cancelA()
	_, open := <-a
	assert.False(t, open)
}

func TestBusJoinsHandlerErrors(t *testing.T) {
	b := worker.NewBus()
	var order []int
	b.On(worker.EventSync, func(context.Context, worker.Event) error { order = append(order, 1); return assert.AnError })
	b.On(worker.EventSync, func(context.Context, worker.Event) error { order = append(order, 2); return nil })

	err := b.Dispatch(context.Background(), worker.Event{Kind: worker.EventSync})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []int{1, 2}, order, "later handlers still run")
	assert.NoError(t, b.Dispatch(context.Background(), worker.Event{Kind: worker.EventInstall}))
}
