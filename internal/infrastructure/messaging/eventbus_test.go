package messaging

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
}

func TestInMemoryEventBus_DeliversByType(t *testing.T) {
	bus := syncBus()

	var offered, all int
	require.NoError(t, bus.Subscribe(shared.EventApplicationOffered, func(shared.Event) error { offered++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(shared.NewApplicationOfferedEvent("a1", "s1", "p1", "r1", 970, 1)))
	require.NoError(t, bus.Publish(shared.NewMatchingRunCompletedEvent("r1", "stabilized", 2, 10)))

	assert.Equal(t, 1, offered)
	assert.Equal(t, 2, all)
}

func TestInMemoryEventBus_HandlerFailuresDoNotReachPublisher(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("smtp down") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	assert.NoError(t, bus.Publish(shared.NewMatchingRunFailedEvent("r1", "invalid capacity")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.HandlerExecutions)
	assert.Equal(t, int64(2), snap.HandlerFailures)
	assert.Equal(t, int64(1), snap.Published[shared.EventMatchingRunFailed])
}

func TestInMemoryEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var done atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
		return nil
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(shared.NewMatchingRunFailedEvent("r", "x")))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(3), done.Load())
	assert.ErrorIs(t, bus.Publish(shared.NewMatchingRunFailedEvent("r", "x")), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := syncBus()
	assert.Error(t, bus.Subscribe(shared.EventApplicationOffered, nil))
	assert.Error(t, bus.Publish(nil))
}

func TestRedisEventBus_HandleMessage(t *testing.T) {
	local := syncBus()
	bus := newRedisEventBus(nil, local, DefaultChannel, slog.Default())

	var mu sync.Mutex
	var received []shared.Event
	require.NoError(t, bus.Subscribe(shared.EventApplicationOffered, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	}))

	event := shared.NewApplicationOfferedEvent("a1", "s1", "p1", "r1", 970, 3)

	own, err := json.Marshal(newEnvelope(bus.instanceID, event))
	require.NoError(t, err)
	bus.handleMessage(string(own))
	assert.Empty(t, received)

	remote, err := json.Marshal(newEnvelope("other-instance", event))
	require.NoError(t, err)
	bus.handleMessage(string(remote))

	require.Len(t, received, 1)
	got := received[0]
	assert.Equal(t, shared.EventApplicationOffered, got.EventType())
	assert.Equal(t, "a1", got.AggregateID())
	assert.Equal(t, "s1", got.Payload()["student_id"])
	assert.Equal(t, float64(970), got.Payload()["score"])

	bus.handleMessage("not json")
	assert.Len(t, received, 1)
}
