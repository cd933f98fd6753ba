package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampfilter/internal/device"
	"ampfilter/internal/models"
	"ampfilter/internal/rule"
)

type emission struct {
	deviceID   device.ID
	ruleText   string
	achieved   bool
	receivedAt time.Time
}

// mockEmitter records emissions in call order. Safe for concurrent use so
// tests can poll while a dispatcher goroutine is emitting.
type mockEmitter struct {
	mu        sync.Mutex
	emissions []emission
}

func (m *mockEmitter) Emit(_ context.Context, id device.ID, ruleText string, achieved bool, receivedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emissions = append(m.emissions, emission{id, ruleText, achieved, receivedAt})
}

func (m *mockEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emissions)
}

func (m *mockEmitter) all() []emission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]emission, len(m.emissions))
	copy(out, m.emissions)
	return out
}

func feed(d *Dispatcher, deviceID, value int) {
	d.process(context.Background(), &models.Measurement{
		DeviceID:   deviceID,
		Value:      value,
		ReceivedAt: time.Now(),
	})
}

func TestDispatcherEdgeTriggered(t *testing.T) {
	store := rule.NewStore()
	_, _, err := store.Add("Ia > 5")
	require.NoError(t, err)

	em := &mockEmitter{}
	d := NewDispatcher(1, store, em, 16)

	// Below threshold, over, over again, back under.
	for _, v := range []int{3, 6, 6, 2} {
		feed(d, 1, v)
	}

	require.Len(t, em.emissions, 2, "repeated over-threshold value must not re-emit")
	assert.True(t, em.emissions[0].achieved)
	assert.False(t, em.emissions[1].achieved)
	assert.Equal(t, "Ia > 5", em.emissions[0].ruleText)

	// A later excursion over the threshold is a fresh edge.
	feed(d, 1, 9)
	require.Len(t, em.emissions, 3)
	assert.True(t, em.emissions[2].achieved)
}

func TestDispatcherStateSurvivesInStore(t *testing.T) {
	store := rule.NewStore()
	v, _, err := store.Add("Ia > 5")
	require.NoError(t, err)

	em := &mockEmitter{}
	d := NewDispatcher(1, store, em, 16)

	feed(d, 1, 6)
	active, ok := store.State(1, v.Handle)
	require.True(t, ok)
	assert.True(t, active)

	feed(d, 1, 1)
	active, _ = store.State(1, v.Handle)
	assert.False(t, active)
}

func TestDispatcherDeviceIsolation(t *testing.T) {
	store := rule.NewStore()
	_, _, err := store.Add("Ia > 5") // device 1
	require.NoError(t, err)

	em := &mockEmitter{}
	d2 := NewDispatcher(2, store, em, 16)

	// Device 2 traffic never evaluates device 1 rules.
	feed(d2, 2, 100)
	assert.Empty(t, em.emissions)

	h, ok := firstHandle(store, 1)
	require.True(t, ok)
	active, _ := store.State(1, h)
	assert.False(t, active)
}

func firstHandle(store *rule.Store, id device.ID) (rule.Handle, bool) {
	snap := store.Snapshot(id)
	if len(snap) == 0 {
		return "", false
	}
	return snap[0].Handle, true
}

func TestDispatcherMultipleRulesOnePacket(t *testing.T) {
	store := rule.NewStore()
	_, _, err := store.Add("Ia > 5")
	require.NoError(t, err)
	_, _, err = store.Add("Ia < 10")
	require.NoError(t, err)

	em := &mockEmitter{}
	d := NewDispatcher(1, store, em, 16)

	// 7 satisfies both rules; both flip on one packet, insertion order.
	feed(d, 1, 7)
	require.Len(t, em.emissions, 2)
	assert.Equal(t, "Ia > 5", em.emissions[0].ruleText)
	assert.Equal(t, "Ia < 10", em.emissions[1].ruleText)
}

func TestDispatcherRunConsumesQueueInOrder(t *testing.T) {
	store := rule.NewStore()
	_, _, err := store.Add("Ia > 5")
	require.NoError(t, err)

	em := &mockEmitter{}
	d := NewDispatcher(1, store, em, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for _, v := range []int{6, 2, 8} {
		require.True(t, d.Enqueue(&models.Measurement{DeviceID: 1, Value: v, ReceivedAt: time.Now()}))
	}

	assert.Eventually(t, func() bool {
		return em.count() == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancellation")
	}

	got := em.all()
	require.Len(t, got, 3)
	assert.Equal(t, []bool{true, false, true}, []bool{
		got[0].achieved,
		got[1].achieved,
		got[2].achieved,
	})
}

func TestDispatcherEnqueueDropsWhenFull(t *testing.T) {
	store := rule.NewStore()
	em := &mockEmitter{}
	d := NewDispatcher(1, store, em, 1)

	m := &models.Measurement{DeviceID: 1, Value: 1}
	assert.True(t, d.Enqueue(m))
	assert.False(t, d.Enqueue(m), "full queue must drop, not block")
}
