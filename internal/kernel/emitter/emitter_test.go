package emitter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
)

func TestSubscribe_FilterMatching(t *testing.T) {
	e := New(zerolog.Nop(), 0, nil)

	sub, err := e.Subscribe(emitterFilterFor("p1", "d1", ""), 10, "sub-a")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	e.Emit(domain.NewStateUpdate("p1", "d1", "sig1", domain.Double(1), domain.QualityOK))
	e.Emit(domain.NewStateUpdate("p2", "d2", "sig1", domain.Double(1), domain.QualityOK))

	ev, ok := sub.Pop(100 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "p1", ev.ProviderID)

	_, ok = sub.Pop(20 * time.Millisecond)
	assert.False(t, ok, "the non-matching event must not reach this subscription")
}

// TestSlowSubscriberDrop exercises §8 scenario 6: a queue of capacity 2 fed
// 10 events drops the oldest 8, leaving the 2 newest and DroppedCount()==8.
func TestSlowSubscriberDrop(t *testing.T) {
	e := New(zerolog.Nop(), 0, nil)

	fast, err := e.Subscribe(Filter{}, 100, "fast")
	require.NoError(t, err)
	defer fast.Unsubscribe()

	slow, err := e.Subscribe(Filter{}, 2, "slow")
	require.NoError(t, err)
	defer slow.Unsubscribe()

	for i := 0; i < 10; i++ {
		e.Emit(domain.NewStateUpdate("p1", "d1", "sig1", domain.Int64Value(int64(i)), domain.QualityOK))
	}

	assert.Equal(t, uint64(8), slow.DroppedCount())

	first, ok := slow.Pop(100 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, int64(8), first.Value.Int64, "the two newest events survive, oldest-first")

	second, ok := slow.Pop(100 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, int64(9), second.Value.Int64)

	drained := 0
	for {
		if _, ok := fast.TryPop(); !ok {
			break
		}
		drained++
	}
	assert.Equal(t, 10, drained, "a queue large enough to never overflow loses nothing")
}

func TestSubscribe_MaxSubscribersEnforced(t *testing.T) {
	e := New(zerolog.Nop(), 1, nil)

	sub, err := e.Subscribe(Filter{}, 10, "only")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = e.Subscribe(Filter{}, 10, "second")
	assert.Error(t, err)
}

func TestUnsubscribe_WakesBlockedPop(t *testing.T) {
	e := New(zerolog.Nop(), 0, nil)
	sub, err := e.Subscribe(Filter{}, 10, "sub")
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		_, ok := sub.Pop(2 * time.Second)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Unsubscribe()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(1 * time.Second):
		t.Fatal("Pop did not wake up after Unsubscribe")
	}
}

func emitterFilterFor(providerID, deviceID, signalID string) Filter {
	return Filter{ProviderID: providerID, DeviceID: deviceID, SignalID: signalID}
}
