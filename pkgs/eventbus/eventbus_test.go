package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesFiredEvent(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var got atomic.Value
	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe(KindLocoSpeed, func(ev Event) bool {
		got.Store(ev)
		wg.Done()
		return true
	})

	b.FireEx(KindLocoSpeed, 3, 42, 0)
	wg.Wait()

	ev := got.Load().(Event)
	assert.Equal(t, KindLocoSpeed, ev.Kind)
	assert.EqualValues(t, 3, ev.Source)
	assert.Equal(t, 42, ev.Payload)
}

func TestHandlerReturningFalseIsDeregistered(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var calls int32
	done := make(chan struct{}, 4)
	b.Subscribe(KindBooster, func(ev Event) bool {
		atomic.AddInt32(&calls, 1)
		done <- struct{}{}
		return false
	})

	b.FireEx(KindBooster, 0, nil, 0)
	<-done
	b.FireEx(KindBooster, 0, nil, 0)

	// give the second event a chance to be (wrongly) delivered
	select {
	case <-done:
		t.Fatal("handler was invoked after returning false")
	case <-time.After(50 * time.Millisecond):
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSubscribeWithTimeoutFiresWithinBounds(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	start := time.Now()
	result := make(chan Event, 1)
	b.SubscribeWithTimeout(KindProgramming, func(ev Event) bool {
		result <- ev
		return false
	}, start.Add(30*time.Millisecond))

	select {
	case ev := <-result:
		assert.Equal(t, KindTimeout, ev.Kind)
		assert.WithinDuration(t, start.Add(30*time.Millisecond), ev.At, 40*time.Millisecond)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout event was never delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var calls int32
	id := b.Subscribe(KindMode, func(ev Event) bool {
		atomic.AddInt32(&calls, 1)
		return true
	})
	b.Unsubscribe(id)
	b.FireEx(KindMode, 0, nil, 0)

	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestOtherKindsAreNotDelivered(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var got int32
	b.Subscribe(KindLocoFunc, func(ev Event) bool {
		atomic.AddInt32(&got, 1)
		return true
	})
	b.FireEx(KindRailCom, 0, nil, 0)

	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&got))
}
