package util

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAtomicEvent_SendAndValue(t *testing.T) {
	ae := NewAtomicEvent[string]()
	assert.False(t, ae.HasPending())
	assert.Equal(t, "", ae.Value())

	ae.Send("idle")
	assert.True(t, ae.HasPending())
	assert.Equal(t, "idle", ae.Value())
	assert.True(t, ae.HasPending(), "Value must not consume the notification")
}

func TestAtomicEvent_Coalesces(t *testing.T) {
	ae := NewAtomicEvent[int]()
	ae.Send(1)
	ae.Send(2)
	ae.Send(3)

	select {
	case <-ae.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-ae.Channel():
		t.Fatal("several sends should leave a single notification")
	default:
	}
	assert.Equal(t, 3, ae.Value())
}

func TestAtomicEvent_Wait(t *testing.T) {
	ae := NewAtomicEvent[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		ae.Send(42)
	}()
	v, ok := ae.Wait(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = ae.Wait(ctx)
	assert.False(t, ok)
}

func TestAtomicEvent_ConcurrentSenders(t *testing.T) {
	ae := NewAtomicEvent[int]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ae.Send(n)
			}
		}(i)
	}
	wg.Wait()
	assert.True(t, ae.HasPending())
	assert.GreaterOrEqual(t, ae.Value(), 0)
	assert.Less(t, ae.Value(), 10)
}
