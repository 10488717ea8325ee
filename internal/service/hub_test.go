package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SlowSubscriberGetsLatest(t *testing.T) {
	var h Hub[int]
	ch, cancel := h.Subscribe()
	defer cancel()

	for i := 1; i <= 5; i++ {
		h.Publish(i)
	}
	assert.Equal(t, 5, <-ch)

	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestHub_FanOut(t *testing.T) {
	var h Hub[string]
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish("x")
	assert.Equal(t, "x", <-a)
	assert.Equal(t, "x", <-b)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok, "cancel closes the channel")
	h.mu.Lock()
	assert.Len(t, h.subs, 1)
	h.mu.Unlock()

	h.Publish("y")
	assert.Equal(t, "y", <-b)
}

func TestHub_Close(t *testing.T) {
	var h Hub[int]
	ch, cancel := h.Subscribe()
	h.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := h.Subscribe()
	_, ok = <-late
	require.False(t, ok)
	h.Publish(1)
}
