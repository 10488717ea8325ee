package service

import "sync"

// Hub fans state snapshots out to subscribers. Publishing never blocks: a
// subscriber that has not consumed the previous value only sees the latest.
// The zero value is ready to use.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	closed bool
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan T, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs == nil {
		h.subs = make(map[int]chan T)
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers v to every subscriber, replacing any value it has not
// received yet.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// drop the stale value and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.closed = true
}
