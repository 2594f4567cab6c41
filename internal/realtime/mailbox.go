package realtime

import (
	"context"
	"sync"
)

// mailbox holds at most one pending snapshot. Offering a new snapshot
// replaces one that has not been taken yet.
type mailbox[T any] struct {
	mu      sync.Mutex
	pending T
	full    bool
	signal  chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[T]) offer(v T) {
	m.mu.Lock()
	m.pending = v
	m.full = true
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pending, m.full
	var zero T
	m.pending, m.full = zero, false
	return v, ok
}

// drain processes snapshots one at a time until ctx is cancelled, handing
// each result to emit while the subscription is still active.
func drain[T, R any](ctx context.Context, sub *Subscription, box *mailbox[T], process func(context.Context, T) R, emit func(R)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-box.signal:
		}

		snapshot, ok := box.take()
		if !ok {
			continue
		}
		result := process(ctx, snapshot)
		if ctx.Err() != nil {
			return
		}
		if !sub.deliver(func() { emit(result) }) {
			return
		}
	}
}
