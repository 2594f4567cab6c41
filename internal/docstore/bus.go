package docstore

import (
	"context"
	"sync"
)

// ChangeBus fans out "collection changed" notifications between writers and
// live subscriptions of stores that have no native listen primitive.
// Notifications are coalesced: a subscriber only learns that something in the
// collection changed and re-reads what it watches.
type ChangeBus interface {
	Publish(ctx context.Context, collection string) error
	Subscribe(ctx context.Context, collection string) (<-chan struct{}, func(), error)
	Close() error
}

// LocalBus is an in-process ChangeBus.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish pokes every subscriber of the collection without blocking.
func (b *LocalBus) Publish(_ context.Context, collection string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[collection] {
		poke(ch)
	}
	return nil
}

// Subscribe registers for changes to the collection.
func (b *LocalBus) Subscribe(_ context.Context, collection string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[chan struct{}]struct{})
	}
	b.subs[collection][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[collection], ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Close drops every subscriber.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]map[chan struct{}]struct{})
	b.mu.Unlock()
	return nil
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ ChangeBus = (*LocalBus)(nil)
