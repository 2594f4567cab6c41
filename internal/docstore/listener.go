package docstore

import "sync"

// dispatcher delivers queued values to a callback on its own goroutine,
// preserving push order. Values pushed after stop are dropped.
type dispatcher[T any] struct {
	deliver func(T)

	mu      sync.Mutex
	queue   []T
	stopped bool
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newDispatcher[T any](deliver func(T)) *dispatcher[T] {
	d := &dispatcher[T]{
		deliver: deliver,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher[T]) push(v T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, v)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher[T]) stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.queue = nil
		d.mu.Unlock()
		close(d.done)
	})
}

func (d *dispatcher[T]) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.signal:
		}

		for {
			d.mu.Lock()
			if d.stopped || len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			next := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.deliver(next)
		}
	}
}
