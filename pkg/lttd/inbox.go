package lttd

import "sync"

// inbox hands newly opened channels to the worker that owns them.
//
// Opening happens under the inbox lock so that a channel is either handed to
// a live worker or never opened at all: once the worker sealed its inbox,
// deliver refuses to run the open function.
type inbox[T any] struct {
	mu      sync.Mutex
	pending []*Channel[T]
	sealed  bool
	notify  chan struct{}
}

func newInbox[T any]() *inbox[T] {
	return &inbox[T]{
		notify: make(chan struct{}, 1),
	}
}

// deliver runs open and queues the resulting channel. It returns false when
// the inbox is sealed, in which case open is not called.
func (ib *inbox[T]) deliver(open func() *Channel[T]) bool {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if ib.sealed {
		return false
	}

	ch := open()
	if ch == nil {
		return true
	}
	ib.pending = append(ib.pending, ch)

	select {
	case ib.notify <- struct{}{}:
	default:
	}
	return true
}

// take returns the queued channels
func (ib *inbox[T]) take() []*Channel[T] {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	pending := ib.pending
	ib.pending = nil
	return pending
}

// seal stops further deliveries and returns whatever is still queued
func (ib *inbox[T]) seal() []*Channel[T] {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	ib.sealed = true
	pending := ib.pending
	ib.pending = nil
	return pending
}
