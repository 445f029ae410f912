package ipc

import "sync/atomic"

// chanQueue adapts a buffered Go channel to the Channel role. The
// runtime's channel is the shared resource between the coordinator and
// the worker goroutines; nothing built on top of it synchronizes
// directly.
type chanQueue[T any] struct {
	ch     chan T
	closed atomic.Bool
}

// NewChanQueue returns a bounded channel backed by a buffered Go channel
// of the given capacity.
func NewChanQueue[T any](capacity int) Channel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &chanQueue[T]{ch: make(chan T, capacity)}
}

func (q *chanQueue[T]) Put(v T) error {
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

func (q *chanQueue[T]) Get() (T, error) {
	var zero T
	if q.closed.Load() {
		return zero, ErrClosed
	}
	select {
	case v := <-q.ch:
		return v, nil
	default:
		return zero, ErrEmpty
	}
}

func (q *chanQueue[T]) Empty() bool {
	return len(q.ch) == 0
}

func (q *chanQueue[T]) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return nil
}

// Release drops any frames still buffered so their payloads can be
// reclaimed. The underlying Go channel itself needs no teardown.
func (q *chanQueue[T]) Release() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
