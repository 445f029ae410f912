package ipc

// SerialQueue is the same-goroutine Channel implementation. It is
// unbounded (Put never reports ErrFull) and keeps frames in a plain
// slice, so a serial pool can spool, step workers, and drain without a
// single goroutine switch. A buffered Go channel is deliberately not
// reused here: its semantics are fine, but the serial backend exists so
// every frame movement happens on the caller's stack where a debugger
// can follow it.
type SerialQueue[T any] struct {
	items  []T
	closed bool
}

func NewSerialQueue[T any]() *SerialQueue[T] {
	return &SerialQueue[T]{}
}

func (q *SerialQueue[T]) Put(v T) error {
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	return nil
}

func (q *SerialQueue[T]) Get() (T, error) {
	var zero T
	if q.closed {
		return zero, ErrClosed
	}
	if len(q.items) == 0 {
		return zero, ErrEmpty
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, nil
}

func (q *SerialQueue[T]) Empty() bool {
	return len(q.items) == 0
}

func (q *SerialQueue[T]) Close() error {
	if q.closed {
		return ErrClosed
	}
	q.closed = true
	return nil
}

func (q *SerialQueue[T]) Release() {
	q.items = nil
}

// SerialProc is a proc that never forks. Start and Join are no-ops and
// Alive always reports false, mirroring a process handle that was never
// started; the routine only advances when the pool pumps Step.
type SerialProc struct {
	step     func() (processed, stopped bool)
	finished bool
}

// NewSerialProc wraps a single-step function of the worker routine.
// step reports whether it consumed a frame and whether that frame was
// the stop token.
func NewSerialProc(step func() (processed, stopped bool)) *SerialProc {
	return &SerialProc{step: step}
}

func (p *SerialProc) Start() error { return nil }
func (p *SerialProc) Join() error  { return nil }
func (p *SerialProc) Alive() bool  { return false }

// Step advances the routine by at most one frame. Once the stop token
// has been consumed the proc is finished and Step does nothing.
func (p *SerialProc) Step() bool {
	if p.finished {
		return false
	}
	processed, stopped := p.step()
	if stopped {
		p.finished = true
	}
	return processed
}
