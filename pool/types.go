package pool

import (
	"context"
	"runtime"
)

// WorkerFunc is the function a worker process applies to each input
// payload. A returned error (or a panic, which is recovered) becomes an
// exception-kind output item; it never terminates the worker.
type WorkerFunc[T any, R any] func(ctx context.Context, input T) (R, error)

// Worker binds one worker function to one process slot. The worker
// sequence is immutable once the pool is constructed; Index is the slot
// position and shows up in diagnostics.
type Worker[T any, R any] struct {
	Fn    WorkerFunc[T, R]
	Index int
}

// Identical builds n copies of the same worker function, one per
// process slot, for when per-worker initialization doesn't matter.
// n <= 0 defaults to runtime.GOMAXPROCS(0).
func Identical[T, R any](fn WorkerFunc[T, R], n int) []Worker[T, R] {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	workers := make([]Worker[T, R], n)
	for i := range workers {
		workers[i] = Worker[T, R]{Fn: fn, Index: i}
	}
	return workers
}

// Kind tags a result stream item as a regular output or a worker
// exception.
type Kind string

const (
	KindOutput    Kind = "output"
	KindException Kind = "exception"
)

// Item is one element of the result stream.
//
// HasInput is false when the output's uid had no matching entry in the
// pending-input table — for example an exception surfaced before any
// input was recorded. That case is tolerated, not an error; Input then
// holds the zero value.
type Item[T any, R any] struct {
	Input    T
	HasInput bool
	Value    R     // valid when Kind == KindOutput
	Err      error // the worker's failure when Kind == KindException
	Kind     Kind
}

// State is the pool lifecycle position. Transitions run forward only,
// each guarded to execute at most once.
type State int32

const (
	StateCreated State = iota
	StateForked
	StateRunning
	StateStopping
	StateDrained
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateForked:
		return "forked"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDrained:
		return "drained"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
