// Package ipc defines the capability interfaces the pool uses to talk to
// its worker processes: a bounded channel role and a process role. Two
// backends satisfy them — a buffered-channel/goroutine backend for
// production and a same-goroutine serial backend for deterministic tests
// and debugger-friendly stepping. The backend is selected when the pool
// is constructed, never by patching the production types.
package ipc

import "errors"

var (
	// ErrEmpty is returned by Get when nothing is currently available.
	ErrEmpty = errors.New("channel is empty")
	// ErrFull is returned by Put when a bounded channel has no free slot.
	ErrFull = errors.New("channel is full")
	// ErrClosed is returned by any operation on a closed channel.
	ErrClosed = errors.New("channel is closed")
	// ErrAlreadyStarted is returned by Start on a running proc.
	ErrAlreadyStarted = errors.New("proc already started")
)

// Input is one frame on the input channel. Real items carry a uid and a
// payload; the stop token is a frame with Stop set, so a worker can never
// mistake a payload for a termination request or vice versa.
type Input[T any] struct {
	UID  uint64
	Data T
	Stop bool
}

// Output is one frame on the output channel. Err != nil marks the frame
// as an exception-kind item; Value is only meaningful when Err is nil.
type Output[R any] struct {
	UID   uint64
	Value R
	Err   error
}

// Channel is the bounded inter-process channel role. All operations are
// non-blocking: Get reports ErrEmpty and Put reports ErrFull instead of
// waiting, so a single control thread polling several channels can never
// stall on one of them. Release reclaims any resources still held after
// Close; it must only be called once the channel is closed.
type Channel[T any] interface {
	Put(v T) error
	Get() (T, error)
	Empty() bool
	Close() error
	Release()
}

// Proc is the worker process role. Join blocks until the proc has
// exited; Alive is a non-blocking liveness probe.
type Proc interface {
	Start() error
	Join() error
	Alive() bool
}

// Stepper is the extra capability of serial procs: advance the worker
// routine by at most one input frame on the caller's goroutine. Step
// reports whether a frame was consumed. The pool pumps steppers after
// spooling and while draining, which is how serial pools make progress
// without any forked process.
type Stepper interface {
	Step() bool
}
