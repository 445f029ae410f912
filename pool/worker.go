package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/utkarsh5026/procmap/internal/ipc"
)

// workerPollInterval paces a worker's retry loops: waiting for input on
// an empty channel and pushing output into a full one.
const workerPollInterval = 200 * time.Microsecond

// routine is the loop that runs inside one worker process: pull a
// frame, apply the bound function, push the tagged result. It exits on
// the stop token or on an unrecoverable channel failure — never because
// the bound function failed. Channel handles are owned by the engine,
// so the routine leaves teardown to it.
type routine[T any, R any] struct {
	fn     WorkerFunc[T, R]
	index  int
	in     ipc.Channel[ipc.Input[T]]
	out    ipc.Channel[ipc.Output[R]]
	debugf func(format string, args ...any)
}

func newRoutine[T, R any](
	w Worker[T, R],
	in ipc.Channel[ipc.Input[T]],
	out ipc.Channel[ipc.Output[R]],
	debugf func(format string, args ...any),
) *routine[T, R] {
	return &routine[T, R]{fn: w.Fn, index: w.Index, in: in, out: out, debugf: debugf}
}

// run is the production loop, executed on the proc's own goroutine.
func (r *routine[T, R]) run() {
	for {
		frame, err := r.in.Get()
		if errors.Is(err, ipc.ErrEmpty) {
			time.Sleep(workerPollInterval)
			continue
		}
		if err != nil {
			r.debugf("worker %d: input channel failed: %v", r.index, err)
			return
		}
		if frame.Stop {
			r.debugf("worker %d: stop token received", r.index)
			return
		}
		if err := r.push(r.apply(frame)); err != nil {
			r.debugf("worker %d: output channel failed: %v", r.index, err)
			return
		}
	}
}

// step advances by at most one frame without ever waiting. The serial
// backend pumps this on the coordinator's goroutine.
func (r *routine[T, R]) step() (processed, stopped bool) {
	frame, err := r.in.Get()
	if err != nil {
		return false, false
	}
	if frame.Stop {
		return true, true
	}
	if err := r.push(r.apply(frame)); err != nil {
		r.debugf("worker %d: output channel failed: %v", r.index, err)
		return true, true
	}
	return true, false
}

// apply invokes the bound function with panic recovery. A panic is
// converted into an exception-kind frame carrying the stack trace, so a
// crashing input can never take the worker process down with it.
func (r *routine[T, R]) apply(frame ipc.Input[T]) (out ipc.Output[R]) {
	out.UID = frame.UID
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			out.Err = fmt.Errorf("worker %d panic: %v\nstack trace:\n%s", r.index, rec, buf[:n])
		}
	}()
	out.Value, out.Err = r.fn(context.Background(), frame.Data)
	return out
}

// push blocks (by polling) while the bounded output channel is full.
// The coordinator drains that channel proactively during shutdown, so
// this loop always makes progress while the pool is being wound down.
func (r *routine[T, R]) push(out ipc.Output[R]) error {
	for {
		err := r.out.Put(out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ipc.ErrFull) {
			return err
		}
		time.Sleep(workerPollInterval)
	}
}
