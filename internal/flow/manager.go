// Package flow implements the queue manager: the backpressure engine
// between the two bounded inter-process channels and the unbounded
// producer/consumer view the pool exposes. The orchestrator never
// reasons about channel capacity directly; it spools through here and
// the manager enforces the two in-flight caps.
package flow

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/utkarsh5026/procmap/internal/ipc"
)

// ErrUndrained is returned by Close while counted items still sit in
// the real channels. Draining first is the caller's responsibility.
var ErrUndrained = errors.New("items still in flight in the real channels")

// Hook observes every output frame as it is moved into the relay
// buffer. Hooks run synchronously in registration order; they must not
// panic and must not mutate the frame.
type Hook[R any] func(ipc.Output[R])

// Manager owns the bounded input/output channels plus the process-local
// relay buffer, and tracks in-flight items at two granularities:
//
//   - real: items physically resident in the two bounded channels,
//     capped at maxReal (sized proportionally to the worker count);
//   - total: items submitted but not yet popped by the consumer,
//     including relay-buffered output, capped at maxTotal (a much
//     larger memory-safety ceiling).
//
// real <= total holds after every operation. The counters are atomics
// so concurrent readers see consistent values, but all mutation happens
// on the single orchestrator goroutine.
type Manager[T, R any] struct {
	in  ipc.Channel[ipc.Input[T]]
	out ipc.Channel[ipc.Output[R]]

	relay []ipc.Output[R]
	held  *ipc.Input[T] // frame pulled from a source but not yet accepted by the input channel

	maxReal  int64
	maxTotal int64
	real     atomic.Int64
	total    atomic.Int64

	hooks  []Hook[R]
	debugf func(format string, args ...any)
}

// New builds a manager over channels the caller constructed; the caller
// keeps its own references for the worker routines. debugf may be nil.
func New[T, R any](
	in ipc.Channel[ipc.Input[T]],
	out ipc.Channel[ipc.Output[R]],
	maxReal, maxTotal int,
	debugf func(format string, args ...any),
) *Manager[T, R] {
	if debugf == nil {
		debugf = func(string, ...any) {}
	}
	return &Manager[T, R]{
		in:       in,
		out:      out,
		maxReal:  int64(maxReal),
		maxTotal: int64(maxTotal),
		debugf:   debugf,
	}
}

// Spool pulls frames from next and enqueues them into the input channel
// until either cap would be exceeded or the source is exhausted. The
// caps are checked before each pull, so a withheld item stays inside
// the source for a later call; a frame refused by the channel itself is
// held over and retried first. Re-spooling an exhausted source is a
// no-op that reports true.
func (m *Manager[T, R]) Spool(next func() (ipc.Input[T], bool)) (exhausted bool, err error) {
	for {
		if m.real.Load() >= m.maxReal || m.total.Load() >= m.maxTotal {
			return false, nil
		}
		frame := m.held
		if frame == nil {
			f, ok := next()
			if !ok {
				return true, nil
			}
			frame = &f
		}
		if err := m.in.Put(*frame); err != nil {
			if errors.Is(err, ipc.ErrFull) {
				m.held = frame
				return false, nil
			}
			return false, fmt.Errorf("spool: %w", err)
		}
		m.held = nil
		m.real.Add(1)
		m.total.Add(1)
	}
}

// DrainToBuffer moves everything currently available on the output
// channel into the relay buffer, running the hooks on each frame. A
// positive budget bounds the wall-clock time spent; budget <= 0 drains
// until the channel reports empty. This is what lets a worker blocked
// on a full output channel make progress while the consumer is busy
// elsewhere, so it must be called from a context that is not itself
// waiting on that channel.
func (m *Manager[T, R]) DrainToBuffer(budget time.Duration) error {
	var deadline time.Time
	if budget > 0 {
		deadline = time.Now().Add(budget)
	}
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
		frame, err := m.out.Get()
		if errors.Is(err, ipc.ErrEmpty) || errors.Is(err, ipc.ErrClosed) {
			// Closed means nothing more will ever arrive; the relay
			// buffer stays consumable regardless.
			return nil
		}
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		for _, h := range m.hooks {
			h(frame)
		}
		m.relay = append(m.relay, frame)
		m.real.Add(-1)
	}
}

// PopOutput removes one frame from the relay buffer. It never touches
// the real channels; callers interleave DrainToBuffer to keep the relay
// fed. Reports ipc.ErrEmpty when the buffer is empty.
func (m *Manager[T, R]) PopOutput() (ipc.Output[R], error) {
	if len(m.relay) == 0 {
		var zero ipc.Output[R]
		return zero, ipc.ErrEmpty
	}
	frame := m.relay[0]
	m.relay = m.relay[1:]
	m.total.Add(-1)
	return frame, nil
}

// SendStop enqueues one stop token. Stop tokens are not counted as
// in-flight items; the pool sizes the input channel with headroom for
// one token per worker, so in practice the put is accepted immediately.
func (m *Manager[T, R]) SendStop() error {
	for {
		err := m.in.Put(ipc.Input[T]{Stop: true})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ipc.ErrFull) {
			return fmt.Errorf("send stop: %w", err)
		}
		time.Sleep(time.Millisecond)
	}
}

// NumRealInFlight reports the items physically resident in the bounded
// channels.
func (m *Manager[T, R]) NumRealInFlight() int64 { return m.real.Load() }

// NumTotalInFlight reports the items submitted but not yet popped,
// including relay-buffered output.
func (m *Manager[T, R]) NumTotalInFlight() int64 { return m.total.Load() }

// AddOutputHook registers fn to observe every drained frame.
func (m *Manager[T, R]) AddOutputHook(fn Hook[R]) {
	m.hooks = append(m.hooks, fn)
}

// InputEmpty reports whether the input channel is currently empty. The
// serial pump uses it to decide when workers have caught up.
func (m *Manager[T, R]) InputEmpty() bool { return m.in.Empty() }

// Close releases both channels. It fails with ErrUndrained while
// counted items remain in the real channels; unconsumed output in the
// relay buffer is legal and stays poppable after Close. A second Close
// is absorbed.
func (m *Manager[T, R]) Close() error {
	if n := m.real.Load(); n != 0 {
		return fmt.Errorf("close: %w (%d)", ErrUndrained, n)
	}
	m.debugf("queue manager: closing channels")
	if err := m.in.Close(); err != nil {
		if errors.Is(err, ipc.ErrClosed) {
			return nil
		}
		return err
	}
	if err := m.out.Close(); err != nil && !errors.Is(err, ipc.ErrClosed) {
		return err
	}
	m.in.Release()
	m.out.Release()
	return nil
}
