package pool

import (
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/procmap/internal/flow"
	"github.com/utkarsh5026/procmap/internal/ipc"
)

var (
	// ErrNoWorkers is returned by New for an empty worker sequence.
	ErrNoWorkers = errors.New("pool needs at least one worker")
	// ErrAlreadyForked is returned by a second Fork.
	ErrAlreadyForked = errors.New("pool already forked")
	// ErrNotForked is reported by the result stream when the pool was
	// never forked: with no worker processes the in-flight accounting
	// could only spin forever.
	ErrNotForked = errors.New("pool not forked")
	// ErrShutdownTimeout is returned by the shutdown sequence when
	// workers did not finish within the configured timeout.
	ErrShutdownTimeout = errors.New("timed out waiting for workers to finish")
)

// Pool fans a stream of inputs out to a fixed set of worker processes
// and hands the tagged outputs back as a lazy sequence. The pool is the
// public handle; all state lives in an inner struct so that observers
// (like the exception hook) and the automatic-cleanup path never keep
// the handle itself alive.
//
// Type parameters:
//   - T: the input type
//   - R: the result type
type Pool[T any, R any] struct {
	g *guts[T, R]
}

// guts carries the orchestrator state. It is touched by the single
// consumer goroutine only, except for the atomic flags and counters,
// which worker-side observers may read.
type guts[T any, R any] struct {
	cfg     config
	workers []Worker[T, R]

	qm  *flow.Manager[T, R]
	in  ipc.Channel[ipc.Input[T]]
	out ipc.Channel[ipc.Output[R]]

	procs    []ipc.Proc
	steppers []ipc.Stepper // populated only by the serial backend

	uidCtr  uint64
	pending map[uint64]T // original inputs awaiting their output
	sources []*inputSource[T]

	hasExceptions atomic.Bool
	state         atomic.Int32

	stopStep    lifecycleStep
	joinStep    lifecycleStep
	finishStep  lifecycleStep
	cleanupStep lifecycleStep

	stopsSent atomic.Int64
	counts    statCounters

	streamErr error
}

// inputSource is one registered input sequence, reduced to a pull
// iterator yielding (original, payload) pairs.
type inputSource[T any] struct {
	next func() (orig T, payload T, ok bool)
	stop func()
}

// New constructs a pool over the given worker sequence. Nothing runs
// until Fork. If the pool handle becomes unreachable before shutdown
// was requested, shutdown runs automatically as a last resort.
func New[T, R any](workers []Worker[T, R], opts ...Option) (*Pool[T, R], error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &guts[T, R]{
		cfg:     cfg,
		workers: workers,
		pending: make(map[uint64]T),
	}

	maxReal := cfg.queueSizeFactor * len(workers)
	if cfg.serial {
		g.in = ipc.NewSerialQueue[ipc.Input[T]]()
		g.out = ipc.NewSerialQueue[ipc.Output[R]]()
	} else {
		// Headroom beyond the real cap so one stop token per worker
		// always fits; the output side stays tight so the shutdown
		// drain loop actually has work to do.
		g.in = ipc.NewChanQueue[ipc.Input[T]](maxReal + len(workers))
		g.out = ipc.NewChanQueue[ipc.Output[R]](2 * len(workers))
	}
	g.qm = flow.New(g.in, g.out, maxReal, cfg.maxTotalInFlight, g.debugf)

	// The exception hook reaches the pool state through g, never
	// through the Pool handle, so registering it cannot delay the
	// handle's reclamation.
	g.qm.AddOutputHook(func(frame ipc.Output[R]) {
		if frame.Err != nil {
			g.counts.exceptions.Add(1)
			printException(frame.Err, frame.UID)
			g.hasExceptions.Store(true)
			return
		}
		g.counts.results.Add(1)
	})

	p := &Pool[T, R]{g: g}
	runtime.AddCleanup(p, func(g *guts[T, R]) { g.autoFinish() }, g)
	return p, nil
}

// Forked is the New-then-Fork shortcut.
func Forked[T, R any](workers []Worker[T, R], opts ...Option) (*Pool[T, R], error) {
	p, err := New(workers, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Fork(); err != nil {
		return nil, err
	}
	return p, nil
}

// Fork starts one worker process per worker slot, bound to the shared
// input/output channels. A partially started pool is not rolled back on
// error; the caller still owns shutdown.
func (p *Pool[T, R]) Fork() error {
	g := p.g
	if !g.state.CompareAndSwap(int32(StateCreated), int32(StateForked)) {
		return ErrAlreadyForked
	}

	var eg errgroup.Group
	for i, w := range g.workers {
		r := newRoutine(w, g.in, g.out, g.debugf)
		var proc ipc.Proc
		if g.cfg.serial {
			sp := ipc.NewSerialProc(r.step)
			g.steppers = append(g.steppers, sp)
			proc = sp
		} else {
			proc = ipc.NewProc(fmt.Sprintf("worker-%d", i), r.run)
		}
		g.procs = append(g.procs, proc)
		eg.Go(proc.Start)
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("fork: %w", err)
	}
	g.debugf("forked %d workers", len(g.procs))
	return nil
}

// Enqueue registers a new input sequence and immediately spools as much
// of it as the in-flight caps allow. The sequence is pulled lazily, so
// large or live inputs stream through without being materialized.
func (p *Pool[T, R]) Enqueue(seq iter.Seq[T]) *Pool[T, R] {
	next, stop := iter.Pull(seq)
	p.g.sources = append(p.g.sources, &inputSource[T]{
		next: func() (T, T, bool) {
			v, ok := next()
			return v, v, ok
		},
		stop: stop,
	})
	_ = p.g.spoolInput(false)
	return p
}

// EnqueuePairs registers a pre-transformed input sequence: each element
// is an (original, payload) pair where the payload is what gets sent to
// the workers. This lets an expensive serialization step run outside
// the hot path while the result stream still reports the original.
func (p *Pool[T, R]) EnqueuePairs(seq iter.Seq2[T, T]) *Pool[T, R] {
	next, stop := iter.Pull2(seq)
	p.g.sources = append(p.g.sources, &inputSource[T]{
		next: func() (T, T, bool) {
			orig, payload, ok := next()
			return orig, payload, ok
		},
		stop: stop,
	})
	_ = p.g.spoolInput(false)
	return p
}

// nextFrame serializes the registered sources into uid-tagged frames,
// recording each original in the pending-input table. Exhausted sources
// are dropped as they finish, so re-pulling past the end stays a no-op.
func (g *guts[T, R]) nextFrame() (ipc.Input[T], bool) {
	for len(g.sources) > 0 {
		orig, payload, ok := g.sources[0].next()
		if !ok {
			g.sources[0].stop()
			g.sources = g.sources[1:]
			continue
		}
		uid := g.uidCtr
		g.uidCtr++
		g.pending[uid] = orig
		g.counts.submitted.Add(1)
		return ipc.Input[T]{UID: uid, Data: payload}, true
	}
	return ipc.Input[T]{}, false
}

// spoolInput pushes pending input within the caps. When closeIfDone is
// set and the sources are fully drained, stop tokens go out right away.
func (g *guts[T, R]) spoolInput(closeIfDone bool) error {
	exhausted, err := g.qm.Spool(g.nextFrame)
	if err != nil {
		return err
	}
	g.pumpSerial()
	if exhausted && closeIfDone {
		return g.sendStopTokens()
	}
	return nil
}

// pumpSerial works off the input channel on this goroutine by stepping
// the serial workers in cyclical order. A no-op for the production
// backend.
func (g *guts[T, R]) pumpSerial() {
	if len(g.steppers) == 0 {
		return
	}
	for !g.qm.InputEmpty() {
		progressed := false
		for _, s := range g.steppers {
			if s.Step() {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// Results returns the lazy result stream: one Item per input item
// processed, in drain order. The stream is single-pass. Iteration
// spools further input as capacity frees up, so consuming results is
// what keeps a large input sequence flowing.
//
// A non-nil error value is fatal to the stream (channel I/O failure or
// an unforked pool); per-input failures arrive as regular items of
// KindException instead. When closeWhenExhausted is set, the shutdown
// sequence runs once the input is exhausted and consumed.
func (p *Pool[T, R]) Results(closeWhenExhausted bool) iter.Seq2[Item[T, R], error] {
	g := p.g
	return func(yield func(Item[T, R], error) bool) {
		var zero Item[T, R]
		if State(g.state.Load()) == StateCreated {
			g.streamErr = ErrNotForked
			yield(zero, ErrNotForked)
			return
		}
		g.state.CompareAndSwap(int32(StateForked), int32(StateRunning))

		fail := func(err error) {
			g.streamErr = err
			yield(zero, err)
		}

		if err := g.spoolInput(closeWhenExhausted); err != nil {
			fail(err)
			return
		}

		backoff := newPollBackoff()
		for g.qm.NumTotalInFlight() > 0 {
			if err := g.qm.DrainToBuffer(0); err != nil {
				fail(err)
				return
			}
			frame, err := g.qm.PopOutput()
			switch {
			case err == nil:
				backoff.reset()
				// Keep the pipeline full once the channels have slack.
				if g.qm.NumRealInFlight() < int64(len(g.procs)) {
					if err := g.spoolInput(closeWhenExhausted); err != nil {
						fail(err)
						return
					}
				}
				if !yield(g.resolve(frame), nil) {
					return
				}
			case errors.Is(err, ipc.ErrEmpty):
				if g.allProcsDead(true) {
					// The in-flight count can no longer be trusted
					// once every worker is gone.
					printWarning("all worker processes died prematurely")
					goto drained
				}
				time.Sleep(backoff.next())
			default:
				fail(fmt.Errorf("result stream: %w", err))
				return
			}
		}
	drained:
		if closeWhenExhausted {
			if err := g.finishWorkers(); err != nil {
				fail(err)
			}
		}
	}
}

// ResultsOnly yields (input, output) pairs for items of KindOutput,
// silently skipping exceptions. A fatal stream error ends the sequence;
// check Err afterwards if that matters.
func (p *Pool[T, R]) ResultsOnly(closeWhenExhausted bool) iter.Seq2[T, R] {
	return func(yield func(T, R) bool) {
		for item, err := range p.Results(closeWhenExhausted) {
			if err != nil {
				return
			}
			if item.Kind != KindOutput {
				continue
			}
			if !yield(item.Input, item.Value) {
				return
			}
		}
	}
}

// DrainIgnoringOutput exhausts the result stream discarding all values,
// for workers run purely for their side effects. It shuts the pool down
// when done and returns the stream's fatal error, if any.
func (p *Pool[T, R]) DrainIgnoringOutput() error {
	for _, err := range p.Results(true) {
		if err != nil {
			return err
		}
	}
	return nil
}

// resolve matches an output frame against the pending-input table. The
// entry is removed on first match; an unknown uid yields HasInput=false.
func (g *guts[T, R]) resolve(frame ipc.Output[R]) Item[T, R] {
	item := Item[T, R]{Value: frame.Value, Err: frame.Err, Kind: KindOutput}
	if frame.Err != nil {
		item.Kind = KindException
	}
	if orig, ok := g.pending[frame.UID]; ok {
		delete(g.pending, frame.UID)
		item.Input = orig
		item.HasInput = true
	}
	return item
}

// AllProcsDead reports whether every worker process has exited. With
// fastCheck set it short-circuits to false unless an exception has been
// observed, since probing every process is comparatively costly.
func (p *Pool[T, R]) AllProcsDead(fastCheck bool) bool {
	return p.g.allProcsDead(fastCheck)
}

func (g *guts[T, R]) allProcsDead(fastCheck bool) bool {
	if fastCheck && !g.hasExceptions.Load() {
		return false
	}
	for _, proc := range g.procs {
		if proc.Alive() {
			return false
		}
	}
	return true
}

// NumInFlight reports the items submitted but not yet consumed by the
// caller, including output buffered inside the pool.
func (p *Pool[T, R]) NumInFlight() int64 { return p.g.qm.NumTotalInFlight() }

// State reports the pool's lifecycle position.
func (p *Pool[T, R]) State() State { return State(p.g.state.Load()) }

// Err returns the fatal error that terminated the result stream, if
// any. Useful after ResultsOnly, which cannot carry errors itself.
func (p *Pool[T, R]) Err() error { return p.g.streamErr }
