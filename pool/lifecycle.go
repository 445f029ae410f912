package pool

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// lifecycleStep guards one shutdown transition: the body executes at
// most once for the pool's lifetime, no matter how many call sites
// invoke it, and the outcome is replayed to later callers. Steps
// declare their prerequisites by invoking them (idempotently) before
// running their own body.
type lifecycleStep struct {
	once sync.Once
	err  error
}

func (s *lifecycleStep) run(body func() error) error {
	s.once.Do(func() {
		s.err = body()
	})
	return s.err
}

// SendStopTokens enqueues exactly one stop token per worker process,
// telling them to shut down after their current item. First step of
// the shutdown sequence.
func (p *Pool[T, R]) SendStopTokens() error { return p.g.sendStopTokens() }

func (g *guts[T, R]) sendStopTokens() error {
	return g.stopStep.run(func() error {
		g.state.Store(int32(StateStopping))
		g.debugf("sending %d stop tokens", len(g.procs))
		for range g.procs {
			if err := g.qm.SendStop(); err != nil {
				return err
			}
			g.stopsSent.Add(1)
		}
		// Serial workers consume their stop tokens inline.
		g.pumpSerial()
		return nil
	})
}

// JoinAndConsumeOutput drains the output side until every worker has
// exited, then joins the process handles and closes the flow engine.
// Stop tokens are sent first if they haven't been.
func (p *Pool[T, R]) JoinAndConsumeOutput() error { return p.g.joinAndConsumeOutput() }

func (g *guts[T, R]) joinAndConsumeOutput() error {
	if err := g.sendStopTokens(); err != nil {
		return err
	}
	return g.joinStep.run(g.drainAndJoin)
}

func (g *guts[T, R]) drainAndJoin() error {
	var deadline time.Time
	if g.cfg.timeout > 0 {
		deadline = time.Now().Add(g.cfg.timeout)
	}

	// Keep draining while processes wind down: a worker may be blocked
	// pushing a final item into a full output channel, and nobody else
	// is pulling right now.
	timedOut := false
	for !g.allProcsDead(false) {
		if !deadline.IsZero() && time.Now().After(deadline) {
			timedOut = true
			printWarning("timed out after %s waiting for workers to finish", g.cfg.timeout)
			break
		}
		if err := g.qm.DrainToBuffer(0); err != nil {
			return err
		}
		g.pumpSerial()
		time.Sleep(time.Millisecond)
	}

	// One more unconditional pass for output produced right before
	// exit.
	if err := g.qm.DrainToBuffer(0); err != nil {
		return err
	}

	if !timedOut {
		var eg errgroup.Group
		for _, proc := range g.procs {
			eg.Go(proc.Join)
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	g.state.Store(int32(StateDrained))

	// Releasing the handle list is what lets the procs' resources go.
	g.procs = nil
	g.steppers = nil
	for _, src := range g.sources {
		src.stop()
	}
	g.sources = nil

	if err := g.qm.Close(); err != nil {
		if timedOut {
			// Abandoned workers may still hold items; the timeout is
			// the caller-facing condition.
			g.debugf("close after timeout: %v", err)
			return ErrShutdownTimeout
		}
		return err
	}
	g.state.Store(int32(StateClosed))
	if timedOut {
		return ErrShutdownTimeout
	}
	g.debugf("pool closed")
	return nil
}

// FinishWorkers is the public "stop everything" entry point: it sends
// stop tokens, then joins the workers while consuming their remaining
// output. Unpopped output may still be buffered afterwards. Safe to
// call any number of times from any combination of call sites.
func (p *Pool[T, R]) FinishWorkers() error { return p.g.finishWorkers() }

func (g *guts[T, R]) finishWorkers() error {
	return g.finishStep.run(func() error {
		g.debugf("finishing workers")
		if err := g.sendStopTokens(); err != nil {
			return err
		}
		return g.joinAndConsumeOutput()
	})
}

// autoFinish is the last-resort cleanup attached to the pool handle:
// it runs the shutdown sequence, and flags input that was submitted
// but never consumed when no worker exception explains it.
func (g *guts[T, R]) autoFinish() {
	g.cleanupStep.once.Do(func() {
		_ = g.finishWorkers()
		if len(g.pending) > 0 && !g.hasExceptions.Load() {
			printWarning("pool disposed before input was consumed, but no worker exceptions were caught")
		}
	})
}

// pollBackoff paces the result stream's empty-buffer retries: start
// small, double up to a cap, reset whenever an item arrives.
type pollBackoff struct {
	cur, max time.Duration
}

func newPollBackoff() pollBackoff {
	return pollBackoff{cur: time.Millisecond, max: 10 * time.Millisecond}
}

func (b *pollBackoff) next() time.Duration {
	d := b.cur
	if b.cur < b.max {
		b.cur *= 2
	}
	return d
}

func (b *pollBackoff) reset() {
	b.cur = time.Millisecond
}
