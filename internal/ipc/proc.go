package ipc

import "sync/atomic"

// goProc runs a worker routine on its own goroutine. It is the
// production Proc implementation: workers run concurrently with the
// coordinator and cooperate with it only through the shared channels.
type goProc struct {
	name    string
	run     func()
	started atomic.Bool
	done    chan struct{}
}

// NewProc wraps run as a startable proc. The routine owns its goroutine
// for the proc's whole lifetime; it exits only when run returns.
func NewProc(name string, run func()) Proc {
	return &goProc{name: name, run: run, done: make(chan struct{})}
}

func (p *goProc) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(p.done)
		p.run()
	}()
	return nil
}

// Join blocks until the routine has returned. Joining a proc that was
// never started is a no-op.
func (p *goProc) Join() error {
	if !p.started.Load() {
		return nil
	}
	<-p.done
	return nil
}

func (p *goProc) Alive() bool {
	if !p.started.Load() {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
