package pool

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/procmap/internal/ipc"
)

// OutputHook observes every output item as it is drained off the
// output channel, before the consumer sees it. Hooks run synchronously
// in registration order on the draining goroutine; they must not panic
// and must not block, or they stall the whole drain path.
type OutputHook[R any] func(uid uint64, kind Kind, value R, err error)

// AddOutputHook registers a hook behind the built-in exception
// detector.
func (p *Pool[T, R]) AddOutputHook(fn OutputHook[R]) *Pool[T, R] {
	p.g.qm.AddOutputHook(func(frame ipc.Output[R]) {
		kind := KindOutput
		if frame.Err != nil {
			kind = KindException
		}
		fn(frame.UID, kind, frame.Value, frame.Err)
	})
	return p
}

// progressPrintln is swappable for tests.
var progressPrintln = func(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}

// AddProgressNotification installs an observer that counts every
// processed item and prints a progress line at most once per interval
// (default 1s, counting "items"). A pure observer with no effect on
// flow control.
func (p *Pool[T, R]) AddProgressNotification(interval time.Duration, label string) *Pool[T, R] {
	if interval <= 0 {
		interval = time.Second
	}
	if label == "" {
		label = "items"
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var count atomic.Uint64
	p.g.qm.AddOutputHook(func(ipc.Output[R]) {
		n := count.Add(1)
		if limiter.Allow() {
			progressPrintln(fmt.Sprintf("processed %d %s", n, label))
		}
	})
	return p
}

// AddProgressBar advances bar by one per processed item.
func (p *Pool[T, R]) AddProgressBar(bar *progressbar.ProgressBar) *Pool[T, R] {
	p.g.qm.AddOutputHook(func(ipc.Output[R]) {
		_ = bar.Add(1)
	})
	return p
}
