package pool

import "time"

// Option is a functional option for configuring the pool.
type Option func(*config)

type config struct {
	queueSizeFactor  int
	maxTotalInFlight int
	timeout          time.Duration
	debug            bool
	serial           bool
}

func defaultConfig() config {
	return config{
		queueSizeFactor:  10,
		maxTotalInFlight: 100000,
		timeout:          5 * time.Second,
	}
}

// WithQueueSizeFactor sets the real in-flight cap as a multiple of the
// worker count (default 10). This bounds how many items may sit in the
// two inter-process channels at once.
func WithQueueSizeFactor(factor int) Option {
	return func(cfg *config) {
		if factor > 0 {
			cfg.queueSizeFactor = factor
		}
	}
}

// WithMaxTotalInFlight sets the ceiling on items submitted but not yet
// consumed, including output buffered for the caller (default 100000).
// It is a memory-safety bound for streaming large input sets, much
// larger than the real cap.
func WithMaxTotalInFlight(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxTotalInFlight = n
		}
	}
}

// WithTimeout bounds how long shutdown waits for workers to finish
// their current items before giving up with a warning (default 5s,
// 0 = wait forever). Cancellation stays cooperative: a worker that
// exceeds the budget is abandoned, never killed.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.timeout = d
		}
	}
}

// WithDebug enables verbose lifecycle logging to stderr.
func WithDebug() Option {
	return func(cfg *config) {
		cfg.debug = true
	}
}

// WithSerialBackend runs workers on the caller's goroutine with
// unbounded same-goroutine channels. Nothing forks; input is worked off
// in cyclical worker order whenever the pool spools or drains. Meant
// for tests and for stepping through worker code in a debugger.
func WithSerialBackend() Option {
	return func(cfg *config) {
		cfg.serial = true
	}
}
