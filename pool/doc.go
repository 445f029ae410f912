// Package pool provides a parallel-map worker pool: a fixed set of
// worker processes consume a stream of inputs and produce a stream of
// tagged outputs, while the pool streams input in, drains output out,
// and guarantees clean shutdown without deadlock or data loss.
//
// The primary type is Pool[T, R]. Inputs of type T are fanned out over
// two bounded inter-process channels to N workers applying a bound
// WorkerFunc, and results of type R come back as a lazy sequence in
// whatever order the workers finish them.
//
// # Basic Usage
//
//	workers := pool.Identical(func(ctx context.Context, n int) (int, error) {
//	    return n * n, nil
//	}, 4)
//	p, err := pool.Forked(workers)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p.Enqueue(slices.Values([]int{1, 2, 3, 4, 5}))
//	for input, output := range p.ResultsOnly(true) {
//	    fmt.Println(input, output)
//	}
//
// # Flow Control
//
// Input is spooled into the channels only as results are consumed, so
// arbitrarily large input sequences stream through bounded memory. Two
// independent caps govern this: the real in-flight cap bounds items
// physically resident in the channels (WithQueueSizeFactor times the
// worker count), and the total in-flight cap bounds everything
// submitted but not yet consumed (WithMaxTotalInFlight), as a safety
// ceiling against unbounded growth of buffered output.
//
// # Error Handling
//
// A worker function that fails (or panics) produces an item of
// KindException carrying the error; the worker itself keeps running.
// Exceptions are additionally reported to stderr the moment they are
// observed. Only channel I/O failures are fatal to the result stream.
//
// # Shutdown
//
// FinishWorkers sends one stop token per worker, drains output while
// the workers wind down (so none blocks forever on a full channel),
// joins them, and releases the channels. Every step is idempotent;
// redundant calls — including the automatic cleanup that runs if a
// pool handle is dropped unconsumed — are absorbed silently.
//
// # Testing
//
// WithSerialBackend runs the workers inline on the caller's goroutine
// with unbounded channels, so tests are deterministic and a debugger
// can step from input to worker to output without crossing a
// goroutine.
package pool
