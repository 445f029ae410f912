package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"
)

// captureWarnings swaps the warning printer for the duration of a test
// and returns the captured messages.
func captureWarnings(t *testing.T) *[]string {
	t.Helper()
	prev := printWarning
	var msgs []string
	printWarning = func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}
	t.Cleanup(func() { printWarning = prev })
	return &msgs
}

func TestFinishWorkers_Idempotent(t *testing.T) {
	p, err := Forked(Identical(squareWorker, 3), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	p.Enqueue(slices.Values([]int{1, 2, 3}))

	for i := range 3 {
		if err := p.FinishWorkers(); err != nil {
			t.Fatalf("finish #%d: %v", i+1, err)
		}
	}
	if err := p.SendStopTokens(); err != nil {
		t.Fatalf("stop tokens after finish: %v", err)
	}
	if err := p.JoinAndConsumeOutput(); err != nil {
		t.Fatalf("join after finish: %v", err)
	}

	// Exactly one stop token per worker, no matter how many shutdown
	// calls raced in.
	if got := p.g.stopsSent.Load(); got != 3 {
		t.Errorf("expected 3 stop tokens, got %d", got)
	}
	if got := p.State(); got != StateClosed {
		t.Errorf("expected closed state, got %s", got)
	}
}

func TestShutdownSteps_RunInOrder(t *testing.T) {
	p, err := Forked(Identical(squareWorker, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	p.Enqueue(slices.Values([]int{1, 2}))

	if err := p.SendStopTokens(); err != nil {
		t.Fatalf("stop tokens: %v", err)
	}
	if got := p.State(); got != StateStopping {
		t.Errorf("expected stopping state, got %s", got)
	}

	if err := p.JoinAndConsumeOutput(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := p.State(); got != StateClosed {
		t.Errorf("expected closed state, got %s", got)
	}

	// The buffered output is still consumable after shutdown.
	count := 0
	for item, err := range p.Results(false) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if item.Kind != KindOutput {
			t.Errorf("unexpected item kind %s", item.Kind)
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 buffered results, got %d", count)
	}
}

func TestJoinAndConsumeOutput_SendsStopFirst(t *testing.T) {
	p, err := Forked(Identical(squareWorker, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}

	// Never called SendStopTokens explicitly; the join step owns its
	// prerequisite.
	if err := p.JoinAndConsumeOutput(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := p.g.stopsSent.Load(); got != 2 {
		t.Errorf("expected 2 stop tokens, got %d", got)
	}
}

func TestShutdown_Timeout(t *testing.T) {
	warnings := captureWarnings(t)

	release := make(chan struct{})
	defer close(release)
	p, err := Forked(Identical(func(_ context.Context, n int) (int, error) {
		<-release
		return n, nil
	}, 1), WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	p.Enqueue(slices.Values([]int{1}))

	// The worker is wedged on its item, so shutdown gives up after the
	// budget instead of hanging.
	start := time.Now()
	err = p.FinishWorkers()
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("expected ErrShutdownTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("shutdown took %v despite the 50ms budget", elapsed)
	}

	found := false
	for _, msg := range *warnings {
		if strings.Contains(msg, "timed out") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a timeout warning, got %v", *warnings)
	}
}

func TestAutoFinish_DisposalWarning(t *testing.T) {
	warnings := captureWarnings(t)

	p, err := Forked(Identical(squareWorker, 2))
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	p.Enqueue(slices.Values([]int{1, 2, 3}))

	// Drive the cleanup path directly rather than waiting on the
	// collector: the handle was dropped with input never consumed.
	p.g.autoFinish()
	p.g.autoFinish()

	disposals := 0
	for _, msg := range *warnings {
		if strings.Contains(msg, "disposed") {
			disposals++
		}
	}
	if disposals != 1 {
		t.Errorf("expected exactly one disposal warning, got %d (%v)", disposals, *warnings)
	}
	if got := p.State(); got != StateClosed {
		t.Errorf("expected closed state, got %s", got)
	}
}

func TestAutoFinish_NoWarningAfterExceptions(t *testing.T) {
	silenceExceptions(t)
	warnings := captureWarnings(t)

	p, err := Forked(Identical(func(_ context.Context, n int) (int, error) {
		return 0, errors.New("always fails")
	}, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	p.Enqueue(slices.Values([]int{1, 2}))
	if err := p.FinishWorkers(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Input was never consumed, but the exceptions explain it; the
	// disposal warning stays quiet.
	p.g.autoFinish()
	for _, msg := range *warnings {
		if strings.Contains(msg, "disposed") {
			t.Errorf("unexpected disposal warning: %s", msg)
		}
	}
}

func TestPollBackoff_DoublesAndResets(t *testing.T) {
	b := newPollBackoff()

	want := []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}
	for i, d := range want {
		if got := b.next(); got != d {
			t.Errorf("step %d: expected %v, got %v", i, d, got)
		}
	}

	b.reset()
	if got := b.next(); got != time.Millisecond {
		t.Errorf("expected reset to 1ms, got %v", got)
	}
}
