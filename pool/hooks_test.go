package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/schollz/progressbar/v3"
)

func TestAddOutputHook_SeesEveryItem(t *testing.T) {
	silenceExceptions(t)

	p, err := Forked(Identical(func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("three is out")
		}
		return n * n, nil
	}, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}

	var trace []string
	p.AddOutputHook(func(uid uint64, kind Kind, value int, err error) {
		trace = append(trace, fmt.Sprintf("%d:%s", uid, kind))
	})
	p.Enqueue(slices.Values([]int{1, 2, 3}))

	for range p.Results(true) {
	}

	want := []string{"0:output", "1:output", "2:exception"}
	if !slices.Equal(trace, want) {
		t.Errorf("expected %v, got %v", want, trace)
	}
}

func TestAddOutputHook_RegistrationOrder(t *testing.T) {
	p, err := Forked(Identical(squareWorker, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}

	var trace []string
	p.AddOutputHook(func(uint64, Kind, int, error) {
		trace = append(trace, "first")
	}).AddOutputHook(func(uint64, Kind, int, error) {
		trace = append(trace, "second")
	})
	p.Enqueue(slices.Values([]int{5}))

	for range p.ResultsOnly(true) {
	}

	if !slices.Equal(trace, []string{"first", "second"}) {
		t.Errorf("hooks ran out of order: %v", trace)
	}
}

func TestAddProgressNotification(t *testing.T) {
	prev := progressPrintln
	var lines []string
	progressPrintln = func(msg string) { lines = append(lines, msg) }
	t.Cleanup(func() { progressPrintln = prev })

	p, err := Forked(Identical(squareWorker, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	// An interval far longer than the test: only the first item gets
	// through the limiter.
	p.AddProgressNotification(time.Hour, "frames")
	p.Enqueue(slices.Values([]int{1, 2, 3, 4, 5}))

	for range p.ResultsOnly(true) {
	}

	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 progress line, got %d (%v)", len(lines), lines)
	}
	if !strings.Contains(lines[0], "frames") {
		t.Errorf("expected the custom label, got %q", lines[0])
	}
	if !strings.Contains(lines[0], "1") {
		t.Errorf("expected the running count, got %q", lines[0])
	}
}

func TestAddProgressBar(t *testing.T) {
	bar := progressbar.NewOptions(4,
		progressbar.OptionSetWriter(io.Discard),
	)

	p, err := Forked(Identical(squareWorker, 2), WithSerialBackend())
	if err != nil {
		t.Fatalf("forked: %v", err)
	}
	p.AddProgressBar(bar)
	p.Enqueue(slices.Values([]int{1, 2, 3, 4}))

	for range p.ResultsOnly(true) {
	}

	if got := bar.State().CurrentNum; got != 4 {
		t.Errorf("expected the bar at 4, got %d", got)
	}
}
