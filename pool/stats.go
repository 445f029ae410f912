package pool

import (
	"io"
	"strconv"
	"sync/atomic"

	"github.com/olekukonko/tablewriter"
)

// statCounters are the pool's monotonic counters, updated from the
// spool path and the output hook.
type statCounters struct {
	submitted  atomic.Uint64
	results    atomic.Uint64
	exceptions atomic.Uint64
}

// Stats is a point-in-time snapshot of the pool. Counts may be stale
// immediately after the call returns while workers are running.
type Stats struct {
	State         string
	Workers       int
	WorkersAlive  int
	Submitted     uint64
	Results       uint64
	Exceptions    uint64
	Pending       int // inputs still awaiting a matching output
	RealInFlight  int64
	TotalInFlight int64
}

// Stats snapshots the pool's counters and liveness.
func (p *Pool[T, R]) Stats() Stats {
	g := p.g
	alive := 0
	for _, proc := range g.procs {
		if proc.Alive() {
			alive++
		}
	}
	return Stats{
		State:         State(g.state.Load()).String(),
		Workers:       len(g.workers),
		WorkersAlive:  alive,
		Submitted:     g.counts.submitted.Load(),
		Results:       g.counts.results.Load(),
		Exceptions:    g.counts.exceptions.Load(),
		Pending:       len(g.pending),
		RealInFlight:  g.qm.NumRealInFlight(),
		TotalInFlight: g.qm.NumTotalInFlight(),
	}
}

// Render writes the snapshot as a two-column table.
func (s Stats) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	rows := []struct {
		name  string
		value string
	}{
		{"State", s.State},
		{"Workers", strconv.Itoa(s.Workers)},
		{"Workers alive", strconv.Itoa(s.WorkersAlive)},
		{"Submitted", strconv.FormatUint(s.Submitted, 10)},
		{"Results", strconv.FormatUint(s.Results, 10)},
		{"Exceptions", strconv.FormatUint(s.Exceptions, 10)},
		{"Pending inputs", strconv.Itoa(s.Pending)},
		{"Real in-flight", strconv.FormatInt(s.RealInFlight, 10)},
		{"Total in-flight", strconv.FormatInt(s.TotalInFlight, 10)},
	}
	for _, row := range rows {
		if err := table.Append(row.name, row.value); err != nil {
			return err
		}
	}
	return table.Render()
}
