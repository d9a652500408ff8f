package tagbench

import (
	"time"
)

// Benchmark runs timed lookup phases over one fixed query set. The results
// buffer is shared by every phase.
type Benchmark struct {
	queries      []uint64
	results      []uint64
	workers      int
	resetResults bool
}

func NewBenchmark(queries []uint64, workers int, resetResults bool) *Benchmark {
	return &Benchmark{
		queries:      queries,
		results:      make([]uint64, len(queries)),
		workers:      workers,
		resetResults: resetResults,
	}
}

// Results exposes the buffer as the last phase left it.
func (b *Benchmark) Results() []uint64 {
	return b.results
}

// Measure times one pass of every query against t. Only the lookups are
// timed, the reset and the checksum are not.
func (b *Benchmark) Measure(t Target, mode Mode) PhaseResult {
	if b.resetResults {
		clear(b.results)
	}

	start := time.Now()
	switch mode {
	case Parallel:
		LookupParallel(t, b.queries, b.results, b.workers)
	default:
		LookupSequential(t, b.queries, b.results)
	}
	elapsed := time.Since(start)

	return PhaseResult{
		Kind:     t.Kind(),
		Mode:     mode,
		Elapsed:  elapsed,
		Checksum: Checksum(b.results),
	}
}
