package tagbench

import "sync"

// Mode selects how a phase drives its lookups.
type Mode int

const (
	Sequential Mode = iota
	Parallel
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// LookupSequential looks up every query in order. A hit stores the value at
// the query's index in results, a miss leaves that slot alone.
func LookupSequential(t Lookuper, queries, results []uint64) {
	results = results[:len(queries)]
	for i, q := range queries {
		if v, ok := t.Get(q); ok {
			results[i] = v
		}
	}
}

// LookupParallel splits queries into at most workers contiguous chunks and
// runs one goroutine per chunk. It returns once every chunk is done. Each
// goroutine writes only its own slice of results.
func LookupParallel(t Lookuper, queries, results []uint64, workers int) {
	n := len(queries)
	if n == 0 {
		return
	}
	results = results[:n]
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func(qs, rs []uint64) {
			defer wg.Done()
			LookupSequential(t, qs, rs)
		}(queries[lo:hi], results[lo:hi])
	}
	wg.Wait()
}

// Checksum is the wrapping sum of results. Its only job is to keep the
// lookups observable.
func Checksum(results []uint64) uint64 {
	var sum uint64
	for _, r := range results {
		sum += r
	}
	return sum
}
