package tagbench

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

// PhaseResult is one timed pass of the query set.
type PhaseResult struct {
	Kind     Kind
	Mode     Mode
	Elapsed  time.Duration
	Checksum uint64
}

func (r PhaseResult) Label() string {
	if r.Mode == Parallel {
		return r.Kind.String() + " with parallel"
	}
	return r.Kind.String()
}

// Micros is the elapsed time in whole microseconds, truncated.
func (r PhaseResult) Micros() int64 {
	return r.Elapsed.Microseconds()
}

// WriteTo writes the timing line and the checksum line.
func (r PhaseResult) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "%s: %dus\ndummy: %d\n", r.Label(), r.Micros(), r.Checksum)
	if err != nil {
		return int64(n), errors.Wrapf(err, "write %s result", r.Label())
	}
	return int64(n), nil
}

// WriteHeader writes the size lines printed once per run.
func WriteHeader(w io.Writer, containerSize, querySize int) error {
	if _, err := fmt.Fprintf(w, "container size: %d\nquery size: %d\n", containerSize, querySize); err != nil {
		return errors.Wrap(err, "write header")
	}
	return nil
}

// Report collects what a run printed.
type Report struct {
	// ContainerSize is the entry count of the first target, the number of
	// distinct keys in the data.
	ContainerSize int
	QuerySize     int
	Phases        []PhaseResult
}

// Phase returns the result for kind in mode, if the run measured it.
func (r *Report) Phase(kind Kind, mode Mode) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Kind == kind && p.Mode == mode {
			return p, true
		}
	}
	return PhaseResult{}, false
}
