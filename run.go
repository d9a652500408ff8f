// Package tagbench measures point lookup latency of key/value containers
// holding random uint64 keys, one sequential and one parallel pass per
// container.
package tagbench

import (
	"io"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
)

// Run generates the data and queries from gen, then for every configured
// target populates it and measures a sequential and a parallel pass. The
// report lines go to out, diagnostics go to the global logger.
func Run(cfg Config, gen Generator, out io.Writer) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kinds, _ := cfg.Kinds()
	hasher, _ := HasherByName(cfg.Hasher)
	workers := cfg.EffectiveWorkers()

	start := time.Now()
	data := make([]uint64, cfg.DataSize)
	gen.Fill(data, cfg.MaxValue)
	queries := make([]uint64, cfg.QuerySize)
	gen.Fill(queries, cfg.MaxValue)
	log.Info().
		Int("dataSize", cfg.DataSize).
		Int("querySize", cfg.QuerySize).
		Uint64("maxValue", cfg.MaxValue).
		Dur("took", time.Since(start)).
		Msg("generated data")

	opts := TargetOptions{Hasher: hasher}
	if cfg.Presize {
		opts.SizeHint = cfg.DataSize
	}

	bench := NewBenchmark(queries, workers, cfg.ResetResults)
	report := &Report{QuerySize: cfg.QuerySize}

	for i, kind := range kinds {
		target := NewTarget(kind, opts)

		start := time.Now()
		target.Populate(data)
		log.Info().
			Str("target", kind.String()).
			Int("size", target.Len()).
			Dur("took", time.Since(start)).
			Msg("populated")

		runtime.GC() // keep the previous target's garbage out of the timings

		for _, mode := range [...]Mode{Sequential, Parallel} {
			result := bench.Measure(target, mode)
			if i == 0 && mode == Sequential {
				report.ContainerSize = target.Len()
				if err := WriteHeader(out, report.ContainerSize, report.QuerySize); err != nil {
					return report, err
				}
			}
			report.Phases = append(report.Phases, result)
			if _, err := result.WriteTo(out); err != nil {
				return report, err
			}
			log.Debug().
				Str("target", kind.String()).
				Stringer("mode", mode).
				Int("workers", workers).
				Dur("elapsed", result.Elapsed).
				Msg("phase done")
		}
	}
	return report, nil
}
