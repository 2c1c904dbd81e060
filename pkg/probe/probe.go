// Package probe runs the startup self-checks: cheap assertions that the
// wiring that just came up can actually do its job. Critical failures
// abort boot; the rest are logged and the engine runs degraded.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const checkTimeout = 5 * time.Second

// CheckFunc performs one health check.
type CheckFunc func(ctx context.Context) error

// Probe is a single named startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Err      error
	Duration time.Duration
}

// Run executes the probes in order. Each check gets its own timeout so a
// hung dependency cannot stall boot forever.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	for i, p := range probes {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.Check(cctx)
		cancel()
		results[i] = Result{Probe: p, Err: err, Duration: time.Since(start)}
	}
	return results
}

// Summarize logs every result and returns the joined critical failures,
// nil when boot may proceed.
func Summarize(results []Result) error {
	var critical []error

	slog.Info("Startup checks")
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "FAIL"
		}
		line := fmt.Sprintf("[%s] %-18s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))
		switch {
		case r.Err == nil:
			slog.Info(line)
		case r.Probe.Critical:
			slog.Error(line, "error", r.Err)
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Err))
		default:
			slog.Warn(line, "error", r.Err)
		}
	}

	return errors.Join(critical...)
}
