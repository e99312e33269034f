// Package validation runs the staging checks for a candidate engine and
// folds their outcomes into a Report.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chimera-pool/chimera-pool-core/internal/telemetry"
)

// #region pipeline
// Pipeline runs a fixed, ordered list of independent checks.
type Pipeline struct {
	cfg    Config
	checks []Check
	logger *slog.Logger
}

// New returns a pipeline with the default five checks.
func New(cfg Config, logger *slog.Logger) *Pipeline {
	return NewWithChecks(cfg, logger, DefaultChecks(cfg)...)
}

// NewWithChecks returns a pipeline running checks in the given order. Report
// fields for kinds that no check covers are reported as passing.
func NewWithChecks(cfg Config, logger *slog.Logger, checks ...Check) *Pipeline {
	if logger == nil {
		logger = slog.Default().With("component", "validation")
	}
	return &Pipeline{cfg: cfg, checks: checks, logger: logger}
}

// Validate runs every check concurrently, each under its own deadline, and
// collates the results in pipeline order. It never returns nil.
func (p *Pipeline) Validate(ctx context.Context, s Subject) *Report {
	if s.Candidate == nil {
		return &Report{Errors: []string{"no candidate to validate"}}
	}

	results := make([]Result, len(p.checks))

	var g errgroup.Group
	if p.cfg.Parallelism > 0 {
		g.SetLimit(p.cfg.Parallelism)
	}
	for i, c := range p.checks {
		g.Go(func() error {
			results[i] = p.run(ctx, c, s)
			return nil
		})
	}
	_ = g.Wait()

	report := collate(results)
	p.logger.Info("validation finished",
		"success", report.Success(),
		"errors", len(report.Errors),
		"warnings", len(report.Warnings),
		"performance_score", report.PerformanceScore,
	)
	return report
}

// run executes one check under the per-check timeout. A check that outlives
// its deadline is reported as failed and its goroutine is abandoned.
func (p *Pipeline) run(ctx context.Context, c Check, s Subject) Result {
	if p.cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.CheckTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fail("check panicked: %v", r)
			}
		}()
		done <- c.Run(ctx, s)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = fail("%s check did not finish: %v", c.Kind(), ctx.Err())
	}
	res.Kind = c.Kind()
	res.Severity = c.Severity()
	res.Duration = time.Since(start)

	telemetry.RecordCheck(string(res.Kind), res.Pass, res.Duration.Seconds())
	if !res.Pass {
		p.logger.Warn("validation check failed",
			"check", res.Kind,
			"severity", res.Severity.String(),
			"detail", res.Detail,
		)
	}
	return res
}

// #endregion pipeline

// #region collate
func collate(results []Result) *Report {
	r := &Report{Checks: results}
	seen := make(map[Kind]bool, len(results))

	for _, res := range results {
		seen[res.Kind] = true
		switch res.Kind {
		case KindCompatibility:
			r.Compatibility = res.Pass
		case KindPerformance:
			r.PerformanceScore = res.Score
		case KindSecurity:
			r.Security = res.Pass
		case KindTestVectors:
			r.TestVectors = res.Pass
		case KindMemory:
			r.MemoryOK = res.Pass
		}
		if res.Pass {
			continue
		}
		msg := fmt.Sprintf("%s: %s", res.Kind, res.Detail)
		if res.Severity == Advisory {
			r.Warnings = append(r.Warnings, msg)
		} else {
			r.Errors = append(r.Errors, msg)
		}
	}

	if !seen[KindCompatibility] {
		r.Compatibility = true
	}
	if !seen[KindPerformance] {
		r.PerformanceScore = 1
	}
	if !seen[KindSecurity] {
		r.Security = true
	}
	if !seen[KindTestVectors] {
		r.TestVectors = true
	}
	if !seen[KindMemory] {
		r.MemoryOK = true
	}
	return r
}

// #endregion collate
