// Package scenario replays scripted migrations against a fresh controller,
// for regression fixtures and for demonstrating rollouts end to end.
package scenario

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/migration"
	"github.com/chimera-pool/chimera-pool-core/internal/router"
	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

// #region types

// StepResult is the outcome of one replayed step.
type StepResult struct {
	Index    int
	Op       Op
	State    migration.State
	Active   string
	Staging  migration.StagingStatus
	Error    string // error class, "none" on success
	Requests int
	Failed   int
	Mismatch string // empty when the expectation held
}

// Summary aggregates a replay.
type Summary struct {
	TotalSteps  int
	Mismatches  int
	Requests    int
	Failed      int
	FinalState  migration.State
	FinalActive string
}

// Options tune a replay. The zero value is usable.
type Options struct {
	Registry  *engine.Registry
	Validator migration.Validator
	Sink      migration.EventSink
	Logger    *slog.Logger
}

// #endregion types

// #region classify

var errorClasses = []struct {
	err  error
	name string
}{
	{migration.ErrStagingInProgress, "staging_in_progress"},
	{migration.ErrValidationFailed, "validation_failed"},
	{migration.ErrNotReadyForMigration, "not_ready"},
	{migration.ErrMigrationInProgress, "migration_in_progress"},
	{migration.ErrAdvanceDeferred, "advance_deferred"},
	{migration.ErrStagingAborted, "staging_aborted"},
	{migration.ErrInvalidState, "invalid_state"},
	{engine.ErrUnknownEngine, "unknown_engine"},
}

// Classify maps a controller error to its fixture name.
func Classify(err error) string {
	if err == nil {
		return "none"
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "other"
}

// #endregion classify

// #region replay

// Replay builds a controller serving f.Active and runs every step in order.
// It only returns an error when the controller cannot be built; step
// failures are reported per step.
func Replay(ctx context.Context, f *Fixture, opts Options) ([]StepResult, error) {
	reg := opts.Registry
	if reg == nil {
		reg = engine.DefaultRegistry()
	}
	validator := opts.Validator
	if validator == nil {
		cfg := validation.DefaultConfig()
		cfg.PerformanceWindow = 5 * time.Millisecond
		validator = validation.New(cfg, opts.Logger)
	}
	var sampler router.Sampler = router.HashSampler{}
	if f.Sampler == "random" {
		sampler = router.RandomSampler{}
	}

	active, err := reg.Get(f.Active)
	if err != nil {
		return nil, fmt.Errorf("active engine: %w", err)
	}
	ctrlOpts := []migration.Option{
		migration.WithValidator(validator),
		migration.WithSampler(sampler),
	}
	if opts.Logger != nil {
		ctrlOpts = append(ctrlOpts, migration.WithLogger(opts.Logger))
	}
	if opts.Sink != nil {
		ctrlOpts = append(ctrlOpts, migration.WithEventSink(opts.Sink))
	}
	ctrl, err := migration.New(active, f.MigrationConfig(), ctrlOpts...)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	r := &runner{ctrl: ctrl, reg: reg}
	results := make([]StepResult, 0, len(f.Steps))
	for i, step := range f.Steps {
		res := r.apply(ctx, step)
		res.Index = i
		res.Op = step.Op

		st := ctrl.Status()
		res.State = st.State
		res.Active = st.ActiveIdentity
		res.Staging = st.Staging
		if step.Expect != nil {
			res.Mismatch = step.Expect.compare(res)
		}
		results = append(results, res)
	}
	return results, nil
}

type runner struct {
	ctrl   *migration.Controller
	reg    *engine.Registry
	canary *engine.Faulty
	seq    uint64
}

func (r *runner) apply(ctx context.Context, step Step) StepResult {
	var res StepResult
	var err error
	switch step.Op {
	case OpStage:
		var inner engine.Engine
		inner, err = r.reg.Get(step.Engine)
		if err != nil {
			break
		}
		r.canary = engine.NewFaulty(inner, step.Name, step.Version, step.FailRate)
		_, err = r.ctrl.Stage(ctx, r.canary)
	case OpStart:
		_, err = r.ctrl.StartMigration(ctx)
	case OpRequests:
		res.Requests, res.Failed = r.send(step.Count)
	case OpSetFailRate:
		if r.canary == nil {
			err = errors.New("set_fail_rate: nothing staged")
			break
		}
		r.canary.SetRate(step.FailRate)
	case OpAdvance:
		_, err = r.ctrl.AdvanceMigration(ctx)
	case OpRun:
		res, err = r.run(ctx, step)
	case OpRollback:
		_, err = r.ctrl.RollbackMigration(ctx)
	case OpCheck:
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}
	res.Error = Classify(err)
	return res
}

// run alternates request batches and advances until the migration ends.
func (r *runner) run(ctx context.Context, step Step) (StepResult, error) {
	var res StepResult
	rounds := step.MaxRounds
	if rounds <= 0 {
		rounds = 32
	}
	for range rounds {
		sent, failed := r.send(step.Count)
		res.Requests += sent
		res.Failed += failed

		st, err := r.ctrl.AdvanceMigration(ctx)
		if errors.Is(err, migration.ErrAdvanceDeferred) {
			continue
		}
		if err != nil || st.IsTerminal() {
			return res, err
		}
	}
	return res, fmt.Errorf("run: still %s after %d rounds", r.ctrl.Status().State, rounds)
}

// send issues n requests keyed by a running counter, so the hash sampler
// sees the same keys on every replay.
func (r *runner) send(n int) (sent, failed int) {
	input := make([]byte, 8)
	for range n {
		r.seq++
		binary.LittleEndian.PutUint64(input, r.seq)
		if _, err := r.ctrl.ProcessRequest(input); err != nil {
			failed++
		}
		sent++
	}
	return sent, failed
}

func (e *Expect) compare(res StepResult) string {
	if e.Error != "" && e.Error != res.Error {
		return fmt.Sprintf("error: want %s, got %s", e.Error, res.Error)
	}
	if e.State != "" && e.State != res.State.Kind.String() {
		return fmt.Sprintf("state: want %s, got %s", e.State, res.State)
	}
	if e.Percentage != nil && math.Abs(*e.Percentage-res.State.Percentage) > 1e-9 {
		return fmt.Sprintf("percentage: want %v, got %v", *e.Percentage, res.State.Percentage)
	}
	if e.Active != "" && e.Active != res.Active {
		return fmt.Sprintf("active: want %s, got %s", e.Active, res.Active)
	}
	if e.Staging != "" && e.Staging != res.Staging.String() {
		return fmt.Sprintf("staging: want %s, got %s", e.Staging, res.Staging)
	}
	return ""
}

// #endregion replay

// #region summarize

// Summarize folds step results into totals.
func Summarize(results []StepResult) Summary {
	s := Summary{TotalSteps: len(results)}
	for _, r := range results {
		if r.Mismatch != "" {
			s.Mismatches++
		}
		s.Requests += r.Requests
		s.Failed += r.Failed
	}
	if n := len(results); n > 0 {
		s.FinalState = results[n-1].State
		s.FinalActive = results[n-1].Active
	}
	return s
}

// #endregion summarize
