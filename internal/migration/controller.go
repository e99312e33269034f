// Package migration implements the hot-swap state machine: staging a
// candidate engine, shadow probing, the percentage ramp, and the final swap
// or rollback.
//
// The request path (ProcessRequest, VerifyRequest, Status) never takes the
// controller lock. It loads the published control state and the engine slot
// through atomic pointers. Control-plane calls are serialized by a single
// mutex which is released while validation checks run.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/router"
	"github.com/chimera-pool/chimera-pool-core/internal/slot"
	"github.com/chimera-pool/chimera-pool-core/internal/telemetry"
	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

// Validator produces the report for a staged candidate.
type Validator interface {
	Validate(ctx context.Context, s validation.Subject) *validation.Report
}

// controlState is published whole; readers never see a partial update.
type controlState struct {
	staging     StagingStatus
	state       State
	report      *validation.Report
	migrationID string
	cfg         Config
}

// #region options
// Option configures a Controller in New.
type Option func(*Controller)

// WithLogger sets the controller logger. A nil logger keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithValidator replaces the validator Stage runs against candidates.
func WithValidator(v Validator) Option {
	return func(c *Controller) { c.validator = v }
}

// WithSampler sets the per-request draw used by the router.
func WithSampler(s router.Sampler) Option {
	return func(c *Controller) { c.router = router.New(s) }
}

// WithEventSink sends lifecycle events to s, typically the journal.
func WithEventSink(s EventSink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithTracer wraps each control operation in a span.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// #endregion options

// #region controller
// Controller owns the engine slot, the migration state and its metrics.
type Controller struct {
	mu      sync.Mutex // serializes control-plane writers
	slot    *slot.Slot
	ctrl    atomic.Pointer[controlState]
	metrics Aggregator

	router    *router.Router
	validator Validator
	sink      EventSink
	tracer    *telemetry.Tracer
	logger    *slog.Logger

	next  Config // applied by the next StartMigration; guarded by mu
	epoch uint64 // bumped by rollback to abort an in-flight validation; guarded by mu
}

// New returns a controller serving active, idle with nothing staged.
func New(active engine.Engine, cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("migration config: %w", err)
	}
	s, err := slot.New(active)
	if err != nil {
		return nil, fmt.Errorf("active engine: %w", err)
	}

	c := &Controller{
		slot:   s,
		next:   cfg.clone(),
		logger: slog.Default().With("component", "migration"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.router == nil {
		c.router = router.New(nil)
	}
	if c.validator == nil {
		c.validator = validation.New(validation.DefaultConfig(), nil)
	}
	if c.tracer == nil {
		c.tracer = telemetry.NewTracer(c.logger, false)
	}
	c.ctrl.Store(&controlState{state: State{Kind: Idle}, cfg: c.next.clone()})
	return c, nil
}

// Config returns the configuration the next migration will use.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next.clone()
}

// SetConfig replaces the configuration for future migrations. A migration
// already running keeps the configuration it started with.
func (c *Controller) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("migration config: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = cfg.clone()
	return nil
}

// #endregion controller

// #region stage
// Stage installs candidate and validates it. On success it returns the
// candidate identity. On validation failure the candidate stays staged with
// ValidationFailed so the report can be inspected, and the returned error is
// a *ValidationError.
func (c *Controller) Stage(ctx context.Context, candidate engine.Engine) (identity string, err error) {
	identity = engine.Identity(candidate)
	ctx, span := c.tracer.Start(ctx, "stage", attribute.String("candidate", identity))
	defer func() { c.tracer.End(span, err) }()

	if candidate == nil {
		return "", fmt.Errorf("stage: %w", slot.ErrNilEngine)
	}

	c.mu.Lock()
	cur := *c.ctrl.Load()
	if cur.staging.occupied() {
		c.mu.Unlock()
		c.logger.Warn("stage refused", "candidate", identity, "staging", cur.staging.String())
		return "", ErrStagingInProgress
	}
	if cur.staging == ValidationFailed {
		c.slot.ClearCandidate()
	}
	if err := c.slot.Stage(candidate); err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("stage: %w", err)
	}
	cur.staging = Staging
	cur.report = nil
	c.publish(cur)

	epoch := c.epoch
	active := c.slot.ReadActive()
	cur.staging = ValidationInProgress
	c.publish(cur)
	c.mu.Unlock()

	report := c.validator.Validate(ctx, validation.Subject{Candidate: candidate, Reference: active})

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Warn("staging aborted by rollback", "candidate", identity)
		return "", ErrStagingAborted
	}
	next := *c.ctrl.Load()
	from := next.state
	next.report = report
	var ev Event
	if report.Success() {
		next.staging = ValidationPassed
		if next.state.IsTerminal() {
			c.moveLocked(&next, State{Kind: Idle})
		} else {
			c.publish(next)
		}
		ev = c.event(EventStaged, next, from, identity, strings.Join(report.Warnings, "; "))
	} else {
		next.staging = ValidationFailed
		c.publish(next)
		ev = c.event(EventStageRejected, next, from, identity, strings.Join(report.Errors, "; "))
	}
	c.mu.Unlock()
	c.record(ctx, ev)

	if !report.Success() {
		return "", &ValidationError{Report: report}
	}
	return identity, nil
}

// #endregion stage

// #region start
// StartMigration enters ShadowMode with the staged, validated candidate and
// returns a fresh migration ID.
func (c *Controller) StartMigration(ctx context.Context) (id string, err error) {
	ctx, span := c.tracer.Start(ctx, "start")
	defer func() { c.tracer.End(span, err, attribute.String("migration_id", id)) }()

	c.mu.Lock()
	cur := *c.ctrl.Load()
	if cur.staging != ValidationPassed && cur.staging != Ready {
		c.mu.Unlock()
		c.logger.Warn("start refused", "staging", cur.staging.String())
		return "", ErrNotReadyForMigration
	}
	if cur.state.Kind != Idle {
		c.mu.Unlock()
		c.logger.Warn("start refused", "state", cur.state.String())
		return "", ErrMigrationInProgress
	}

	c.metrics.Reset()
	from := cur.state
	cur.cfg = c.next.clone()
	cur.migrationID = uuid.NewString()
	cur.staging = Ready
	c.moveLocked(&cur, State{Kind: ShadowMode, Percentage: cur.cfg.ShadowRate})
	ev := c.event(EventStarted, cur, from, engine.Identity(c.slot.ReadCandidate()), "")
	c.mu.Unlock()

	c.record(ctx, ev)
	return cur.migrationID, nil
}

// #endregion start

// #region advance
// AdvanceMigration moves the migration one step: shadow to the first ramp
// step, one ramp step up, or finalize. An error rate above the configured
// maximum rolls back instead. In ShadowMode before enough samples have been
// collected it returns the unchanged state and ErrAdvanceDeferred.
func (c *Controller) AdvanceMigration(ctx context.Context) (st State, err error) {
	ctx, span := c.tracer.Start(ctx, "advance")
	defer func() { c.tracer.End(span, err, attribute.String("state", st.String())) }()

	var events []Event
	c.mu.Lock()
	cur := *c.ctrl.Load()
	switch cur.state.Kind {
	case ShadowMode:
		st, events, err = c.advanceShadowLocked(cur)
	case GradualMigration:
		st, events, err = c.advanceGradualLocked(cur)
	default:
		st, err = cur.state, fmt.Errorf("%w: cannot advance from %s", ErrInvalidState, cur.state)
	}
	c.mu.Unlock()

	c.record(ctx, events...)
	return st, err
}

func (c *Controller) advanceShadowLocked(cur controlState) (State, []Event, error) {
	n := c.metrics.ShadowSampleCount()
	if n < cur.cfg.ShadowSampleThreshold {
		c.logger.Debug("advance deferred", "samples", n, "threshold", cur.cfg.ShadowSampleThreshold)
		return cur.state, nil, fmt.Errorf("%w: %d of %d shadow samples", ErrAdvanceDeferred, n, cur.cfg.ShadowSampleThreshold)
	}
	if rate := c.metrics.ShadowErrorRate(); rate > cur.cfg.MaxErrorRate {
		return c.rollbackLocked(cur, fmt.Sprintf("shadow error rate %.4f exceeds %.4f", rate, cur.cfg.MaxErrorRate))
	}

	from := cur.state
	c.moveLocked(&cur, State{Kind: GradualMigration, Percentage: cur.cfg.RampSteps[0]})
	ev := c.event(EventAdvanced, cur, from, engine.Identity(c.slot.ReadCandidate()), "")
	return cur.state, []Event{ev}, nil
}

func (c *Controller) advanceGradualLocked(cur controlState) (State, []Event, error) {
	rate := c.metrics.MigrationErrorRate()
	telemetry.RecordErrorRate(rate)
	if rate > cur.cfg.MaxErrorRate {
		return c.rollbackLocked(cur, fmt.Sprintf("migration error rate %.4f exceeds %.4f", rate, cur.cfg.MaxErrorRate))
	}

	step, ok := cur.cfg.nextStep(cur.state.Percentage)
	if !ok || step >= 1.0 {
		return c.finalizeLocked(cur)
	}

	from := cur.state
	c.moveLocked(&cur, State{Kind: GradualMigration, Percentage: step})
	ev := c.event(EventAdvanced, cur, from, engine.Identity(c.slot.ReadCandidate()), "")
	return cur.state, []Event{ev}, nil
}

// finalizeLocked promotes the candidate. Reaching it with no candidate is an
// invariant violation and parks the controller in Failed.
func (c *Controller) finalizeLocked(cur controlState) (State, []Event, error) {
	from := cur.state
	candidate := engine.Identity(c.slot.ReadCandidate())
	c.moveLocked(&cur, State{Kind: Finalizing})

	previous, err := c.slot.Finalize()
	cur.staging = NotStaged
	cur.report = nil
	if err != nil {
		c.moveLocked(&cur, State{Kind: Failed})
		c.logger.Error("finalize without a staged candidate", "migration_id", cur.migrationID)
		ev := c.event(EventFailed, cur, from, candidate, err.Error())
		return cur.state, []Event{ev}, fmt.Errorf("%w: finalize: %w", ErrInvalidState, err)
	}

	c.moveLocked(&cur, State{Kind: Complete})
	ev := c.event(EventFinalized, cur, from, candidate, "replaced "+engine.Identity(previous))
	return cur.state, []Event{ev}, nil
}

// #endregion advance

// #region rollback
// RollbackMigration discards any staged candidate and returns
// RollbackComplete. It is safe from every state, including Idle, and an
// in-flight Stage observing it returns ErrStagingAborted.
func (c *Controller) RollbackMigration(ctx context.Context) (State, error) {
	ctx, span := c.tracer.Start(ctx, "rollback")

	c.mu.Lock()
	st, events, _ := c.rollbackLocked(*c.ctrl.Load(), "requested")
	c.mu.Unlock()

	c.record(ctx, events...)
	c.tracer.End(span, nil, attribute.String("state", st.String()))
	return st, nil
}

func (c *Controller) rollbackLocked(cur controlState, reason string) (State, []Event, error) {
	from := cur.state
	candidate := engine.Identity(c.slot.ReadCandidate())
	c.moveLocked(&cur, State{Kind: RollingBack})

	c.slot.ClearCandidate()
	c.epoch++
	cur.staging = NotStaged
	cur.report = nil
	c.moveLocked(&cur, State{Kind: RollbackComplete})

	ev := c.event(EventRolledBack, cur, from, candidate, reason)
	return cur.state, []Event{ev}, nil
}

// #endregion rollback

// #region helpers
func (c *Controller) publish(cs controlState) {
	c.ctrl.Store(&cs)
}

// moveLocked publishes cur with its state replaced by to.
func (c *Controller) moveLocked(cur *controlState, to State) {
	from := cur.state
	if !CanTransition(from.Kind, to.Kind) {
		c.logger.Error("illegal state transition", "from", from.String(), "to", to.String())
	}
	cur.state = to
	c.publish(*cur)
	telemetry.RecordTransition(from.Kind.String(), to.Kind.String(), servedShare(to))
}

// servedShare is the fraction of traffic the candidate serves in s.
func servedShare(s State) float64 {
	switch s.Kind {
	case GradualMigration:
		return s.Percentage
	case Complete:
		return 1
	}
	return 0
}

func (c *Controller) event(t EventType, cs controlState, from State, candidate, detail string) Event {
	return Event{
		Type:        t,
		MigrationID: cs.migrationID,
		From:        from,
		To:          cs.state,
		Candidate:   candidate,
		Active:      engine.Identity(c.slot.ReadActive()),
		Metrics:     c.metrics.Snapshot(),
		Detail:      detail,
		At:          time.Now().UTC(),
	}
}

// record logs events and hands them to the sink. Called without c.mu held.
func (c *Controller) record(ctx context.Context, events ...Event) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		c.logger.Info("migration event",
			"event", string(ev.Type),
			"migration_id", ev.MigrationID,
			"from", ev.From.String(),
			"to", ev.To.String(),
			"candidate", ev.Candidate,
			"active", ev.Active,
		)
		if c.sink == nil {
			continue
		}
		if err := c.sink.Record(ctx, ev); err != nil {
			c.logger.Warn("event not recorded", "event", string(ev.Type), "error", err)
		}
	}
}

// #endregion helpers
