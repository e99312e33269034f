// Package driver advances migrations on a fixed interval.
package driver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// Controller is the part of migration.Controller the driver uses.
type Controller interface {
	AdvanceMigration(ctx context.Context) (migration.State, error)
	Status() migration.StatusSnapshot
}

// Driver calls AdvanceMigration every interval while a migration runs.
// ErrAdvanceDeferred is treated as "try again next tick".
type Driver struct {
	ctrl     Controller
	interval time.Duration
	logger   *slog.Logger
}

// New returns a driver for ctrl. A non-positive interval means one second
// and a nil logger uses the default logger.
func New(ctrl Controller, interval time.Duration, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default().With("component", "driver")
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Driver{ctrl: ctrl, interval: interval, logger: logger}
}

// Run drives the current migration to a terminal state. It returns the
// terminal state, or the first error other than ErrAdvanceDeferred, or the
// context error.
func (d *Driver) Run(ctx context.Context) (migration.State, error) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	last := d.ctrl.Status().State
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}

		st, err := d.ctrl.AdvanceMigration(ctx)
		last = st
		switch {
		case errors.Is(err, migration.ErrAdvanceDeferred):
			continue
		case err != nil:
			return st, err
		case st.IsTerminal():
			return st, nil
		}
	}
}

// Watch runs until ctx is done, advancing whichever migration is in flight
// at each tick and idling otherwise.
func (d *Driver) Watch(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !d.ctrl.Status().State.IsMigrating() {
			continue
		}
		st, err := d.ctrl.AdvanceMigration(ctx)
		switch {
		case errors.Is(err, migration.ErrAdvanceDeferred):
			d.logger.Debug("advance deferred", "error", err)
		case err != nil:
			d.logger.Warn("advance failed", "state", st.String(), "error", err)
		default:
			d.logger.Debug("advanced", "state", st.String())
		}
	}
}
