package migration

import (
	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

// StatusSnapshot is a point-in-time view for observers. The control fields
// come from one published state, but the engine identities are read
// separately, so the two halves may straddle a transition.
type StatusSnapshot struct {
	ActiveIdentity string
	StagedIdentity string // empty when nothing is staged
	Staging        StagingStatus
	State          State
	Report         *validation.Report
	MigrationID    string
	Metrics        MetricsSnapshot
	Config         Config
}

// Status never blocks on control-plane operations.
func (c *Controller) Status() StatusSnapshot {
	cur := c.ctrl.Load()
	active, candidate := c.slot.Read()
	return StatusSnapshot{
		ActiveIdentity: engine.Identity(active),
		StagedIdentity: engine.Identity(candidate),
		Staging:        cur.staging,
		State:          cur.state,
		Report:         cur.report,
		MigrationID:    cur.migrationID,
		Metrics:        c.metrics.Snapshot(),
		Config:         cur.cfg.clone(),
	}
}
