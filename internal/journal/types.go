package journal

import (
	"time"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// #region entry
// Entry is one row of migration_events.
type Entry struct {
	ID          int64
	EventID     string
	MigrationID string
	Type        migration.EventType
	From        string
	To          string
	Candidate   string
	Active      string
	Metrics     migration.MetricsSnapshot
	Detail      string
	CreatedAt   time.Time
}

// #endregion entry

// #region migration-record
// Outcome is how a migration ended. Empty while it is running.
type Outcome string

const (
	OutcomeComplete   Outcome = "complete"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeFailed     Outcome = "failed"
)

// MigrationRecord summarises one StartMigration cycle.
type MigrationRecord struct {
	MigrationID    string
	Candidate      string
	PreviousActive string
	StartedAt      time.Time
	EndedAt        time.Time // zero while running
	Outcome        Outcome
}

// #endregion migration-record

// #region lineage
// LineageRecord is one engine that has been active, linked to the engine
// it replaced.
type LineageRecord struct {
	Identity    string
	Parent      string
	MigrationID string
	ActivatedAt time.Time
}

// #endregion lineage
