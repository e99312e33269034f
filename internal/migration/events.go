package migration

import (
	"context"
	"time"
)

// EventType names a control-plane event.
type EventType string

const (
	EventStaged        EventType = "staged"
	EventStageRejected EventType = "stage_rejected"
	EventStarted       EventType = "started"
	EventAdvanced      EventType = "advanced"
	EventFinalized     EventType = "finalized"
	EventRolledBack    EventType = "rolled_back"
	EventFailed        EventType = "failed"
)

// Event describes one control-plane step, emitted after the step has
// taken effect.
type Event struct {
	Type        EventType
	MigrationID string
	From        State
	To          State
	Candidate   string
	Active      string
	Metrics     MetricsSnapshot
	Detail      string
	At          time.Time
}

// EventSink receives events. Errors are logged and never fail the operation.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}
