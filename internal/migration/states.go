package migration

import (
	"fmt"

	"github.com/chimera-pool/chimera-pool-core/internal/router"
)

// #region staging-status
// StagingStatus tracks the one staging attempt that may be outstanding.
type StagingStatus int

const (
	NotStaged StagingStatus = iota
	Staging
	ValidationInProgress
	ValidationPassed
	ValidationFailed
	Ready
)

var stagingNames = map[StagingStatus]string{
	NotStaged:            "not_staged",
	Staging:              "staging",
	ValidationInProgress: "validation_in_progress",
	ValidationPassed:     "validation_passed",
	ValidationFailed:     "validation_failed",
	Ready:                "ready",
}

func (s StagingStatus) String() string {
	if name, ok := stagingNames[s]; ok {
		return name
	}
	return fmt.Sprintf("staging_status(%d)", int(s))
}

// occupied reports whether a new stage must be refused.
func (s StagingStatus) occupied() bool {
	switch s {
	case Staging, ValidationInProgress, ValidationPassed, Ready:
		return true
	}
	return false
}

// #endregion staging-status

// #region kind
// Kind is a migration phase.
type Kind int

const (
	Idle Kind = iota
	ShadowMode
	GradualMigration
	Finalizing
	Complete
	RollingBack
	RollbackComplete
	Failed
)

var kindNames = map[Kind]string{
	Idle:             "idle",
	ShadowMode:       "shadow_mode",
	GradualMigration: "gradual_migration",
	Finalizing:       "finalizing",
	Complete:         "complete",
	RollingBack:      "rolling_back",
	RollbackComplete: "rollback_complete",
	Failed:           "failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return Idle, false
}

// #endregion kind

// #region state
// State is a phase plus, for shadow and gradual phases, a percentage in
// [0, 1]. In ShadowMode the percentage is the probing rate; in
// GradualMigration it is the share of traffic served by the candidate.
type State struct {
	Kind       Kind
	Percentage float64
}

func (s State) String() string {
	switch s.Kind {
	case ShadowMode, GradualMigration:
		return fmt.Sprintf("%s(%.2f)", s.Kind, s.Percentage)
	}
	return s.Kind.String()
}

// IsTerminal reports whether leaving the state needs a fresh stage.
func (s State) IsTerminal() bool {
	switch s.Kind {
	case Complete, RollbackComplete, Failed:
		return true
	}
	return false
}

// IsMigrating reports whether traffic may currently reach the candidate.
func (s State) IsMigrating() bool {
	return s.Kind == ShadowMode || s.Kind == GradualMigration
}

func (s State) routing() (router.Mode, float64) {
	switch s.Kind {
	case ShadowMode:
		return router.Shadow, s.Percentage
	case GradualMigration:
		return router.Gradual, s.Percentage
	}
	return router.Passthrough, 0
}

// #endregion state

// #region transitions
// transitions lists the legal phase changes. RollingBack is reachable from
// every phase because rollback always succeeds.
var transitions = map[Kind][]Kind{
	Idle:             {ShadowMode, RollingBack},
	ShadowMode:       {GradualMigration, RollingBack},
	GradualMigration: {GradualMigration, Finalizing, RollingBack},
	Finalizing:       {Complete, Failed},
	Complete:         {Idle, RollingBack},
	RollingBack:      {RollbackComplete},
	RollbackComplete: {Idle, RollingBack},
	Failed:           {Idle, RollingBack},
}

// CanTransition reports whether from -> to is a legal phase change.
func CanTransition(from, to Kind) bool {
	for _, k := range transitions[from] {
		if k == to {
			return true
		}
	}
	return false
}

// #endregion transitions
