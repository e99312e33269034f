package validation

import (
	"time"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
)

// #region kind
// Kind names the report field a check feeds.
type Kind string

const (
	KindCompatibility Kind = "compatibility"
	KindPerformance   Kind = "performance"
	KindSecurity      Kind = "security"
	KindTestVectors   Kind = "test_vectors"
	KindMemory        Kind = "memory"
)

// #endregion kind

// #region severity
// Severity decides whether a failed check blocks staging.
type Severity int

const (
	Blocking Severity = iota // failure goes to Errors
	Advisory                 // failure goes to Warnings
)

func (s Severity) String() string {
	if s == Advisory {
		return "advisory"
	}
	return "blocking"
}

// #endregion severity

// #region subject
// Subject is what a check exercises: the candidate, plus the engine it would
// replace when one is known.
type Subject struct {
	Candidate engine.Engine
	Reference engine.Engine
}

// #endregion subject

// #region result
// Result captures a single check outcome.
type Result struct {
	Kind     Kind
	Severity Severity
	Pass     bool
	Score    float64 // performance only, in [0,1]
	Detail   string  // failure reason, empty on pass
	Duration time.Duration
}

// #endregion result

// #region report
// Report is the immutable outcome of one staging attempt.
type Report struct {
	Compatibility    bool
	PerformanceScore float64
	Security         bool
	TestVectors      bool
	MemoryOK         bool
	Errors           []string
	Warnings         []string
	Checks           []Result
}

// Success holds when every blocking check passed and no error was recorded.
func (r *Report) Success() bool {
	if r == nil {
		return false
	}
	return r.Compatibility && r.Security && r.TestVectors && len(r.Errors) == 0
}

// #endregion report

// #region config
// Config holds the check thresholds.
type Config struct {
	// CheckTimeout bounds each check; a timed-out check fails.
	CheckTimeout time.Duration
	// Parallelism caps concurrent checks. Zero or less runs all at once.
	Parallelism int
	// PerformanceTarget is the hash rate, per second, that scores 1.0.
	PerformanceTarget    float64
	PerformanceWindow    time.Duration
	PerformanceWarnBelow float64
	// MemoryLimitBytes is the allowed heap allocation per hash.
	MemoryLimitBytes uint64
	MemorySamples    int
	Vectors          map[string][]engine.Vector
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		CheckTimeout:         2 * time.Second,
		Parallelism:          0,
		PerformanceTarget:    200,
		PerformanceWindow:    50 * time.Millisecond,
		PerformanceWarnBelow: 0.8,
		MemoryLimitBytes:     16 << 20,
		MemorySamples:        8,
		Vectors:              engine.KnownVectors(),
	}
}

// #endregion config
