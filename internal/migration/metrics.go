package migration

import "sync/atomic"

// #region aggregator
// Aggregator counts candidate outcomes. Each counter is independently
// atomic; a Snapshot is consistent per counter, not across counters.
type Aggregator struct {
	shadowOK   atomic.Uint64
	shadowErr  atomic.Uint64
	gradualOK  atomic.Uint64
	gradualErr atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the counters and derived rates.
type MetricsSnapshot struct {
	ShadowSuccesses    uint64  `json:"shadow_successes"`
	ShadowErrors       uint64  `json:"shadow_errors"`
	MigrationSuccesses uint64  `json:"migration_successes"`
	MigrationErrors    uint64  `json:"migration_errors"`
	ShadowErrorRate    float64 `json:"shadow_error_rate"`
	MigrationErrorRate float64 `json:"migration_error_rate"`
}

// RecordShadow counts one shadow comparison.
func (a *Aggregator) RecordShadow(success bool) {
	if success {
		a.shadowOK.Add(1)
	} else {
		a.shadowErr.Add(1)
	}
}

// RecordMigration counts one request the candidate served.
func (a *Aggregator) RecordMigration(success bool) {
	if success {
		a.gradualOK.Add(1)
	} else {
		a.gradualErr.Add(1)
	}
}

// ShadowSampleCount is the number of shadow comparisons since Reset.
func (a *Aggregator) ShadowSampleCount() uint64 {
	return a.shadowOK.Load() + a.shadowErr.Load()
}

// ShadowErrorRate is failures over shadow samples, 0 with no samples.
func (a *Aggregator) ShadowErrorRate() float64 {
	return rate(a.shadowOK.Load(), a.shadowErr.Load())
}

// MigrationErrorRate is failures over candidate-served requests, 0 with
// none. It covers the gradual window only.
func (a *Aggregator) MigrationErrorRate() float64 {
	return rate(a.gradualOK.Load(), a.gradualErr.Load())
}

// Reset zeroes every counter. Called once per StartMigration.
func (a *Aggregator) Reset() {
	a.shadowOK.Store(0)
	a.shadowErr.Store(0)
	a.gradualOK.Store(0)
	a.gradualErr.Store(0)
}

// Snapshot copies the counters and derives both rates.
func (a *Aggregator) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		ShadowSuccesses:    a.shadowOK.Load(),
		ShadowErrors:       a.shadowErr.Load(),
		MigrationSuccesses: a.gradualOK.Load(),
		MigrationErrors:    a.gradualErr.Load(),
	}
	s.ShadowErrorRate = rate(s.ShadowSuccesses, s.ShadowErrors)
	s.MigrationErrorRate = rate(s.MigrationSuccesses, s.MigrationErrors)
	return s
}

func rate(ok, failed uint64) float64 {
	total := ok + failed
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// #endregion aggregator
