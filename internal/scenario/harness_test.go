package scenario

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// #region fixture-tests

func replayFixture(t *testing.T, name string) []StepResult {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	results, err := Replay(context.Background(), f, Options{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != len(f.Steps) {
		t.Fatalf("expected %d results, got %d", len(f.Steps), len(results))
	}
	for _, r := range results {
		if r.Mismatch != "" {
			t.Errorf("step %d (%s): %s", r.Index, r.Op, r.Mismatch)
		}
	}
	return results
}

func TestFixture_HappyRollout(t *testing.T) {
	results := replayFixture(t, "happy_rollout.json")

	s := Summarize(results)
	if s.FinalState.Kind != migration.Complete {
		t.Errorf("final state = %s, want complete", s.FinalState)
	}
	if s.FinalActive != "sha256d-canary_2.0.0" {
		t.Errorf("final active = %s", s.FinalActive)
	}
	if s.Requests != 230 || s.Failed != 0 {
		t.Errorf("requests = %d failed = %d, want 230 and 0", s.Requests, s.Failed)
	}
}

// A degraded canary must never surface errors to callers: failed candidate
// calls fall back to the active engine.
func TestFixture_CanaryRollback(t *testing.T) {
	results := replayFixture(t, "canary_rollback.yaml")

	s := Summarize(results)
	if s.Failed != 0 {
		t.Errorf("%d requests failed, want 0", s.Failed)
	}
	if s.FinalActive != "sha256d-canary_2.0.1" {
		t.Errorf("final active = %s", s.FinalActive)
	}
}

// #endregion fixture-tests

// #region replay-tests

func TestReplay_ShadowFailureRollsBack(t *testing.T) {
	f := &Fixture{
		Active: "sha256d",
		Config: &migration.Config{
			ShadowSampleThreshold: 10,
			ShadowRate:            1,
			RampSteps:             []float64{0.5, 1},
			MaxErrorRate:          0.05,
		},
		Steps: []Step{
			{Op: OpStage, Engine: "blake2s"},
			{Op: OpStart},
			{Op: OpSetFailRate, FailRate: 1},
			{Op: OpRequests, Count: 10},
			{Op: OpAdvance, Expect: &Expect{Error: "none", State: "rollback_complete", Active: "sha256d_1.0.0"}},
		},
	}
	results, err := Replay(context.Background(), f, Options{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, r := range results {
		if r.Mismatch != "" {
			t.Errorf("step %d (%s): %s", r.Index, r.Op, r.Mismatch)
		}
	}
	if got := results[3].Failed; got != 0 {
		t.Errorf("shadow failures leaked to callers: %d", got)
	}
}

func TestReplay_UnknownEngines(t *testing.T) {
	_, err := Replay(context.Background(), &Fixture{Active: "md5"}, Options{})
	if err == nil {
		t.Fatal("expected error for unknown active engine")
	}

	results, err := Replay(context.Background(), &Fixture{
		Active: "blake2s",
		Steps: []Step{
			{Op: OpStage, Engine: "md5"},
			{Op: OpSetFailRate, FailRate: 1},
			{Op: "explode"},
		},
	}, Options{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := []string{"unknown_engine", "other", "other"}
	for i, w := range want {
		if results[i].Error != w {
			t.Errorf("step %d: error = %s, want %s", i, results[i].Error, w)
		}
	}
}

func TestReplay_RunGivesUp(t *testing.T) {
	f := &Fixture{
		Active: "blake2s",
		Steps: []Step{
			{Op: OpStage, Engine: "sha256d"},
			{Op: OpStart},
			// default threshold is 50 shadow samples; 2 rounds of 5 never reach it
			{Op: OpRun, Count: 5, MaxRounds: 2, Expect: &Expect{Error: "other", State: "shadow_mode"}},
		},
	}
	results, err := Replay(context.Background(), f, Options{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if m := results[2].Mismatch; m != "" {
		t.Error(m)
	}
	if results[2].Requests != 10 {
		t.Errorf("requests = %d, want 10", results[2].Requests)
	}
}

// #endregion replay-tests

// #region helper-tests

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{migration.ErrAdvanceDeferred, "advance_deferred"},
		{fmt.Errorf("wrapped: %w", migration.ErrInvalidState), "invalid_state"},
		{&migration.ValidationError{}, "validation_failed"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalSteps != 0 || s.Mismatches != 0 || s.FinalActive != "" {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}

// #endregion helper-tests
