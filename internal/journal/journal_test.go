package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// #region helpers
func tempJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func ev(typ migration.EventType, id string, from, to migration.Kind, active string, offset int) migration.Event {
	return migration.Event{
		Type:        typ,
		MigrationID: id,
		From:        migration.State{Kind: from},
		To:          migration.State{Kind: to},
		Candidate:   "sha256d_1.0.0",
		Active:      active,
		Metrics:     migration.MetricsSnapshot{ShadowSuccesses: uint64(offset)},
		At:          base.Add(time.Duration(offset) * time.Second),
	}
}

// recordCycle writes a full successful migration from blake2s to sha256d.
func recordCycle(t *testing.T, j *Journal, id string) {
	t.Helper()
	ctx := context.Background()
	events := []migration.Event{
		ev(migration.EventStaged, "", migration.Idle, migration.Idle, "blake2s_1.0.0", 0),
		ev(migration.EventStarted, id, migration.Idle, migration.ShadowMode, "blake2s_1.0.0", 1),
		ev(migration.EventAdvanced, id, migration.ShadowMode, migration.GradualMigration, "blake2s_1.0.0", 2),
		ev(migration.EventFinalized, id, migration.GradualMigration, migration.Complete, "sha256d_1.0.0", 3),
	}
	for _, e := range events {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", e.Type, err)
		}
	}
}

// #endregion helpers

func TestOpenInMemory(t *testing.T) {
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	if _, err := j.CurrentActive(context.Background()); err != ErrNoActive {
		t.Fatalf("expected ErrNoActive, got %v", err)
	}
}

func TestRecordAndEvents(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()
	recordCycle(t, j, "m1")

	all, err := j.Events(ctx, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].Type != migration.EventFinalized {
		t.Fatalf("expected newest first, got %s", all[0].Type)
	}

	limited, err := j.Events(ctx, 2)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 events, got %d", len(limited))
	}

	forM1, err := j.EventsFor(ctx, "m1")
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	got := make([]migration.EventType, len(forM1))
	for i, e := range forM1 {
		got[i] = e.Type
	}
	want := []migration.EventType{migration.EventStarted, migration.EventAdvanced, migration.EventFinalized}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events for m1 (-want +got):\n%s", diff)
	}

	last := forM1[2]
	if last.From != "gradual_migration(0.00)" || last.To != "complete" {
		t.Fatalf("unexpected states: %s -> %s", last.From, last.To)
	}
	if last.Metrics.ShadowSuccesses != 3 {
		t.Fatalf("metrics not round-tripped: %+v", last.Metrics)
	}
	if !last.CreatedAt.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("unexpected created_at %v", last.CreatedAt)
	}
	if last.EventID == "" {
		t.Fatal("expected event id")
	}
}

func TestMigrationSummary(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()
	recordCycle(t, j, "m1")

	if err := j.Record(ctx, ev(migration.EventStaged, "", migration.Complete, migration.Idle, "sha256d_1.0.0", 10)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(ctx, ev(migration.EventStarted, "m2", migration.Idle, migration.ShadowMode, "sha256d_1.0.0", 11)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(ctx, ev(migration.EventRolledBack, "m2", migration.ShadowMode, migration.RollbackComplete, "sha256d_1.0.0", 12)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// a second rollback must not rewrite the outcome
	if err := j.Record(ctx, ev(migration.EventRolledBack, "m1", migration.RollbackComplete, migration.RollbackComplete, "sha256d_1.0.0", 13)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := j.Migrations(ctx, 0)
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	want := []MigrationRecord{
		{MigrationID: "m2", Candidate: "sha256d_1.0.0", PreviousActive: "sha256d_1.0.0",
			StartedAt: base.Add(11 * time.Second), EndedAt: base.Add(12 * time.Second), Outcome: OutcomeRolledBack},
		{MigrationID: "m1", Candidate: "sha256d_1.0.0", PreviousActive: "blake2s_1.0.0",
			StartedAt: base.Add(1 * time.Second), EndedAt: base.Add(3 * time.Second), Outcome: OutcomeComplete},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Fatalf("migrations (-want +got):\n%s", diff)
	}
}

func TestLineageFollowsFinalize(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()
	recordCycle(t, j, "m1")

	active, err := j.CurrentActive(ctx)
	if err != nil {
		t.Fatalf("CurrentActive: %v", err)
	}
	if active != "sha256d_1.0.0" {
		t.Fatalf("expected sha256d active, got %s", active)
	}

	lineage, err := j.Lineage(ctx)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if len(lineage) != 2 {
		t.Fatalf("expected 2 lineage records, got %d", len(lineage))
	}
	if lineage[0].Identity != "sha256d_1.0.0" || lineage[0].Parent != "blake2s_1.0.0" || lineage[0].MigrationID != "m1" {
		t.Fatalf("unexpected head: %+v", lineage[0])
	}
	if lineage[1].Identity != "blake2s_1.0.0" || lineage[1].Parent != "" {
		t.Fatalf("unexpected root: %+v", lineage[1])
	}
}

func TestRollbackWithoutMigration(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()

	e := ev(migration.EventRolledBack, "", migration.Idle, migration.RollbackComplete, "blake2s_1.0.0", 0)
	e.Candidate = ""
	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	all, err := j.Events(ctx, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 1 || all[0].MigrationID != "" || all[0].Candidate != "" {
		t.Fatalf("unexpected events: %+v", all)
	}
	migrations, err := j.Migrations(ctx, 0)
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Fatalf("expected no migrations, got %d", len(migrations))
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recordCycle(t, j, "m1")
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	all, err := j.Events(context.Background(), 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events after reopen, got %d", len(all))
	}
}

// A process restarted on a different engine must not inherit the previous
// run's active pointer as the parent of its next migration.
func TestRestartOnDifferentEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Record(ctx, ev(migration.EventStaged, "", migration.Idle, migration.Idle, "blake2s_1.0.0", 0)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()

	for _, e := range []migration.Event{
		ev(migration.EventStarted, "m2", migration.Idle, migration.ShadowMode, "scrypt_1.0.0", 1),
		ev(migration.EventFinalized, "m2", migration.GradualMigration, migration.Complete, "sha256d_1.0.0", 2),
	} {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", e.Type, err)
		}
	}

	migrations, err := j.Migrations(ctx, 0)
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(migrations) != 1 || migrations[0].PreviousActive != "scrypt_1.0.0" {
		t.Fatalf("unexpected migrations: %+v", migrations)
	}

	lineage, err := j.Lineage(ctx)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	got := make([][2]string, len(lineage))
	for i, l := range lineage {
		got[i] = [2]string{l.Identity, l.Parent}
	}
	want := [][2]string{{"sha256d_1.0.0", "scrypt_1.0.0"}, {"scrypt_1.0.0", ""}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lineage mismatch (-want +got):\n%s", diff)
	}
}
