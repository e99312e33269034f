package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/chimera-pool/chimera-pool-core/internal/journal"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to hotswap.db")
	last := flag.Int("last", 20, "show N most recent migrations")
	migrationID := flag.String("migration", "", "show the event trail of one migration")
	lineage := flag.Bool("lineage", false, "show the chain of engines that have been active")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/hotswap.db [--last N] [--migration id] [--lineage] [--json]")
		os.Exit(2)
	}
	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}

	j, err := journal.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	ctx := context.Background()
	switch {
	case *lineage:
		err = runLineageMode(ctx, os.Stdout, j, *jsonOut)
	case *migrationID != "":
		err = runDetailMode(ctx, os.Stdout, j, *migrationID, *jsonOut)
	default:
		err = runListMode(ctx, os.Stdout, j, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	MigrationID    string `json:"migration_id"`
	Candidate      string `json:"candidate"`
	PreviousActive string `json:"previous_active"`
	Outcome        string `json:"outcome"`
	StartedAt      string `json:"started_at"`
	Duration       string `json:"duration,omitempty"`
}

func runListMode(ctx context.Context, w io.Writer, j *journal.Journal, last int, jsonOut bool) error {
	migrations, err := j.Migrations(ctx, last)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		fmt.Fprintln(os.Stderr, "no migrations recorded")
		return nil
	}

	rows := make([]listRow, len(migrations))
	for i, m := range migrations {
		r := listRow{
			MigrationID:    m.MigrationID,
			Candidate:      m.Candidate,
			PreviousActive: m.PreviousActive,
			Outcome:        string(m.Outcome),
			StartedAt:      m.StartedAt.Format(time.RFC3339),
		}
		if r.Outcome == "" {
			r.Outcome = "running"
		}
		if !m.EndedAt.IsZero() {
			r.Duration = m.EndedAt.Sub(m.StartedAt).Round(time.Millisecond).String()
		}
		// journal returns newest first; print chronologically
		rows[len(migrations)-1-i] = r
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Migration", "Candidate", "Replacing", "Outcome", "Started", "Took"})
	for _, r := range rows {
		t.AppendRow(table.Row{shortID(r.MigrationID), r.Candidate, r.PreviousActive, r.Outcome, r.StartedAt, dash(r.Duration)})
	}
	t.Render()

	if active, err := j.CurrentActive(ctx); err == nil {
		fmt.Fprintf(w, "\nActive engine: %s\n", active)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type eventRow struct {
	Type      string  `json:"type"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Active    string  `json:"active"`
	ErrorRate float64 `json:"error_rate"`
	Detail    string  `json:"detail,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func runDetailMode(ctx context.Context, w io.Writer, j *journal.Journal, migrationID string, jsonOut bool) error {
	entries, err := j.EventsFor(ctx, migrationID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no events for migration %s", migrationID)
	}

	rows := make([]eventRow, len(entries))
	for i, e := range entries {
		rate := e.Metrics.MigrationErrorRate
		if e.From == "" || e.Metrics.MigrationSuccesses+e.Metrics.MigrationErrors == 0 {
			rate = e.Metrics.ShadowErrorRate
		}
		rows[i] = eventRow{
			Type:      string(e.Type),
			From:      e.From,
			To:        e.To,
			Active:    e.Active,
			ErrorRate: rate,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "Migration: %s\n", migrationID)
	fmt.Fprintf(w, "Candidate: %s\n\n", entries[0].Candidate)

	t := newTable(w)
	t.AppendHeader(table.Row{"Event", "From", "To", "Active", "Err Rate", "Detail", "Time"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Type, dash(r.From), r.To, r.Active, fmt.Sprintf("%.4f", r.ErrorRate), dash(r.Detail), r.CreatedAt})
	}
	t.Render()
	return nil
}

// #endregion detail-mode

// #region lineage-mode

func runLineageMode(ctx context.Context, w io.Writer, j *journal.Journal, jsonOut bool) error {
	chain, err := j.Lineage(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, chain)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Engine", "Replaced", "Migration", "Activated"})
	for _, l := range chain {
		t.AppendRow(table.Row{l.Identity, dash(l.Parent), dash(shortID(l.MigrationID)), l.ActivatedAt.Format(time.RFC3339)})
	}
	t.Render()
	return nil
}

// #endregion lineage-mode

// #region output

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// #endregion output
