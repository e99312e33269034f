package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/chimera-pool/chimera-pool-core/internal/journal"
	"github.com/chimera-pool/chimera-pool-core/internal/logging"
	"github.com/chimera-pool/chimera-pool-core/internal/scenario"
)

// #region main

func main() {
	journalPath := flag.String("journal", "", "record replayed events into this hotswap.db")
	verbose := flag.Bool("v", false, "log controller activity")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: replay [--journal path/to/hotswap.db] [-v] fixture.json|fixture.yaml ...")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Init(level, "text", nil)

	opts := scenario.Options{Logger: logging.New("replay")}
	if *journalPath != "" {
		j, err := journal.Open(*journalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
			os.Exit(2)
		}
		defer j.Close()
		opts.Sink = j
	}

	exitCode := 0
	for _, path := range flag.Args() {
		if code := runFixture(path, opts); code > exitCode {
			exitCode = code
		}
	}
	os.Exit(exitCode)
}

// #endregion main

// #region output

func runFixture(path string, opts scenario.Options) int {
	f, err := scenario.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	results, err := scenario.Replay(context.Background(), f, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay %s: %v\n", path, err)
		return 2
	}

	fmt.Printf("== %s\n", path)
	if f.Description != "" {
		fmt.Printf("   %s\n", f.Description)
	}
	fmt.Printf("%-4s| %-14s| %-26s| %-22s| %-10s| %s\n", "#", "Op", "State", "Error", "Requests", "Match")
	fmt.Printf("%-4s+%-15s+%-27s+%-23s+%-11s+%s\n",
		"----", "---------------", "---------------------------", "-----------------------", "-----------", "------")

	for _, r := range results {
		match := "OK"
		if r.Mismatch != "" {
			match = "DIFF " + r.Mismatch
		}
		reqs := "-"
		if r.Requests > 0 {
			reqs = fmt.Sprintf("%d/%d", r.Requests-r.Failed, r.Requests)
		}
		fmt.Printf("%-4d| %-14s| %-26s| %-22s| %-10s| %s\n", r.Index, r.Op, r.State, r.Error, reqs, match)
	}

	s := scenario.Summarize(results)
	fmt.Printf("\nSummary: %d steps, %d diverge, %d requests (%d failed), final %s on %s\n\n",
		s.TotalSteps, s.Mismatches, s.Requests, s.Failed, s.FinalState, s.FinalActive)

	if s.Mismatches > 0 {
		return 1
	}
	return 0
}

// #endregion output
