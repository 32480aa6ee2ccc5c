// Command diag parses a local TLE file and propagates the first few entries
// at a single instant, printing their radius. Errors go to the JSON log on
// stderr; stdout carries only the report.
//
//	diag active.tle [2024-04-10T00:00:00Z]
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/propagation"
	"github.com/rahulsinghu/AstralCleanser/internal/tle"
)

const sampleCount = 5

var errUsage = errors.New("usage: diag <catalog.tle> [RFC3339 time]")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("diag failed", "error", err)
		os.Exit(1)
	}
}

// run writes the report to w. Per-object failures are logged and counted;
// only an unreadable catalog or a bad time argument is an error.
func run(args []string, w io.Writer, logger *slog.Logger) error {
	if len(args) < 1 {
		return errUsage
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	entries, err := tle.Parse(f, logger)
	f.Close()
	if err != nil {
		return err
	}

	cat := tle.NewCatalog("file", time.Now(), entries)
	fmt.Fprintf(w, "Loaded %d TLE entries\n", len(entries))
	if len(entries) == 0 {
		return nil
	}
	fmt.Fprintf(w, "Epoch range: %s .. %s\n",
		cat.EpochRange.Min.Format(time.RFC3339), cat.EpochRange.Max.Format(time.RFC3339))

	at := cat.EpochRange.Max
	if len(args) > 1 {
		at, err = time.Parse(time.RFC3339, args[1])
		if err != nil {
			return fmt.Errorf("parsing time: %w", err)
		}
	}
	fmt.Fprintf(w, "Propagating at: %s\n", at.UTC().Format(time.RFC3339))

	n := min(sampleCount, len(entries))
	failed := 0
	for _, e := range entries[:n] {
		p, err := propagation.NewSGP4Propagator(e.Line1, e.Line2, e.NORADID, config.GravityWGS72)
		if err != nil {
			logger.Error("creating propagator", "norad_id", e.NORADID, "error", err)
			failed++
			continue
		}
		state, err := p.PropagateAt(at)
		if err != nil {
			logger.Error("propagating", "norad_id", p.NORADID(), "error", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "  NORAD %d %-24s r=%.1f km age=%.1fh\n",
			e.NORADID, e.Name, r3.Norm(state.Position), at.Sub(e.Epoch).Hours())
	}
	fmt.Fprintf(w, "\n%d of %d propagated\n", n-failed, n)
	return nil
}
