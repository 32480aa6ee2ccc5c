package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newScanCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Compute the scene and report close approaches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatTable && format != formatJSON {
				return fmt.Errorf("unknown format %q (want %s or %s)", format, formatTable, formatJSON)
			}
			return runScan(cmd.Context(), a, cmd.OutOrStdout(), format, output)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatTable, "output format (table or json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to this file instead of stdout")
	return cmd
}

func runScan(ctx context.Context, a *app, stdout io.Writer, format, output string) error {
	sc, err := computeScene(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}

	out := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		out = f
	}

	if format == formatJSON {
		return writeScanJSON(out, sc)
	}
	return writeScanTable(out, sc)
}

func writeScanJSON(w io.Writer, sc *scene.Scene) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sc.Summarize()); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func km(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func writeScanTable(w io.Writer, sc *scene.Scene) error {
	sum := sc.Summarize()

	fmt.Fprintf(w, "%s\n", sum.Title)
	fmt.Fprintf(w, "window %s + %d x %s, frame %s, threshold %s km\n\n",
		sum.Start.UTC().Format(time.RFC3339), sum.Samples, sc.Grid.Step, sum.Frame, km(sum.ThresholdKm))

	objects := newTable("", "NORAD", "Name", "Epoch", "Color")
	for _, o := range sum.Objects {
		objects.Row(o.Label(), strconv.Itoa(o.NORADID), o.Name, o.Epoch.UTC().Format(time.RFC3339), o.Color)
	}
	fmt.Fprintln(w, objects.Render())

	if len(sum.Events) == 0 {
		fmt.Fprintf(w, "\nno close approaches below %s km\n", km(sum.ThresholdKm))
	} else {
		events := newTable("Time", "Sample", "A", "B", "Distance (km)")
		for _, e := range sum.Events {
			events.Row(
				e.Time.UTC().Format(time.RFC3339),
				strconv.Itoa(e.T),
				sum.Objects[e.I].Label(),
				sum.Objects[e.J].Label(),
				km(e.DistanceKm),
			)
		}
		fmt.Fprintf(w, "\n%d close approaches\n", len(sum.Events))
		fmt.Fprintln(w, events.Render())
	}

	if len(sum.Approaches) > 0 {
		closest := newTable("A", "B", "Closest (km)", "At")
		for _, ap := range sum.Approaches {
			closest.Row(
				sum.Objects[ap.I].Label(),
				sum.Objects[ap.J].Label(),
				km(ap.DistanceKm),
				sc.Grid.Times[ap.T].UTC().Format(time.RFC3339),
			)
		}
		fmt.Fprintln(w, "\nclosest approach per pair")
		fmt.Fprintln(w, closest.Render())
	}
	return nil
}
