package main

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rahulsinghu/AstralCleanser/internal/render/terminal"
)

func newPlayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Animate the scene in the terminal (q, esc or ctrl+c quits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
	addRenderFlags(cmd)
	a.bindLocal(cmd, renderKeys)
	return cmd
}

// addRenderFlags registers the playback flags shared by play and serve.
func addRenderFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("interval", 0, "frame interval")
	f.Bool("loop", true, "restart playback after the last frame")
	f.Float64("azimuth", 0, "camera azimuth in degrees")
	f.Float64("elevation", 0, "camera elevation in degrees")
}

var renderKeys = map[string]string{
	"render.interval":      "interval",
	"render.loop":          "loop",
	"render.azimuth_deg":   "azimuth",
	"render.elevation_deg": "elevation",
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runPlay(ctx context.Context, a *app, out io.Writer) error {
	if !isTerminal(out) {
		return errors.New("play needs an interactive terminal; use scan or export instead")
	}

	sc, err := computeScene(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info("starting terminal player",
		"run_id", sc.RunID.String(),
		"interval_ms", a.cfg.Render.Interval.Milliseconds(),
		"loop", a.cfg.Render.Loop,
	)
	return terminal.Run(ctx, sc, terminal.Options{
		Interval:      a.cfg.Render.Interval,
		Loop:          a.cfg.Render.Loop,
		Camera:        camera(a.cfg.Render),
		EarthRadiusKm: a.cfg.Render.EarthRadiusKm,
	}, tea.WithAltScreen(), tea.WithOutput(out))
}
