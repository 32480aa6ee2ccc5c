package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rahulsinghu/AstralCleanser/internal/render/frames"
	"github.com/rahulsinghu/AstralCleanser/internal/render/htmlscene"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

type exportOptions struct {
	html   string
	pngDir string
	json   string
	every  int
}

func (o exportOptions) empty() bool {
	return o.html == "" && o.pngDir == "" && o.json == ""
}

func newExportCmd(a *app) *cobra.Command {
	var o exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the scene as an HTML page, PNG frames or JSON",
		Example: `  astral export --html scene.html
  astral export --png-dir frames --every 4
  astral export --json scene.json --catalog-file active.tle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.empty() {
				return errors.New("nothing to export: set --html, --png-dir or --json")
			}
			return runExport(cmd.Context(), a, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.html, "html", "", "write a go-echarts page of the final frame to this file")
	f.StringVar(&o.pngDir, "png-dir", "", "write one PNG per frame into this directory")
	f.StringVar(&o.json, "json", "", "write the scene with every sampled position to this file")
	f.IntVar(&o.every, "every", 1, "with --png-dir, write every n-th frame")
	return cmd
}

func runExport(ctx context.Context, a *app, o exportOptions) error {
	sc, err := computeScene(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	return exportScene(ctx, a, sc, o)
}

func exportScene(ctx context.Context, a *app, sc *scene.Scene, o exportOptions) error {
	if o.json != "" {
		if err := writeFile(o.json, sc.WriteJSON); err != nil {
			return err
		}
		a.logger.Info("scene json written", "path", o.json)
	}

	if o.html != "" {
		opts := htmlscene.Options{LimitKm: a.cfg.Render.LimitKm, EarthRadiusKm: a.cfg.Render.EarthRadiusKm}
		err := writeFile(o.html, func(w io.Writer) error {
			return htmlscene.Render(w, sc, opts)
		})
		if err != nil {
			return err
		}
		a.logger.Info("html scene written", "path", o.html)
	}

	if o.pngDir != "" {
		w, err := frames.NewWriter(o.pngDir, frames.Options{
			Camera:        camera(a.cfg.Render),
			EarthRadiusKm: a.cfg.Render.EarthRadiusKm,
			Every:         o.every,
		}, a.logger)
		if err != nil {
			return err
		}
		if _, err := w.WriteAll(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
