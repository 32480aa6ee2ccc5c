package main

import (
	"context"
	"log/slog"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/propagation"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
	"github.com/rahulsinghu/AstralCleanser/internal/tle"
)

func newLoader(cfg config.CatalogConfig, logger *slog.Logger) *tle.Loader {
	lc := tle.LoaderConfig{File: cfg.File, MaxAge: cfg.MaxAge}
	if cfg.File != "" {
		return tle.NewLoader(lc, nil, nil, logger)
	}

	fetcher := tle.NewFetcher(cfg.SourceURL, logger, cfg.ExtraURLs...)
	var cache *tle.Cache
	if cfg.CacheDir != "" {
		cache = tle.NewCache(cfg.CacheDir, cfg.MaxFiles)
	}
	return tle.NewLoader(lc, fetcher, cache, logger)
}

// computeScene loads the catalog, selects the tracked objects and computes
// the scene.
func computeScene(ctx context.Context, cfg config.Config, logger *slog.Logger) (*scene.Scene, error) {
	cat, err := newLoader(cfg.Catalog, logger).Load(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := tle.Select(cat, cfg.Selection.Count, logger)
	if err != nil {
		return nil, err
	}

	source, err := propagation.NewSGP4Source(propagation.Options{
		Workers: cfg.Propagation.Workers,
		Frame:   cfg.Propagation.Frame,
		Gravity: cfg.Propagation.Gravity,
	}, logger)
	if err != nil {
		return nil, err
	}

	return scene.Compute(ctx, cfg, entries, source, logger)
}

func camera(cfg config.RenderConfig) render.Camera {
	return render.NewCamera(cfg.Azimuth, cfg.Elevation, cfg.LimitKm)
}
