package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahulsinghu/AstralCleanser/internal/api"
	"github.com/rahulsinghu/AstralCleanser/internal/auth"
	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/render/htmlscene"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
	"github.com/rahulsinghu/AstralCleanser/internal/stream"
	"github.com/rahulsinghu/AstralCleanser/web"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve browser playback, the scene API and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}
	addRenderFlags(cmd)
	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Duration("refresh", 0, "recompute the scene at this interval (0 computes it once)")
	f.Bool("trust-proxy", false, "take client IPs from X-Forwarded-For")

	keys := map[string]string{
		"serve.addr":             "addr",
		"serve.refresh_interval": "refresh",
		"serve.trust_proxy":      "trust-proxy",
	}
	for k, v := range renderKeys {
		keys[k] = v
	}
	a.bindLocal(cmd, keys)
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	store := scene.NewStore()
	compute := func(ctx context.Context) (*scene.Scene, error) {
		return computeScene(ctx, cfg, logger)
	}

	streamHandler := stream.NewHandler(store, stream.Config{
		MaxConcurrentPerIP: cfg.Serve.MaxConcurrentPerIP,
		KeepaliveInterval:  cfg.Serve.KeepaliveInterval,
		Interval:           cfg.Render.Interval,
		Loop:               cfg.Render.Loop,
		LimitKm:            cfg.Render.LimitKm,
		EarthRadiusKm:      cfg.Render.EarthRadiusKm,
		TrustProxy:         cfg.Serve.TrustProxy,
	}, logger)

	authCfg := auth.Config{Token: cfg.Serve.AuthToken}
	srv := api.NewServer(cfg.Serve.Addr, logger, api.Deps{
		Auth:    authCfg,
		Store:   store,
		Stream:  streamHandler,
		Compute: compute,
		Chart:   htmlscene.Options{LimitKm: cfg.Render.LimitKm, EarthRadiusKm: cfg.Render.EarthRadiusKm},
		Web:     web.Content,
	})

	go refreshLoop(ctx, a, store, compute)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.Serve.Addr,
			"auth_enabled", authCfg.Enabled(),
			"refresh_interval", cfg.Serve.RefreshInterval.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// refreshLoop computes the first scene, then recomputes it every
// serve.refresh_interval and keeps the scene age gauge current.
func refreshLoop(ctx context.Context, a *app, store *scene.Store, compute scene.ComputeFunc) {
	logger := a.logger
	refresh := func() {
		if _, err := store.Refresh(ctx, compute); err != nil && ctx.Err() == nil {
			logger.Error("scene computation failed", "error", err)
		}
	}
	refresh()

	var tick <-chan time.Time
	if d := a.cfg.Serve.RefreshInterval; d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		tick = t.C
	}

	age := time.NewTicker(10 * time.Second)
	defer age.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			refresh()
		case now := <-age.C:
			if s := store.AgeSeconds(now); s >= 0 {
				metrics.SetSceneAge(s)
			}
		}
	}
}
