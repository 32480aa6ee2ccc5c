// Command astral propagates a handful of catalog objects over a time window,
// flags close approaches and plays the scene back in the terminal, as files
// or over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
)

// app is the state shared by every subcommand after the root pre-run.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func() error

	// local flag bindings, applied only for the command that runs
	binds map[*cobra.Command]map[string]string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{v: config.NewViper(), binds: map[*cobra.Command]map[string]string{}}
	err := newRootCmd(a).ExecuteContext(ctx)
	if err != nil {
		logger := a.logger
		if logger == nil {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
		}
		logger.Error("astral failed", "error", err)
	}
	if a.closeLog != nil {
		a.closeLog()
	}
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "astral",
		Short: "Satellite path playback with close-approach flagging",
		Long: `astral loads orbital elements, propagates the first N objects over a
fixed-cadence time grid, flags every (time, pair) closer than a threshold
and plays the result back with trails and close-approach markers.

Running astral without a subcommand is the same as "astral play".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if keys, ok := a.binds[cmd]; ok {
				bindFlags(a.v, cmd, keys)
			}
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), a, cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (json, yaml or toml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-file", "", "write logs to this file instead of stderr")
	pf.String("catalog-file", "", "read elements from a local TLE file instead of fetching")
	pf.String("source-url", "", "catalog URL")
	pf.Int("count", 5, "number of catalog objects to track")
	pf.Float64("threshold", 50, "close-approach threshold in km")
	pf.String("start", "", "window start (RFC 3339)")
	pf.Duration("step", 0, "sample step")
	pf.Int("samples", 0, "number of samples")
	pf.String("frame", "", "output frame (teme or ecef)")
	pf.Int("workers", 0, "propagation workers (0 means one per CPU)")

	bindFlags(a.v, root, map[string]string{
		"log.level":           "log-level",
		"log.file":            "log-file",
		"catalog.file":        "catalog-file",
		"catalog.source_url":  "source-url",
		"selection.count":     "count",
		"scan.threshold_km":   "threshold",
		"window.start":        "start",
		"window.step":         "step",
		"window.samples":      "samples",
		"propagation.frame":   "frame",
		"propagation.workers": "workers",
	})

	root.AddCommand(
		newPlayCmd(a),
		newScanCmd(a),
		newExportCmd(a),
		newServeCmd(a),
	)
	return root
}

// bindLocal records bindings of cmd's own flags. Several commands share
// keys (render.interval), so only the running command's flags are bound.
func (a *app) bindLocal(cmd *cobra.Command, keys map[string]string) {
	a.binds[cmd] = keys
}

// bindFlags binds config keys to persistent or local flags of cmd. Only
// flags set on the command line override the config file and environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			f = cmd.Flags().Lookup(name)
		}
		if f == nil {
			panic(fmt.Sprintf("no flag %q for config key %q", name, key))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closeLog, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog
	return nil
}
