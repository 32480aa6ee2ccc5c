package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/tle"
	"github.com/rahulsinghu/AstralCleanser/internal/transform"
)

// Options configures an SGP4Source.
type Options struct {
	Workers int    // <= 0 means runtime.NumCPU()
	Frame   string // config.FrameTEME or config.FrameECEF
	Gravity string // config.GravityWGS72 or config.GravityWGS84
}

// SGP4Source is the go-satellite backed Source.
type SGP4Source struct {
	pool   *WorkerPool
	opts   Options
	logger *slog.Logger
}

// NewSGP4Source creates a Source that propagates entries in parallel.
func NewSGP4Source(opts Options, logger *slog.Logger) (*SGP4Source, error) {
	switch opts.Frame {
	case "":
		opts.Frame = config.FrameTEME
	case config.FrameTEME, config.FrameECEF:
	default:
		return nil, fmt.Errorf("%w: unknown frame %q", config.ErrInvalidConfig, opts.Frame)
	}
	if _, err := gravityModel(opts.Gravity); err != nil {
		return nil, err
	}

	return &SGP4Source{
		pool:   NewWorkerPool(opts.Workers, logger),
		opts:   opts,
		logger: logger,
	}, nil
}

// Frame returns the output frame name.
func (s *SGP4Source) Frame() string { return s.opts.Frame }

// Propagate samples every entry at every grid instant. Any failed sample is
// fatal: a partial trajectory would break the one-position-per-instant
// contract.
func (s *SGP4Source) Propagate(ctx context.Context, entries []tle.TLEEntry, grid TimeGrid) ([]Trajectory, error) {
	if grid.Len() == 0 {
		return nil, config.ErrEmptyTimeGrid
	}

	// GMST depends only on the instant, so it is shared by all objects.
	var gmst []float64
	if s.opts.Frame == config.FrameECEF {
		gmst = make([]float64, grid.Len())
		for k, t := range grid.Times {
			gmst[k] = transform.GMST(t)
		}
	}

	s.logger.Debug("propagating",
		"objects", len(entries),
		"samples", grid.Len(),
		"frame", s.opts.Frame,
		"workers", s.pool.Workers(),
	)

	start := time.Now()
	trajs := make([]Trajectory, len(entries))
	err := s.pool.Run(ctx, len(entries), func(ctx context.Context, i int) error {
		tr, err := s.propagateOne(ctx, entries[i], grid, gmst)
		if err != nil {
			metrics.IncPropagationErrors()
			return err
		}
		trajs[i] = tr
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		return nil, err
	}
	metrics.ObservePropagation(duration)

	s.logger.Info("propagation complete",
		"objects", len(trajs),
		"samples", grid.Len(),
		"frame", s.opts.Frame,
		"duration_ms", duration.Milliseconds(),
	)
	return trajs, nil
}

func (s *SGP4Source) propagateOne(ctx context.Context, entry tle.TLEEntry, grid TimeGrid, gmst []float64) (Trajectory, error) {
	prop, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID, s.opts.Gravity)
	if err != nil {
		return Trajectory{}, err
	}

	positions := make([]r3.Vec, grid.Len())
	for k, t := range grid.Times {
		if k%32 == 0 && ctx.Err() != nil {
			return Trajectory{}, ctx.Err()
		}
		state, err := prop.PropagateAt(t)
		if err != nil {
			s.logger.Debug("propagation failed", "norad_id", prop.NORADID(), "sample", k, "error", err)
			return Trajectory{}, fmt.Errorf("%s (sample %d): %w", entry.Name, k, err)
		}
		if gmst != nil {
			state = transform.TEMEToECEFWithGMST(state, gmst[k])
		}
		positions[k] = state.Position
	}
	return Trajectory{NORADID: prop.NORADID(), Positions: positions}, nil
}
