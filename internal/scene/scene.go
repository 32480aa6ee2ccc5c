// Package scene computes everything playback needs before any frame is
// drawn: the time grid, one trajectory per selected object and the list of
// close-approach events. A Scene is immutable once Compute returns.
package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
	"github.com/rahulsinghu/AstralCleanser/internal/propagation"
	"github.com/rahulsinghu/AstralCleanser/internal/proximity"
	"github.com/rahulsinghu/AstralCleanser/internal/tle"
)

// Title is shown by every renderer.
const Title = "Animated Satellite Orbits Around Earth"

// Object is one tracked catalog entry.
type Object struct {
	Index   int       `json:"index"`
	NORADID int       `json:"norad_id"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
	Color   string    `json:"color"`
}

// Label is the legend text for o.
func (o Object) Label() string {
	return "Sat " + strconv.Itoa(o.Index)
}

// Scene is the computed input to every renderer.
type Scene struct {
	RunID       uuid.UUID
	ComputedAt  time.Time
	Frame       string
	ThresholdKm float64
	Grid        propagation.TimeGrid
	Objects     []Object
	Paths       [][]r3.Vec // Paths[i][t], km
	Events      []proximity.Event
	Approaches  []proximity.Approach
}

// Samples returns the number of grid instants.
func (s *Scene) Samples() int { return s.Grid.Len() }

// Compute propagates entries over the configured window and scans the
// result for close approaches.
func Compute(ctx context.Context, cfg config.Config, entries []tle.TLEEntry, source propagation.Source, logger *slog.Logger) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, tle.ErrNoEntries
	}

	grid, err := propagation.NewTimeGrid(cfg.Window.Start, cfg.Window.Step, cfg.Window.Samples)
	if err != nil {
		return nil, err
	}

	trajs, err := source.Propagate(ctx, entries, grid)
	if err != nil {
		return nil, fmt.Errorf("propagating %d objects: %w", len(entries), err)
	}
	if len(trajs) != len(entries) {
		return nil, fmt.Errorf("source returned %d trajectories for %d objects", len(trajs), len(entries))
	}
	paths := propagation.Paths(trajs)
	for i, p := range paths {
		if len(p) != grid.Len() {
			return nil, fmt.Errorf("%w: object %d has %d samples, grid has %d",
				proximity.ErrLengthMismatch, i, len(p), grid.Len())
		}
	}

	start := time.Now()
	events, err := proximity.Scan(paths, cfg.Scan.ThresholdKm)
	if err != nil {
		return nil, err
	}
	approaches, err := proximity.ClosestApproaches(paths)
	if err != nil {
		return nil, err
	}
	metrics.ObserveScan(time.Since(start), len(events))

	objects := make([]Object, len(entries))
	for i, e := range entries {
		objects[i] = Object{
			Index:   i,
			NORADID: e.NORADID,
			Name:    e.Name,
			Epoch:   e.Epoch,
			Color:   cfg.Selection.ColorFor(i),
		}
	}

	sc := &Scene{
		RunID:       uuid.New(),
		ComputedAt:  time.Now().UTC(),
		Frame:       cfg.Propagation.Frame,
		ThresholdKm: cfg.Scan.ThresholdKm,
		Grid:        grid,
		Objects:     objects,
		Paths:       paths,
		Events:      events,
		Approaches:  approaches,
	}

	for _, e := range events {
		logger.Info("close approach",
			"time", grid.Times[e.T].Format(time.RFC3339),
			"sample", e.T,
			"a", objects[e.I].Name,
			"b", objects[e.J].Name,
			"distance_km", proximity.Distance(paths[e.I][e.T], paths[e.J][e.T]),
		)
	}
	logger.Info("scene computed",
		"run_id", sc.RunID.String(),
		"objects", len(objects),
		"samples", grid.Len(),
		"frame", sc.Frame,
		"threshold_km", sc.ThresholdKm,
		"events", len(events),
	)
	return sc, nil
}

// Summary is the JSON view of a Scene without per-sample positions.
type Summary struct {
	RunID       string               `json:"run_id"`
	Title       string               `json:"title"`
	ComputedAt  time.Time            `json:"computed_at"`
	Frame       string               `json:"frame"`
	ThresholdKm float64              `json:"threshold_km"`
	Start       time.Time            `json:"start"`
	StepSeconds float64              `json:"step_seconds"`
	Samples     int                  `json:"samples"`
	Objects     []Object             `json:"objects"`
	Events      []EventView          `json:"events"`
	Approaches  []proximity.Approach `json:"closest_approaches"`
}

// EventView is an event with its instant, marker position and distance.
type EventView struct {
	proximity.Event
	Time       time.Time  `json:"time"`
	Midpoint   [3]float64 `json:"midpoint_km"`
	DistanceKm float64    `json:"distance_km"`
}

// Summarize builds the position-free JSON view of s.
func (s *Scene) Summarize() Summary {
	events := make([]EventView, len(s.Events))
	for k, e := range s.Events {
		events[k] = EventView{
			Event:      e,
			Time:       s.Grid.Times[e.T],
			Midpoint:   Vec3(proximity.Midpoint(s.Paths, e)),
			DistanceKm: proximity.Distance(s.Paths[e.I][e.T], s.Paths[e.J][e.T]),
		}
	}
	approaches := s.Approaches
	if approaches == nil {
		approaches = []proximity.Approach{}
	}
	return Summary{
		RunID:       s.RunID.String(),
		Title:       Title,
		ComputedAt:  s.ComputedAt,
		Frame:       s.Frame,
		ThresholdKm: s.ThresholdKm,
		Start:       s.Grid.Start,
		StepSeconds: s.Grid.Step.Seconds(),
		Samples:     s.Grid.Len(),
		Objects:     s.Objects,
		Events:      events,
		Approaches:  approaches,
	}
}

type exportJSON struct {
	Summary
	Times []time.Time    `json:"times"`
	Paths [][][3]float64 `json:"paths_km"`
}

// WriteJSON writes the summary plus every sampled position to w.
func (s *Scene) WriteJSON(w io.Writer) error {
	out := exportJSON{
		Summary: s.Summarize(),
		Times:   s.Grid.Times,
		Paths:   make([][][3]float64, len(s.Paths)),
	}
	for i, p := range s.Paths {
		out.Paths[i] = make([][3]float64, len(p))
		for t, v := range p {
			out.Paths[i][t] = Vec3(v)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding scene: %w", err)
	}
	return nil
}

// Vec3 converts v to a JSON-friendly array.
func Vec3(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
