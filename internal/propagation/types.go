package propagation

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/tle"
)

// TimeGrid is a fixed-cadence sequence of UTC instants. It is read-only
// after construction.
type TimeGrid struct {
	Start time.Time
	Step  time.Duration
	Times []time.Time
}

// NewTimeGrid builds samples instants Start, Start+Step, ...
func NewTimeGrid(start time.Time, step time.Duration, samples int) (TimeGrid, error) {
	if samples <= 0 {
		return TimeGrid{}, config.ErrEmptyTimeGrid
	}
	if step <= 0 {
		return TimeGrid{}, fmt.Errorf("%w: step must be positive, got %s", config.ErrInvalidConfig, step)
	}

	start = start.UTC()
	times := make([]time.Time, samples)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * step)
	}
	return TimeGrid{Start: start, Step: step, Times: times}, nil
}

// Len returns the number of instants.
func (g TimeGrid) Len() int { return len(g.Times) }

// End returns the last instant, or the zero time for an empty grid.
func (g TimeGrid) End() time.Time {
	if len(g.Times) == 0 {
		return time.Time{}
	}
	return g.Times[len(g.Times)-1]
}

// Trajectory is one object's positions (km) at every grid instant.
type Trajectory struct {
	NORADID   int
	Positions []r3.Vec
}

// Source turns catalog entries into trajectories sampled on a grid. The
// result has one trajectory per entry, in entry order, each of length
// grid.Len().
type Source interface {
	Propagate(ctx context.Context, entries []tle.TLEEntry, grid TimeGrid) ([]Trajectory, error)
}

// Paths extracts the position slices of trajs in order.
func Paths(trajs []Trajectory) [][]r3.Vec {
	paths := make([][]r3.Vec, len(trajs))
	for i, tr := range trajs {
		paths[i] = tr.Positions
	}
	return paths
}
