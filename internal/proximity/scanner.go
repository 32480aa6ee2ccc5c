// Package proximity flags pairs of objects that come closer than a
// threshold distance at a shared sample instant.
//
// The scan is an exhaustive sweep over every instant and every unordered
// pair, O(T·N²). For the handful of objects and one day of samples this
// package is used with, a spatial index would add more code than it saves.
package proximity

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrLengthMismatch is returned when trajectories have different lengths.
var ErrLengthMismatch = errors.New("trajectories differ in length")

// Event records that objects I and J (I < J) were closer than the
// threshold at sample T.
type Event struct {
	T int `json:"t"`
	I int `json:"i"`
	J int `json:"j"`
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// length returns the shared trajectory length.
func length(paths [][]r3.Vec) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	n := len(paths[0])
	for i, p := range paths[1:] {
		if len(p) != n {
			return 0, fmt.Errorf("%w: object %d has %d samples, object 0 has %d", ErrLengthMismatch, i+1, len(p), n)
		}
	}
	return n, nil
}

// Scan returns every (t, i, j) with i < j whose distance at sample t is
// strictly below thresholdKm. Results are ordered by t, then i, then j.
// Fewer than two objects, zero samples or a non-positive threshold yield
// no events.
func Scan(paths [][]r3.Vec, thresholdKm float64) ([]Event, error) {
	samples, err := length(paths)
	if err != nil {
		return nil, err
	}
	if len(paths) < 2 || samples == 0 || !(thresholdKm > 0) {
		return nil, nil
	}

	var events []Event
	for t := 0; t < samples; t++ {
		for i := 0; i < len(paths); i++ {
			for j := i + 1; j < len(paths); j++ {
				if Distance(paths[i][t], paths[j][t]) < thresholdKm {
					events = append(events, Event{T: t, I: i, J: j})
				}
			}
		}
	}
	return events, nil
}

// Approach is the closest sampled distance of one pair over the window.
type Approach struct {
	I          int     `json:"i"`
	J          int     `json:"j"`
	T          int     `json:"t"` // first sample at the minimum
	DistanceKm float64 `json:"distance_km"`
}

// ClosestApproaches returns one Approach per unordered pair, ordered by i
// then j. An empty window yields no approaches.
func ClosestApproaches(paths [][]r3.Vec) ([]Approach, error) {
	samples, err := length(paths)
	if err != nil {
		return nil, err
	}
	if len(paths) < 2 || samples == 0 {
		return nil, nil
	}

	out := make([]Approach, 0, len(paths)*(len(paths)-1)/2)
	for i := 0; i < len(paths); i++ {
		for j := i + 1; j < len(paths); j++ {
			best := Approach{I: i, J: j, DistanceKm: math.Inf(1)}
			for t := 0; t < samples; t++ {
				if d := Distance(paths[i][t], paths[j][t]); d < best.DistanceKm {
					best.T, best.DistanceKm = t, d
				}
			}
			out = append(out, best)
		}
	}
	return out, nil
}

// PairDistances returns the distance between objects i and j at every sample.
func PairDistances(paths [][]r3.Vec, i, j int) []float64 {
	out := make([]float64, len(paths[i]))
	for t := range out {
		out[t] = Distance(paths[i][t], paths[j][t])
	}
	return out
}

// Midpoint is where the marker for e is drawn: halfway between the two
// objects at e.T.
func Midpoint(paths [][]r3.Vec, e Event) r3.Vec {
	return r3.Scale(0.5, r3.Add(paths[e.I][e.T], paths[e.J][e.T]))
}

// ByTime groups events by sample index, keeping scan order within a sample.
func ByTime(events []Event) map[int][]Event {
	idx := make(map[int][]Event)
	for _, e := range events {
		idx[e.T] = append(idx[e.T], e)
	}
	return idx
}
