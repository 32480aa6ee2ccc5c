package propagation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/rahulsinghu/AstralCleanser/internal/config"
	"github.com/rahulsinghu/AstralCleanser/internal/transform"
)

// ErrPropagation marks an SGP4 output that is NaN/Inf or outside the
// plausible orbit radius band.
var ErrPropagation = errors.New("sgp4 propagation failed")

// SGP4 backend: github.com/joshuaferrara/go-satellite. Propagate takes the
// Satellite by value, so SGP4 error codes are not visible after
// initialization; failures are detected from the output instead.

// SGP4Propagator wraps the go-satellite library for a single object.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// gravityModel maps a configured model name to go-satellite's constant.
func gravityModel(name string) (satellite.Gravity, error) {
	var grav satellite.Gravity
	switch name {
	case config.GravityWGS72, "":
		grav = satellite.GravityWGS72
	case config.GravityWGS84:
		grav = satellite.GravityWGS84
	default:
		return grav, fmt.Errorf("%w: unknown gravity model %q", config.ErrInvalidConfig, name)
	}
	return grav, nil
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
//
// Lines are validated before reaching the library because go-satellite calls
// log.Fatal on malformed input.
func NewSGP4Propagator(line1, line2 string, noradID int, gravity string) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}
	grav, err := gravityModel(gravity)
	if err != nil {
		return nil, err
	}

	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), grav)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	if line1[2:7] != line2[2:7] {
		return fmt.Errorf("catalog numbers differ: %q vs %q", line1[2:7], line2[2:7])
	}
	return nil
}

// NORADID returns the catalog number of the propagated object.
func (p *SGP4Propagator) NORADID() int { return p.noradID }

// PropagateAt returns the TEME state (km, km/s) at t. Sub-second precision
// is dropped.
func (p *SGP4Propagator) PropagateAt(t time.Time) (transform.State, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	state := transform.State{
		Position: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	if !transform.ValidPosition(state.Position) {
		return transform.State{}, fmt.Errorf("%w for NORAD %d at %s: position %v km",
			ErrPropagation, p.noradID, t.Format(time.RFC3339), state.Position)
	}
	return state, nil
}
