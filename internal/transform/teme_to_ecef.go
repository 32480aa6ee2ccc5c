// Package transform provides coordinate frame transformations for object
// trajectories.
//
// SGP4 outputs positions in TEME (True Equator Mean Equinox). ECEF output
// rotates TEME about the Z axis by GMST only (TEME → PEF ≈ ECEF), ignoring
// polar motion and the equation of the equinoxes. The error is tens of
// meters, well under any proximity threshold in use.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// State is a position and velocity in one inertial or Earth-fixed frame.
type State struct {
	Position r3.Vec // km
	Velocity r3.Vec // km/s
}

// Radius bounds for a physically plausible Earth-orbiting object, in km.
const (
	MinRadiusKm = 6200.0
	MaxRadiusKm = 50000.0
)

var zAxis = r3.Vec{Z: 1}

// TEMEToECEF transforms a TEME state to ECEF at the given UTC time.
func TEMEToECEF(s State, t time.Time) State {
	return TEMEToECEFWithGMST(s, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle
// (radians). Compute GMST once when converting many objects at one instant.
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME - ω × r_ECEF
//
// R3(θ) rotates the frame by θ, which rotates vectors by -θ.
func TEMEToECEFWithGMST(s State, gmst float64) State {
	rot := r3.NewRotation(-gmst, zAxis)
	pos := rot.Rotate(s.Position)
	omega := r3.Vec{Z: OmegaEarth}
	vel := r3.Sub(rot.Rotate(s.Velocity), r3.Cross(omega, pos))
	return State{Position: pos, Velocity: vel}
}

// ValidPosition reports whether pos (km) is finite and within the radius
// band of an Earth-orbiting object.
func ValidPosition(pos r3.Vec) bool {
	for _, c := range [3]float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := r3.Norm(pos)
	return mag >= MinRadiusKm && mag <= MaxRadiusKm
}
