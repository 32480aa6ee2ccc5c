package render

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Scene constants shared by every renderer.
const (
	EarthRadiusKm = 6371.0
	AxisLimitKm   = 20000.0

	// The Earth mesh spans 30 longitude by 15 latitude samples.
	EarthMeshU = 30
	EarthMeshV = 15
)

// Camera is an orthographic view of the scene cube [-Limit, Limit]^3.
// Azimuth and elevation follow the usual 3D plot convention: the eye sits
// at azimuth degrees about +Z from +X, elevation degrees above the XY
// plane.
type Camera struct {
	AzimuthDeg   float64
	ElevationDeg float64
	LimitKm      float64

	right, up, eye r3.Vec
}

// NewCamera returns a camera with its view basis precomputed.
func NewCamera(azimuthDeg, elevationDeg, limitKm float64) Camera {
	if limitKm <= 0 {
		limitKm = AxisLimitKm
	}
	az := azimuthDeg * math.Pi / 180
	el := elevationDeg * math.Pi / 180

	return Camera{
		AzimuthDeg:   azimuthDeg,
		ElevationDeg: elevationDeg,
		LimitKm:      limitKm,
		eye:          r3.Vec{X: math.Cos(el) * math.Cos(az), Y: math.Cos(el) * math.Sin(az), Z: math.Sin(el)},
		right:        r3.Vec{X: -math.Sin(az), Y: math.Cos(az)},
		up:           r3.Vec{X: -math.Sin(el) * math.Cos(az), Y: -math.Sin(el) * math.Sin(az), Z: math.Cos(el)},
	}
}

// Project maps p (km) to normalized screen coordinates. x and y lie in
// [-1, 1] for points inside the axis cube as seen face-on; depth grows
// toward the viewer.
func (c Camera) Project(p r3.Vec) (x, y, depth float64) {
	return r3.Dot(p, c.right) / c.LimitKm, r3.Dot(p, c.up) / c.LimitKm, r3.Dot(p, c.eye) / c.LimitKm
}

// Visible reports whether p lies inside the axis cube.
func (c Camera) Visible(p r3.Vec) bool {
	l := c.LimitKm
	return math.Abs(p.X) <= l && math.Abs(p.Y) <= l && math.Abs(p.Z) <= l
}

// EarthMesh returns the sphere mesh points of the given radius, u around
// the Z axis over [0, 2π] and v from pole to pole over [0, π], both
// endpoints included.
func EarthMesh(radiusKm float64, nu, nv int) []r3.Vec {
	if nu < 2 || nv < 2 {
		return nil
	}
	pts := make([]r3.Vec, 0, nu*nv)
	for a := 0; a < nu; a++ {
		u := 2 * math.Pi * float64(a) / float64(nu-1)
		for b := 0; b < nv; b++ {
			v := math.Pi * float64(b) / float64(nv-1)
			pts = append(pts, r3.Vec{
				X: radiusKm * math.Cos(u) * math.Sin(v),
				Y: radiusKm * math.Sin(u) * math.Sin(v),
				Z: radiusKm * math.Cos(v),
			})
		}
	}
	return pts
}
