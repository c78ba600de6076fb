// Package vecutil provides the double-precision 3-vector type shared by the
// mesh, quadric and geometry-kernel packages.
package vecutil

import "github.com/go-gl/mathgl/mgl64"

// Vec3 is the double-precision 3-vector used throughout the simplifier.
// mgl64 mirrors Eigen::Vector3d closely enough (Dot, Cross, Normalize, Len)
// that the geometry kernel reads the same as the original it's grounded on.
type Vec3 = mgl64.Vec3

// New builds a Vec3 from components.
func New(x, y, z float64) Vec3 {
	return Vec3{x, y, z}
}

// Zero is the zero vector.
func Zero() Vec3 {
	return Vec3{0, 0, 0}
}

// SafeNormalize normalizes v, returning the zero vector instead of NaNs
// when v is degenerate (length below eps).
func SafeNormalize(v Vec3) Vec3 {
	const eps = 1e-12
	if v.Len() < eps {
		return Vec3{}
	}
	return v.Normalize()
}
