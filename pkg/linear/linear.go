// Package linear implements the rotation and vector math used to pose bone rigs.
//
// Vectors and quaternions are the mgl32 types. Rotations always compose by
// quaternion multiplication; Euler angles are only an input format.
package linear

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 is a 3-component vector of float32.
type Vec3 = mgl32.Vec3

// Quat is a rotation quaternion.
type Quat = mgl32.Quat

// Epsilon is the tolerance used by the approximate comparisons of this package.
const Epsilon = 1e-4

var (
	Zero = Vec3{0, 0, 0}
	One  = Vec3{1, 1, 1}

	axisX = Vec3{1, 0, 0}
	axisY = Vec3{0, 1, 0}
	axisZ = Vec3{0, 0, 1}
)

// Identity returns the identity rotation.
func Identity() Quat {
	return mgl32.QuatIdent()
}

// FromEuler converts Euler angles in radians to a quaternion.
// The rotation is applied about X first, then Y, then Z (extrinsic),
// so the result is qZ ⋅ qY ⋅ qX.
func FromEuler(rad Vec3) Quat {
	qx := mgl32.QuatRotate(rad[0], axisX)
	qy := mgl32.QuatRotate(rad[1], axisY)
	qz := mgl32.QuatRotate(rad[2], axisZ)
	return qz.Mul(qy).Mul(qx)
}

// FromEulerDegrees is FromEuler with angles in degrees.
func FromEulerDegrees(deg Vec3) Quat {
	return FromEuler(Vec3{
		mgl32.DegToRad(deg[0]),
		mgl32.DegToRad(deg[1]),
		mgl32.DegToRad(deg[2]),
	})
}

// RootRotation returns the orientation of a model facing the given yaw and
// pitch, in degrees.
func RootRotation(yaw, pitch float32) Quat {
	return FromEulerDegrees(Vec3{pitch, 360 - yaw, 0})
}

// Lerp returns the linear interpolation a + (b - a) ⋅ t.
func Lerp(a, b Vec3, t float32) Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Slerp returns the spherical interpolation between a and b along the
// shortest arc.
func Slerp(a, b Quat, t float32) Quat {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatSlerp(a, b, t)
}

// Hadamard returns the component-wise product of v and w.
func Hadamard(v, w Vec3) Vec3 {
	return Vec3{v[0] * w[0], v[1] * w[1], v[2] * w[2]}
}

// Finite reports whether every component of v is a finite number.
func Finite(v ...float32) bool {
	for _, f := range v {
		if math32.IsNaN(f) || math32.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Wrap maps t into [0, length). Negative times wrap from the end.
func Wrap(t, length float32) float32 {
	if length <= 0 {
		return 0
	}
	t = math32.Mod(t, length)
	if t < 0 {
		t += length
	}
	return t
}

// Clamp limits t to [lo, hi].
func Clamp(t, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, t))
}

// SameRotation reports whether a and b represent the same rotation within
// Epsilon. q and -q are the same rotation.
func SameRotation(a, b Quat) bool {
	return math32.Abs(a.Normalize().Dot(b.Normalize())) >= 1-Epsilon
}
