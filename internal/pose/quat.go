package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Axis is the canonical direction that offset rotations turn onto the
// parent-to-joint offset.
var Axis = r3.Vec{Z: 1}

// IdentityQuat is the rotation that leaves every vector unchanged.
var IdentityQuat = quat.Number{Real: 1}

// slerpLinearThreshold is the cosine above which slerp falls back to a
// normalized linear blend.
const slerpLinearThreshold = 1 - 1e-9

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityQuat
	}
	return quat.Scale(1/n, q)
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Slerp spherically interpolates between unit quaternions a and b along the
// shortest arc. t=0 yields a and t=1 yields b (or its antipode, which is the
// same rotation).
func Slerp(a, b quat.Number, t float64) quat.Number {
	if t == 0 {
		return a
	}

	cos := dot(a, b)
	if cos < 0 {
		b = quat.Scale(-1, b)
		cos = -cos
	}
	if t == 1 {
		return b
	}

	if cos > slerpLinearThreshold {
		return normalize(quat.Add(quat.Scale(1-t, a), quat.Scale(t, b)))
	}

	theta := math.Acos(cos)
	sin := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sin
	wb := math.Sin(t*theta) / sin
	return quat.Add(quat.Scale(wa, a), quat.Scale(wb, b))
}

// Rotate returns v rotated by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	return quat.Number(r3.NewRotation(angle, axis))
}

// FromUnitVectors returns the shortest rotation that turns unit vector from
// onto unit vector to.
func FromUnitVectors(from, to r3.Vec) quat.Number {
	r := r3.Dot(from, to) + 1

	var q quat.Number
	if r < 1e-9 {
		// Opposite vectors: rotate half a turn about any perpendicular axis.
		if math.Abs(from.X) > math.Abs(from.Z) {
			q = quat.Number{Imag: -from.Y, Jmag: from.X, Kmag: 0, Real: 0}
		} else {
			q = quat.Number{Imag: 0, Jmag: -from.Z, Kmag: from.Y, Real: 0}
		}
	} else {
		c := r3.Cross(from, to)
		q = quat.Number{Imag: c.X, Jmag: c.Y, Kmag: c.Z, Real: r}
	}
	return normalize(q)
}

// offsetRotation returns the rotation that turns Axis onto the direction of
// t, and the length of t. A zero-length offset has no direction; the
// identity rotation is used so that recomposition still yields t = 0.
func offsetRotation(t r3.Vec) (quat.Number, float64) {
	length := r3.Norm(t)
	if length < 1e-9 {
		return IdentityQuat, length
	}
	return FromUnitVectors(Axis, r3.Scale(1/length, t)), length
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Vec{
		X: lerp(a.X, b.X, t),
		Y: lerp(a.Y, b.Y, t),
		Z: lerp(a.Z, b.Z, t),
	}
}
