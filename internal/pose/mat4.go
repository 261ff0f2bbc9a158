// Package pose synthesizes hand joint transforms from two canonical poses.
//
// Absolute joint transforms are decomposed once into parent-relative offsets
// and rotations (Build) and recomposed per frame by interpolating between the
// "open" and "close" decompositions (ComputeFinger).
package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSingular is returned when a transform cannot be inverted.
var ErrSingular = errors.New("pose: singular matrix")

// Mat4 is a 4x4 affine transform stored column-major: element (row r,
// column c) lives at index c*4+r and the translation occupies 12..14.
type Mat4 [16]float64

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float64 {
	return m[c*4+r]
}

// Mul returns m·n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Invert returns the inverse of m.
func (m Mat4) Invert() (Mat4, error) {
	// Feeding the column-major array as row-major data yields the transpose;
	// the inverse of the transpose is the transposed inverse, so the raw
	// data of the result is the column-major inverse of m.
	src := mat.NewDense(4, 4, m[:])
	var inv mat.Dense
	if err := inv.Inverse(src); err != nil {
		return Mat4{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var out Mat4
	copy(out[:], inv.RawMatrix().Data)
	return out, nil
}

// Translation returns the translation column.
func (m Mat4) Translation() r3.Vec {
	return r3.Vec{X: m[12], Y: m[13], Z: m[14]}
}

// Float32 writes m into dst, which must hold at least 16 floats.
func (m Mat4) Float32(dst []float32) {
	_ = dst[15]
	for i, v := range m {
		dst[i] = float32(v)
	}
}

// Compose builds the transform T·R·S from a translation, a unit rotation
// quaternion and a per-axis scale.
func Compose(t r3.Vec, q quat.Number, s r3.Vec) Mat4 {
	x, y, z, w := q.Imag, q.Jmag, q.Kmag, q.Real
	x2, y2, z2 := x+x, y+y, z+z
	xx, xy, xz := x*x2, x*y2, x*z2
	yy, yz, zz := y*y2, y*z2, z*z2
	wx, wy, wz := w*x2, w*y2, w*z2

	return Mat4{
		(1 - (yy + zz)) * s.X, (xy + wz) * s.X, (xz - wy) * s.X, 0,
		(xy - wz) * s.Y, (1 - (xx + zz)) * s.Y, (yz + wx) * s.Y, 0,
		(xz + wy) * s.Z, (yz - wx) * s.Z, (1 - (xx + yy)) * s.Z, 0,
		t.X, t.Y, t.Z, 1,
	}
}

// Decompose splits an affine transform into translation, rotation and scale.
// A negative determinant is attributed to the X axis scale.
func (m Mat4) Decompose() (t r3.Vec, q quat.Number, s r3.Vec) {
	sx := math.Sqrt(m[0]*m[0] + m[1]*m[1] + m[2]*m[2])
	sy := math.Sqrt(m[4]*m[4] + m[5]*m[5] + m[6]*m[6])
	sz := math.Sqrt(m[8]*m[8] + m[9]*m[9] + m[10]*m[10])

	if m.det3() < 0 {
		sx = -sx
	}

	t = m.Translation()
	s = r3.Vec{X: sx, Y: sy, Z: sz}

	var rot [9]float64 // column-major 3x3
	for c, sc := range [3]float64{sx, sy, sz} {
		inv := 0.0
		if sc != 0 {
			inv = 1 / sc
		}
		for r := 0; r < 3; r++ {
			rot[c*3+r] = m[c*4+r] * inv
		}
	}
	q = quatFromRotation(rot)
	return t, q, s
}

func (m Mat4) det3() float64 {
	return m[0]*(m[5]*m[10]-m[9]*m[6]) -
		m[4]*(m[1]*m[10]-m[9]*m[2]) +
		m[8]*(m[1]*m[6]-m[5]*m[2])
}

// quatFromRotation converts a pure rotation (column-major 3x3) to a unit
// quaternion.
func quatFromRotation(m [9]float64) quat.Number {
	m11, m12, m13 := m[0], m[3], m[6]
	m21, m22, m23 := m[1], m[4], m[7]
	m31, m32, m33 := m[2], m[5], m[8]

	trace := m11 + m22 + m33
	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (m32 - m23) * s,
			Jmag: (m13 - m31) * s,
			Kmag: (m21 - m12) * s,
		}
	case m11 > m22 && m11 > m33:
		s := 2 * math.Sqrt(1+m11-m22-m33)
		q = quat.Number{
			Real: (m32 - m23) / s,
			Imag: 0.25 * s,
			Jmag: (m12 + m21) / s,
			Kmag: (m13 + m31) / s,
		}
	case m22 > m33:
		s := 2 * math.Sqrt(1+m22-m11-m33)
		q = quat.Number{
			Real: (m13 - m31) / s,
			Imag: (m12 + m21) / s,
			Jmag: 0.25 * s,
			Kmag: (m23 + m32) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m33-m11-m22)
		q = quat.Number{
			Real: (m21 - m12) / s,
			Imag: (m13 + m31) / s,
			Jmag: (m23 + m32) / s,
			Kmag: 0.25 * s,
		}
	}
	return normalize(q)
}
