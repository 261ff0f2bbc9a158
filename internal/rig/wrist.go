package rig

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/myomod/internal/pose"
)

// Default wrist ranges in degrees: the full sweep of each reading from 0
// to 1, centered on the neutral wrist at 0.5.
const (
	DefaultFlexRange     = 90.0
	DefaultRotationRange = 180.0
)

var (
	flexAxis     = r3.Vec{X: 1}
	rotationAxis = r3.Vec{Z: 1}
)

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// WristRotation returns the wrist orientation for the given readings:
// pronation about the forearm (+Z) applied after flexion about +X.
func WristRotation(flex, rotation, flexRangeDeg, rotationRangeDeg float64) quat.Number {
	qx := pose.AxisAngle(flexAxis, (flex-0.5)*radians(flexRangeDeg))
	qz := pose.AxisAngle(rotationAxis, (rotation-0.5)*radians(rotationRangeDeg))
	return quat.Mul(qz, qx)
}

// WristMatrix is WristRotation as a column-major transform at the hand root.
func WristMatrix(flex, rotation, flexRangeDeg, rotationRangeDeg float64) pose.Mat4 {
	q := WristRotation(flex, rotation, flexRangeDeg, rotationRangeDeg)
	return pose.Compose(r3.Vec{}, q, r3.Vec{X: 1, Y: 1, Z: 1})
}
