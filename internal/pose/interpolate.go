package pose

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/myomod/internal/hand"
)

// Blend interpolates between two relative joint poses. Rotations are
// slerped along the shortest arc, offset length and scale are lerped.
func Blend(from, to RelativeJointPose, alpha float64) RelativeJointPose {
	return RelativeJointPose{
		OffsetLength:   lerp(from.OffsetLength, to.OffsetLength, alpha),
		OffsetRotation: Slerp(from.OffsetRotation, to.OffsetRotation, alpha),
		Rotation:       Slerp(from.Rotation, to.Rotation, alpha),
		Scale:          lerpVec(from.Scale, to.Scale, alpha),
	}
}

// ComputeFinger writes the absolute matrices of every joint of f, blended
// from the from pose toward the to pose by alpha, into dst.
//
// The matrix of joint j is written column-major at dst[hand.Slot(j)*16:].
// dst must hold hand.BufferSize floats. Joints absent from either pose
// panic; both poses are expected to come from Build.
func ComputeFinger(f hand.Finger, from, to RelativePose, alpha float64, dst []float32) {
	if len(dst) < hand.BufferSize {
		panic(fmt.Sprintf("pose: buffer holds %d floats, need %d", len(dst), hand.BufferSize))
	}

	running := Identity()
	for _, j := range f.Chain() {
		a, ok := from[j]
		if !ok {
			panic(fmt.Sprintf("pose: joint %q missing from source pose", j))
		}
		b, ok := to[j]
		if !ok {
			panic(fmt.Sprintf("pose: joint %q missing from target pose", j))
		}

		running = running.Mul(Blend(a, b, alpha).Local())

		idx, _ := hand.Slot(j)
		running.Float32(dst[idx*hand.MatrixSize : (idx+1)*hand.MatrixSize])
	}
}

// ComputeHand runs ComputeFinger for all five fingers, each with its own
// flex value, indexed by hand.Finger.
func ComputeHand(from, to RelativePose, flex [hand.NumFingers]float64, dst []float32) {
	for _, f := range hand.Fingers() {
		ComputeFinger(f, from, to, flex[f], dst)
	}
}

// absolute recomposes the absolute transform of every joint at the given
// per-finger blend factors. It is the float64 counterpart of ComputeHand.
func absolute(from, to RelativePose, flex [hand.NumFingers]float64) AbsolutePose {
	out := make(AbsolutePose, hand.JointCount)
	for _, f := range hand.Fingers() {
		running := Identity()
		for _, j := range f.Chain() {
			running = running.Mul(Blend(from[j], to[j], flex[f]).Local())
			out[j] = running
		}
	}
	return out
}

// tipPosition returns the position of the tip of finger f at alpha.
func tipPosition(f hand.Finger, from, to RelativePose, alpha float64) r3.Vec {
	running := Identity()
	for _, j := range f.Chain() {
		running = running.Mul(Blend(from[j], to[j], alpha).Local())
	}
	return running.Translation()
}
