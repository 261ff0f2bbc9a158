package pose

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/myomod/internal/hand"
)

// AbsolutePose maps every finger joint to its transform relative to the
// hand root.
type AbsolutePose map[hand.Joint]Mat4

// RelativeJointPose is a joint transform expressed relative to its parent
// joint in the same finger chain.
type RelativeJointPose struct {
	// OffsetLength is the distance from the parent joint.
	OffsetLength float64 `json:"offset_length"`
	// OffsetRotation turns Axis onto the parent-to-joint direction.
	OffsetRotation quat.Number `json:"offset_rotation"`
	// Rotation is the joint's own orientation relative to its parent.
	Rotation quat.Number `json:"rotation"`
	Scale    r3.Vec      `json:"scale"`
}

// RelativePose holds the relative decomposition of every finger joint.
// Values returned by Build are never mutated afterwards.
type RelativePose map[hand.Joint]RelativeJointPose

// Build decomposes an absolute pose into parent-relative joint poses.
//
// Each finger chain is walked from root to tip with a running inverse of the
// previous joint's absolute transform, reset to identity at the start of
// every chain, so the first joint of a finger is relative to the hand root.
func Build(abs AbsolutePose) (RelativePose, error) {
	rel := make(RelativePose, hand.JointCount)

	for _, f := range hand.Fingers() {
		prevInv := Identity()
		for _, j := range f.Chain() {
			m, ok := abs[j]
			if !ok {
				return nil, fmt.Errorf("pose: joint %q missing from absolute pose", j)
			}

			local := prevInv.Mul(m)
			t, q, s := local.Decompose()
			offRot, length := offsetRotation(t)

			rel[j] = RelativeJointPose{
				OffsetLength:   length,
				OffsetRotation: offRot,
				Rotation:       q,
				Scale:          s,
			}

			inv, err := m.Invert()
			if err != nil {
				return nil, fmt.Errorf("pose: joint %q: %w", j, err)
			}
			prevInv = inv
		}
	}

	return rel, nil
}

// Local recomposes the joint's parent-relative transform.
func (p RelativeJointPose) Local() Mat4 {
	t := Rotate(p.OffsetRotation, r3.Scale(p.OffsetLength, Axis))
	return Compose(t, p.Rotation, p.Scale)
}
