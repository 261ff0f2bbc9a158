package rig

import (
	"errors"
	"fmt"

	"github.com/ayusman/myomod/internal/hand"
	"github.com/ayusman/myomod/internal/pose"
	"github.com/ayusman/myomod/internal/telemetry"
)

// ErrMissingJoint is matched by every *MissingJointError.
var ErrMissingJoint = errors.New("rig: missing joint")

// MissingJointError reports a required joint the skeleton does not have.
type MissingJointError struct {
	Name string
}

func (e *MissingJointError) Error() string {
	return fmt.Sprintf("rig: skeleton has no joint %q", e.Name)
}

// Is reports whether target is ErrMissingJoint.
func (e *MissingJointError) Is(target error) bool {
	return target == ErrMissingJoint
}

// RequiredJoints returns the wrist followed by every finger joint in
// flat-buffer order.
func RequiredJoints() []string {
	out := make([]string, 0, hand.JointCount+1)
	out = append(out, string(hand.Wrist))
	for _, j := range hand.Joints() {
		out = append(out, string(j))
	}
	return out
}

// Option configures a Binding.
type Option func(*Binding)

// WithWristRanges sets the angular sweep, in degrees, of the wrist flex and
// rotation readings.
func WithWristRanges(flexDeg, rotationDeg float64) Option {
	return func(b *Binding) {
		b.flexRange = flexDeg
		b.rotationRange = rotationDeg
	}
}

// WithReference replaces the canonical open/close poses.
func WithReference(ref pose.Reference) Option {
	return func(b *Binding) {
		b.ref = ref
		b.refSet = true
	}
}

// Binding maps the joints of a skeleton to their flat-buffer slots and
// writes interpolated matrices into them. A Binding is not safe for
// concurrent use; it is driven by a single tick loop.
type Binding struct {
	wrist  *Bone
	joints [hand.JointCount]*Bone

	ref    pose.Reference
	refSet bool

	flexRange     float64
	rotationRange float64

	scratch [hand.BufferSize]float32
}

// Bind resolves names against s. Every name is looked up before anything
// is written, so a missing joint leaves the skeleton untouched. names must
// include the wrist and all finger joints; RequiredJoints lists them.
func Bind(s Skeleton, names []string, opts ...Option) (*Binding, error) {
	bones := make(map[string]*Bone, len(names))
	for _, n := range names {
		b, ok := s.Bone(n)
		if !ok {
			return nil, &MissingJointError{Name: n}
		}
		bones[n] = b
	}

	bd := &Binding{
		flexRange:     DefaultFlexRange,
		rotationRange: DefaultRotationRange,
	}
	for _, opt := range opts {
		opt(bd)
	}

	var ok bool
	if bd.wrist, ok = bones[string(hand.Wrist)]; !ok {
		return nil, &MissingJointError{Name: string(hand.Wrist)}
	}
	for _, j := range hand.Joints() {
		b, ok := bones[string(j)]
		if !ok {
			return nil, &MissingJointError{Name: string(j)}
		}
		idx, _ := hand.Slot(j)
		bd.joints[idx] = b
	}

	if !bd.refSet {
		ref, err := pose.Canonical()
		if err != nil {
			return nil, fmt.Errorf("rig: load canonical poses: %w", err)
		}
		bd.ref = ref
	}

	return bd, nil
}

// Update poses the bound skeleton from one hand-pose sample: each finger is
// blended between the open and close poses by its own flex reading, and the
// wrist is rotated analytically.
func (b *Binding) Update(s telemetry.HandPose) {
	pose.ComputeHand(b.ref.Open, b.ref.Close, s.Flex(), b.scratch[:])

	for idx, bone := range b.joints {
		copy(bone.Matrix[:], b.scratch[idx*hand.MatrixSize:(idx+1)*hand.MatrixSize])
	}

	WristMatrix(s.WristFlex, s.WristRotation, b.flexRange, b.rotationRange).Float32(b.wrist.Matrix[:])
}

// Matrices returns a copy of the flat joint buffer written by the last
// Update: hand.JointCount column-major 4x4 matrices in slot order.
func (b *Binding) Matrices() []float32 {
	out := make([]float32, len(b.scratch))
	copy(out, b.scratch[:])
	return out
}

// Wrist returns the wrist transform written by the last Update.
func (b *Binding) Wrist() [16]float32 {
	return b.wrist.Matrix
}
