package rig

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/myomod/internal/hand"
	"github.com/ayusman/myomod/internal/pose"
	"github.com/ayusman/myomod/internal/telemetry"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-5
}

func TestBind_MissingWrist(t *testing.T) {
	var names []string
	for _, n := range RequiredJoints() {
		if n != string(hand.Wrist) {
			names = append(names, n)
		}
	}
	model := NewModel(names...)
	before := model.Snapshot()

	_, err := Bind(model, RequiredJoints())
	if !errors.Is(err, ErrMissingJoint) {
		t.Fatalf("Bind() error = %v, want ErrMissingJoint", err)
	}

	var mj *MissingJointError
	if !errors.As(err, &mj) || mj.Name != "wrist" {
		t.Fatalf("Bind() error = %v, want MissingJointError(wrist)", err)
	}

	after := model.Snapshot()
	for n, m := range before {
		if after[n] != m {
			t.Errorf("bone %q was modified by a failed Bind", n)
		}
	}
}

func TestBind_NamesMustCoverHand(t *testing.T) {
	model := NewModel(RequiredJoints()...)

	// Binding only the wrist leaves every finger joint unresolved.
	_, err := Bind(model, []string{"wrist"})
	var mj *MissingJointError
	if !errors.As(err, &mj) {
		t.Fatalf("Bind() error = %v, want MissingJointError", err)
	}
	if mj.Name != string(hand.ThumbMetacarpal) {
		t.Errorf("missing joint = %q, want %q", mj.Name, hand.ThumbMetacarpal)
	}
}

func TestBind_ExtraBonesIgnored(t *testing.T) {
	model := NewModel(append(RequiredJoints(), "forearm")...)
	if _, err := Bind(model, RequiredJoints()); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
}

func TestBinding_UpdateOpenAndClose(t *testing.T) {
	open, err := pose.LoadAbsolute(pose.Open)
	if err != nil {
		t.Fatal(err)
	}
	closed, err := pose.LoadAbsolute(pose.Close)
	if err != nil {
		t.Fatal(err)
	}

	model := NewModel(RequiredJoints()...)
	b, err := Bind(model, RequiredJoints())
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	tests := []struct {
		name   string
		sample telemetry.HandPose
		want   pose.AbsolutePose
	}{
		{"open", telemetry.HandPose{WristFlex: 0.5, WristRotation: 0.5}, open},
		{"close", telemetry.HandPose{
			ThumbFlex: 1, IndexFlex: 1, MiddleFlex: 1, RingFlex: 1, PinkyFlex: 1,
			WristFlex: 0.5, WristRotation: 0.5,
		}, closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.Update(tt.sample)

			for _, j := range hand.Joints() {
				bone, _ := model.Bone(string(j))
				for i, v := range tt.want[j] {
					if !near(float64(bone.Matrix[i]), v) {
						t.Fatalf("%s[%d] = %f, want %f", j, i, bone.Matrix[i], v)
					}
				}
			}

			// Neutral readings leave the wrist at identity.
			wrist, _ := model.Bone("wrist")
			if wrist.Matrix != identity {
				for i, v := range identity {
					if !near(float64(wrist.Matrix[i]), float64(v)) {
						t.Fatalf("wrist[%d] = %f, want %f", i, wrist.Matrix[i], v)
					}
				}
			}
		})
	}
}

func TestBinding_MatricesMatchBones(t *testing.T) {
	model := NewModel(RequiredJoints()...)
	b, err := Bind(model, RequiredJoints())
	if err != nil {
		t.Fatal(err)
	}

	b.Update(telemetry.HandPose{IndexFlex: 0.3, RingFlex: 0.8, WristFlex: 0.1})
	flat := b.Matrices()
	if len(flat) != hand.BufferSize {
		t.Fatalf("len(Matrices()) = %d, want %d", len(flat), hand.BufferSize)
	}

	for _, j := range hand.Joints() {
		idx, _ := hand.Slot(j)
		bone, _ := model.Bone(string(j))
		for i := 0; i < 16; i++ {
			if flat[idx*16+i] != bone.Matrix[i] {
				t.Fatalf("%s: flat buffer and bone differ at %d", j, i)
			}
		}
	}
}

func TestWristRotation(t *testing.T) {
	tests := []struct {
		name     string
		flex     float64
		rotation float64
		in       r3.Vec
		want     r3.Vec
	}{
		{"neutral", 0.5, 0.5, r3.Vec{Y: 1}, r3.Vec{Y: 1}},
		// flex 1 is +45° about X.
		{"full flex", 1, 0.5, r3.Vec{Y: 1}, r3.Vec{Y: math.Sqrt2 / 2, Z: math.Sqrt2 / 2}},
		// rotation 1 is +90° about Z.
		{"full rotation", 0.5, 1, r3.Vec{X: 1}, r3.Vec{Y: 1}},
		{"rotation 0", 0.5, 0, r3.Vec{X: 1}, r3.Vec{Y: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := WristRotation(tt.flex, tt.rotation, DefaultFlexRange, DefaultRotationRange)
			got := pose.Rotate(q, tt.in)
			if r3.Norm(r3.Sub(got, tt.want)) > 1e-9 {
				t.Errorf("rotated %v = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWristRotation_FlexThenRotate(t *testing.T) {
	// Flex first (Y -> Z at +90°), then pronate 90° about Z: Z stays Z.
	q := WristRotation(1, 1, 180, 180)
	got := pose.Rotate(q, r3.Vec{Y: 1})
	if r3.Norm(r3.Sub(got, r3.Vec{Z: 1})) > 1e-9 {
		t.Errorf("rotated = %v, want {0 0 1}", got)
	}
}

func TestWithWristRanges(t *testing.T) {
	model := NewModel(RequiredJoints()...)
	b, err := Bind(model, RequiredJoints(), WithWristRanges(0, 0))
	if err != nil {
		t.Fatal(err)
	}

	b.Update(telemetry.HandPose{WristFlex: 1, WristRotation: 0})
	got := b.Wrist()
	for i, v := range identity {
		if !near(float64(got[i]), float64(v)) {
			t.Fatalf("wrist[%d] = %f with zero ranges, want identity", i, got[i])
		}
	}
}
