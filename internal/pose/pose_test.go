package pose

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/myomod/internal/hand"
)

const tolerance = 1e-5

func mustCanonical(t *testing.T) (AbsolutePose, AbsolutePose, Reference) {
	t.Helper()

	open, err := LoadAbsolute(Open)
	if err != nil {
		t.Fatalf("LoadAbsolute(open) error = %v", err)
	}
	closed, err := LoadAbsolute(Close)
	if err != nil {
		t.Fatalf("LoadAbsolute(close) error = %v", err)
	}
	ref, err := Canonical()
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	return open, closed, ref
}

func assertMatrixNear(t *testing.T, label string, got []float32, want Mat4) {
	t.Helper()
	for i := range want {
		if math.Abs(float64(got[i])-want[i]) > tolerance {
			t.Fatalf("%s: element %d = %f, want %f", label, i, got[i], want[i])
		}
	}
}

func TestMat4_ComposeDecompose(t *testing.T) {
	q := AxisAngle(r3.Vec{X: 1, Y: 2, Z: 3}, 0.7)
	tr := r3.Vec{X: 0.1, Y: -0.2, Z: 0.3}
	s := r3.Vec{X: 1.5, Y: 0.5, Z: 2}

	m := Compose(tr, q, s)
	gotT, gotQ, gotS := m.Decompose()

	if r3.Norm(r3.Sub(gotT, tr)) > 1e-12 {
		t.Errorf("translation = %v, want %v", gotT, tr)
	}
	if r3.Norm(r3.Sub(gotS, s)) > 1e-12 {
		t.Errorf("scale = %v, want %v", gotS, s)
	}
	if math.Abs(math.Abs(dot(gotQ, q))-1) > 1e-12 {
		t.Errorf("rotation = %v, want %v", gotQ, q)
	}
}

func TestMat4_Invert(t *testing.T) {
	m := Compose(r3.Vec{X: 1, Y: 2, Z: 3}, AxisAngle(r3.Vec{Y: 1}, 1.1), r3.Vec{X: 1, Y: 1, Z: 1})

	inv, err := m.Invert()
	if err != nil {
		t.Fatalf("Invert() error = %v", err)
	}

	got := m.Mul(inv)
	want := Identity()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("m·inv[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestMat4_InvertSingular(t *testing.T) {
	var m Mat4 // all zeros
	if _, err := m.Invert(); !errors.Is(err, ErrSingular) {
		t.Errorf("Invert() error = %v, want ErrSingular", err)
	}
}

func TestMat4_MulColumnMajor(t *testing.T) {
	a := Compose(r3.Vec{X: 1}, IdentityQuat, r3.Vec{X: 1, Y: 1, Z: 1})
	b := Compose(r3.Vec{Y: 2}, IdentityQuat, r3.Vec{X: 1, Y: 1, Z: 1})

	got := a.Mul(b).Translation()
	if got != (r3.Vec{X: 1, Y: 2}) {
		t.Errorf("translation = %v, want {1 2 0}", got)
	}
}

func TestSlerp_Endpoints(t *testing.T) {
	a := AxisAngle(r3.Vec{X: 1}, math.Pi/4)
	b := AxisAngle(r3.Vec{X: 1}, math.Pi)

	if got := Slerp(a, b, 0); got != a {
		t.Errorf("Slerp(t=0) = %v, want %v", got, a)
	}
	if got := Slerp(a, b, 1); math.Abs(math.Abs(dot(got, b))-1) > 1e-12 {
		t.Errorf("Slerp(t=1) = %v, want ±%v", got, b)
	}

	// Halfway between 45° and 180° about X is 112.5°.
	mid := Slerp(a, b, 0.5)
	want := AxisAngle(r3.Vec{X: 1}, 5*math.Pi/8)
	if math.Abs(math.Abs(dot(mid, want))-1) > 1e-9 {
		t.Errorf("Slerp(t=0.5) = %v, want ±%v", mid, want)
	}
}

func TestSlerp_ShortestArc(t *testing.T) {
	a := AxisAngle(r3.Vec{Z: 1}, 0.1)
	b := quat.Scale(-1, AxisAngle(r3.Vec{Z: 1}, 0.3)) // same rotation, opposite hemisphere

	mid := Slerp(a, b, 0.5)
	want := AxisAngle(r3.Vec{Z: 1}, 0.2)
	if math.Abs(math.Abs(dot(mid, want))-1) > 1e-9 {
		t.Errorf("Slerp took the long way: got %v, want ±%v", mid, want)
	}
}

func TestFromUnitVectors(t *testing.T) {
	tests := []struct {
		name string
		to   r3.Vec
	}{
		{"same", r3.Vec{Z: 1}},
		{"x", r3.Vec{X: 1}},
		{"diagonal", r3.Unit(r3.Vec{X: 1, Y: -1, Z: 1})},
		{"opposite", r3.Vec{Z: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := FromUnitVectors(Axis, tt.to)
			got := Rotate(q, Axis)
			if r3.Norm(r3.Sub(got, tt.to)) > 1e-9 {
				t.Errorf("rotated axis = %v, want %v", got, tt.to)
			}
		})
	}
}

func TestOffsetRotation_ZeroLength(t *testing.T) {
	q, length := offsetRotation(r3.Vec{})
	if length != 0 {
		t.Errorf("length = %f, want 0", length)
	}
	if q != IdentityQuat {
		t.Errorf("rotation = %v, want identity", q)
	}
}

func TestBuild_FirstJointRelativeToRoot(t *testing.T) {
	open, _, ref := mustCanonical(t)

	for _, f := range hand.Fingers() {
		root := f.Chain()[0]
		rel := ref.Open[root]
		want := r3.Norm(open[root].Translation())
		if math.Abs(rel.OffsetLength-want) > 1e-9 {
			t.Errorf("%s root offset = %f, want %f", f, rel.OffsetLength, want)
		}
	}
}

func TestBuild_MissingJoint(t *testing.T) {
	open, _, _ := mustCanonical(t)

	partial := make(AbsolutePose, len(open))
	for j, m := range open {
		partial[j] = m
	}
	delete(partial, hand.RingDistal)

	if _, err := Build(partial); err == nil {
		t.Error("Build() should fail when a joint is missing")
	}
}

func TestBuild_ZeroOffsetUsesIdentity(t *testing.T) {
	abs := make(AbsolutePose, hand.JointCount)
	for _, j := range hand.Joints() {
		abs[j] = Identity()
	}

	rel, err := Build(abs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for j, p := range rel {
		if p.OffsetLength != 0 {
			t.Errorf("%s offset length = %f, want 0", j, p.OffsetLength)
		}
		if p.OffsetRotation != IdentityQuat {
			t.Errorf("%s offset rotation = %v, want identity", j, p.OffsetRotation)
		}
	}
}

func TestComputeFinger_ReproducesCanonicalPoses(t *testing.T) {
	open, closed, ref := mustCanonical(t)

	tests := []struct {
		name  string
		alpha float64
		want  AbsolutePose
	}{
		{"open", 0, open},
		{"close", 1, closed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]float32, hand.BufferSize)
			for _, f := range hand.Fingers() {
				ComputeFinger(f, ref.Open, ref.Close, tt.alpha, buf)
				for _, j := range f.Chain() {
					idx, _ := hand.Slot(j)
					assertMatrixNear(t, string(j), buf[idx*16:idx*16+16], tt.want[j])
				}
			}
		})
	}
}

func TestAbsolute_RoundTrip(t *testing.T) {
	open, closed, ref := mustCanonical(t)

	var zero, one [hand.NumFingers]float64
	for i := range one {
		one[i] = 1
	}

	for _, tc := range []struct {
		flex [hand.NumFingers]float64
		want AbsolutePose
	}{{zero, open}, {one, closed}} {
		got := absolute(ref.Open, ref.Close, tc.flex)
		for j, m := range tc.want {
			for i := range m {
				if math.Abs(got[j][i]-m[i]) > tolerance {
					t.Fatalf("%s[%d] = %f, want %f", j, i, got[j][i], m[i])
				}
			}
		}
	}
}

func TestComputeFinger_OnlyWritesOwnSlots(t *testing.T) {
	_, _, ref := mustCanonical(t)

	buf := make([]float32, hand.BufferSize)
	ComputeFinger(hand.Middle, ref.Open, ref.Close, 0.5, buf)

	for _, j := range hand.Joints() {
		idx, _ := hand.Slot(j)
		f, _ := hand.FingerOf(j)
		written := false
		for _, v := range buf[idx*16 : idx*16+16] {
			if v != 0 {
				written = true
			}
		}
		if f == hand.Middle && !written {
			t.Errorf("%s was not written", j)
		}
		if f != hand.Middle && written {
			t.Errorf("%s was written by the middle finger", j)
		}
	}
}

func TestComputeFinger_PerFingerAlpha(t *testing.T) {
	open, closed, ref := mustCanonical(t)

	buf := make([]float32, hand.BufferSize)
	flex := [hand.NumFingers]float64{hand.Index: 1}
	ComputeHand(ref.Open, ref.Close, flex, buf)

	idx, _ := hand.Slot(hand.IndexTip)
	assertMatrixNear(t, "index tip", buf[idx*16:idx*16+16], closed[hand.IndexTip])

	idx, _ = hand.Slot(hand.MiddleTip)
	assertMatrixNear(t, "middle tip", buf[idx*16:idx*16+16], open[hand.MiddleTip])
}

func TestBlend_OffsetLengthMonotonic(t *testing.T) {
	_, _, ref := mustCanonical(t)

	for _, j := range hand.Joints() {
		from, to := ref.Open[j], ref.Close[j]
		lo, hi := math.Min(from.OffsetLength, to.OffsetLength), math.Max(from.OffsetLength, to.OffsetLength)

		prev := from.OffsetLength
		for step := 1; step <= 10; step++ {
			alpha := float64(step) / 10
			got := Blend(from, to, alpha).OffsetLength
			if got < lo-1e-12 || got > hi+1e-12 {
				t.Fatalf("%s: length %f at alpha %.1f outside [%f, %f]", j, got, alpha, lo, hi)
			}
			if (to.OffsetLength >= from.OffsetLength && got < prev-1e-12) ||
				(to.OffsetLength < from.OffsetLength && got > prev+1e-12) {
				t.Fatalf("%s: length not monotonic at alpha %.1f", j, alpha)
			}
			prev = got
		}
	}
}

func TestComputeFinger_Continuous(t *testing.T) {
	_, _, ref := mustCanonical(t)

	const steps = 200
	prev := tipPosition(hand.Index, ref.Open, ref.Close, 0)
	for i := 1; i <= steps; i++ {
		cur := tipPosition(hand.Index, ref.Open, ref.Close, float64(i)/steps)
		if d := r3.Norm(r3.Sub(cur, prev)); d > 0.01 {
			t.Fatalf("tip jumped %f m between steps %d and %d", d, i-1, i)
		}
		prev = cur
	}
}

func TestComputeFinger_ShortBufferPanics(t *testing.T) {
	_, _, ref := mustCanonical(t)

	defer func() {
		if recover() == nil {
			t.Error("ComputeFinger should panic on a short buffer")
		}
	}()
	ComputeFinger(hand.Thumb, ref.Open, ref.Close, 0, make([]float32, 10))
}

func TestParseAbsolute_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"missing joints", `{"name":"x","joints":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAbsolute([]byte(tt.data)); err == nil {
				t.Error("ParseAbsolute() should fail")
			}
		})
	}
}
