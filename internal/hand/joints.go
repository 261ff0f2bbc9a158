// Package hand describes the anatomy of the tracked hand: fingers, their
// joint chains and the fixed flat-buffer slot of every joint.
package hand

import "fmt"

// Finger identifies one of the five finger chains.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
)

// NumFingers is the number of finger chains.
const NumFingers = 5

// Joint is the stable anatomical name of a skeleton joint.
// Names follow the WebXR hand input convention.
type Joint string

// Wrist is the root of every finger chain. It is not part of any chain and
// has no flat-buffer slot.
const Wrist Joint = "wrist"

// Finger joints, root to tip.
const (
	ThumbMetacarpal      Joint = "thumb-metacarpal"
	ThumbProximal        Joint = "thumb-phalanx-proximal"
	ThumbDistal          Joint = "thumb-phalanx-distal"
	ThumbTip             Joint = "thumb-tip"
	IndexMetacarpal      Joint = "index-finger-metacarpal"
	IndexProximal        Joint = "index-finger-phalanx-proximal"
	IndexIntermediate    Joint = "index-finger-phalanx-intermediate"
	IndexDistal          Joint = "index-finger-phalanx-distal"
	IndexTip             Joint = "index-finger-tip"
	MiddleMetacarpal     Joint = "middle-finger-metacarpal"
	MiddleProximal       Joint = "middle-finger-phalanx-proximal"
	MiddleIntermediate   Joint = "middle-finger-phalanx-intermediate"
	MiddleDistal         Joint = "middle-finger-phalanx-distal"
	MiddleTip            Joint = "middle-finger-tip"
	RingMetacarpal       Joint = "ring-finger-metacarpal"
	RingProximal         Joint = "ring-finger-phalanx-proximal"
	RingIntermediate     Joint = "ring-finger-phalanx-intermediate"
	RingDistal           Joint = "ring-finger-phalanx-distal"
	RingTip              Joint = "ring-finger-tip"
	PinkyMetacarpal      Joint = "pinky-finger-metacarpal"
	PinkyProximal        Joint = "pinky-finger-phalanx-proximal"
	PinkyIntermediate    Joint = "pinky-finger-phalanx-intermediate"
	PinkyDistal          Joint = "pinky-finger-phalanx-distal"
	PinkyTip             Joint = "pinky-finger-tip"
)

// JointCount is the number of finger joints (wrist excluded).
const JointCount = 24

// MatrixSize is the number of floats per joint in a flat matrix buffer.
const MatrixSize = 16

// BufferSize is the length of a flat buffer holding every joint matrix.
const BufferSize = JointCount * MatrixSize

var chains = [NumFingers][]Joint{
	Thumb:  {ThumbMetacarpal, ThumbProximal, ThumbDistal, ThumbTip},
	Index:  {IndexMetacarpal, IndexProximal, IndexIntermediate, IndexDistal, IndexTip},
	Middle: {MiddleMetacarpal, MiddleProximal, MiddleIntermediate, MiddleDistal, MiddleTip},
	Ring:   {RingMetacarpal, RingProximal, RingIntermediate, RingDistal, RingTip},
	Pinky:  {PinkyMetacarpal, PinkyProximal, PinkyIntermediate, PinkyDistal, PinkyTip},
}

var fingerNames = [NumFingers]string{"thumb", "index", "middle", "ring", "pinky"}

// joints lists every finger joint in flat-buffer order.
var joints []Joint

// slots maps a joint to its flat-buffer index and finger.
var slots = make(map[Joint]slot, JointCount)

type slot struct {
	index  int
	finger Finger
}

func init() {
	for f, chain := range chains {
		for _, j := range chain {
			slots[j] = slot{index: len(joints), finger: Finger(f)}
			joints = append(joints, j)
		}
	}
	if len(joints) != JointCount {
		panic(fmt.Sprintf("hand: %d joints in chains, want %d", len(joints), JointCount))
	}
}

// Fingers returns all fingers in buffer order.
func Fingers() []Finger {
	return []Finger{Thumb, Index, Middle, Ring, Pinky}
}

// String returns the lower-case finger name.
func (f Finger) String() string {
	if f < 0 || int(f) >= NumFingers {
		return fmt.Sprintf("finger(%d)", int(f))
	}
	return fingerNames[f]
}

// Chain returns the joints of f ordered from the root (metacarpal) to the tip.
// The returned slice must not be modified.
func (f Finger) Chain() []Joint {
	if f < 0 || int(f) >= NumFingers {
		return nil
	}
	return chains[f]
}

// Joints returns every finger joint in flat-buffer order.
func Joints() []Joint {
	out := make([]Joint, len(joints))
	copy(out, joints)
	return out
}

// Slot returns the flat-buffer slot of j. The matrix of j occupies
// buf[Slot(j)*MatrixSize : Slot(j)*MatrixSize+MatrixSize].
func Slot(j Joint) (int, bool) {
	s, ok := slots[j]
	return s.index, ok
}

// FingerOf returns the finger that owns j.
func FingerOf(j Joint) (Finger, bool) {
	s, ok := slots[j]
	return s.finger, ok
}

// ParseFinger converts a finger name back to a Finger.
func ParseFinger(name string) (Finger, error) {
	for i, n := range fingerNames {
		if n == name {
			return Finger(i), nil
		}
	}
	return 0, fmt.Errorf("unknown finger %q", name)
}
