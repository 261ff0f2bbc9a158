// Package telemetry decodes the fixed-layout notification packets emitted by
// the MyoMod wearable and tracks their sequence counters.
package telemetry

import (
	"fmt"

	"github.com/ayusman/myomod/internal/hand"
)

// Kind identifies one of the three notification streams.
type Kind uint8

const (
	KindHandPose Kind = iota + 1
	KindRawEMG
	KindFilteredEMG
)

// Frame lengths in bytes.
const (
	HandPoseSize    = 9
	EMGSize         = NumChannels*SamplesPerChannel*4 + 1
	FilteredEMGSize = NumChannels*4 + 4 + 1
)

// EMG geometry.
const (
	NumChannels       = 6
	SamplesPerChannel = 15
)

var channelNames = [NumChannels]string{"chnA", "chnB", "chnC", "chnD", "chnE", "chnF"}

// Kinds returns every stream kind.
func Kinds() []Kind {
	return []Kind{KindHandPose, KindRawEMG, KindFilteredEMG}
}

// String returns the stream name used in logs, storage and topics.
func (k Kind) String() string {
	switch k {
	case KindHandPose:
		return "hand_pose"
	case KindRawEMG:
		return "raw_emg"
	case KindFilteredEMG:
		return "filtered_emg"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Size returns the minimum frame length of the stream, or 0 for an unknown
// kind.
func (k Kind) Size() int {
	switch k {
	case KindHandPose:
		return HandPoseSize
	case KindRawEMG:
		return EMGSize
	case KindFilteredEMG:
		return FilteredEMGSize
	default:
		return 0
	}
}

// ParseKind converts a stream name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown stream kind %q", s)
}

// MarshalText encodes k as its stream name.
func (k Kind) MarshalText() ([]byte, error) {
	if k.Size() == 0 {
		return nil, fmt.Errorf("telemetry: cannot marshal %s", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses a stream name.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Frame is a decoded notification. The set of implementations is closed:
// HandPose, EMG and FilteredEMG.
type Frame interface {
	Kind() Kind
	// Seq returns the raw mod-256 frame counter.
	Seq() uint8

	frame()
}

// HandPose holds the normalized flex and wrist readings of one hand-pose
// frame. Every scalar is in [0, 1]; 0 means fully open.
type HandPose struct {
	ThumbFlex       float64 `json:"thumb_flex" cbor:"thumb_flex"`
	ThumbOpposition float64 `json:"thumb_opposition" cbor:"thumb_opposition"`
	IndexFlex       float64 `json:"index_flex" cbor:"index_flex"`
	MiddleFlex      float64 `json:"middle_flex" cbor:"middle_flex"`
	RingFlex        float64 `json:"ring_flex" cbor:"ring_flex"`
	PinkyFlex       float64 `json:"pinky_flex" cbor:"pinky_flex"`
	WristFlex       float64 `json:"wrist_flex" cbor:"wrist_flex"`
	WristRotation   float64 `json:"wrist_rotation" cbor:"wrist_rotation"`
	Counter         uint8   `json:"counter" cbor:"counter"`
}

func (HandPose) Kind() Kind { return KindHandPose }
func (p HandPose) Seq() uint8 { return p.Counter }
func (HandPose) frame() {}

// CounterNormalized returns the counter scaled to [0, 1].
func (p HandPose) CounterNormalized() float64 {
	return float64(p.Counter) / 255
}

// FingerFlex returns the flex reading that drives finger f.
func (p HandPose) FingerFlex(f hand.Finger) float64 {
	switch f {
	case hand.Thumb:
		return p.ThumbFlex
	case hand.Index:
		return p.IndexFlex
	case hand.Middle:
		return p.MiddleFlex
	case hand.Ring:
		return p.RingFlex
	case hand.Pinky:
		return p.PinkyFlex
	default:
		return 0
	}
}

// Flex returns the five finger flex readings indexed by hand.Finger.
func (p HandPose) Flex() [hand.NumFingers]float64 {
	var out [hand.NumFingers]float64
	for _, f := range hand.Fingers() {
		out[f] = p.FingerFlex(f)
	}
	return out
}

// Vector returns the eight scalars in wire order.
func (p HandPose) Vector() []float64 {
	return []float64{
		p.ThumbFlex, p.ThumbOpposition, p.IndexFlex, p.MiddleFlex,
		p.RingFlex, p.PinkyFlex, p.WristFlex, p.WristRotation,
	}
}

// EMG holds one raw EMG frame: 15 consecutive samples per channel.
type EMG struct {
	Channels [NumChannels][SamplesPerChannel]float32 `json:"channels" cbor:"channels"`
	Counter  uint8                                    `json:"counter" cbor:"counter"`
}

func (EMG) Kind() Kind { return KindRawEMG }
func (e EMG) Seq() uint8 { return e.Counter }
func (EMG) frame() {}

// Channel returns the samples of the named channel ("chnA".."chnF").
func (e EMG) Channel(name string) ([SamplesPerChannel]float32, bool) {
	for i, n := range channelNames {
		if n == name {
			return e.Channels[i], true
		}
	}
	return [SamplesPerChannel]float32{}, false
}

// FilteredEMG holds one filtered EMG frame: a single value per channel and
// the classifier state reported by the device.
type FilteredEMG struct {
	Channels [NumChannels]float32 `json:"channels" cbor:"channels"`
	State    float32              `json:"state" cbor:"state"`
	Counter  uint8                `json:"counter" cbor:"counter"`
}

func (FilteredEMG) Kind() Kind { return KindFilteredEMG }
func (f FilteredEMG) Seq() uint8 { return f.Counter }
func (FilteredEMG) frame() {}

// Channel returns the value of the named channel ("chnA".."chnF").
func (f FilteredEMG) Channel(name string) (float32, bool) {
	for i, n := range channelNames {
		if n == name {
			return f.Channels[i], true
		}
	}
	return 0, false
}
