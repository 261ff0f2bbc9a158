package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

func checkLen(k Kind, b []byte) error {
	if need := k.Size(); len(b) < need {
		return &DecodeError{Kind: k, Need: need, Got: len(b)}
	}
	return nil
}

func unit(b byte) float64 {
	return float64(b) / 255
}

func float32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

// DecodeHandPose parses a hand-pose frame. Bytes 0-7 are the flex and wrist
// readings (divided by 255), byte 8 is the counter. Trailing bytes are
// ignored.
func DecodeHandPose(b []byte) (HandPose, error) {
	if err := checkLen(KindHandPose, b); err != nil {
		return HandPose{}, err
	}
	return HandPose{
		ThumbFlex:       unit(b[0]),
		ThumbOpposition: unit(b[1]),
		IndexFlex:       unit(b[2]),
		MiddleFlex:      unit(b[3]),
		RingFlex:        unit(b[4]),
		PinkyFlex:       unit(b[5]),
		WristFlex:       unit(b[6]),
		WristRotation:   unit(b[7]),
		Counter:         b[8],
	}, nil
}

// DecodeEMG parses a raw EMG frame: 6 channels of 15 little-endian float32
// samples, channel-major, followed by the counter at offset 360.
func DecodeEMG(b []byte) (EMG, error) {
	if err := checkLen(KindRawEMG, b); err != nil {
		return EMG{}, err
	}
	var e EMG
	for ch := 0; ch < NumChannels; ch++ {
		for s := 0; s < SamplesPerChannel; s++ {
			e.Channels[ch][s] = float32At(b, (ch*SamplesPerChannel+s)*4)
		}
	}
	e.Counter = b[EMGSize-1]
	return e, nil
}

// DecodeFilteredEMG parses a filtered EMG frame: 6 float32 channel values,
// a float32 state at offset 24 and the counter at offset 28.
func DecodeFilteredEMG(b []byte) (FilteredEMG, error) {
	if err := checkLen(KindFilteredEMG, b); err != nil {
		return FilteredEMG{}, err
	}
	var f FilteredEMG
	for ch := 0; ch < NumChannels; ch++ {
		f.Channels[ch] = float32At(b, ch*4)
	}
	f.State = float32At(b, NumChannels*4)
	f.Counter = b[FilteredEMGSize-1]
	return f, nil
}

// Decode parses b as a frame of the given kind.
func Decode(k Kind, b []byte) (Frame, error) {
	switch k {
	case KindHandPose:
		return DecodeHandPose(b)
	case KindRawEMG:
		return DecodeEMG(b)
	case KindFilteredEMG:
		return DecodeFilteredEMG(b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
}
