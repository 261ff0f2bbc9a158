package telemetry

import (
	"encoding/binary"
	"math"
)

func byteOf(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return byte(math.Round(v * 255))
	}
}

// EncodeHandPose lays p out in the 9-byte wire format. Scalars are clamped
// to [0, 1] and rounded to the nearest byte.
func EncodeHandPose(p HandPose) []byte {
	b := make([]byte, HandPoseSize)
	for i, v := range p.Vector() {
		b[i] = byteOf(v)
	}
	b[8] = p.Counter
	return b
}

// EncodeEMG lays e out in the 361-byte wire format.
func EncodeEMG(e EMG) []byte {
	b := make([]byte, EMGSize)
	for ch := 0; ch < NumChannels; ch++ {
		for s := 0; s < SamplesPerChannel; s++ {
			binary.LittleEndian.PutUint32(b[(ch*SamplesPerChannel+s)*4:], math.Float32bits(e.Channels[ch][s]))
		}
	}
	b[EMGSize-1] = e.Counter
	return b
}

// EncodeFilteredEMG lays f out in the 29-byte wire format.
func EncodeFilteredEMG(f FilteredEMG) []byte {
	b := make([]byte, FilteredEMGSize)
	for ch := 0; ch < NumChannels; ch++ {
		binary.LittleEndian.PutUint32(b[ch*4:], math.Float32bits(f.Channels[ch]))
	}
	binary.LittleEndian.PutUint32(b[NumChannels*4:], math.Float32bits(f.State))
	b[FilteredEMGSize-1] = f.Counter
	return b
}

// Encode lays any frame out in its wire format.
func Encode(f Frame) []byte {
	switch v := f.(type) {
	case HandPose:
		return EncodeHandPose(v)
	case EMG:
		return EncodeEMG(v)
	case FilteredEMG:
		return EncodeFilteredEMG(v)
	default:
		return nil
	}
}
