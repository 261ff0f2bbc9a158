// Package testdata holds recorded notification payloads used by tests.
package testdata

import (
	"embed"
	"fmt"
	"time"

	"github.com/ayusman/myomod/internal/device"
	"github.com/ayusman/myomod/internal/telemetry"
)

//go:embed frames/*.bin
var framesFS embed.FS

// Fixture names.
const (
	HandPoseOpen = "hand_pose_open.bin"
	HandPoseFist = "hand_pose_fist.bin"
	RawEMG       = "raw_emg.bin"
	FilteredEMG  = "filtered_emg.bin"
	// HandPoseGap is four back-to-back hand-pose frames with counters
	// 5, 6, 8 and 9.
	HandPoseGap = "hand_pose_gap.bin"
)

// LoadFrame loads the raw bytes of a fixture.
func LoadFrame(name string) ([]byte, error) {
	data, err := framesFS.ReadFile("frames/" + name)
	if err != nil {
		return nil, fmt.Errorf("load frame %s: %w", name, err)
	}
	return data, nil
}

// LoadSequence splits a fixture of back-to-back frames of kind k.
func LoadSequence(name string, k telemetry.Kind) ([][]byte, error) {
	data, err := LoadFrame(name)
	if err != nil {
		return nil, err
	}

	size := k.Size()
	if size == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("frame %s: %d bytes is not a whole number of %s frames", name, len(data), k)
	}

	frames := make([][]byte, 0, len(data)/size)
	for off := 0; off < len(data); off += size {
		frames = append(frames, data[off:off+size])
	}
	return frames, nil
}

// Notifications wraps a sequence fixture as notifications spaced by
// interval, starting at start.
func Notifications(name string, k telemetry.Kind, start time.Time, interval time.Duration) ([]device.Notification, error) {
	frames, err := LoadSequence(name, k)
	if err != nil {
		return nil, err
	}

	out := make([]device.Notification, len(frames))
	for i, f := range frames {
		out[i] = device.Notification{
			Kind:       k,
			Data:       f,
			ReceivedAt: start.Add(time.Duration(i) * interval),
		}
	}
	return out, nil
}
