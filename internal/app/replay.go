package app

import (
	"fmt"

	"github.com/ayusman/myomod/internal/device"
	"github.com/ayusman/myomod/internal/store"
)

// replayPage is the number of frames read per query when loading a session.
const replayPage = 1000

// SessionNotifications loads every recorded frame of a session as
// notifications in arrival order.
func SessionNotifications(st *store.Store, sessionID string) ([]device.Notification, error) {
	if _, err := st.Sessions().GetByID(sessionID); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	var out []device.Notification
	var after int64
	for {
		frames, err := st.Frames().List(sessionID, after, replayPage)
		if err != nil {
			return nil, fmt.Errorf("list frames of %s: %w", sessionID, err)
		}
		for _, f := range frames {
			out = append(out, device.Notification{
				Kind:       f.Kind,
				Data:       f.Payload,
				ReceivedAt: f.ReceivedAt,
			})
		}
		if len(frames) < replayPage {
			return out, nil
		}
		after = frames[len(frames)-1].ID
	}
}

// SessionReplay builds a replay source for a recorded session.
func SessionReplay(st *store.Store, sessionID string, speed float64, loop bool) (*device.ReplaySource, error) {
	frames, err := SessionNotifications(st, sessionID)
	if err != nil {
		return nil, err
	}
	return device.NewReplaySource(sessionID, frames, speed, loop), nil
}
