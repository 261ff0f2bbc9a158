package telemetry

import "fmt"

// Event is the outcome of one counter check. A gap is advisory: the frame
// that revealed it is still valid and is never dropped.
type Event struct {
	Gap      bool  `json:"gap"`
	Expected uint8 `json:"expected"`
	Got      uint8 `json:"got"`
}

func (e Event) String() string {
	if !e.Gap {
		return "ok"
	}
	return fmt.Sprintf("gap: expected %d, got %d", e.Expected, e.Got)
}

type streamState struct {
	seen bool
	last uint8
	gaps uint64
}

// Tracker remembers the last counter of every stream and reports
// discontinuities. It never resynchronizes: the latest counter always
// becomes the new reference.
//
// A Tracker is not safe for concurrent use; it belongs to the goroutine that
// drains the notification subscription.
type Tracker struct {
	streams map[Kind]*streamState
}

// NewTracker returns a tracker with every stream in the unknown state.
func NewTracker() *Tracker {
	return &Tracker{streams: make(map[Kind]*streamState, 3)}
}

// CheckAndUpdate compares counter with the successor of the last counter of
// stream k and records counter. The first observation of a stream is
// always Ok.
func (t *Tracker) CheckAndUpdate(k Kind, counter uint8) Event {
	st, ok := t.streams[k]
	if !ok {
		st = &streamState{}
		t.streams[k] = st
	}

	ev := Event{Got: counter}
	if st.seen {
		ev.Expected = st.last + 1
		if counter != ev.Expected {
			ev.Gap = true
			st.gaps++
		}
	} else {
		ev.Expected = counter
	}

	st.seen = true
	st.last = counter
	return ev
}

// Gaps returns the number of gaps seen on stream k since the last Reset.
func (t *Tracker) Gaps(k Kind) uint64 {
	if st, ok := t.streams[k]; ok {
		return st.gaps
	}
	return 0
}

// Reset returns every stream to the unknown state. It is used when a new
// subscription starts.
func (t *Tracker) Reset() {
	for k := range t.streams {
		delete(t.streams, k)
	}
}
