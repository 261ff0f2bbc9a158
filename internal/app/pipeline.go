package app

import (
	"log"
	"time"

	"github.com/ayusman/myomod/internal/device"
	"github.com/ayusman/myomod/internal/gesture"
	"github.com/ayusman/myomod/internal/telemetry"
)

// Snapshot is the posed hand published once per tick.
type Snapshot struct {
	Seq     uint64             `json:"seq" cbor:"seq"`
	Time    time.Time          `json:"time" cbor:"time"`
	Hand    telemetry.HandPose `json:"hand" cbor:"hand"`
	Joints  []float32          `json:"joints" cbor:"joints"`
	Wrist   [16]float32        `json:"wrist" cbor:"wrist"`
	Gesture string             `json:"gesture,omitempty" cbor:"gesture,omitempty"`
	Score   float64            `json:"score,omitempty" cbor:"score,omitempty"`
	Gaps    uint64             `json:"gaps" cbor:"gaps"`
}

// State is the full view of the pipeline served over HTTP.
type State struct {
	Running     bool                   `json:"running"`
	Streaming   bool                   `json:"streaming"`
	Source      string                 `json:"source"`
	Streams     map[string]StreamStats `json:"streams"`
	HandPose    *telemetry.HandPose    `json:"hand_pose,omitempty"`
	EMG         *telemetry.EMG         `json:"raw_emg,omitempty"`
	FilteredEMG *telemetry.FilteredEMG `json:"filtered_emg,omitempty"`
	Snapshot    *Snapshot              `json:"snapshot,omitempty"`
	Recording   *RecordingStatus       `json:"recording,omitempty"`
	LastGesture string                 `json:"last_gesture,omitempty"`
}

// State returns the latest samples, counters and pose.
func (a *App) State() State {
	st := State{
		Running:     a.Running(),
		Streaming:   a.IsEnabled(),
		Source:      a.SourceName(),
		Streams:     a.Stats(),
		EMG:         a.latestEMG.Load(),
		FilteredEMG: a.latestFiltered.Load(),
		Snapshot:    a.snapshot.Load(),
		LastGesture: a.LastGesture(),
	}
	if s := a.latestHand.Load(); s != nil {
		p := s.pose
		st.HandPose = &p
	}
	if r := a.recorder.Load(); r != nil {
		status := r.Status()
		st.Recording = &status
	}
	return st
}

// LatestHandPose returns the most recent hand pose, or false before the
// first one arrives.
func (a *App) LatestHandPose() (telemetry.HandPose, bool) {
	s := a.latestHand.Load()
	if s == nil {
		return telemetry.HandPose{}, false
	}
	return s.pose, true
}

// LatestSnapshot returns the last published snapshot, or nil before the
// first tick with data.
func (a *App) LatestSnapshot() *Snapshot {
	return a.snapshot.Load()
}

// runIngest drains the subscription until it closes. It is the only
// writer of the latest-sample slots and the sequence tracker.
func (a *App) runIngest(sub *device.Subscription) {
	defer a.wg.Done()

	for n := range sub.C() {
		a.ingest(n)
	}

	if err := sub.Err(); err != nil {
		log.Printf("ingest: source stopped: %v", err)
	} else {
		log.Println("ingest: source finished")
	}
}

// ingest decodes one notification, checks its counter and publishes the
// sample to the latest slots. Malformed frames are counted and dropped.
func (a *App) ingest(n device.Notification) {
	c, ok := a.counters[n.Kind]
	if !ok {
		log.Printf("ingest: notification of unknown kind %d dropped", n.Kind)
		return
	}

	f, err := telemetry.Decode(n.Kind, n.Data)
	if err != nil {
		if errs := c.decodeErrors.Add(1); errs == 1 || errs%gapLogEvery == 0 {
			log.Printf("ingest: dropping frame (%d so far): %v", errs, err)
		}
		return
	}
	c.frames.Add(1)

	ev := a.tracker.CheckAndUpdate(n.Kind, f.Seq())
	if ev.Gap {
		c.gaps.Add(1)
		// Rate limited per subscription.
		if gaps := a.tracker.Gaps(n.Kind); gaps == 1 || gaps%gapLogEvery == 0 {
			log.Printf("telemetry: %s counter gap: expected %d, got %d (%d gaps so far)",
				n.Kind, ev.Expected, ev.Got, gaps)
		}
	}

	switch v := f.(type) {
	case telemetry.HandPose:
		a.latestHand.Store(&handSample{pose: v, seq: a.handSeq.Add(1)})
	case telemetry.EMG:
		a.latestEMG.Store(&v)
	case telemetry.FilteredEMG:
		a.latestFiltered.Store(&v)
	}

	if r := a.recorder.Load(); r != nil {
		r.Record(n, f.Seq(), ev)
	}
}

// runPipeline poses the skeleton from the latest hand sample once per tick.
//
// Pipeline logic:
// 1. Skip the tick while streaming is disabled
// 2. Skip the tick when no new hand sample arrived (coalescing)
// 3. Interpolate all finger joints and the wrist
// 4. Match the recent motion, then the sample, against the gesture templates
// 5. Publish the snapshot to listeners
func (a *App) runPipeline(stopCh <-chan struct{}) {
	defer a.wg.Done()

	interval := time.Duration(float64(time.Second) / a.config.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var applied uint64
	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			if snap, ok := a.step(now, &applied); ok {
				a.publish(snap)
			}
		}
	}
}

// step applies the latest hand sample if it is newer than applied.
func (a *App) step(now time.Time, applied *uint64) (Snapshot, bool) {
	s := a.latestHand.Load()
	if s == nil || s.seq == *applied {
		return Snapshot{}, false
	}
	*applied = s.seq

	a.binding.Update(s.pose)

	snap := Snapshot{
		Seq:    s.seq,
		Time:   now,
		Hand:   s.pose,
		Joints: a.binding.Matrices(),
		Wrist:  a.binding.Wrist(),
		Gaps:   a.TotalGaps(),
	}

	if m, ok := a.matchMotion(s.pose); ok {
		snap.Gesture = m.Template.Name
		snap.Score = m.Score
		a.gestureMatched(m.Template, m.Score)
	} else if m, ok := a.staticMatcher.Best(s.pose); ok {
		snap.Gesture = m.Template.Name
		snap.Score = m.Score
		a.gestureMatched(m.Template, m.Score)
	} else {
		a.gestureMatched(nil, 0)
	}

	a.snapshot.Store(&snap)
	return snap, true
}

// matchMotion appends p to the window and matches it against the dynamic
// templates. A match empties the window so one motion fires once.
func (a *App) matchMotion(p telemetry.HandPose) (gesture.Match, bool) {
	a.window = append(a.window, p.Vector())
	if over := len(a.window) - a.config.GestureWindow; over > 0 {
		a.window = append(a.window[:0], a.window[over:]...)
	}
	if a.dynamicMatcher.Len() == 0 {
		return gesture.Match{}, false
	}

	m, ok := a.dynamicMatcher.Best(a.window)
	if ok {
		a.window = a.window[:0]
	}
	return m, ok
}

// gestureMatched fires the gesture callbacks when the matched gesture
// changes. A nil template clears the current match so the same gesture
// fires again after the hand leaves it.
func (a *App) gestureMatched(t *gesture.Template, score float64) {
	id := ""
	if t != nil {
		id = t.ID
	}

	a.gestureMu.Lock()
	if id == a.currentGesture {
		a.gestureMu.Unlock()
		return
	}
	a.currentGesture = id
	if id == "" {
		a.gestureMu.Unlock()
		return
	}
	a.lastGesture = t.Name
	callbacks := append([]func(id, name string){}, a.gestureCallbacks...)
	a.gestureMu.Unlock()

	kind := "Static"
	if t.Dynamic() {
		kind = "Dynamic"
	}
	log.Printf("%s gesture matched: %s (score: %.3f)", kind, t.Name, score)
	for _, fn := range callbacks {
		fn(id, t.Name)
	}
}

func (a *App) publish(snap Snapshot) {
	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, fn := range a.listeners {
		fn(snap)
	}
}
