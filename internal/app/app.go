// Package app wires a notification source to the hand rig: it decodes and
// tracks incoming frames, poses the skeleton at a fixed tick rate, matches
// gestures and records sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ayusman/myomod/internal/device"
	"github.com/ayusman/myomod/internal/gesture"
	"github.com/ayusman/myomod/internal/rig"
	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/telemetry"
)

// Pipeline defaults.
const (
	// DefaultTickHz is the pose update rate when none is configured.
	DefaultTickHz = 60
	// DefaultRecordQueue is the recorder backlog when none is configured.
	DefaultRecordQueue = 256
	// DefaultGestureWindow is the number of recent hand poses kept for
	// motion matching when none is configured.
	DefaultGestureWindow = 90
	// gapLogEvery rate-limits gap and decode warnings per stream.
	gapLogEvery = 100
)

var (
	// ErrNoStore is returned by recording operations when the app has no store.
	ErrNoStore = errors.New("app: no store configured")
	// ErrRecording is returned by StartRecording while a session is open.
	ErrRecording = errors.New("app: already recording")
	// ErrNotRecording is returned by StopRecording when no session is open.
	ErrNotRecording = errors.New("app: not recording")
)

// Config holds configuration options for the application.
type Config struct {
	Store  *store.Store
	Source device.Source

	// Skeleton receives the joint matrices. A nil Skeleton gets an in-memory
	// rig.Model with every required joint.
	Skeleton rig.Skeleton

	TickHz             float64
	WristFlexRange     float64
	WristRotationRange float64
	RecordQueue        int
	GestureWindow      int
}

// StreamStats counts the frames seen on one stream.
type StreamStats struct {
	Frames       uint64 `json:"frames"`
	Gaps         uint64 `json:"gaps"`
	DecodeErrors uint64 `json:"decode_errors"`
}

type streamCounters struct {
	frames       atomic.Uint64
	gaps         atomic.Uint64
	decodeErrors atomic.Uint64
}

func (c *streamCounters) load() StreamStats {
	return StreamStats{
		Frames:       c.frames.Load(),
		Gaps:         c.gaps.Load(),
		DecodeErrors: c.decodeErrors.Load(),
	}
}

// handSample is a hand pose tagged with its arrival order so the tick loop
// can tell a new sample from one it already applied.
type handSample struct {
	pose telemetry.HandPose
	seq  uint64
}

// App orchestrates ingest, posing, gesture matching and recording.
type App struct {
	config        Config
	model         *rig.Model
	binding       *rig.Binding
	staticMatcher  *gesture.StaticMatcher
	dynamicMatcher *gesture.DynamicMatcher

	// window holds the recent hand vectors. It is owned by the tick
	// goroutine.
	window [][]float64

	enabled atomic.Bool

	latestHand     atomic.Pointer[handSample]
	latestEMG      atomic.Pointer[telemetry.EMG]
	latestFiltered atomic.Pointer[telemetry.FilteredEMG]
	snapshot       atomic.Pointer[Snapshot]
	handSeq        atomic.Uint64

	counters map[telemetry.Kind]*streamCounters

	// tracker is owned by the ingest goroutine.
	tracker *telemetry.Tracker

	recorder atomic.Pointer[Recorder]
	recMu    sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]func(Snapshot)
	nextID      int

	gestureMu        sync.RWMutex
	gestureCallbacks []func(id, name string)
	currentGesture   string
	lastGesture      string

	mu     sync.Mutex
	stopCh chan struct{}
	sub    *device.Subscription
	wg     sync.WaitGroup
}

// New creates an App and binds the skeleton. A skeleton missing any hand
// joint is rejected with a *rig.MissingJointError.
func New(config Config) (*App, error) {
	if config.TickHz <= 0 {
		config.TickHz = DefaultTickHz
	}
	if config.RecordQueue <= 0 {
		config.RecordQueue = DefaultRecordQueue
	}
	if config.GestureWindow < gesture.MinSequenceLen {
		config.GestureWindow = DefaultGestureWindow
	}
	if config.WristFlexRange == 0 && config.WristRotationRange == 0 {
		config.WristFlexRange = rig.DefaultFlexRange
		config.WristRotationRange = rig.DefaultRotationRange
	}

	a := &App{
		config:        config,
		staticMatcher:  gesture.NewStaticMatcher(),
		dynamicMatcher: gesture.NewDynamicMatcher(),
		counters:       make(map[telemetry.Kind]*streamCounters, 3),
		tracker:        telemetry.NewTracker(),
		listeners:      make(map[int]func(Snapshot)),
	}
	for _, k := range telemetry.Kinds() {
		a.counters[k] = &streamCounters{}
	}

	skel := config.Skeleton
	if skel == nil {
		a.model = rig.NewModel(rig.RequiredJoints()...)
		skel = a.model
	}

	binding, err := rig.Bind(skel, rig.RequiredJoints(),
		rig.WithWristRanges(config.WristFlexRange, config.WristRotationRange))
	if err != nil {
		return nil, fmt.Errorf("bind skeleton: %w", err)
	}
	a.binding = binding
	a.enabled.Store(true)

	return a, nil
}

// SetEnabled enables or disables pose streaming. Ingest and recording
// continue while streaming is disabled.
func (a *App) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// IsEnabled returns whether pose streaming is enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// LoadGestures loads gesture templates from the database into the matcher.
func (a *App) LoadGestures() error {
	return a.LoadGesturesFrom(a.config.Store)
}

// LoadGesturesFrom loads the trained gestures of st, which need not be the
// store the app records into.
func (a *App) LoadGesturesFrom(st *store.Store) error {
	if st == nil {
		return nil
	}

	gestures, err := st.Gestures().List()
	if err != nil {
		return err
	}

	loaded := 0
	for _, g := range gestures {
		t := g.MatchTemplate()
		if !t.Usable() {
			log.Printf("gesture %s has no trained template, skipping", g.Name)
			continue
		}
		a.AddTemplate(t)
		loaded++
	}

	log.Printf("Loaded %d of %d gestures from database", loaded, len(gestures))
	return nil
}

// AddTemplate hands t to the matcher for its type, replacing any template
// with the same ID.
func (a *App) AddTemplate(t *gesture.Template) {
	if t == nil {
		return
	}
	// An edit may change the type.
	a.RemoveTemplate(t.ID)
	if t.Dynamic() {
		a.dynamicMatcher.AddTemplate(t)
	} else {
		a.staticMatcher.AddTemplate(t)
	}
}

// RemoveTemplate withdraws a template from both matchers.
func (a *App) RemoveTemplate(id string) {
	a.staticMatcher.RemoveTemplate(id)
	a.dynamicMatcher.RemoveTemplate(id)
}

// RegisterGestureCallback registers fn to run whenever the best matching
// gesture changes to a new one.
func (a *App) RegisterGestureCallback(fn func(id, name string)) {
	a.gestureMu.Lock()
	defer a.gestureMu.Unlock()
	a.gestureCallbacks = append(a.gestureCallbacks, fn)
}

// AddListener registers fn to receive every published snapshot and returns
// a function that removes it. fn runs on the tick goroutine and must not
// block.
func (a *App) AddListener(fn func(Snapshot)) (remove func()) {
	a.listenersMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.listenersMu.Unlock()

	return func() {
		a.listenersMu.Lock()
		delete(a.listeners, id)
		a.listenersMu.Unlock()
	}
}

// Start subscribes to the source and starts the ingest and tick loops.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}
	if a.config.Source == nil {
		return errors.New("app: no source configured")
	}

	sub, err := a.config.Source.Subscribe(context.Background())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", a.config.Source.Name(), err)
	}

	// Counters and motion history restart with every subscription.
	a.tracker.Reset()
	a.window = a.window[:0]

	a.sub = sub
	a.stopCh = make(chan struct{})
	a.wg.Add(2)
	go a.runIngest(sub)
	go a.runPipeline(a.stopCh)

	log.Printf("Pipeline started on %s at %.0f Hz", a.config.Source.Name(), a.config.TickHz)
	return nil
}

// SourceDone returns a channel closed when the running source ends, or nil
// when the app is stopped.
func (a *App) SourceDone() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub == nil {
		return nil
	}
	return a.sub.Done()
}

// Stop closes the subscription, halts both loops and closes any open
// recording.
func (a *App) Stop() {
	a.mu.Lock()
	if a.stopCh == nil {
		a.mu.Unlock()
		return
	}
	close(a.stopCh)
	a.stopCh = nil
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if err := sub.Close(); err != nil {
		log.Printf("Error closing source: %v", err)
	}
	a.wg.Wait()

	if _, err := a.StopRecording(); err != nil && !errors.Is(err, ErrNotRecording) {
		log.Printf("Error closing recording: %v", err)
	}

	log.Println("Pipeline stopped")
}

// Running reports whether the pipeline is started.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCh != nil
}

// SourceName returns the name of the configured source.
func (a *App) SourceName() string {
	if a.config.Source == nil {
		return ""
	}
	return a.config.Source.Name()
}

// Store returns the backing store, which may be nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// StaticMatcher returns the hand-shape matcher.
func (a *App) StaticMatcher() *gesture.StaticMatcher {
	return a.staticMatcher
}

// DynamicMatcher returns the motion matcher.
func (a *App) DynamicMatcher() *gesture.DynamicMatcher {
	return a.dynamicMatcher
}

// Model returns the in-memory skeleton, or nil when a custom skeleton was
// configured.
func (a *App) Model() *rig.Model {
	return a.model
}

// Stats returns the counters of every stream keyed by stream name.
func (a *App) Stats() map[string]StreamStats {
	out := make(map[string]StreamStats, len(a.counters))
	for k, c := range a.counters {
		out[k.String()] = c.load()
	}
	return out
}

// TotalGaps returns the number of counter gaps seen on all streams.
func (a *App) TotalGaps() uint64 {
	var n uint64
	for _, c := range a.counters {
		n += c.gaps.Load()
	}
	return n
}

// LastGesture returns the name of the most recently matched gesture.
func (a *App) LastGesture() string {
	a.gestureMu.RLock()
	defer a.gestureMu.RUnlock()
	return a.lastGesture
}
