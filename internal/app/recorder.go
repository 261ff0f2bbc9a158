package app

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/myomod/internal/device"
	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/telemetry"
)

// Recorder batching.
const (
	recordBatch = 64
	recordFlush = 200 * time.Millisecond
)

// RecordingStatus describes an open recording session.
type RecordingStatus struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	Frames    int64     `json:"frames"`
	Gaps      int64     `json:"gaps"`
	Dropped   int64     `json:"dropped"`
}

type recordItem struct {
	frame *store.Frame
	gap   *store.Gap
}

// Recorder persists notifications of one session on its own goroutine.
// Record never blocks the ingest loop: when the queue is full the
// notification is dropped and counted.
type Recorder struct {
	store   *store.Store
	session store.Session
	queue   chan recordItem
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	frames  atomic.Int64
	gaps    atomic.Int64
	dropped atomic.Int64
}

func startRecorder(st *store.Store, name, source string, queue int) (*Recorder, error) {
	sess := store.Session{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		StartedAt: time.Now(),
	}
	if sess.Name == "" {
		sess.Name = sess.StartedAt.Format("2006-01-02 15:04:05")
	}
	if err := st.Sessions().Create(&sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	r := &Recorder{
		store:   st,
		session: sess,
		queue:   make(chan recordItem, queue),
		done:    make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Record queues one decoded notification and, when ev is a gap, the gap.
func (r *Recorder) Record(n device.Notification, counter uint8, ev telemetry.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	item := recordItem{frame: &store.Frame{
		SessionID:  r.session.ID,
		Kind:       n.Kind,
		Counter:    counter,
		ReceivedAt: n.ReceivedAt,
		Payload:    append([]byte(nil), n.Data...),
	}}
	if ev.Gap {
		item.gap = &store.Gap{
			SessionID: r.session.ID,
			Kind:      n.Kind,
			Expected:  ev.Expected,
			Got:       ev.Got,
			At:        n.ReceivedAt,
		}
	}

	select {
	case r.queue <- item:
	default:
		if d := r.dropped.Add(1); d == 1 || d%gapLogEvery == 0 {
			log.Printf("recorder: queue full, %d notifications dropped", d)
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(recordFlush)
	defer ticker.Stop()

	batch := make([]*store.Frame, 0, recordBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.Frames().Insert(batch); err != nil {
			log.Printf("recorder: insert %d frames: %v", len(batch), err)
		} else {
			r.frames.Add(int64(len(batch)))
		}
		batch = make([]*store.Frame, 0, recordBatch)
	}

	for {
		select {
		case item, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, item.frame)
			if item.gap != nil {
				if err := r.store.Gaps().Create(item.gap); err != nil {
					log.Printf("recorder: persist gap: %v", err)
				} else {
					r.gaps.Add(1)
				}
			}
			if len(batch) >= recordBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Status returns the live counters of the session.
func (r *Recorder) Status() RecordingStatus {
	return RecordingStatus{
		SessionID: r.session.ID,
		Name:      r.session.Name,
		StartedAt: r.session.StartedAt,
		Frames:    r.frames.Load(),
		Gaps:      r.gaps.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// Stop drains the queue, writes the remaining frames and closes the
// session.
func (r *Recorder) Stop() (*store.Session, error) {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done

	if err := r.store.Sessions().Stop(r.session.ID, time.Now(), r.frames.Load(), r.gaps.Load()); err != nil {
		return nil, fmt.Errorf("stop session %s: %w", r.session.ID, err)
	}
	return r.store.Sessions().GetByID(r.session.ID)
}

// StartRecording opens a new session and persists every notification until
// StopRecording.
func (a *App) StartRecording(name string) (*store.Session, error) {
	a.recMu.Lock()
	defer a.recMu.Unlock()

	if a.config.Store == nil {
		return nil, ErrNoStore
	}
	if a.recorder.Load() != nil {
		return nil, ErrRecording
	}

	r, err := startRecorder(a.config.Store, name, a.SourceName(), a.config.RecordQueue)
	if err != nil {
		return nil, err
	}
	a.recorder.Store(r)

	log.Printf("Recording session %s (%s)", r.session.ID, r.session.Name)
	sess := r.session
	return &sess, nil
}

// StopRecording closes the open session and returns it with its final
// counts.
func (a *App) StopRecording() (*store.Session, error) {
	a.recMu.Lock()
	defer a.recMu.Unlock()

	r := a.recorder.Swap(nil)
	if r == nil {
		return nil, ErrNotRecording
	}

	sess, err := r.Stop()
	if err != nil {
		return nil, err
	}
	log.Printf("Recording %s stopped: %d frames, %d gaps, %d dropped",
		sess.ID, sess.Frames, sess.Gaps, r.dropped.Load())
	return sess, nil
}

// Recording returns the status of the open session.
func (a *App) Recording() (RecordingStatus, bool) {
	r := a.recorder.Load()
	if r == nil {
		return RecordingStatus{}, false
	}
	return r.Status(), true
}
