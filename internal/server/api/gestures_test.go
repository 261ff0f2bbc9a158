package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/myomod/internal/gesture"
	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/telemetry"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// fakeSink records the templates pushed by the gesture handler.
type fakeSink struct {
	templates map[string]*gesture.Template
}

func newFakeSink() *fakeSink {
	return &fakeSink{templates: make(map[string]*gesture.Template)}
}

func (f *fakeSink) AddTemplate(t *gesture.Template) { f.templates[t.ID] = t }
func (f *fakeSink) RemoveTemplate(id string)        { delete(f.templates, id) }

func createGesture(t *testing.T, s *store.Store, id, name string, template []float64) {
	t.Helper()
	g := &store.Gesture{ID: id, Name: name, Tolerance: 0.15, Template: template}
	if err := s.Gestures().Create(g); err != nil {
		t.Fatalf("failed to create gesture: %v", err)
	}
}

func serve(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGestureHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewGestureHandler(s, nil)

	createGesture(t, s, "g1", "point", nil)

	rec := serve(handler, http.MethodGet, "/api/gestures", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response listGesturesResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Gestures) != 1 {
		t.Fatalf("expected 1 gesture, got %d", len(response.Gestures))
	}
	if response.Gestures[0].Name != "point" {
		t.Errorf("expected gesture name 'point', got %q", response.Gestures[0].Name)
	}
	if response.Gestures[0].Template == nil {
		t.Error("expected empty template array, got null")
	}
}

func TestGestureHandler_Create(t *testing.T) {
	s := newTestStore(t)
	sink := newFakeSink()
	handler := NewGestureHandler(s, sink)

	t.Run("with template", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures", createGestureRequest{
			Name:      "fist",
			Tolerance: 0.2,
			Template:  []float64{1, 0.5, 1, 1, 1, 1, 0.5, 0.5},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
		}

		var response gestureResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.ID == "" {
			t.Error("expected non-empty ID in response")
		}
		if response.Tolerance != 0.2 {
			t.Errorf("expected tolerance 0.2, got %f", response.Tolerance)
		}

		// Persisted and pushed to the matcher
		if _, err := s.Gestures().GetByID(response.ID); err != nil {
			t.Fatalf("failed to get created gesture: %v", err)
		}
		if _, ok := sink.templates[response.ID]; !ok {
			t.Error("template not pushed to the matcher")
		}
	})

	t.Run("default tolerance", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures", createGestureRequest{Name: "open"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
		}
		var response gestureResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Tolerance != DefaultTolerance {
			t.Errorf("expected tolerance %v, got %v", DefaultTolerance, response.Tolerance)
		}
		if _, ok := sink.templates[response.ID]; ok {
			t.Error("untrained gesture pushed to the matcher")
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures", createGestureRequest{Name: "open"})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
		}
	})

	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid JSON", "invalid json"},
		{"missing name", createGestureRequest{Tolerance: 0.15}},
		{"negative tolerance", createGestureRequest{Name: "x", Tolerance: -1}},
		{"short template", createGestureRequest{Name: "y", Template: []float64{1, 2}}},
		{"template out of range", createGestureRequest{Name: "z", Template: []float64{0, 0, 0, 0, 0, 0, 0, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, http.MethodPost, "/api/gestures", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestGestureHandler_Get(t *testing.T) {
	s := newTestStore(t)
	handler := NewGestureHandler(s, nil)
	createGesture(t, s, "g1", "point", nil)

	rec := serve(handler, http.MethodGet, "/api/gestures/g1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response gestureResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID != "g1" || response.Name != "point" {
		t.Errorf("unexpected gesture %+v", response)
	}

	rec = serve(handler, http.MethodGet, "/api/gestures/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGestureHandler_Update(t *testing.T) {
	s := newTestStore(t)
	sink := newFakeSink()
	handler := NewGestureHandler(s, sink)
	createGesture(t, s, "g1", "point", []float64{0, 0, 0, 1, 1, 1, 0.5, 0.5})

	rec := serve(handler, http.MethodPut, "/api/gestures/g1", updateGestureRequest{Name: "pointing", Tolerance: 0.3})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var response gestureResponse
	json.NewDecoder(rec.Body).Decode(&response)
	if response.Name != "pointing" || response.Tolerance != 0.3 {
		t.Errorf("unexpected gesture %+v", response)
	}
	if len(response.Template) != gesture.VectorSize {
		t.Errorf("template lost on update: %v", response.Template)
	}
	if tpl, ok := sink.templates["g1"]; !ok || tpl.Tolerance != 0.3 {
		t.Errorf("matcher template = %+v, want tolerance 0.3", tpl)
	}

	rec = serve(handler, http.MethodPut, "/api/gestures/missing", updateGestureRequest{Name: "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGestureHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	sink := newFakeSink()
	handler := NewGestureHandler(s, sink)
	createGesture(t, s, "g1", "point", nil)
	sink.templates["g1"] = &gesture.Template{ID: "g1"}

	rec := serve(handler, http.MethodDelete, "/api/gestures/g1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if _, err := s.Gestures().GetByID("g1"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if len(sink.templates) != 0 {
		t.Error("template not removed from the matcher")
	}

	rec = serve(handler, http.MethodDelete, "/api/gestures/g1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGestureHandler_Train(t *testing.T) {
	s := newTestStore(t)
	sink := newFakeSink()
	handler := NewGestureHandler(s, sink)
	createGesture(t, s, "g1", "fist", nil)

	t.Run("no samples", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures/g1/train", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	samples := []json.RawMessage{
		json.RawMessage(`{"thumb_flex":1,"index_flex":1,"middle_flex":1,"ring_flex":1,"pinky_flex":1,"wrist_flex":0.5,"wrist_rotation":0.5}`),
		json.RawMessage(`{"thumb_flex":0.8,"index_flex":1,"middle_flex":1,"ring_flex":1,"pinky_flex":1,"wrist_flex":0.5,"wrist_rotation":0.5}`),
	}
	if err := s.Samples().Append("g1", samples); err != nil {
		t.Fatalf("failed to append samples: %v", err)
	}

	t.Run("averages samples", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures/g1/train", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}

		var response gestureResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if len(response.Template) != gesture.VectorSize {
			t.Fatalf("expected %d template values, got %d", gesture.VectorSize, len(response.Template))
		}
		if got := response.Template[0]; got < 0.899 || got > 0.901 {
			t.Errorf("expected thumb flex 0.9, got %v", got)
		}
		if response.Tolerance < gesture.MinTolerance {
			t.Errorf("tolerance %v below minimum", response.Tolerance)
		}
		if _, ok := sink.templates["g1"]; !ok {
			t.Error("trained template not pushed to the matcher")
		}
	})

	t.Run("keep tolerance", func(t *testing.T) {
		g, _ := s.Gestures().GetByID("g1")
		g.Tolerance = 0.42
		s.Gestures().Update(g)

		rec := serve(handler, http.MethodPost, "/api/gestures/g1/train", trainRequest{KeepTolerance: true})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var response gestureResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if response.Tolerance != 0.42 {
			t.Errorf("expected tolerance 0.42, got %v", response.Tolerance)
		}
	})

	t.Run("GET not allowed", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/api/gestures/g1/train", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestGestureHandler_MethodNotAllowed(t *testing.T) {
	s := newTestStore(t)
	handler := NewGestureHandler(s, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPatch, "/api/gestures"},
		{http.MethodDelete, "/api/gestures"},
		{http.MethodPost, "/api/gestures/g1"},
	}
	for _, tt := range tests {
		rec := serve(handler, tt.method, tt.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, http.StatusMethodNotAllowed, rec.Code)
		}
	}
}

type fakePoseSource struct {
	pose telemetry.HandPose
	ok   bool
}

func (f *fakePoseSource) LatestHandPose() (telemetry.HandPose, bool) {
	return f.pose, f.ok
}

func TestSamplesHandler(t *testing.T) {
	s := newTestStore(t)
	live := &fakePoseSource{}
	handler := NewSamplesHandler(s, live)
	createGesture(t, s, "g1", "point", nil)

	t.Run("append", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures/g1/samples", `{"samples": [{"index_flex": 0.1}, {"index_flex": 0.2}]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
		}

		rec = serve(handler, http.MethodGet, "/api/gestures/g1/samples", nil)
		var response listSamplesResponse
		json.NewDecoder(rec.Body).Decode(&response)
		if len(response.Samples) != 2 {
			t.Fatalf("expected 2 samples, got %d", len(response.Samples))
		}
		if response.Samples[1].Index != 1 || response.Samples[1].Pose.IndexFlex != 0.2 {
			t.Errorf("unexpected sample %+v", response.Samples[1])
		}
	})

	t.Run("capture", func(t *testing.T) {
		rec := serve(handler, http.MethodPost, "/api/gestures/g1/samples", `{"capture": true}`)
		if rec.Code != http.StatusConflict {
			t.Errorf("expected status %d before any pose, got %d", http.StatusConflict, rec.Code)
		}

		live.pose = telemetry.HandPose{ThumbFlex: 0.9, IndexFlex: 0.05}
		live.ok = true
		rec = serve(handler, http.MethodPost, "/api/gestures/g1/samples", `{"capture": true}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
		}
		var added appendSamplesResponse
		json.NewDecoder(rec.Body).Decode(&added)
		if added.Added != 1 || added.Total != 3 {
			t.Errorf("unexpected append response %+v", added)
		}

		rec = serve(handler, http.MethodPost, "/api/gestures/g1/samples", `{"capture": true, "samples": [{"index_flex": 0.1}]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d for capture with samples, got %d", http.StatusBadRequest, rec.Code)
		}

		rec = serve(NewSamplesHandler(s, nil), http.MethodPost, "/api/gestures/g1/samples", `{"capture": true}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d without a live stream, got %d", http.StatusServiceUnavailable, rec.Code)
		}
	})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"empty", "/api/gestures/g1/samples", `{"samples": []}`, http.StatusBadRequest},
		{"out of range", "/api/gestures/g1/samples", `{"samples": [{"index_flex": 1.5}]}`, http.StatusBadRequest},
		{"not a pose", "/api/gestures/g1/samples", `{"samples": [[1, 2]]}`, http.StatusBadRequest},
		{"unknown gesture", "/api/gestures/missing/samples", `{"samples": [{"index_flex": 0.1}]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}

	t.Run("clear", func(t *testing.T) {
		rec := serve(handler, http.MethodDelete, "/api/gestures/g1/samples", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
		g, _ := s.Gestures().GetByID("g1")
		if g.Samples != 0 {
			t.Errorf("expected sample count 0, got %d", g.Samples)
		}
	})

	t.Run("list unknown gesture", func(t *testing.T) {
		rec := serve(handler, http.MethodGet, "/api/gestures/missing/samples", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestSamplesHandler_Session(t *testing.T) {
	s := newTestStore(t)
	handler := NewSamplesHandler(s, nil)
	createGesture(t, s, "g1", "wave", nil)

	// 1. A session with three hand frames and one EMG frame between them
	if err := s.Sessions().Create(&store.Session{ID: "s1", Name: "wave", Source: "simulator"}); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	frames := []*store.Frame{
		{SessionID: "s1", Kind: telemetry.KindHandPose, Payload: telemetry.EncodeHandPose(telemetry.HandPose{IndexFlex: 1})},
		{SessionID: "s1", Kind: telemetry.KindFilteredEMG, Payload: telemetry.EncodeFilteredEMG(telemetry.FilteredEMG{})},
		{SessionID: "s1", Kind: telemetry.KindHandPose, Payload: telemetry.EncodeHandPose(telemetry.HandPose{MiddleFlex: 1})},
		{SessionID: "s1", Kind: telemetry.KindHandPose, Payload: telemetry.EncodeHandPose(telemetry.HandPose{RingFlex: 1})},
	}
	for i, f := range frames {
		f.Counter = uint8(i)
		f.ReceivedAt = time.Now()
	}
	if err := s.Frames().Insert(frames); err != nil {
		t.Fatalf("failed to insert frames: %v", err)
	}
	stored, _ := s.Frames().List("s1", 0, 0)

	// 2. Import in recording order, skipping other streams
	rec := serve(handler, http.MethodPost, "/api/gestures/g1/samples", `{"session_id": "s1", "limit": 2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var added appendSamplesResponse
	json.NewDecoder(rec.Body).Decode(&added)
	if added.Added != 2 {
		t.Errorf("added %d samples, want 2", added.Added)
	}

	rec = serve(handler, http.MethodGet, "/api/gestures/g1/samples", nil)
	var list listSamplesResponse
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Samples) != 2 || list.Samples[0].Pose.IndexFlex != 1 || list.Samples[1].Pose.MiddleFlex != 1 {
		t.Errorf("samples = %+v", list.Samples)
	}

	// 3. Resume after the first frame
	body := fmt.Sprintf(`{"session_id": "s1", "after": %d}`, stored[0].ID)
	rec = serve(handler, http.MethodPost, "/api/gestures/g1/samples", body)
	json.NewDecoder(rec.Body).Decode(&added)
	if added.Added != 2 || added.Total != 4 {
		t.Errorf("append response %+v, want 2 added of 4", added)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown session", `{"session_id": "nope"}`, http.StatusNotFound},
		{"limit too large", `{"session_id": "s1", "limit": 5000}`, http.StatusBadRequest},
		{"with samples", `{"session_id": "s1", "samples": [{"index_flex": 0.1}]}`, http.StatusBadRequest},
		{"with capture", `{"session_id": "s1", "capture": true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, http.MethodPost, "/api/gestures/g1/samples", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
