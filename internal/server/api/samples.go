package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/telemetry"
)

// PoseSource yields the most recent hand pose of a live stream.
type PoseSource interface {
	LatestHandPose() (telemetry.HandPose, bool)
}

// SamplesHandler serves the training samples of a gesture at
// /api/gestures/{id}/samples. Samples are hand poses; POST takes them from
// the request body, from the live stream with "capture", or from the hand
// frames of a recorded session with "session_id".
type SamplesHandler struct {
	store *store.Store
	live  PoseSource
}

// NewSamplesHandler creates a SamplesHandler. live may be nil, in which case
// capture requests fail with 503.
func NewSamplesHandler(s *store.Store, live PoseSource) *SamplesHandler {
	return &SamplesHandler{store: s, live: live}
}

func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/gestures/")
	gestureID, ok := strings.CutSuffix(rest, "/samples")
	if !ok || gestureID == "" || strings.Contains(gestureID, "/") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.list(w, gestureID)
	case http.MethodPost:
		h.append(w, r, gestureID)
	case http.MethodDelete:
		h.clear(w, gestureID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// MaxSessionSamples caps the frames imported from a session per request.
const MaxSessionSamples = 1000

type appendSamplesRequest struct {
	Samples []telemetry.HandPose `json:"samples"`
	Capture bool                 `json:"capture"`

	// SessionID imports up to Limit hand frames recorded after frame After.
	SessionID string `json:"session_id"`
	After     int64  `json:"after"`
	Limit     int    `json:"limit"`
}

type sampleResponse struct {
	Index     int                `json:"index"`
	Pose      telemetry.HandPose `json:"pose"`
	Vector    []float64          `json:"vector"`
	CreatedAt time.Time          `json:"created_at"`
}

type listSamplesResponse struct {
	GestureID string           `json:"gesture_id"`
	Samples   []sampleResponse `json:"samples"`
}

type appendSamplesResponse struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

func checkPose(p telemetry.HandPose) error {
	for i, v := range p.Vector() {
		if v < 0 || v > 1 {
			return fmt.Errorf("value %d out of range: %v", i, v)
		}
	}
	return nil
}

func (h *SamplesHandler) gestureExists(w http.ResponseWriter, gestureID string) bool {
	_, err := h.store.Gestures().GetByID(gestureID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Gesture not found")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to verify gesture")
	}
	return false
}

// list handles GET. Stored samples that no longer decode as hand poses are
// skipped.
func (h *SamplesHandler) list(w http.ResponseWriter, gestureID string) {
	if !h.gestureExists(w, gestureID) {
		return
	}

	samples, err := h.store.Samples().GetByGestureID(gestureID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	resp := listSamplesResponse{GestureID: gestureID, Samples: make([]sampleResponse, 0, len(samples))}
	for _, s := range samples {
		var p telemetry.HandPose
		if err := json.Unmarshal(s.Data, &p); err != nil {
			continue
		}
		resp.Samples = append(resp.Samples, sampleResponse{
			Index:     s.SampleIndex,
			Pose:      p,
			Vector:    p.Vector(),
			CreatedAt: s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// append handles POST with either explicit samples or a capture of the
// current live pose.
func (h *SamplesHandler) append(w http.ResponseWriter, r *http.Request, gestureID string) {
	var req appendSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	sources := 0
	for _, set := range []bool{len(req.Samples) > 0, req.Capture, req.SessionID != ""} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		writeError(w, http.StatusBadRequest, "Use only one of samples, capture or session_id")
		return
	}

	poses := req.Samples
	switch {
	case req.SessionID != "":
		if req.Limit < 0 || req.Limit > MaxSessionSamples {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Limit must be in [0, %d]", MaxSessionSamples))
			return
		}
		imported, err := h.sessionPoses(req.SessionID, req.After, req.Limit)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Session not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to read session")
			return
		}
		poses = imported
	case req.Capture:
		if h.live == nil {
			writeError(w, http.StatusServiceUnavailable, "No live stream")
			return
		}
		p, ok := h.live.LatestHandPose()
		if !ok {
			writeError(w, http.StatusConflict, "No hand pose received yet")
			return
		}
		poses = []telemetry.HandPose{p}
	}

	if len(poses) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}

	raw := make([]json.RawMessage, len(poses))
	for i, p := range poses {
		if err := checkPose(p); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid sample %d: %v", i, err))
			return
		}
		data, err := json.Marshal(p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode sample")
			return
		}
		raw[i] = data
	}

	if err := h.store.Samples().Append(gestureID, raw); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save samples")
		return
	}

	g, err := h.store.Gestures().GetByID(gestureID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load gesture")
		return
	}
	writeJSON(w, http.StatusCreated, appendSamplesResponse{Added: len(poses), Total: g.Samples})
}

// sessionPoses decodes up to limit hand frames of a session recorded after
// frame after. A limit of 0 means MaxSessionSamples. Frames that no longer
// decode are skipped.
func (h *SamplesHandler) sessionPoses(sessionID string, after int64, limit int) ([]telemetry.HandPose, error) {
	if _, err := h.store.Sessions().GetByID(sessionID); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = MaxSessionSamples
	}

	var poses []telemetry.HandPose
	for len(poses) < limit {
		frames, err := h.store.Frames().List(sessionID, after, MaxSessionSamples)
		if err != nil {
			return nil, err
		}
		for _, f := range frames {
			after = f.ID
			if f.Kind != telemetry.KindHandPose {
				continue
			}
			p, err := telemetry.DecodeHandPose(f.Payload)
			if err != nil {
				continue
			}
			poses = append(poses, p)
			if len(poses) == limit {
				break
			}
		}
		if len(frames) < MaxSessionSamples {
			break
		}
	}
	return poses, nil
}

func (h *SamplesHandler) clear(w http.ResponseWriter, gestureID string) {
	if !h.gestureExists(w, gestureID) {
		return
	}
	if err := h.store.Samples().DeleteByGestureID(gestureID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
