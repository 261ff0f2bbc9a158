package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/myomod/internal/app"
	"github.com/ayusman/myomod/internal/store"
)

// Recorder starts and stops session recording. *app.App implements it.
type Recorder interface {
	StartRecording(name string) (*store.Session, error)
	StopRecording() (*store.Session, error)
	Recording() (app.RecordingStatus, bool)
}

// RecordingHandler handles GET and POST /api/recording.
type RecordingHandler struct {
	recorder Recorder
}

// NewRecordingHandler creates a new RecordingHandler.
func NewRecordingHandler(r Recorder) *RecordingHandler {
	return &RecordingHandler{recorder: r}
}

type recordingRequest struct {
	Action string `json:"action"` // "start" or "stop"
	Name   string `json:"name,omitempty"`
}

type recordingResponse struct {
	Recording bool                 `json:"recording"`
	Status    *app.RecordingStatus `json:"status,omitempty"`
	Session   *store.Session       `json:"session,omitempty"`
}

// ServeHTTP implements the http.Handler interface.
func (h *RecordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.status())
	case http.MethodPost:
		h.control(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RecordingHandler) status() recordingResponse {
	status, ok := h.recorder.Recording()
	if !ok {
		return recordingResponse{}
	}
	return recordingResponse{Recording: true, Status: &status}
}

func (h *RecordingHandler) control(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	switch req.Action {
	case "start":
		sess, err := h.recorder.StartRecording(req.Name)
		if err != nil {
			writeRecordingError(w, err)
			return
		}
		resp := h.status()
		resp.Session = sess
		writeJSON(w, http.StatusCreated, resp)
	case "stop":
		sess, err := h.recorder.StopRecording()
		if err != nil {
			writeRecordingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recordingResponse{Session: sess})
	default:
		writeError(w, http.StatusBadRequest, `Action must be "start" or "stop"`)
	}
}

func writeRecordingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrRecording), errors.Is(err, app.ErrNotRecording):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Recording failed")
	}
}
