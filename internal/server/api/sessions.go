package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/myomod/internal/store"
	"github.com/ayusman/myomod/internal/telemetry"
)

// DefaultFrameLimit caps a frame page when no limit is given.
const DefaultFrameLimit = 500

// SessionHandler serves recorded sessions with their frames and gaps.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id},
// /api/sessions/{id}/frames and /api/sessions/{id}/gaps.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "frames":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.frames(w, r, id)
	case len(parts) == 2 && parts[1] == "gaps":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.gaps(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type frameResponse struct {
	*store.Frame
	Decoded telemetry.Frame `json:"decoded,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type listFramesResponse struct {
	Frames []frameResponse `json:"frames"`
	// Next is the after value of the following page, or 0 on the last page.
	Next int64 `json:"next,omitempty"`
}

type listGapsResponse struct {
	Gaps []*store.Gap `json:"gaps"`
}

// lookup writes the error response and returns nil when the session does
// not exist.
func (h *SessionHandler) lookup(w http.ResponseWriter, id string) *store.Session {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return nil
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil
	}
	return sess
}

// list handles GET /api/sessions
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// get handles GET /api/sessions/{id}
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if sess := h.lookup(w, id); sess != nil {
		writeJSON(w, http.StatusOK, sess)
	}
}

// delete handles DELETE /api/sessions/{id}. A session still recording
// cannot be deleted.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.lookup(w, id)
	if sess == nil {
		return
	}
	if sess.Active() {
		writeError(w, http.StatusConflict, "Session is still recording")
		return
	}

	if err := h.store.Sessions().Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// frames handles GET /api/sessions/{id}/frames?after=&limit=&decode=
func (h *SessionHandler) frames(w http.ResponseWriter, r *http.Request, id string) {
	if h.lookup(w, id) == nil {
		return
	}

	q := r.URL.Query()
	after, err := queryInt(q.Get("after"), 0)
	if err != nil || after < 0 {
		writeError(w, http.StatusBadRequest, "Invalid after")
		return
	}
	limit, err := queryInt(q.Get("limit"), DefaultFrameLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	decode := q.Get("decode") == "1" || q.Get("decode") == "true"

	frames, err := h.store.Frames().List(id, after, int(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list frames")
		return
	}

	response := listFramesResponse{Frames: make([]frameResponse, 0, len(frames))}
	for _, f := range frames {
		fr := frameResponse{Frame: f}
		if decode {
			if fr.Decoded, err = telemetry.Decode(f.Kind, f.Payload); err != nil {
				fr.Error = err.Error()
			}
		}
		response.Frames = append(response.Frames, fr)
	}
	if len(frames) == int(limit) {
		response.Next = frames[len(frames)-1].ID
	}

	writeJSON(w, http.StatusOK, response)
}

// gaps handles GET /api/sessions/{id}/gaps
func (h *SessionHandler) gaps(w http.ResponseWriter, r *http.Request, id string) {
	if h.lookup(w, id) == nil {
		return
	}

	gaps, err := h.store.Gaps().List(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list gaps")
		return
	}
	if gaps == nil {
		gaps = []*store.Gap{}
	}
	writeJSON(w, http.StatusOK, listGapsResponse{Gaps: gaps})
}

func queryInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
