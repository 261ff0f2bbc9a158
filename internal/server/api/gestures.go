// Package api provides the JSON handlers of the myomod HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/myomod/internal/gesture"
	"github.com/ayusman/myomod/internal/store"
)

// DefaultTolerance is used for gestures created without a tolerance.
const DefaultTolerance = 0.15

// TemplateSink receives gesture templates whenever they change in the
// store. *app.App implements it for both static and dynamic gestures.
type TemplateSink interface {
	AddTemplate(t *gesture.Template)
	RemoveTemplate(id string)
}

// GestureHandler handles HTTP requests for gesture resources.
type GestureHandler struct {
	store   *store.Store
	sink    TemplateSink
	trainer *gesture.Trainer
}

// NewGestureHandler creates a new GestureHandler with the given store. sink
// may be nil.
func NewGestureHandler(s *store.Store, sink TemplateSink) *GestureHandler {
	return &GestureHandler{store: s, sink: sink, trainer: gesture.NewTrainer()}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *GestureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/gestures, /api/gestures/{id} or
	// /api/gestures/{id}/train
	path := strings.TrimPrefix(r.URL.Path, "/api/gestures")
	path = strings.Trim(path, "/")

	if path == "" {
		// Collection endpoint: /api/gestures
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 2 && parts[1] == "train" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.train(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	// Item endpoint: /api/gestures/{id}
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type createGestureRequest struct {
	Name      string      `json:"name"`
	Kind      string      `json:"kind,omitempty"`
	Tolerance float64     `json:"tolerance"`
	Template  []float64   `json:"template,omitempty"`
	Sequence  [][]float64 `json:"sequence,omitempty"`
}

type updateGestureRequest struct {
	Name      string      `json:"name"`
	Tolerance float64     `json:"tolerance"`
	Template  []float64   `json:"template,omitempty"`
	Sequence  [][]float64 `json:"sequence,omitempty"`
}

type trainRequest struct {
	// KeepTolerance keeps the configured tolerance instead of the trained one.
	KeepTolerance bool `json:"keep_tolerance"`
}

type gestureResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	Tolerance float64     `json:"tolerance"`
	Samples   int         `json:"samples"`
	Template  []float64   `json:"template"`
	Sequence  [][]float64 `json:"sequence,omitempty"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

type listGesturesResponse struct {
	Gestures []gestureResponse `json:"gestures"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toResponse converts a store.Gesture to a gestureResponse.
func toResponse(g *store.Gesture) gestureResponse {
	template := g.Template
	if template == nil {
		template = []float64{}
	}
	return gestureResponse{
		ID:        g.ID,
		Name:      g.Name,
		Kind:      g.Kind,
		Tolerance: g.Tolerance,
		Samples:   g.Samples,
		Template:  template,
		Sequence:  g.Sequence,
		CreatedAt: g.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: g.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// sync pushes a gesture to the matcher, or withdraws it while it has no
// usable template.
func (h *GestureHandler) sync(g *store.Gesture) {
	if h.sink == nil {
		return
	}
	t := g.MatchTemplate()
	if !t.Usable() {
		h.sink.RemoveTemplate(g.ID)
		return
	}
	h.sink.AddTemplate(t)
}

func validTemplate(t []float64) bool {
	if len(t) != gesture.VectorSize {
		return false
	}
	for _, v := range t {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func validSequence(seq [][]float64) bool {
	if len(seq) < gesture.MinSequenceLen {
		return false
	}
	for _, v := range seq {
		if !validTemplate(v) {
			return false
		}
	}
	return true
}

// checkShapes validates the template fields allowed for kind.
func checkShapes(w http.ResponseWriter, kind string, template []float64, sequence [][]float64) bool {
	switch kind {
	case store.KindStatic:
		if sequence != nil {
			writeError(w, http.StatusBadRequest, "Static gestures take a template, not a sequence")
			return false
		}
		if template != nil && !validTemplate(template) {
			writeError(w, http.StatusBadRequest, "Template must hold 8 values in [0, 1]")
			return false
		}
	case store.KindDynamic:
		if template != nil {
			writeError(w, http.StatusBadRequest, "Dynamic gestures take a sequence, not a template")
			return false
		}
		if sequence != nil && !validSequence(sequence) {
			writeError(w, http.StatusBadRequest, "Sequence must hold at least 2 frames of 8 values in [0, 1]")
			return false
		}
	default:
		writeError(w, http.StatusBadRequest, "Kind must be static or dynamic")
		return false
	}
	return true
}

// list handles GET /api/gestures and returns all gestures.
func (h *GestureHandler) list(w http.ResponseWriter, r *http.Request) {
	gestures, err := h.store.Gestures().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list gestures")
		return
	}

	response := listGesturesResponse{
		Gestures: make([]gestureResponse, 0, len(gestures)),
	}

	for _, g := range gestures {
		response.Gestures = append(response.Gestures, toResponse(g))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/gestures/{id} and returns a single gesture.
func (h *GestureHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	g, err := h.store.Gestures().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(g))
}

// create handles POST /api/gestures and creates a new gesture.
func (h *GestureHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createGestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Validate required fields
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if req.Tolerance < 0 {
		writeError(w, http.StatusBadRequest, "Tolerance must not be negative")
		return
	}
	if req.Kind == "" {
		req.Kind = store.KindStatic
	}
	if !checkShapes(w, req.Kind, req.Template, req.Sequence) {
		return
	}

	// Set default tolerance if not provided
	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	g := &store.Gesture{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Kind:      req.Kind,
		Tolerance: tolerance,
		Template:  req.Template,
		Sequence:  req.Sequence,
	}

	if err := h.store.Gestures().Create(g); err != nil {
		if _, lookupErr := h.store.Gestures().GetByName(req.Name); lookupErr == nil {
			writeError(w, http.StatusConflict, "Gesture name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create gesture")
		return
	}
	h.sync(g)

	writeJSON(w, http.StatusCreated, toResponse(g))
}

// update handles PUT /api/gestures/{id} and updates an existing gesture.
func (h *GestureHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	// First, get the existing gesture
	g, err := h.store.Gestures().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}

	var req updateGestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Update fields if provided
	if req.Name != "" {
		g.Name = req.Name
	}
	if req.Tolerance < 0 {
		writeError(w, http.StatusBadRequest, "Tolerance must not be negative")
		return
	}
	if req.Tolerance != 0 {
		g.Tolerance = req.Tolerance
	}
	if !checkShapes(w, g.Kind, req.Template, req.Sequence) {
		return
	}
	if req.Template != nil {
		g.Template = req.Template
	}
	if req.Sequence != nil {
		g.Sequence = req.Sequence
	}

	if err := h.store.Gestures().Update(g); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update gesture")
		return
	}
	h.sync(g)

	writeJSON(w, http.StatusOK, toResponse(g))
}

// delete handles DELETE /api/gestures/{id} and removes a gesture.
func (h *GestureHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Gestures().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete gesture")
		return
	}
	if h.sink != nil {
		h.sink.RemoveTemplate(id)
	}

	w.WriteHeader(http.StatusNoContent)
}

// train handles POST /api/gestures/{id}/train. The samples of a static
// gesture are averaged into its template; those of a dynamic gesture form
// its sequence in recording order.
func (h *GestureHandler) train(w http.ResponseWriter, r *http.Request, id string) {
	g, err := h.store.Gestures().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Gesture not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get gesture")
		return
	}

	var req trainRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}

	samples, err := h.store.Samples().GetByGestureID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load samples")
		return
	}
	if len(samples) == 0 {
		writeError(w, http.StatusBadRequest, "Gesture has no samples")
		return
	}

	data := make([]json.RawMessage, len(samples))
	for i, s := range samples {
		data[i] = s.Data
	}
	var result gesture.Result
	if g.Kind == store.KindDynamic {
		result, err = h.trainer.TrainSequence(data)
	} else {
		result, err = h.trainer.Train(data)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.Template = result.Vector
	g.Sequence = result.Sequence
	if !req.KeepTolerance {
		g.Tolerance = result.Tolerance
	}
	if err := h.store.Gestures().Update(g); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update gesture")
		return
	}
	h.sync(g)

	writeJSON(w, http.StatusOK, toResponse(g))
}
