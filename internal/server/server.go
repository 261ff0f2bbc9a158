// Package server provides the HTTP server of myomod: a JSON API over the
// pipeline and the store, and a WebSocket pose stream.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/myomod/internal/app"
	"github.com/ayusman/myomod/internal/plugin"
	"github.com/ayusman/myomod/internal/server/api"
	"github.com/ayusman/myomod/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App

	// Plugins and Dispatcher enable plugin validation and on-demand runs
	// of bound actions. Both may be nil.
	Plugins    *plugin.Manager
	Dispatcher *plugin.Dispatcher
}

// Server represents the HTTP server for the myomod application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	stream *StreamHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Register store-backed handlers if Store is configured
	if s.config.Store != nil {
		var (
			sink api.TemplateSink
			live api.PoseSource
		)
		if s.config.App != nil {
			sink = s.config.App
			live = s.config.App
		}
		gestureHandler := api.NewGestureHandler(s.config.Store, sink)
		samplesHandler := api.NewSamplesHandler(s.config.Store, live)

		// Use a wrapper to route between gestures and samples handlers
		gestureRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if this is a samples request: /api/gestures/{id}/samples
			if strings.HasSuffix(r.URL.Path, "/samples") {
				samplesHandler.ServeHTTP(w, r)
				return
			}
			gestureHandler.ServeHTTP(w, r)
		})

		s.mux.Handle("/api/gestures", gestureRouter)
		s.mux.Handle("/api/gestures/", gestureRouter)

		sessionHandler := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessionHandler)
		s.mux.Handle("/api/sessions/", sessionHandler)

		var (
			catalog api.PluginCatalog
			runner  api.ActionRunner
		)
		if s.config.Plugins != nil {
			catalog = s.config.Plugins
			s.mux.Handle("/api/plugins", api.NewPluginHandler(s.config.Plugins))
		}
		if s.config.Dispatcher != nil {
			runner = s.config.Dispatcher
		}
		actionHandler := api.NewActionHandler(s.config.Store, catalog, runner)
		s.mux.Handle("/api/actions", actionHandler)
		s.mux.Handle("/api/actions/", actionHandler)
	}

	// Register pipeline endpoints if App is configured
	if s.config.App != nil {
		s.mux.HandleFunc("/api/state", s.handleState)
		s.mux.Handle("/api/recording", api.NewRecordingHandler(s.config.App))

		s.stream = NewStreamHandler(s.config.App)
		s.mux.Handle("/api/stream", s.stream)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		response["running"] = s.config.App.Running()
		response["source"] = s.config.App.SourceName()
	}

	writeJSON(w, http.StatusOK, response)
}

type stateResponse struct {
	app.State
	Clients int `json:"clients"`
}

type stateRequest struct {
	Streaming *bool `json:"streaming"`
}

// handleState handles /api/state: GET returns the pipeline state, PUT
// toggles pose streaming.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req stateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Streaming == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "streaming is required"})
			return
		}
		s.config.App.SetEnabled(*req.Streaming)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := stateResponse{State: s.config.App.State()}
	if s.stream != nil {
		resp.Clients = s.stream.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Close disconnects every stream client.
func (s *Server) Close() {
	if s.stream != nil {
		s.stream.Close()
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
