// Package plugin discovers and runs the external programs that act on
// matched gestures.
//
// A plugin is a directory holding a manifest (plugin.json or plugin.yaml)
// and an executable. The executable reads one Request as JSON on stdin and
// writes one Response as JSON on stdout.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/myomod/internal/telemetry"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name" yaml:"name"`
	Version      string          `json:"version" yaml:"version"`
	Description  string          `json:"description" yaml:"description"`
	Executable   string          `json:"executable" yaml:"executable"`
	Actions      []string        `json:"actions" yaml:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty" yaml:"-"`
}

// HasAction reports whether the plugin declares action.
func (m Manifest) HasAction(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Request is written to the plugin's stdin.
type Request struct {
	Action    string              `json:"action"`
	Gesture   string              `json:"gesture"`
	GestureID string              `json:"gesture_id,omitempty"`
	Config    json.RawMessage     `json:"config"`
	Params    json.RawMessage     `json:"params,omitempty"`
	Hand      *telemetry.HandPose `json:"hand,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
