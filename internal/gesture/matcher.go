// Package gesture recognizes hand shapes and finger motions from flex
// readings.
package gesture

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/myomod/internal/telemetry"
)

// VectorSize is the number of hand-pose scalars a template holds.
const VectorSize = 8

// Type distinguishes held shapes from motions.
type Type string

// Gesture types.
const (
	TypeStatic  Type = "static"
	TypeDynamic Type = "dynamic"
)

// Template is a named hand shape, the eight hand-pose scalars in wire
// order, or for a dynamic gesture a sequence of such vectors.
type Template struct {
	ID        string      // Unique identifier for the template
	Name      string      // Human-readable name
	Type      Type        // Empty means TypeStatic
	Vector    []float64   // Hand-pose scalars, see telemetry.HandPose.Vector
	Sequence  [][]float64 // Hand-pose vectors in arrival order (dynamic only)
	Tolerance float64     // Maximum distance for a match
}

// Dynamic reports whether t is matched over a sequence.
func (t *Template) Dynamic() bool {
	return t.Type == TypeDynamic
}

// Usable reports whether t carries enough data to be matched.
func (t *Template) Usable() bool {
	if t.Dynamic() {
		if len(t.Sequence) < MinSequenceLen {
			return false
		}
		for _, v := range t.Sequence {
			if len(v) != VectorSize {
				return false
			}
		}
		return true
	}
	return len(t.Vector) == VectorSize
}

// Match represents a matching result between input and a template.
type Match struct {
	Template *Template // The matched template
	Score    float64   // Match score (0-1, higher is better)
	Distance float64   // Euclidean or DTW distance between input and template
}

// StaticMatcher matches hand poses against registered templates. It is
// safe for concurrent use: templates are edited over HTTP while the tick
// loop matches.
type StaticMatcher struct {
	mu        sync.RWMutex
	templates []*Template
}

// NewStaticMatcher creates a new StaticMatcher instance.
func NewStaticMatcher() *StaticMatcher {
	return &StaticMatcher{
		templates: make([]*Template, 0),
	}
}

// AddTemplate adds a template, replacing any template with the same ID.
// Dynamic templates and templates without a full vector are ignored.
func (m *StaticMatcher) AddTemplate(t *Template) {
	if t == nil || t.Dynamic() || !t.Usable() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(t.ID)
	m.templates = append(m.templates, t)
}

// RemoveTemplate removes a template by its ID.
func (m *StaticMatcher) RemoveTemplate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *StaticMatcher) removeLocked(id string) {
	for i, t := range m.templates {
		if t.ID == id {
			m.templates = append(m.templates[:i], m.templates[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered templates.
func (m *StaticMatcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.templates)
}

// Match finds the templates within tolerance of p, best first.
func (m *StaticMatcher) Match(p telemetry.HandPose) []Match {
	input := p.Vector()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, template := range m.templates {
		distance := floats.Distance(input, template.Vector, 2)
		if distance > template.Tolerance {
			continue
		}
		matches = append(matches, Match{
			Template: template,
			Score:    1.0 / (1.0 + distance),
			Distance: distance,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}

// Best returns the closest template within tolerance of p.
func (m *StaticMatcher) Best(p telemetry.HandPose) (Match, bool) {
	matches := m.Match(p)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}
