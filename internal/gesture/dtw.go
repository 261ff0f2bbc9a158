package gesture

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// MinSequenceLen is the shortest sequence a dynamic template may hold.
const MinSequenceLen = 2

// DTWDistance calculates the Dynamic Time Warping distance between two
// sequences of hand-pose vectors, using the Euclidean distance between
// frames. Returns infinity if either sequence is empty.
// The distance is normalized by the longer sequence length.
func DTWDistance(a, b [][]float64) float64 {
	n := len(a)
	m := len(b)

	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// (n+1) x (m+1) cost matrix, infinite except at the origin
	dtw := make([][]float64, n+1)
	for i := range dtw {
		dtw[i] = make([]float64, m+1)
		for j := range dtw[i] {
			dtw[i][j] = math.Inf(1)
		}
	}
	dtw[0][0] = 0

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if len(a[i-1]) != len(b[j-1]) {
				return math.Inf(1)
			}
			cost := floats.Distance(a[i-1], b[j-1], 2)
			dtw[i][j] = cost + min3(dtw[i-1][j], dtw[i][j-1], dtw[i-1][j-1])
		}
	}

	return dtw[n][m] / float64(max(n, m))
}

// min3 returns the minimum of three float64 values.
func min3(a, b, c float64) float64 {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// DynamicMatcher matches recent hand-pose history against motion templates
// using DTW. It is safe for concurrent use.
type DynamicMatcher struct {
	mu        sync.RWMutex
	templates []*Template
}

// NewDynamicMatcher creates a new DynamicMatcher instance.
func NewDynamicMatcher() *DynamicMatcher {
	return &DynamicMatcher{
		templates: make([]*Template, 0),
	}
}

// AddTemplate adds a template, replacing any template with the same ID.
// Static templates and sequences shorter than MinSequenceLen are ignored.
func (m *DynamicMatcher) AddTemplate(t *Template) {
	if t == nil || !t.Dynamic() || !t.Usable() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(t.ID)
	m.templates = append(m.templates, t)
}

// RemoveTemplate removes a template by its ID.
func (m *DynamicMatcher) RemoveTemplate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *DynamicMatcher) removeLocked(id string) {
	for i, t := range m.templates {
		if t.ID == id {
			m.templates = append(m.templates[:i], m.templates[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered templates.
func (m *DynamicMatcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.templates)
}

// MaxLen returns the length of the longest registered sequence.
func (m *DynamicMatcher) MaxLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.templates {
		n = max(n, len(t.Sequence))
	}
	return n
}

// Match compares the tail of history against every template, taking as
// many frames as the template holds. Templates longer than history are
// skipped. Matches are sorted best first.
func (m *DynamicMatcher) Match(history [][]float64) []Match {
	if len(history) == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, template := range m.templates {
		n := len(template.Sequence)
		if n > len(history) {
			continue
		}

		distance := DTWDistance(history[len(history)-n:], template.Sequence)
		if math.IsInf(distance, 1) || distance > template.Tolerance {
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

// Best returns the closest motion within tolerance of history.
func (m *DynamicMatcher) Best(history [][]float64) (Match, bool) {
	matches := m.Match(history)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}
