package pose

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ayusman/myomod/internal/hand"
)

// Names of the canonical reference poses.
const (
	Open  = "open"
	Close = "close"
)

//go:embed poses/*.json
var posesFS embed.FS

type poseFile struct {
	Name   string                  `json:"name"`
	Joints map[hand.Joint][]float64 `json:"joints"`
}

// LoadAbsolute loads one of the embedded canonical poses.
func LoadAbsolute(name string) (AbsolutePose, error) {
	data, err := posesFS.ReadFile("poses/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("load pose %s: %w", name, err)
	}
	return ParseAbsolute(data)
}

// ParseAbsolute decodes a pose document: a name and one column-major 4x4
// matrix (16 numbers) per joint. Every finger joint must be present.
func ParseAbsolute(data []byte) (AbsolutePose, error) {
	var pf poseFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pose: %w", err)
	}

	abs := make(AbsolutePose, len(pf.Joints))
	for _, j := range hand.Joints() {
		vals, ok := pf.Joints[j]
		if !ok {
			return nil, fmt.Errorf("pose %s: joint %q missing", pf.Name, j)
		}
		if len(vals) != hand.MatrixSize {
			return nil, fmt.Errorf("pose %s: joint %q has %d values, want %d", pf.Name, j, len(vals), hand.MatrixSize)
		}
		var m Mat4
		copy(m[:], vals)
		abs[j] = m
	}
	return abs, nil
}

// Reference bundles the relative decompositions of both canonical poses.
type Reference struct {
	Open  RelativePose
	Close RelativePose
}

var (
	canonicalOnce sync.Once
	canonical     Reference
	canonicalErr  error
)

// Canonical returns the relative decompositions of the embedded open and
// close poses. They are built on first use and shared read-only afterwards.
func Canonical() (Reference, error) {
	canonicalOnce.Do(func() {
		canonical, canonicalErr = buildReference()
	})
	return canonical, canonicalErr
}

func buildReference() (Reference, error) {
	var ref Reference
	for _, p := range []struct {
		name string
		dst  *RelativePose
	}{
		{Open, &ref.Open},
		{Close, &ref.Close},
	} {
		abs, err := LoadAbsolute(p.name)
		if err != nil {
			return Reference{}, err
		}
		rel, err := Build(abs)
		if err != nil {
			return Reference{}, fmt.Errorf("build %s pose: %w", p.name, err)
		}
		*p.dst = rel
	}
	return ref, nil
}
