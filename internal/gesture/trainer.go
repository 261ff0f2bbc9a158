package gesture

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ayusman/myomod/internal/telemetry"
)

// MinTolerance is the smallest tolerance Train suggests.
const MinTolerance = 0.05

// Trainer turns recorded hand-pose samples into templates.
type Trainer struct {
	// Margin scales the spread of the samples into the suggested tolerance.
	Margin float64
}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{Margin: 1.5}
}

// Result is a trained template and a tolerance that accepts every training
// sample. Vector is set for static gestures, Sequence for dynamic ones.
type Result struct {
	Vector    []float64   `json:"vector,omitempty"`
	Sequence  [][]float64 `json:"sequence,omitempty"`
	Tolerance float64     `json:"tolerance"`
}

// Train averages samples, each a JSON-encoded telemetry.HandPose.
func (t *Trainer) Train(samples []json.RawMessage) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("no samples provided")
	}

	vectors := make([][]float64, 0, len(samples))
	for i, raw := range samples {
		var p telemetry.HandPose
		if err := json.Unmarshal(raw, &p); err != nil {
			return Result{}, fmt.Errorf("failed to parse sample %d: %w", i, err)
		}
		vectors = append(vectors, p.Vector())
	}

	return t.TrainVectors(vectors)
}

// TrainVectors averages hand-pose vectors into a template.
func (t *Trainer) TrainVectors(vectors [][]float64) (Result, error) {
	if len(vectors) == 0 {
		return Result{}, fmt.Errorf("no samples provided")
	}

	mean := make([]float64, VectorSize)
	for i, v := range vectors {
		if len(v) != VectorSize {
			return Result{}, fmt.Errorf("sample %d has %d values, expected %d", i, len(v), VectorSize)
		}
		floats.Add(mean, v)
	}
	floats.Scale(1/float64(len(vectors)), mean)

	var spread float64
	for _, v := range vectors {
		spread = math.Max(spread, floats.Distance(mean, v, 2))
	}

	return Result{
		Vector:    mean,
		Tolerance: math.Max(MinTolerance, spread*t.Margin),
	}, nil
}

// TrainSequence turns one recorded motion, samples in arrival order, into a
// dynamic template. The tolerance is half the mean step between frames,
// scaled by Margin, so the same motion sampled at another phase still
// matches.
func (t *Trainer) TrainSequence(samples []json.RawMessage) (Result, error) {
	if len(samples) < MinSequenceLen {
		return Result{}, fmt.Errorf("need at least %d samples, got %d", MinSequenceLen, len(samples))
	}

	seq := make([][]float64, 0, len(samples))
	for i, raw := range samples {
		var p telemetry.HandPose
		if err := json.Unmarshal(raw, &p); err != nil {
			return Result{}, fmt.Errorf("failed to parse sample %d: %w", i, err)
		}
		seq = append(seq, p.Vector())
	}

	var steps float64
	for i := 1; i < len(seq); i++ {
		steps += floats.Distance(seq[i-1], seq[i], 2)
	}
	meanStep := steps / float64(len(seq)-1)

	return Result{
		Sequence:  seq,
		Tolerance: math.Max(MinTolerance, meanStep/2*t.Margin),
	}, nil
}
