package gesture

import (
	"encoding/json"
	"math"
	"testing"
)

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTrainer_Train(t *testing.T) {
	trainer := NewTrainer()

	samples := []json.RawMessage{
		json.RawMessage(`{"thumb_flex": 0.9, "index_flex": 1, "wrist_flex": 0.5, "counter": 3}`),
		json.RawMessage(`{"thumb_flex": 0.7, "index_flex": 0.8, "wrist_flex": 0.5, "counter": 4}`),
	}

	result, err := trainer.Train(samples)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if len(result.Vector) != VectorSize {
		t.Fatalf("expected %d values, got %d", VectorSize, len(result.Vector))
	}

	// Average should be thumb 0.8, index 0.9
	if !floatEqual(result.Vector[0], 0.8) || !floatEqual(result.Vector[2], 0.9) {
		t.Errorf("wrong average: got thumb %f index %f, expected 0.8 0.9", result.Vector[0], result.Vector[2])
	}
	if !floatEqual(result.Vector[6], 0.5) {
		t.Errorf("wrist flex = %f, want 0.5", result.Vector[6])
	}

	// Each sample is sqrt(0.01+0.01) from the mean
	want := math.Sqrt(0.02) * 1.5
	if !floatEqual(result.Tolerance, want) {
		t.Errorf("tolerance = %f, want %f", result.Tolerance, want)
	}
}

func TestTrainer_Train_MinTolerance(t *testing.T) {
	trainer := NewTrainer()

	sample := json.RawMessage(`{"index_flex": 1}`)
	result, err := trainer.Train([]json.RawMessage{sample, sample})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if result.Tolerance != MinTolerance {
		t.Errorf("tolerance = %f, want %f for identical samples", result.Tolerance, MinTolerance)
	}
}

func TestTrainer_Train_EmptySamples(t *testing.T) {
	trainer := NewTrainer()

	if _, err := trainer.Train([]json.RawMessage{}); err == nil {
		t.Error("expected error for empty samples")
	}
}

func TestTrainer_Train_InvalidJSON(t *testing.T) {
	trainer := NewTrainer()

	samples := []json.RawMessage{
		json.RawMessage(`{invalid json}`),
	}

	if _, err := trainer.Train(samples); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestTrainer_TrainVectors_WrongLength(t *testing.T) {
	trainer := NewTrainer()

	if _, err := trainer.TrainVectors([][]float64{{1, 2, 3}}); err == nil {
		t.Error("expected error for short vector")
	}
}

func TestTrainer_TrainedTemplateMatchesSamples(t *testing.T) {
	trainer := NewTrainer()

	vectors := [][]float64{
		fist.Vector(),
		{0.9, 0.3, 0.95, 1, 1, 0.9, 0.5, 0.5},
		{1, 0.25, 1, 0.9, 1, 1, 0.55, 0.5},
	}
	result, err := trainer.TrainVectors(vectors)
	if err != nil {
		t.Fatalf("TrainVectors() error = %v", err)
	}

	matcher := NewStaticMatcher()
	matcher.AddTemplate(&Template{ID: "fist", Vector: result.Vector, Tolerance: result.Tolerance})

	if _, ok := matcher.Best(fist); !ok {
		t.Error("trained template should match its own training samples")
	}
	if _, ok := matcher.Best(open); ok {
		t.Error("trained fist should not match an open hand")
	}
}

func TestTrainer_TrainSequence(t *testing.T) {
	trainer := NewTrainer()

	var samples []json.RawMessage
	for _, v := range wave() {
		p := open
		p.IndexFlex, p.MiddleFlex, p.RingFlex, p.PinkyFlex = v[2], v[3], v[4], v[5]
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		samples = append(samples, raw)
	}

	result, err := trainer.TrainSequence(samples)
	if err != nil {
		t.Fatalf("TrainSequence() error = %v", err)
	}
	if len(result.Sequence) != len(samples) {
		t.Fatalf("expected %d frames, got %d", len(samples), len(result.Sequence))
	}
	if result.Vector != nil {
		t.Errorf("dynamic result should carry no vector, got %v", result.Vector)
	}
	// Every step of the wave is 0.5
	if !floatEqual(result.Tolerance, 0.375) {
		t.Errorf("expected tolerance 0.375, got %f", result.Tolerance)
	}

	matcher := NewDynamicMatcher()
	matcher.AddTemplate(&Template{ID: "wave", Type: TypeDynamic, Sequence: result.Sequence, Tolerance: result.Tolerance})

	if _, ok := matcher.Best(wave()); !ok {
		t.Error("trained wave should match its own recording")
	}
	if _, ok := matcher.Best(repeat(open, 20)); ok {
		t.Error("trained wave should not match a still hand")
	}
}

func TestTrainer_TrainSequence_TooShort(t *testing.T) {
	trainer := NewTrainer()

	_, err := trainer.TrainSequence([]json.RawMessage{json.RawMessage(`{"index_flex": 1}`)})
	if err == nil {
		t.Error("expected error for a single-frame motion")
	}
}
