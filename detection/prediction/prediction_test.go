package prediction

import (
	"errors"
	"math"
	"testing"
)

func TestInterpretOutputSimplexUsedAsIs(t *testing.T) {
	p, err := InterpretOutput([]float32{0.2, 0.8})
	if err != nil {
		t.Fatalf("InterpretOutput: %v", err)
	}
	if math.Abs(p-0.8) > 1e-6 {
		t.Fatalf("probability = %v, want 0.8", p)
	}

	result := FromTensorProbability(p, 2.0, "onnx")
	if result.RiskLevel != RiskHigh || !result.Detected {
		t.Errorf("result = %+v, want high and detected", result)
	}
	if len(result.Detections) != 1 || result.Detections[0].Timestamp != 1.0 {
		t.Fatalf("detections = %+v, want one at 1.0", result.Detections)
	}
	if result.Detections[0].Type != DetectionTypeGunshot || result.Detections[0].Confidence != 0.8 {
		t.Errorf("detection = %+v", result.Detections[0])
	}
	if result.Method != MethodSpectrogram || result.Probability != 0.8 || result.Confidence != 0.8 {
		t.Errorf("result = %+v", result)
	}
}

func TestInterpretOutputLogitsSoftmaxed(t *testing.T) {
	p, err := InterpretOutput([]float32{2.0, 0.1})
	if err != nil {
		t.Fatalf("InterpretOutput: %v", err)
	}
	want := math.Exp(0.1-2.0) / (1 + math.Exp(0.1-2.0))
	if math.Abs(p-want) > 1e-6 {
		t.Fatalf("probability = %v, want %v", p, want)
	}

	result := FromTensorProbability(p, 2.0, "onnx")
	if result.Probability != 0.13 {
		t.Errorf("Probability = %v, want 0.13", result.Probability)
	}
	if result.RiskLevel != RiskNone || result.Detected || len(result.Detections) != 0 {
		t.Errorf("result = %+v, want none and not detected", result)
	}
	if result.Detections == nil {
		t.Error("Detections should be an empty slice, not nil")
	}
}

func TestInterpretOutputSingleValue(t *testing.T) {
	tests := []struct {
		raw  float32
		want float64
	}{
		{0.65, 0.65},
		{1.7, 1},
		{-0.2, 0},
	}
	for _, tt := range tests {
		p, err := InterpretOutput([]float32{tt.raw})
		if err != nil {
			t.Fatalf("InterpretOutput(%v): %v", tt.raw, err)
		}
		if math.Abs(p-tt.want) > 1e-6 {
			t.Errorf("InterpretOutput(%v) = %v, want %v", tt.raw, p, tt.want)
		}
	}
}

func TestInterpretOutputErrors(t *testing.T) {
	if _, err := InterpretOutput(nil); err == nil {
		t.Error("expected error for empty output")
	}
	if _, err := InterpretOutput([]float32{float32(math.NaN()), 0.5}); err == nil {
		t.Error("expected error for NaN output")
	}
}

func TestIsSimplex(t *testing.T) {
	if !IsSimplex([]float64{0.3, 0.3, 0.4005}) {
		t.Error("sum within tolerance should be a simplex")
	}
	if IsSimplex([]float64{0.5, 0.6}) {
		t.Error("sum 1.1 is not a simplex")
	}
	if IsSimplex([]float64{1.2, -0.2}) {
		t.Error("values outside [0,1] are not a simplex")
	}
}

func TestRiskFromProbabilityMonotonic(t *testing.T) {
	prev := RiskNone
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		level := RiskFromProbability(p)
		if level.Rank() < prev.Rank() {
			t.Fatalf("risk decreased at p=%v: %s after %s", p, level, prev)
		}
		prev = level
	}

	cases := map[float64]RiskLevel{0.29: RiskNone, 0.3: RiskLow, 0.5: RiskMedium, 0.79: RiskMedium, 0.8: RiskHigh}
	for p, want := range cases {
		if got := RiskFromProbability(p); got != want {
			t.Errorf("RiskFromProbability(%v) = %s, want %s", p, got, want)
		}
	}
}

func TestFromClassifier(t *testing.T) {
	result := FromClassifier(0.934, true, 3.0, "random_forest")
	if !result.Detected || result.Method != MethodClassical || result.ModelType != "random_forest" {
		t.Fatalf("result = %+v", result)
	}
	if result.Probability != 0.93 || len(result.Detections) != 1 || result.Detections[0].Timestamp != 1.5 {
		t.Errorf("result = %+v", result)
	}

	edge := FromClassifier(0.5, true, 3.0, "knn")
	if !edge.Detected || len(edge.Detections) != 0 {
		t.Errorf("p=0.5 should be detected without a detection entry, got %+v", edge)
	}

	if got := FromClassifier(math.NaN(), false, 1, "knn"); got.Probability != 0 {
		t.Errorf("NaN probability = %v, want 0", got.Probability)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("boom")

	var artifactErr *ArtifactError
	err := error(&ArtifactError{Backend: "classical", Path: "/m/model.msgpack", Err: base})
	if !errors.As(err, &artifactErr) || !errors.Is(err, base) {
		t.Errorf("ArtifactError does not unwrap: %v", err)
	}

	var inferenceErr *InferenceError
	err = &InferenceError{Backend: "spectrogram", Err: base}
	if !errors.As(err, &inferenceErr) || !errors.Is(err, base) {
		t.Errorf("InferenceError does not unwrap: %v", err)
	}
}
