package prediction

import (
	"math"

	"github.com/RyanBlaney/sonido-gunshot/algorithms/common"
)

// Method tags identify which backend produced a result.
const (
	MethodSpectrogram = "spectrogram_cnn"
	MethodClassical   = "machine_learning"
	MethodRules       = "rule_based"
)

// DetectionTypeGunshot is the only event type reported.
const DetectionTypeGunshot = "gunshot"

// DetectionThreshold is the probability at which a model result counts as a
// detection.
const DetectionThreshold = 0.5

// Detection is one timestamped event inside a clip.
type Detection struct {
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

// Result is the uniform answer every backend produces.
type Result struct {
	Detected    bool        `json:"gunshot_detected"`
	Confidence  float64     `json:"confidence"`
	Probability float64     `json:"probability"`
	RiskLevel   RiskLevel   `json:"risk_level"`
	Detections  []Detection `json:"detections"`
	Method      string      `json:"method"`
	ModelType   string      `json:"model_type,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// FromTensorProbability builds the result of a spectrogram model: detected
// when p >= 0.5, with one detection at the middle of the clip.
func FromTensorProbability(p, duration float64, modelType string) Result {
	p = ClampProbability(p)
	return fromModel(p, p >= DetectionThreshold, p >= DetectionThreshold, duration, MethodSpectrogram, modelType)
}

// FromClassifier builds the result of a classical model. detected is the
// classifier's own decision; the mid-clip detection is added only when the
// positive probability also exceeds 0.5.
func FromClassifier(p float64, detected bool, duration float64, modelType string) Result {
	p = ClampProbability(p)
	return fromModel(p, detected, detected && p > DetectionThreshold, duration, MethodClassical, modelType)
}

func fromModel(p float64, detected, emit bool, duration float64, method, modelType string) Result {
	result := Result{
		Detected:    detected,
		Confidence:  Round2(p),
		Probability: Round2(p),
		RiskLevel:   RiskFromProbability(p),
		Detections:  []Detection{},
		Method:      method,
		ModelType:   modelType,
	}

	if emit {
		result.Detections = append(result.Detections, Detection{
			Timestamp:  Round2(math.Max(duration, 0) / 2),
			Confidence: Round2(p),
			Type:       DetectionTypeGunshot,
		})
	}

	return result
}

// ClampProbability restricts p to [0, 1]; NaN maps to 0.
func ClampProbability(p float64) float64 {
	return common.Clamp(p, 0, 1)
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return common.Round(v, 2)
}
