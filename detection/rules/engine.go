package rules

import (
	"math"
	"math/rand/v2"

	"github.com/RyanBlaney/sonido-gunshot/detection/extractors"
	"github.com/RyanBlaney/sonido-gunshot/detection/prediction"
)

// Evidence weights in hundredths so threshold comparisons are exact.
const (
	energyPoints   = 30
	peakFreqPoints = 25
	zcrPoints      = 20
	centroidPoints = 25

	maxPoints = 100
)

// Rule thresholds.
const (
	EnergyThreshold   = 0.7
	PeakFrequencyMin  = 100.0
	PeakFrequencyMax  = 4000.0
	ZCRThreshold      = 0.15
	CentroidThreshold = 2000.0

	// JitterRange bounds the random offset applied to each synthesized
	// detection's confidence.
	JitterRange = 0.1
)

// Score is the outcome of the heuristic rules.
type Score struct {
	Confidence float64
	Detected   bool
	RiskLevel  prediction.RiskLevel
}

// Engine scores descriptors with fixed heuristics. It never fails.
type Engine struct {
	jitter func() float64
}

// NewEngine creates a rule engine with uniform jitter in [-0.1, 0.1).
func NewEngine() *Engine {
	return NewEngineWithJitter(func() float64 {
		return (rand.Float64()*2 - 1) * JitterRange
	})
}

// NewEngineWithJitter creates a rule engine whose per-detection confidence
// offsets come from jitter. jitter must be safe for concurrent use.
func NewEngineWithJitter(jitter func() float64) *Engine {
	if jitter == nil {
		jitter = func() float64 { return 0 }
	}
	return &Engine{jitter: jitter}
}

// RiskFromConfidence is the rule ladder: >=0.7 high, >=0.4 medium,
// >=0.2 low.
func RiskFromConfidence(c float64) prediction.RiskLevel {
	return riskFromPoints(int(math.Round(c * maxPoints)))
}

func riskFromPoints(points int) prediction.RiskLevel {
	switch {
	case points >= 70:
		return prediction.RiskHigh
	case points >= 40:
		return prediction.RiskMedium
	case points >= 20:
		return prediction.RiskLow
	default:
		return prediction.RiskNone
	}
}

// Score accumulates evidence from desc. Every rule that fires marks the
// clip as detected, but a score below the low rung clears detection.
func (e *Engine) Score(desc *extractors.AudioDescriptor) Score {
	points, detected := e.points(desc)

	risk := riskFromPoints(points)
	if risk == prediction.RiskNone {
		detected = false
	}

	return Score{
		Confidence: float64(points) / maxPoints,
		Detected:   detected,
		RiskLevel:  risk,
	}
}

func (e *Engine) points(desc *extractors.AudioDescriptor) (int, bool) {
	if desc == nil {
		return 0, false
	}

	points := 0
	detected := false

	if desc.Energy > EnergyThreshold {
		points += energyPoints
		detected = true
	}
	if desc.PeakFrequency >= PeakFrequencyMin && desc.PeakFrequency <= PeakFrequencyMax {
		points += peakFreqPoints
		detected = true
	}
	if desc.ZeroCrossingRate > ZCRThreshold {
		points += zcrPoints
		detected = true
	}
	if desc.SpectralCentroid > CentroidThreshold {
		points += centroidPoints
		detected = true
	}

	return min(points, maxPoints), detected
}

// Predict scores desc and, for confident detections, synthesizes
// floor(3*confidence) evenly spaced detections across the clip.
func (e *Engine) Predict(desc *extractors.AudioDescriptor) prediction.Result {
	score := e.Score(desc)

	result := prediction.Result{
		Detected:    score.Detected,
		Confidence:  prediction.Round2(score.Confidence),
		Probability: prediction.Round2(score.Confidence),
		RiskLevel:   score.RiskLevel,
		Detections:  []prediction.Detection{},
		Method:      prediction.MethodRules,
	}

	if !score.Detected || score.Confidence <= prediction.DetectionThreshold {
		return result
	}

	duration := math.Max(desc.Duration, 0)
	n := int(math.Round(score.Confidence*maxPoints)) * 3 / maxPoints

	for i := range n {
		ts := prediction.Round2(duration * float64(i+1) / float64(n+1))
		result.Detections = append(result.Detections, prediction.Detection{
			Timestamp:  math.Min(ts, duration),
			Confidence: prediction.Round2(prediction.ClampProbability(score.Confidence + e.jitter())),
			Type:       prediction.DetectionTypeGunshot,
		})
	}

	return result
}
