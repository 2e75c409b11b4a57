package prediction

// RiskLevel is the discrete label attached to a score.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders levels from none (0) to high (3).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// RiskFromProbability is the ladder for model probabilities:
// >=0.8 high, >=0.5 medium, >=0.3 low.
func RiskFromProbability(p float64) RiskLevel {
	switch {
	case p >= 0.8:
		return RiskHigh
	case p >= 0.5:
		return RiskMedium
	case p >= 0.3:
		return RiskLow
	default:
		return RiskNone
	}
}
