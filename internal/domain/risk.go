package domain

// RiskLevel is the discrete tier reported for a disease probability
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
	RiskError  RiskLevel = "Error"
)

// Tier thresholds. Each is the inclusive lower bound of the next tier.
const (
	MediumRiskThreshold = 0.3
	HighRiskThreshold   = 0.7
)

// TierFor maps a positive-class probability to its risk tier.
// A probability exactly on a threshold belongs to the higher tier.
func TierFor(probability float64) RiskLevel {
	switch {
	case probability < MediumRiskThreshold:
		return RiskLow
	case probability < HighRiskThreshold:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// RiskResult is the per-disease outcome of a prediction request
type RiskResult struct {
	Probability float64   `json:"probability"`
	RiskLevel   RiskLevel `json:"risk_level"`
}

// ErrorResult is recorded for a disease whose computation failed
func ErrorResult() RiskResult {
	return RiskResult{Probability: 0.0, RiskLevel: RiskError}
}

// Disease binds a display name to its model artifact and chart key
type Disease struct {
	Key      string `mapstructure:"key" json:"key"`
	Name     string `mapstructure:"name" json:"name"`
	Artifact string `mapstructure:"artifact" json:"artifact"`
}
