package domain

import (
	"fmt"
	"time"
)

// RiskLevel is the qualitative band derived from a fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Score band boundaries for risk level derivation.
const (
	riskMediumFloor   = 0.3
	riskHighFloor     = 0.6
	riskCriticalFloor = 0.8
)

// RiskLevelForScore derives the risk level from a fraud score. It is a pure
// function of the score regardless of how the score was produced.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score < riskMediumFloor:
		return RiskLow
	case score < riskHighFloor:
		return RiskMedium
	case score < riskCriticalFloor:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// AssessmentMethod tags how a fraud assessment was produced.
type AssessmentMethod string

const (
	MethodRuleBased  AssessmentMethod = "rule_based"
	MethodModelBased AssessmentMethod = "model_based"
	MethodHybrid     AssessmentMethod = "hybrid"
)

// FraudAssessment is the combined rule-based and externally scored fraud
// verdict for a claim. Immutable once constructed.
type FraudAssessment struct {
	Score       float64          `json:"score"`
	RiskLevel   RiskLevel        `json:"riskLevel"`
	Suspicious  bool             `json:"suspicious"`
	RiskFactors []string         `json:"riskFactors,omitempty"`
	Confidence  *float64         `json:"confidence,omitempty"`
	Method      AssessmentMethod `json:"method"`
	AssessedAt  time.Time        `json:"assessedAt"`
}

// NewFraudAssessment constructs an assessment from a combined score. The
// score must lie in [0,1]; risk level and the suspicious flag are derived,
// and risk factors are de-duplicated preserving first-seen order.
func NewFraudAssessment(score float64, factors []string, confidence *float64, method AssessmentMethod) (*FraudAssessment, error) {
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("fraud score %v outside [0,1]", score)
	}
	level := RiskLevelForScore(score)
	return &FraudAssessment{
		Score:       score,
		RiskLevel:   level,
		Suspicious:  level == RiskHigh || level == RiskCritical,
		RiskFactors: DedupFactors(factors),
		Confidence:  confidence,
		Method:      method,
		AssessedAt:  time.Now().UTC(),
	}, nil
}

// DedupFactors removes duplicate risk factor strings preserving first-seen
// order. Empty strings are dropped.
func DedupFactors(factors []string) []string {
	seen := make(map[string]bool, len(factors))
	var out []string
	for _, f := range factors {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
