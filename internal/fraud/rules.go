// Package fraud provides the fraud risk engine: deterministic rule checks
// merged with a probabilistic score from an external collaborator.
package fraud

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Rule weights. Each triggered check contributes its weight; the rule score
// is the sum bounded to 1.0.
const (
	weightHighValue      = 0.4
	weightQuickReport    = 0.3
	weightMissingFields  = 0.2
	weightDuplicate      = 0.5
	weightPolicyMismatch = 0.3
)

// RuleInput is everything the rule checks read. The duplicate count is
// resolved before evaluation so the checks themselves stay pure: identical
// inputs always produce identical output.
type RuleInput struct {
	Summary *domain.ClaimSummary

	// Policy is the looked-up policy, nil when lookup failed. A nil
	// policy disables the mismatch check; the validation stage already
	// escalates unresolved policies.
	Policy *domain.Policy

	// DuplicateCount is the number of recent submissions sharing this
	// claim's claimant/amount/date fingerprint, this one included.
	DuplicateCount int64
}

// RuleResult is the deterministic contribution to a fraud assessment.
type RuleResult struct {
	Score   float64
	Factors []string
}

// EvaluateRules runs the fixed rule set against the summary. Pure: no
// external calls, no clock reads, reproducible for identical inputs.
func EvaluateRules(cfg domain.FraudConfig, in RuleInput) RuleResult {
	var result RuleResult
	s := in.Summary
	if s == nil {
		return result
	}

	trigger := func(weight float64, factor string) {
		result.Score += weight
		result.Factors = append(result.Factors, factor)
	}

	if !cfg.HighValueThreshold.IsZero() && s.Amount.GreaterThan(cfg.HighValueThreshold) {
		trigger(weightHighValue, fmt.Sprintf("Claimed amount %s %s exceeds high-value threshold %s",
			s.Amount, s.Currency, cfg.HighValueThreshold))
	}

	if !s.IncidentDate.IsZero() && !s.ReportedDate.IsZero() && cfg.QuickReportWindow > 0 {
		if delay := s.ReportDelay(); delay < cfg.QuickReportWindow {
			trigger(weightQuickReport, fmt.Sprintf("Claim reported %s after incident, below the %s window",
				delay, cfg.QuickReportWindow))
		}
	}

	if missing := s.MissingCriticalFields(); len(missing) > 0 {
		trigger(weightMissingFields, "Missing critical fields: "+strings.Join(missing, ", "))
	}

	if in.DuplicateCount > 1 {
		trigger(weightDuplicate, fmt.Sprintf("Matches %d recent claim(s) with the same claimant, amount and incident date",
			in.DuplicateCount-1))
	}

	if factor, mismatch := policyMismatch(s, in.Policy); mismatch {
		trigger(weightPolicyMismatch, factor)
	}

	if result.Score > 1.0 {
		result.Score = 1.0
	}

	return result
}

// policyMismatch compares the summary against policy metadata.
func policyMismatch(s *domain.ClaimSummary, p *domain.Policy) (string, bool) {
	if p == nil {
		return "", false
	}

	if s.Claimant.Name != "" && p.HolderName != "" &&
		!strings.EqualFold(strings.TrimSpace(s.Claimant.Name), strings.TrimSpace(p.HolderName)) {
		return fmt.Sprintf("Claimant %q does not match policy holder %q", s.Claimant.Name, p.HolderName), true
	}

	if s.ClaimType != "" && p.CoverageType != "" && !strings.EqualFold(s.ClaimType, p.CoverageType) {
		return fmt.Sprintf("Claim type %q does not match policy coverage %q", s.ClaimType, p.CoverageType), true
	}

	if !s.IncidentDate.IsZero() && !p.InForce(s.IncidentDate) {
		return "Policy was not in force on the incident date", true
	}

	return "", false
}
