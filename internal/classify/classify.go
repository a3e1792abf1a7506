// Package classify maps raw indicator fields onto presentation tiers.
// Every function here is pure and total.
package classify

import "math"

// SeverityTier buckets a risk score.
type SeverityTier string

const (
	SeverityHigh   SeverityTier = "high"
	SeverityMedium SeverityTier = "medium"
	SeverityLow    SeverityTier = "low"
)

// ReputationTier buckets a reputation or verdict string.
type ReputationTier string

const (
	ReputationMalicious  ReputationTier = "malicious"
	ReputationSuspicious ReputationTier = "suspicious"
	ReputationNeutral    ReputationTier = "neutral"
)

const (
	highCut   = 70.0
	mediumCut = 40.0
)

// Severity buckets score with strict greater-than at both cut points.
// Out-of-range scores fall into the nearest tier; NaN is low.
func Severity(score float64) SeverityTier {
	switch {
	case math.IsNaN(score):
		return SeverityLow
	case score > highCut:
		return SeverityHigh
	case score > mediumCut:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Reputation matches the two special values exactly; anything else is neutral.
func Reputation(reputation string) ReputationTier {
	switch reputation {
	case "malicious":
		return ReputationMalicious
	case "suspicious":
		return ReputationSuspicious
	default:
		return ReputationNeutral
	}
}

// Classification is the pair of tiers rendered for one indicator.
type Classification struct {
	Severity   SeverityTier   `json:"severity"`
	Reputation ReputationTier `json:"reputation_tier"`
}

// Classify applies both classifiers.
func Classify(score float64, reputation string) Classification {
	return Classification{Severity: Severity(score), Reputation: Reputation(reputation)}
}
