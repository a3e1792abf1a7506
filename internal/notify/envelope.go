// Package notify builds the payload the automation webhook consumes.
// Delivery itself belongs to the aggregation service.
package notify

import (
	"time"

	"github.com/atiastack/atia-dashboard/internal/models"
)

// EventThreatAnalyzed is the only event type emitted.
const EventThreatAnalyzed = "threat_analyzed"

// Envelope is the webhook body for one analyzed indicator.
type Envelope struct {
	EventType    string      `json:"event_type"`
	Timestamp    time.Time   `json:"timestamp"`
	Threat       ThreatBrief `json:"threat"`
	RiskSeverity string      `json:"risk_severity"`
}

// ThreatBrief is the indicator projection carried in an Envelope.
type ThreatBrief struct {
	Indicator     string  `json:"indicator"`
	Type          string  `json:"type"`
	RiskScore     float64 `json:"risk_score"`
	Reputation    string  `json:"reputation"`
	SourcesCount  int     `json:"sources_count"`
	MaliciousVote int     `json:"malicious_vote"`
}

// WebhookSeverity uses the four-level automation scale, which is distinct
// from the dashboard's three severity tiers.
func WebhookSeverity(score float64) string {
	switch {
	case score > 70:
		return "critical"
	case score > 50:
		return "high"
	case score > 30:
		return "medium"
	default:
		return "low"
	}
}

// BuildEnvelope projects ind into a webhook envelope stamped with now.
func BuildEnvelope(ind models.Indicator, now time.Time) Envelope {
	return Envelope{
		EventType: EventThreatAnalyzed,
		Timestamp: now.UTC(),
		Threat: ThreatBrief{
			Indicator:     ind.Value,
			Type:          string(ind.Kind),
			RiskScore:     ind.RiskScore,
			Reputation:    ind.Reputation,
			SourcesCount:  ind.SourcesCount(),
			MaliciousVote: ind.MaliciousVotes(),
		},
		RiskSeverity: WebhookSeverity(ind.RiskScore),
	}
}

// BuildEnvelopes projects a whole snapshot, preserving order.
func BuildEnvelopes(indicators []models.Indicator, now time.Time) []Envelope {
	out := make([]Envelope, 0, len(indicators))
	for _, ind := range indicators {
		out = append(out, BuildEnvelope(ind, now))
	}
	return out
}
