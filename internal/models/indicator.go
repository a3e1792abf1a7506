package models

import (
	"net"
	"strings"
	"time"
)

// Kind enumerates the indicator types the aggregation service analyses.
type Kind string

const (
	KindIP     Kind = "ip"
	KindDomain Kind = "domain"
	KindHash   Kind = "hash"
	KindURL    Kind = "url"
)

// Kinds lists the accepted kinds in form order.
var Kinds = []Kind{KindIP, KindDomain, KindHash, KindURL}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindIP, KindDomain, KindHash, KindURL:
		return true
	}
	return false
}

// ParseKind normalises s into a Kind; ok is false for unknown values.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// ValidKind reports whether s names a known kind after normalisation.
func ValidKind(s string) bool {
	_, ok := ParseKind(s)
	return ok
}

// InferKind guesses the kind of a raw indicator value.
func InferKind(value string) Kind {
	value = strings.TrimSpace(value)
	switch {
	case net.ParseIP(value) != nil:
		return KindIP
	case strings.Contains(value, "://"):
		return KindURL
	case isHexDigest(value):
		return KindHash
	default:
		return KindDomain
	}
}

func isHexDigest(s string) bool {
	switch len(s) {
	case 32, 40, 64:
	default:
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// Indicator is a threat artifact and the verdicts collected for it.
type Indicator struct {
	ID          string          `json:"id,omitempty"`
	Value       string          `json:"indicator"`
	Kind        Kind            `json:"type"`
	RiskScore   float64         `json:"risk_score"`
	Reputation  string          `json:"reputation"`
	Sources     []SourceVerdict `json:"sources"`
	FirstSeen   time.Time       `json:"first_seen,omitempty"`
	LastUpdated time.Time       `json:"last_updated,omitempty"`
	Tags        []string        `json:"tags"`
}

// SourceVerdict is one intelligence source's opinion on an indicator.
type SourceVerdict struct {
	Name      string         `json:"name"`
	Verdict   string         `json:"verdict"`
	Score     float64        `json:"score"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// Key is the indicator's identity: the remote id, or the value when id is absent.
func (i Indicator) Key() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Value
}

// SourcesCount is the number of verdicts; nothing else counts sources.
func (i Indicator) SourcesCount() int {
	return len(i.Sources)
}

// MaliciousVotes counts sources whose verdict is exactly "malicious".
func (i Indicator) MaliciousVotes() int {
	n := 0
	for _, s := range i.Sources {
		if s.Verdict == "malicious" {
			n++
		}
	}
	return n
}

// HealthStatus is the aggregation service's self-reported state.
type HealthStatus struct {
	ServiceName string `json:"service"`
	Status      string `json:"status"`
}

// Healthy reports whether the service declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}
