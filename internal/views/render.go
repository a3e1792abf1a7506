package views

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atiastack/atia-dashboard/internal/classify"
	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/notify"
	"github.com/atiastack/atia-dashboard/internal/services"
	"github.com/atiastack/atia-dashboard/internal/settings"
	"github.com/atiastack/atia-dashboard/internal/synchronizer"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

const (
	statusChecking = "CHECKING..."
	emptyListText  = "No threats found. Analyze an indicator to get started."
)

// Page is the full view model for one render.
type Page struct {
	ActiveView View                    `json:"activeView"`
	Views      []View                  `json:"views"`
	Header     Header                  `json:"header"`
	Form       services.SubmissionView `json:"form"`
	Banner     string                  `json:"banner,omitempty"`
	Loading    bool                    `json:"loading"`
	Total      int                     `json:"total"`
	Empty      string                  `json:"empty,omitempty"`
	Cards      []Card                  `json:"cards,omitempty"`
	Detail     *Detail                 `json:"detail,omitempty"`
	Analytics  *Analytics              `json:"analytics,omitempty"`
	Automation *Automation             `json:"automation,omitempty"`
	Settings   *settings.Settings      `json:"settings,omitempty"`
	RenderedAt time.Time               `json:"renderedAt"`
}

// Header shows the aggregation service status.
type Header struct {
	ServiceName string `json:"serviceName,omitempty"`
	Status      string `json:"status"`
	Healthy     bool   `json:"healthy"`
}

// Card is one indicator in the recent list.
type Card struct {
	Key            string                  `json:"key"`
	Indicator      string                  `json:"indicator"`
	Kind           models.Kind             `json:"type"`
	Score          string                  `json:"score"`
	Reputation     string                  `json:"reputation"`
	Severity       classify.SeverityTier   `json:"severity"`
	ReputationTier classify.ReputationTier `json:"reputationTier"`
	SourcesCount   int                     `json:"sources"`
	LastUpdated    string                  `json:"lastUpdated,omitempty"`
}

// Detail is the overlay for the selected indicator.
type Detail struct {
	Card
	ReputationText string      `json:"reputationText"`
	FirstSeen      string      `json:"firstSeen,omitempty"`
	Sources        []SourceRow `json:"sourceVerdicts"`
	Tags           []string    `json:"tags,omitempty"`
}

// SourceRow is one verdict in the detail overlay.
type SourceRow struct {
	Name        string                  `json:"name"`
	Verdict     string                  `json:"verdict"`
	VerdictTier classify.ReputationTier `json:"verdictTier"`
	Score       string                  `json:"score"`
	Timestamp   string                  `json:"timestamp,omitempty"`
}

// Analytics summarises the current snapshot.
type Analytics struct {
	Total        int                             `json:"total"`
	BySeverity   map[classify.SeverityTier]int   `json:"bySeverity"`
	ByReputation map[classify.ReputationTier]int `json:"byReputation"`
	ByKind       map[models.Kind]int             `json:"byKind"`
	MeanScore    float64                         `json:"meanScore"`
}

// Automation previews the webhook payloads for the current snapshot.
type Automation struct {
	Envelopes []notify.Envelope `json:"envelopes"`
}

// Input bundles everything a render reads. Settings is only consulted on the
// settings view.
type Input struct {
	State    State
	Snapshot synchronizer.Snapshot
	Form     services.SubmissionView
	Settings *settings.Settings
	Now      time.Time
}

// Render builds the page. It is pure: the same Input always yields the same Page.
func Render(in Input) Page {
	indicators := in.Snapshot.Indicators.Value
	page := Page{
		ActiveView: in.State.ActiveView,
		Views:      Views,
		Header:     renderHeader(in.Snapshot.Health),
		Form:       in.Form,
		Banner:     in.Snapshot.Indicators.ErrMessage(),
		Loading:    !in.Snapshot.Indicators.Loaded,
		Total:      len(indicators),
		RenderedAt: in.Now,
	}
	if page.ActiveView == "" {
		page.ActiveView = ViewDashboard
	}

	switch page.ActiveView {
	case ViewDashboard:
		page.Cards = make([]Card, 0, len(indicators))
		for _, ind := range indicators {
			page.Cards = append(page.Cards, renderCard(ind))
		}
		if !page.Loading && len(indicators) == 0 {
			page.Empty = emptyListText
		}
	case ViewAnalytics:
		a := renderAnalytics(indicators)
		page.Analytics = &a
	case ViewAutomation:
		page.Automation = &Automation{Envelopes: notify.BuildEnvelopes(indicators, in.Now)}
	case ViewSettings:
		if in.Settings != nil {
			cp := *in.Settings
			page.Settings = &cp
		} else {
			page.Settings = &settings.Settings{}
		}
	}

	if in.State.Selected != nil {
		d := renderDetail(*in.State.Selected)
		page.Detail = &d
	}
	return page
}

func renderHeader(h synchronizer.StreamState[models.HealthStatus]) Header {
	if !h.HasValue || h.Value.Status == "" {
		return Header{Status: statusChecking}
	}
	return Header{
		ServiceName: h.Value.ServiceName,
		Status:      strings.ToUpper(h.Value.Status),
		Healthy:     h.Value.Healthy(),
	}
}

func renderCard(ind models.Indicator) Card {
	cls := classify.Classify(ind.RiskScore, ind.Reputation)
	return Card{
		Key:            ind.Key(),
		Indicator:      ind.Value,
		Kind:           ind.Kind,
		Score:          formatScore(ind.RiskScore),
		Reputation:     strings.ToUpper(ind.Reputation),
		Severity:       cls.Severity,
		ReputationTier: cls.Reputation,
		SourcesCount:   ind.SourcesCount(),
		LastUpdated:    utils.FormatLocal(ind.LastUpdated),
	}
}

func renderDetail(ind models.Indicator) Detail {
	d := Detail{
		Card:           renderCard(ind),
		ReputationText: ind.Reputation,
		FirstSeen:      utils.FormatLocal(ind.FirstSeen),
		Sources:        make([]SourceRow, 0, len(ind.Sources)),
		Tags:           ind.Tags,
	}
	for _, s := range ind.Sources {
		d.Sources = append(d.Sources, SourceRow{
			Name:        s.Name,
			Verdict:     strings.ToUpper(s.Verdict),
			VerdictTier: classify.Reputation(s.Verdict),
			Score:       formatScore(s.Score),
			Timestamp:   utils.FormatLocal(s.Timestamp),
		})
	}
	return d
}

func renderAnalytics(indicators []models.Indicator) Analytics {
	a := Analytics{
		Total: len(indicators),
		BySeverity: map[classify.SeverityTier]int{
			classify.SeverityHigh: 0, classify.SeverityMedium: 0, classify.SeverityLow: 0,
		},
		ByReputation: map[classify.ReputationTier]int{
			classify.ReputationMalicious: 0, classify.ReputationSuspicious: 0, classify.ReputationNeutral: 0,
		},
		ByKind: make(map[models.Kind]int),
	}
	var sum float64
	var scored int
	for _, ind := range indicators {
		cls := classify.Classify(ind.RiskScore, ind.Reputation)
		a.BySeverity[cls.Severity]++
		a.ByReputation[cls.Reputation]++
		a.ByKind[ind.Kind]++
		if !math.IsNaN(ind.RiskScore) {
			sum += ind.RiskScore
			scored++
		}
	}
	if scored > 0 {
		a.MeanScore = math.Round(sum/float64(scored)*10) / 10
	}
	return a
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.1f", score)
}
