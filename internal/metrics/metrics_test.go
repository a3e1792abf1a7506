package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterTwiceIsTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}
}

func TestObservePollOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := counterValue(t, reg, "atia_dashboard_poll_total", "outcome", OutcomeError)
	ObservePoll("list", errors.New("boom"))
	after := counterValue(t, reg, "atia_dashboard_poll_total", "outcome", OutcomeError)
	if after-before != 1 {
		t.Fatalf("expected error counter to increase by 1, got %v", after-before)
	}
}

func TestObserveSubmissionNormalisesLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := counterValue(t, reg, "atia_dashboard_submissions_total", "outcome", OutcomeError)
	ObserveSubmission("weird")
	if got := counterValue(t, reg, "atia_dashboard_submissions_total", "outcome", OutcomeError) - before; got != 1 {
		t.Fatalf("unknown outcome should count as error, delta %v", got)
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
