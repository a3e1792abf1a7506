package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atiastack/atia-dashboard/internal/metrics"
	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

// SubmissionState is the lifecycle of one analysis request.
type SubmissionState string

const (
	StateIdle       SubmissionState = "idle"
	StateValidating SubmissionState = "validating"
	StateSubmitting SubmissionState = "submitting"
	StateSucceeded  SubmissionState = "succeeded"
	StateFailed     SubmissionState = "failed"
)

const (
	submitOp        = "submit indicator"
	emptyInputMsg   = "Please enter an indicator"
	successNoticeFm = "Analysis completed for %s"
)

// ErrSubmissionInFlight rejects a submit while a previous one is still running.
var ErrSubmissionInFlight = errors.New("an analysis request is already in progress")

// Analyzer is the remote write path.
type Analyzer interface {
	SubmitForAnalysis(ctx context.Context, value string, kind models.Kind) (models.Indicator, error)
}

// Refresher asks the read path to re-fetch the indicator list.
type Refresher interface {
	RefreshIndicators() bool
}

// SubmissionView is a copy of the controller state for rendering.
type SubmissionView struct {
	State      SubmissionState   `json:"state"`
	Input      string            `json:"input"`
	Kind       models.Kind       `json:"kind"`
	Notice     string            `json:"notice,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  utils.Kind        `json:"errorKind,omitempty"`
	LastResult *models.Indicator `json:"lastResult,omitempty"`
}

// Busy reports whether the submit control should be disabled.
func (v SubmissionView) Busy() bool { return v.State == StateSubmitting }

// SubmissionController owns the analyze form: typed input, selected kind, and
// the outcome of the latest submission.
type SubmissionController struct {
	analyzer  Analyzer
	refresher Refresher
	logger    *slog.Logger
	latencies *utils.LatencyTracker

	mu         sync.Mutex
	state      SubmissionState
	input      string
	kind       models.Kind
	notice     string
	err        error
	lastResult *models.Indicator
}

// NewSubmissionController wires the form to the remote client and synchronizer.
func NewSubmissionController(analyzer Analyzer, refresher Refresher, logger *slog.Logger) *SubmissionController {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionController{
		analyzer:  analyzer,
		refresher: refresher,
		logger:    logger,
		latencies: utils.NewLatencyTracker(256),
		state:     StateIdle,
		kind:      models.KindIP,
	}
}

// SetInput replaces the typed value.
func (c *SubmissionController) SetInput(value string) {
	c.mu.Lock()
	c.input = value
	c.mu.Unlock()
}

// SetKind selects the indicator kind. Unknown kinds are accepted here and
// rejected on submit.
func (c *SubmissionController) SetKind(kind string) {
	c.mu.Lock()
	c.kind = normaliseKind(kind)
	c.mu.Unlock()
}

func normaliseKind(kind string) models.Kind {
	return models.Kind(strings.ToLower(strings.TrimSpace(kind)))
}

// Submit validates the form and sends it for analysis. On success the input is
// cleared and exactly one list refresh is requested; on failure the input is kept.
func (c *SubmissionController) Submit(ctx context.Context) (models.Indicator, error) {
	return c.submit(ctx, nil)
}

// SubmitValue fills the form with value and kind and submits it in one step.
// An empty kind keeps the current selection. While another submission is
// running the call is rejected and the form is left untouched.
func (c *SubmissionController) SubmitValue(ctx context.Context, value, kind string) (models.Indicator, error) {
	return c.submit(ctx, func() {
		c.input = value
		if kind != "" {
			c.kind = normaliseKind(kind)
		}
	})
}

// submit runs one submission. fill, when set, updates the form under the same
// lock as the in-flight check.
func (c *SubmissionController) submit(ctx context.Context, fill func()) (models.Indicator, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		metrics.ObserveSubmission(metrics.OutcomeRejected)
		return models.Indicator{}, ErrSubmissionInFlight
	}
	if fill != nil {
		fill()
	}
	c.state = StateValidating
	c.notice = ""
	c.err = nil

	value := strings.TrimSpace(c.input)
	kind := c.kind
	if value == "" {
		return models.Indicator{}, c.rejectLocked(utils.NewValidationError(submitOp, emptyInputMsg))
	}
	if !kind.Valid() {
		return models.Indicator{}, c.rejectLocked(utils.NewValidationError(submitOp, fmt.Sprintf("Unknown indicator type %q", kind)))
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	c.logger.Debug("submitting indicator", "indicator", value, "type", kind)
	start := time.Now()
	result, err := c.analyzer.SubmitForAnalysis(ctx, value, kind)
	c.latencies.Observe(time.Since(start))

	c.mu.Lock()
	if err != nil {
		c.state = StateFailed
		c.err = err
		c.mu.Unlock()
		metrics.ObserveSubmission(metrics.OutcomeError)
		c.logger.Warn("analysis request failed", "indicator", value, "kind", utils.KindOf(err), "error", err)
		return models.Indicator{}, err
	}
	c.state = StateSucceeded
	c.input = ""
	c.notice = fmt.Sprintf(successNoticeFm, value)
	c.lastResult = &result
	c.mu.Unlock()

	metrics.ObserveSubmission(metrics.OutcomeSuccess)
	c.logger.Info("analysis completed", "indicator", value, "risk_score", result.RiskScore)
	if c.refresher != nil && !c.refresher.RefreshIndicators() {
		c.logger.Debug("post-submit refresh skipped")
	}
	return result, nil
}

// rejectLocked records a validation failure and releases the lock.
func (c *SubmissionController) rejectLocked(err error) error {
	c.state = StateFailed
	c.err = err
	c.mu.Unlock()
	metrics.ObserveSubmission(metrics.OutcomeRejected)
	return err
}

// View returns a copy of the current state.
func (c *SubmissionController) View() SubmissionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := SubmissionView{
		State:     c.state,
		Input:     c.input,
		Kind:      c.kind,
		Notice:    c.notice,
		Error:     utils.UserMessage(c.err),
		ErrorKind: utils.KindOf(c.err),
	}
	if c.lastResult != nil {
		result := *c.lastResult
		v.LastResult = &result
	}
	return v
}

// LatencySummary reports recent submit round-trip latency.
func (c *SubmissionController) LatencySummary() utils.LatencySummary {
	return c.latencies.Summary()
}
