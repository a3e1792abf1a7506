package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/atiastack/atia-dashboard/internal/metrics"
	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

// DefaultListLimit is used when ListRecent is called without a positive limit.
const DefaultListLimit = 50

// Operation names used for logging, metrics and error ops.
const (
	OpHealth = "health"
	OpSubmit = "submit"
	OpList   = "list"
)

const maxResponseBytes = 8 << 20

// Paths locates the aggregation API endpoints relative to the base URL.
type Paths struct {
	Health  string
	Analyze string
	Threats string
}

// DefaultPaths matches the ATIA backend routes.
var DefaultPaths = Paths{Health: "/health", Analyze: "/api/v1/analyze", Threats: "/api/v1/threats"}

// AggregatorClient wraps the ATIA aggregation API. It holds no state between calls
// beyond the latency trackers.
type AggregatorClient struct {
	baseURL    string
	paths      Paths
	httpClient *http.Client
	logger     *slog.Logger
	latency    map[string]*utils.LatencyTracker
}

// NewAggregatorClient constructs a client targeting baseURL with a per-request timeout.
func NewAggregatorClient(baseURL string, paths Paths, timeout time.Duration, logger *slog.Logger) *AggregatorClient {
	if paths.Health == "" {
		paths.Health = DefaultPaths.Health
	}
	if paths.Analyze == "" {
		paths.Analyze = DefaultPaths.Analyze
	}
	if paths.Threats == "" {
		paths.Threats = DefaultPaths.Threats
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		paths:   paths,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		latency: map[string]*utils.LatencyTracker{
			OpHealth: utils.NewLatencyTracker(256),
			OpSubmit: utils.NewLatencyTracker(256),
			OpList:   utils.NewLatencyTracker(256),
		},
	}
}

// BaseURL returns the normalised base URL.
func (c *AggregatorClient) BaseURL() string { return c.baseURL }

// CheckHealth fetches the service's self-reported status.
func (c *AggregatorClient) CheckHealth(ctx context.Context) (models.HealthStatus, error) {
	endpoint := c.resolvePath(c.paths.Health)
	body, err := c.do(ctx, OpHealth, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.HealthStatus{}, err
	}
	status, err := models.ParseHealth(body)
	if err != nil {
		return models.HealthStatus{}, c.shapeError(OpHealth, endpoint, err)
	}
	return status, nil
}

// SubmitForAnalysis asks the service to analyse value as kind and returns the result.
// Input validation is the caller's job; nothing is checked here.
func (c *AggregatorClient) SubmitForAnalysis(ctx context.Context, value string, kind models.Kind) (models.Indicator, error) {
	endpoint := c.resolvePath(c.paths.Analyze)
	payload := map[string]string{
		"indicator": value,
		"type":      string(kind),
	}
	body, err := c.do(ctx, OpSubmit, http.MethodPost, endpoint, payload)
	if err != nil {
		return models.Indicator{}, err
	}
	raw, err := unwrapSingle(body)
	if err != nil {
		return models.Indicator{}, c.shapeError(OpSubmit, endpoint, err)
	}
	ind, err := models.ParseIndicator(raw)
	if err != nil {
		return models.Indicator{}, c.shapeError(OpSubmit, endpoint, err)
	}
	return ind, nil
}

// ListRecent fetches up to limit recently analysed indicators, most recent first
// as ordered by the server.
func (c *AggregatorClient) ListRecent(ctx context.Context, limit int) ([]models.Indicator, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	endpoint := c.resolvePath(c.paths.Threats)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, utils.NewTransportError(OpList, endpoint, false, err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	body, err := c.do(ctx, OpList, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	items, err := unwrapList(body)
	if err != nil {
		return nil, c.shapeError(OpList, endpoint, err)
	}
	out := make([]models.Indicator, 0, len(items))
	for idx, item := range items {
		ind, err := models.ParseIndicator(item)
		if err != nil {
			return nil, c.shapeError(OpList, endpoint, fmt.Errorf("item %d: %w", idx, err))
		}
		out = append(out, ind)
	}
	return out, nil
}

// LatencySummary reports recent request latency for op.
func (c *AggregatorClient) LatencySummary(op string) utils.LatencySummary {
	tracker, ok := c.latency[op]
	if !ok {
		return utils.LatencySummary{}
	}
	return tracker.Summary()
}

func (c *AggregatorClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	if c.baseURL == "" {
		return cleaned
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// do performs one request and returns the parsed 2xx body. Transport, protocol
// and invalid-JSON failures come back as classified AppErrors.
func (c *AggregatorClient) do(ctx context.Context, op, method, endpoint string, payload any) (gjson.Result, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, utils.NewAppError(op, "marshal payload", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return gjson.Result{}, utils.NewTransportError(op, endpoint, false, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	c.observe(op, elapsed)
	if err != nil {
		timeout := isTimeout(err)
		c.logger.Debug("aggregator request failed", "op", op, "endpoint", endpoint, "timeout", timeout, "error", err)
		return gjson.Result{}, utils.NewTransportError(op, endpoint, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, utils.NewTransportError(op, endpoint, isTimeout(err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var text string
		if gjson.ValidBytes(raw) {
			text = errorText(gjson.ParseBytes(raw))
		}
		return gjson.Result{}, utils.NewProtocolError(op, endpoint, resp.Status, text)
	}

	body, err := parseBody(raw)
	if err != nil {
		return gjson.Result{}, c.shapeError(op, endpoint, err)
	}
	if text, failed := serverFailure(body); failed {
		return gjson.Result{}, utils.NewProtocolError(op, endpoint, resp.Status, text)
	}
	return body, nil
}

func (c *AggregatorClient) observe(op string, d time.Duration) {
	if tracker, ok := c.latency[op]; ok {
		tracker.Observe(d)
	}
	metrics.ObserveRequest(op, d)
}

func (c *AggregatorClient) shapeError(op, endpoint string, err error) error {
	c.logger.Warn("unexpected aggregator response", "op", op, "endpoint", endpoint, "kind", utils.KindShape, "error", err)
	return utils.NewShapeError(op, endpoint, "unexpected response shape", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
