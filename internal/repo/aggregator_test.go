package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

const evilIndicator = `{"id":"t-1","indicator":"evil.com","type":"domain","risk_score":85,"reputation":"malicious","sources":[{"name":"VirusTotal","verdict":"malicious","score":90}],"tags":["phishing"]}`

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func newStubbedClient(t *testing.T, fn roundTripFunc) *AggregatorClient {
	t.Helper()
	client := NewAggregatorClient("http://atia.test/", DefaultPaths, time.Second, nil)
	client.httpClient = newTestClient(fn)
	return client
}

func TestSubmitForAnalysisPostsPayload(t *testing.T) {
	hits := 0
	client := newStubbedClient(t, func(req *http.Request) (*http.Response, error) {
		hits++
		if req.Method != http.MethodPost || req.URL.Path != "/api/v1/analyze" {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["indicator"] != "evil.com" || payload["type"] != "domain" {
			t.Fatalf("unexpected payload: %v", payload)
		}
		return jsonResponse(http.StatusOK, evilIndicator), nil
	})

	ind, err := client.SubmitForAnalysis(context.Background(), "evil.com", models.KindDomain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one request, got %d", hits)
	}
	if ind.Value != "evil.com" || ind.RiskScore != 85 || ind.SourcesCount() != 1 {
		t.Fatalf("unexpected indicator: %+v", ind)
	}
}

func TestSubmitBareAndEnvelopeAreEquivalent(t *testing.T) {
	bodies := []string{
		evilIndicator,
		`{"data":` + evilIndicator + `}`,
		`{"success":true,"data":` + evilIndicator + `}`,
	}
	var results []models.Indicator
	for _, body := range bodies {
		body := body
		client := newStubbedClient(t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		})
		ind, err := client.SubmitForAnalysis(context.Background(), "evil.com", models.KindDomain)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", body, err)
		}
		results = append(results, ind)
	}
	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[0], results[i]) {
			t.Fatalf("shape %d differs:\n%+v\n%+v", i, results[0], results[i])
		}
	}
}

func TestListRecentBareAndEnvelopeAreEquivalent(t *testing.T) {
	list := `[` + evilIndicator + `,{"indicator":"8.8.8.8","type":"ip","risk_score":12,"reputation":"unknown"}]`
	var results [][]models.Indicator
	for _, body := range []string{list, `{"data":` + list + `}`} {
		body := body
		client := newStubbedClient(t, func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/api/v1/threats" || req.URL.Query().Get("limit") != "50" {
				t.Fatalf("unexpected request %s", req.URL.String())
			}
			return jsonResponse(http.StatusOK, body), nil
		})
		got, err := client.ListRecent(context.Background(), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		results = append(results, got)
	}
	if len(results[0]) != 2 || results[0][0].Value != "evil.com" || results[0][1].Value != "8.8.8.8" {
		t.Fatalf("order not preserved: %+v", results[0])
	}
	if !reflect.DeepEqual(results[0], results[1]) {
		t.Fatalf("bare and envelope lists differ")
	}
}

func TestListRecentEmptyShapes(t *testing.T) {
	for _, body := range []string{`[]`, `null`, `{"data":null}`} {
		body := body
		client := newStubbedClient(t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		})
		got, err := client.ListRecent(context.Background(), 10)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", body, err)
		}
		if len(got) != 0 {
			t.Fatalf("%s: expected empty list, got %d", body, len(got))
		}
	}
}

func TestListRecentShapeError(t *testing.T) {
	client := newStubbedClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `[{"indicator":"a.com","risk_score":"high","reputation":"x"}]`), nil
	})
	_, err := client.ListRecent(context.Background(), 5)
	if utils.KindOf(err) != utils.KindShape {
		t.Fatalf("expected shape error, got %v", err)
	}
	if msg := utils.UserMessage(err); !strings.Contains(msg, "http://atia.test/api/v1/threats") {
		t.Fatalf("shape message should name the endpoint, got %q", msg)
	}
}

func TestProtocolErrorUsesServerText(t *testing.T) {
	client := newStubbedClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"success":false,"error":"VirusTotal quota exceeded"}`), nil
	})
	_, err := client.SubmitForAnalysis(context.Background(), "evil.com", models.KindDomain)
	if utils.KindOf(err) != utils.KindProtocol {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if utils.UserMessage(err) != "VirusTotal quota exceeded" {
		t.Fatalf("unexpected message %q", utils.UserMessage(err))
	}
}

func TestProtocolErrorFallsBackToStatus(t *testing.T) {
	client := newStubbedClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `<html>bad gateway</html>`), nil
	})
	_, err := client.CheckHealth(context.Background())
	if utils.KindOf(err) != utils.KindProtocol {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if utils.UserMessage(err) != "Bad Gateway" {
		t.Fatalf("unexpected message %q", utils.UserMessage(err))
	}
}

func TestSuccessFalseOn2xxIsProtocolError(t *testing.T) {
	client := newStubbedClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"success":false,"error":"invalid indicator"}`), nil
	})
	_, err := client.SubmitForAnalysis(context.Background(), "nope", models.KindDomain)
	if utils.KindOf(err) != utils.KindProtocol || utils.UserMessage(err) != "invalid indicator" {
		t.Fatalf("expected protocol error with server text, got %v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	client := newStubbedClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/health" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"status":"healthy","service":"ATIA Backend"}`), nil
	})
	status, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Healthy() || status.ServiceName != "ATIA Backend" {
		t.Fatalf("unexpected status %+v", status)
	}
	if client.LatencySummary(OpHealth).Count != 1 {
		t.Fatalf("expected one latency sample")
	}
}

func TestTransportErrorConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := NewAggregatorClient("http://"+addr, DefaultPaths, time.Second, nil)
	_, err = client.SubmitForAnalysis(context.Background(), "8.8.8.8", models.KindIP)
	if utils.KindOf(err) != utils.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if utils.IsTimeout(err) {
		t.Fatalf("refused connection should not be reported as timeout")
	}
	if msg := utils.UserMessage(err); !strings.Contains(msg, addr) {
		t.Fatalf("message should name the endpoint, got %q", msg)
	}
}

func TestTransportErrorTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewAggregatorClient(server.URL, DefaultPaths, 50*time.Millisecond, nil)
	_, err := client.ListRecent(context.Background(), 50)
	if utils.KindOf(err) != utils.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !utils.IsTimeout(err) {
		t.Fatalf("expected timeout to be distinguishable, got %v", err)
	}
}

func TestContextCancelIsTransport(t *testing.T) {
	client := newStubbedClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, req.Context().Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.CheckHealth(ctx)
	if utils.KindOf(err) != utils.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestResolvePathKeepsBasePrefix(t *testing.T) {
	client := NewAggregatorClient("http://atia.test/backend/", DefaultPaths, time.Second, nil)
	if got := client.resolvePath("/api/v1/threats"); got != "http://atia.test/backend/api/v1/threats" {
		t.Fatalf("unexpected url %q", got)
	}
}
