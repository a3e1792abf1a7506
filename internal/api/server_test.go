package api

import (
	"context"
	"errors"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/atiastack/atia-dashboard/internal/config"
	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/synchronizer"
)

func TestUpstreamStatus(t *testing.T) {
	healthy := models.HealthStatus{ServiceName: "ATIA Backend", Status: "healthy"}
	cases := []struct {
		name  string
		state synchronizer.StreamState[models.HealthStatus]
		want  healthpb.HealthCheckResponse_ServingStatus
	}{
		{"before first poll", synchronizer.StreamState[models.HealthStatus]{}, healthpb.HealthCheckResponse_UNKNOWN},
		{"healthy", synchronizer.StreamState[models.HealthStatus]{Value: healthy, HasValue: true, Loaded: true}, healthpb.HealthCheckResponse_SERVING},
		{"degraded", synchronizer.StreamState[models.HealthStatus]{Value: models.HealthStatus{Status: "degraded"}, HasValue: true, Loaded: true}, healthpb.HealthCheckResponse_NOT_SERVING},
		{"unreachable", synchronizer.StreamState[models.HealthStatus]{Value: healthy, HasValue: true, Loaded: true, Err: errors.New("refused")}, healthpb.HealthCheckResponse_NOT_SERVING},
	}
	for _, tc := range cases {
		if got := UpstreamStatus(tc.state); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestServerMirrorsUpstreamHealth(t *testing.T) {
	srv, err := NewServer(config.ServerConfig{GRPCAddress: "127.0.0.1:0", GracefulTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Address() == "" {
		t.Fatalf("expected bound address")
	}
	ctx := context.Background()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := srv.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("check %q: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("process liveness should be serving, got %v", got)
	}
	if got := check(UpstreamService); got != healthpb.HealthCheckResponse_UNKNOWN {
		t.Fatalf("upstream should be unknown before the first poll, got %v", got)
	}

	agg := &stubAggregator{}
	syncer := synchronizer.New(agg, synchronizer.Options{HealthInterval: time.Hour, ListInterval: time.Hour})
	defer syncer.Close()

	mirrorCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		srv.MirrorUpstream(mirrorCtx, syncer)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for check(UpstreamService) != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatalf("upstream status never became serving")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("mirror did not stop after cancel")
	}
	if syncer.Running() {
		t.Fatalf("mirror should release its subscription")
	}

	shutdownCtx, stop := context.WithTimeout(ctx, srv.GracefulTimeout())
	defer stop()
	srv.Shutdown(shutdownCtx)
}
