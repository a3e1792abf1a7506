package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/atiastack/atia-dashboard/internal/config"
	"github.com/atiastack/atia-dashboard/internal/models"
	"github.com/atiastack/atia-dashboard/internal/synchronizer"
)

// UpstreamService is the health service name mirroring the aggregation API.
// The empty service name reports the dashboard process itself.
const UpstreamService = "atia.aggregator"

// Server wraps the gRPC health server and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
	logger     *slog.Logger
}

// NewServer constructs a gRPC server bound to the configured address.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(UpstreamService, healthpb.HealthCheckResponse_UNKNOWN)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpc_prometheus.Register(grpcServer)

	reflection.Register(grpcServer)

	return &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		listener:   lis,
		health:     healthSrv,
		logger:     logger,
	}, nil
}

// UpstreamStatus maps the latest health stream state onto a gRPC serving status.
func UpstreamStatus(h synchronizer.StreamState[models.HealthStatus]) healthpb.HealthCheckResponse_ServingStatus {
	switch {
	case !h.Loaded:
		return healthpb.HealthCheckResponse_UNKNOWN
	case h.Err != nil:
		return healthpb.HealthCheckResponse_NOT_SERVING
	case h.HasValue && h.Value.Healthy():
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// SetUpstream publishes the upstream health state.
func (s *Server) SetUpstream(h synchronizer.StreamState[models.HealthStatus]) {
	s.health.SetServingStatus(UpstreamService, UpstreamStatus(h))
}

// MirrorUpstream follows the synchronizer's health stream until ctx is done.
func (s *Server) MirrorUpstream(ctx context.Context, sync *synchronizer.Synchronizer) {
	sub := sync.Subscribe()
	defer sub.Close()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.C():
			h := sync.Snapshot().Health
			status := UpstreamStatus(h)
			if status != last {
				s.logger.Info("upstream health changed", "status", status.String(), "service", h.Value.ServiceName)
				last = status
			}
			s.SetUpstream(h)
		}
	}
}

// Start serves incoming gRPC requests until Stop/Shutdown is invoked.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown attempts a graceful shutdown, falling back to Stop after timeout.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
