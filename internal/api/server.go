package api

import (
	"context"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/incident-metrics/internal/config"
)

const defaultGracefulTimeout = 10 * time.Second

// Server hosts the MetricsEngine service next to the standard health and
// reflection services. The MetricsEngine health entry tracks snapshot
// readiness; the overall entry reports the process itself.
type Server struct {
	grpcServer      *grpc.Server
	health          *health.Server
	listener        net.Listener
	gracefulTimeout time.Duration
}

// NewServer builds the gRPC server. A nil lis listens on cfg.Address; tests
// pass a bufconn listener instead.
func NewServer(cfg config.ServerConfig, service MetricsEngineServer, lis net.Listener, opts ...grpc.ServerOption) (*Server, error) {
	if lis == nil {
		var err error
		if lis, err = net.Listen("tcp", cfg.Address); err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
		}
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	RegisterMetricsEngineServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(MetricsEngineServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	reflection.Register(grpcServer)

	timeout := cfg.GracefulTimeout
	if timeout <= 0 {
		timeout = defaultGracefulTimeout
	}
	return &Server{
		grpcServer:      grpcServer,
		health:          healthSrv,
		listener:        lis,
		gracefulTimeout: timeout,
	}, nil
}

// SetReady flips the MetricsEngine health status once a snapshot is loaded.
func (s *Server) SetReady(ready bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(MetricsEngineServiceName, st)
}

// Run serves until ctx is cancelled, then marks every service NOT_SERVING and
// drains in-flight calls for up to the graceful timeout before forcing a stop.
// It returns nil after a shutdown and the serve error otherwise.
func (s *Server) Run(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- s.grpcServer.Serve(s.listener) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	s.health.Shutdown()
	drained := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(drained)
	}()

	timer := time.NewTimer(s.gracefulTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		s.grpcServer.Stop()
		<-drained
	}
	return <-served
}
