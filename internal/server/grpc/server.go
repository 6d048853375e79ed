// Package grpc serves the standard gRPC health protocol for the identity
// server. Readiness follows the backing services: any failing dependency turns the
// status to NOT_SERVING until it recovers.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "idkeeper.Auth"

type GRPCServer struct {
	address  string
	health   *health.Server
	deps     []Dependency
	interval time.Duration
	logger   logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, interval time.Duration, deps ...Dependency) *GRPCServer {
	s := &GRPCServer{
		address:  address,
		health:   health.NewServer(),
		deps:     deps,
		interval: interval,
		logger:   l.With("module", "grpc_server"),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve runs on an existing listener until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}

func (s *GRPCServer) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// watch checks immediately, then on every tick.
func (s *GRPCServer) watch(ctx context.Context) {
	s.check(ctx)
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}
