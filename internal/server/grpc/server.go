package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name of the capture daemon
const ServiceName = "whispering.Daemon"

// Server exposes the daemon's health over gRPC
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	addr       string

	mu  sync.Mutex
	lis net.Listener
}

// Config holds server configuration
type Config struct {
	Addr string
}

// NewServer creates a new gRPC server reporting NOT_SERVING until the daemon
// marks itself ready
func NewServer(cfg Config) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		addr:       cfg.Addr,
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	s.SetServing(false)

	return s
}

// SetServing updates the reported status of the daemon and of the server as
// a whole
func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

// Listen binds the address. Start calls it when needed.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lis != nil {
		return s.lis.Addr(), nil
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.lis = lis
	return lis.Addr(), nil
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	slog.Info("gRPC health server listening", "addr", addr.String())
	if err := s.grpcServer.Serve(s.lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
