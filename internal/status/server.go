package status

// ============================================================================
// Batch status endpoint
// Serves the standard gRPC health service so supervisors can tell whether a
// batch is in progress:
//   before dispatch   -> NOT_SERVING
//   while running     -> SERVING
//   after completion  -> NOT_SERVING
// ============================================================================

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name reporting batch state.
const Service = "fontmake-mp.Batch"

// ErrServerStopped is returned by Serve once Stop has been called.
var ErrServerStopped = errors.New("status server already stopped")

// Server wraps a gRPC server exposing the health service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server

	mu      sync.Mutex
	stopped bool
}

// NewServer creates a status server with the batch marked NOT_SERVING.
func NewServer(opts ...grpc.ServerOption) *Server {
	hs := health.NewServer()
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, health: hs}
}

// Listen opens a TCP listener on addr and serves on it in the background.
func (s *Server) Listen(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go s.serveAndLog(lis)
	return lis.Addr(), nil
}

// serveAndLog serves lis and logs only unexpected failures. A batch can
// finish and call Stop before the serving goroutine gets to run.
func (s *Server) serveAndLog(lis net.Listener) {
	err := s.Serve(lis)
	switch {
	case err == nil:
	case errors.Is(err, ErrServerStopped), errors.Is(err, grpc.ErrServerStopped):
		slog.Debug("status server stopped before serving", "addr", lis.Addr().String())
	default:
		slog.Error("status server stopped", "addr", lis.Addr().String(), "error", err)
	}
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = lis.Close()
		return ErrServerStopped
	}
	s.mu.Unlock()

	slog.Debug("status server listening", "addr", lis.Addr().String(), "service", Service)
	return s.grpcServer.Serve(lis)
}

// MarkRunning reports the batch as in progress.
func (s *Server) MarkRunning() {
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
}

// MarkDone reports the batch as finished.
func (s *Server) MarkDone() {
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Stop flips every service to NOT_SERVING and closes all connections,
// including open Watch streams. Safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.health.Shutdown()
	s.grpcServer.Stop()
}
