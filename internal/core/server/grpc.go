// Package server hosts bytecode editor backends over gRPC.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solatis/weaver/internal/core/auth"
	"github.com/solatis/weaver/internal/editor"
)

// ShutdownTimeout bounds a graceful stop.
const ShutdownTimeout = 30 * time.Second

// EditorServer manages the lifecycle of a gRPC server hosting one editor
// backend.
type EditorServer struct {
	server *grpc.Server
	health *health.Server
	logger *slog.Logger
}

// NewEditorServer creates gRPC server with auth interceptor and service
// registration. A nil authenticator accepts unsigned calls.
func NewEditorServer(backend editor.Backend, authenticator *auth.Authenticator, logger *slog.Logger) (*EditorServer, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []grpc.ServerOption
	if authenticator != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(authenticator.UnaryInterceptor()))
	}

	server := grpc.NewServer(opts...)
	editor.RegisterEditorServer(server, backend, logger)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(editor.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &EditorServer{server: server, health: healthServer, logger: logger}, nil
}

// Serve serves requests on listener until Shutdown is called.
func (s *EditorServer) Serve(listener net.Listener) error {
	s.logger.Info("editor server listening", slog.String("addr", listener.Addr().String()))
	return s.server.Serve(listener)
}

// ListenAndServe binds addr and serves on it.
func (s *EditorServer) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops server, forcing a stop after ShutdownTimeout or
// when ctx ends.
func (s *EditorServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(ShutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
