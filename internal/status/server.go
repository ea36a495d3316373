package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/config"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
)

// Server runs the optional gRPC and HTTP listeners
type Server struct {
	cfg     config.Status
	state   *State
	handler http.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	grpcSrv  *grpc.Server
	grpcLis  net.Listener
	httpSrv  *http.Server
	httpLis  net.Listener
	stopOnce sync.Once
}

// NewServer creates a server; listeners with an empty address stay disabled
func NewServer(cfg config.Status, state *State, handler http.Handler, l *slog.Logger) *Server {
	if l == nil {
		l = logger.Default
	}
	return &Server{cfg: cfg, state: state, handler: handler, logger: l}
}

// Start opens the configured listeners and serves them in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC on %s: %w", s.cfg.GRPCAddr, err)
		}
		s.grpcLis = lis
		s.grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcSrv, s.state.Health())

		go func() {
			s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
			if err := s.grpcSrv.Serve(lis); err != nil {
				s.logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	if s.cfg.MetricsAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			if s.grpcSrv != nil {
				s.grpcSrv.Stop()
			}
			return fmt.Errorf("failed to listen for HTTP on %s: %w", s.cfg.MetricsAddr, err)
		}
		s.httpLis = lis
		s.httpSrv = &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}

		go func() {
			s.logger.Info("HTTP status server listening", "addr", lis.Addr().String())
			if err := s.httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server error", "error", err)
			}
		}()
	}
	return nil
}

// GRPCAddr returns the bound gRPC address, or "" when disabled
func (s *Server) GRPCAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grpcLis == nil {
		return ""
	}
	return s.grpcLis.Addr().String()
}

// HTTPAddr returns the bound HTTP address, or "" when disabled
func (s *Server) HTTPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpLis == nil {
		return ""
	}
	return s.httpLis.Addr().String()
}

// Shutdown stops both listeners. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		grpcSrv, httpSrv := s.grpcSrv, s.httpSrv
		s.mu.Unlock()

		if grpcSrv != nil {
			s.state.Health().Shutdown()
			grpcSrv.GracefulStop()
		}
		if httpSrv != nil {
			if shutdownErr := httpSrv.Shutdown(ctx); shutdownErr != nil {
				err = fmt.Errorf("HTTP shutdown: %w", shutdownErr)
			}
		}
	})
	return err
}
