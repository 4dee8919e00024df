// Package server wires the pins HTTP API, gRPC health probe, and storage lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/louisbranch/pinmap/internal/platform/timeouts"
	httpapi "github.com/louisbranch/pinmap/internal/services/pins/api/http"
	"github.com/louisbranch/pinmap/internal/services/pins/storage/backend"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the gRPC health service reported alongside "".
const HealthServiceName = "pinmap.pins"

// Config holds the pins server settings.
type Config struct {
	HTTPAddr       string
	HealthAddr     string
	Storage        backend.Config
	AllowedOrigins []string
	AccessLog      bool
}

// Server hosts the pins HTTP API and its health probe.
type Server struct {
	httpListener   net.Listener
	healthListener net.Listener
	httpServer     *http.Server
	grpcServer     *grpc.Server
	health         *health.Server
	store          backend.Store
}

// New opens storage and binds listeners. An empty HealthAddr disables the
// gRPC health probe.
func New(ctx context.Context, cfg Config) (*Server, error) {
	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	var healthListener net.Listener
	if strings.TrimSpace(cfg.HealthAddr) != "" {
		healthListener, err = net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			_ = httpListener.Close()
			return nil, fmt.Errorf("listen on %s: %w", cfg.HealthAddr, err)
		}
	}

	store, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		_ = httpListener.Close()
		if healthListener != nil {
			_ = healthListener.Close()
		}
		return nil, err
	}

	s := &Server{
		httpListener:   httpListener,
		healthListener: healthListener,
		store:          store,
		httpServer: &http.Server{
			Handler: httpapi.NewRouter(store, httpapi.Config{
				AllowedOrigins: cfg.AllowedOrigins,
				AccessLog:      cfg.AccessLog,
			}),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
	}
	if healthListener != nil {
		s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		s.health = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return s, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address, or "" when disabled.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Run creates and serves a pins server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the HTTP and health servers until ctx is canceled or either
// server fails, then shuts both down and closes the store.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	log.Printf("pins server listening at %v", s.httpListener.Addr())
	group.Go(func() error {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	if s.grpcServer != nil {
		log.Printf("pins health server listening at %v", s.healthListener.Addr())
		group.Go(func() error {
			if err := s.grpcServer.Serve(s.healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve gRPC health: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		s.shutdown()
		return nil
	})
	return group.Wait()
}

func (s *Server) shutdown() {
	if s.health != nil {
		s.health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown HTTP server: %v", err)
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// Close releases pins server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.healthListener != nil {
		_ = s.healthListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close pin store: %v", err)
		}
	}
}
