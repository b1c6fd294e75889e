// Package grpc serves the standard gRPC health protocol so orchestrators can
// probe the chat backend without speaking HTTP.
package grpc

import (
	"context"
	"net"
	"time"

	"characterchat/backend/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the chat backend.
const ServiceName = "characterchat.Chat"

// pollInterval is how often the serving status is refreshed.
const pollInterval = 5 * time.Second

// HealthSource reports overall system health.
type HealthSource interface {
	IsSystemHealthy() bool
}

// Server wraps a grpc.Server exposing grpc.health.v1.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	source HealthSource
	log    *logger.Logger
}

func NewServer(source HealthSource, log *logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobal()
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		source: source,
		log:    log.WithComponent("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.refresh()
	return s
}

func (s *Server) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.source.IsSystemHealthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				s.refresh()
			}
		}
	}()

	s.log.Info("gRPC server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}
