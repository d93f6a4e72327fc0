package grpcapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/americansport/gymgate/internal/logger"
)

// GateService is the service name health checks can ask about in addition to the
// overall ("") status.
const GateService = "gymgate.Gate"

type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

func NewHealthServer(log zerolog.Logger) *HealthServer {
	srv := grpc.NewServer(grpc.UnaryInterceptor(logger.UnaryRequests(log)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{server: srv, health: hs, logger: log}
}

// Serve marks the gate SERVING and blocks until the listener fails or
// Shutdown is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus(GateService, healthpb.HealthCheckResponse_SERVING)
	h.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")

	err := h.server.Serve(lis)
	if err == grpc.ErrServerStopped {
		return nil
	}
	return err
}

// Shutdown flips every status to NOT_SERVING, then drains in-flight calls.
func (h *HealthServer) Shutdown() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
