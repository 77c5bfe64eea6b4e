package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/config"
)

// healthProbeInterval is how often dependency reachability is re-checked.
const healthProbeInterval = 15 * time.Second

// StartGRPCServer boots a gRPC server, registers all provided services and
// serves until ctx is cancelled.
func StartGRPCServer(ctx context.Context, cfg *config.Config, log *slog.Logger, registrars ...GRPCRegistrar) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	log.Info("starting gRPC server", "addr", addr)
	return grpcServer.Serve(lis)
}

// HealthRegistrar exposes grpc.health.v1 with the overall status driven by
// DB and Redis reachability.
type HealthRegistrar struct {
	appCtx *app.AppContext
	ctx    context.Context
	srv    *health.Server
}

func NewHealthRegistrar(ctx context.Context, appCtx *app.AppContext) *HealthRegistrar {
	return &HealthRegistrar{appCtx: appCtx, ctx: ctx, srv: health.NewServer()}
}

func (h *HealthRegistrar) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
	h.Probe(h.ctx)
	go h.loop()
}

// Probe checks dependencies once and publishes the result.
func (h *HealthRegistrar) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if sqlDB, err := h.appCtx.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if err := h.appCtx.RedisCache.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", status)
	return status
}

func (h *HealthRegistrar) loop() {
	t := time.NewTicker(healthProbeInterval)
	defer t.Stop()
	for {
		select {
		case <-h.ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			if st := h.Probe(h.ctx); st != healthpb.HealthCheckResponse_SERVING {
				h.appCtx.Logger.Warn("health probe failing", "status", st.String())
			}
		}
	}
}
