// Package grpcserver exposes the standard gRPC health service, kept in step
// with the same dependency checks that back /readyz.
package grpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/salonbook/salonbook/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health entry reported for the booking engine.
const ServiceName = "salonbook.booking"

type Health struct {
	srv    *health.Server
	checks []runtime.ReadyCheck
	logger *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func NewHealth(logger *slog.Logger, checks ...runtime.ReadyCheck) *Health {
	h := &Health{srv: health.NewServer(), checks: checks, logger: logger}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register installs the health service and reflection on srv.
func Register(srv *grpc.Server, h *Health) {
	healthpb.RegisterHealthServer(srv, h.srv)
	reflection.Register(srv)
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
}

// Refresh runs the checks once and publishes the result.
func (h *Health) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	err := runtime.CheckAll(ctx, h.checks)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if h.last != status {
			h.logger.Warn("dependency check failed", "err", err)
		}
	}
	if h.last != status {
		h.logger.Info("grpc health changed", "status", status.String())
		h.last = status
	}
	h.set(status)
	return status
}

// Run refreshes every interval until ctx ends, then marks the service as
// shutting down.
func (h *Health) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return nil
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Probe asks a remote health service whether service is serving.
func Probe(ctx context.Context, conn grpc.ClientConnInterface, service string) error {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health check: %s is %s", service, resp.GetStatus())
	}
	return nil
}
