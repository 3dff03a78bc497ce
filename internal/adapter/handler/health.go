package handler

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/shop-stock/internal/core/service"
)

// SyncServiceName is the health-checked service that follows the sync engine.
const SyncServiceName = "shop-stock.Sync"

// NewHealthServer returns a gRPC health server whose SyncServiceName status
// tracks the engine: SERVING while live, NOT_SERVING otherwise.
func NewHealthServer(engine *service.SyncEngine) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(SyncServiceName, servingStatus(engine.State()))
	engine.OnStateChange(func(state service.EngineState) {
		hs.SetServingStatus(SyncServiceName, servingStatus(state))
	})
	return hs
}

func servingStatus(state service.EngineState) healthpb.HealthCheckResponse_ServingStatus {
	if state == service.StateLive {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
