package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/shop-stock/internal/adapter/auth"
	"github.com/rl1809/shop-stock/internal/adapter/handler"
	"github.com/rl1809/shop-stock/internal/adapter/storage"
	"github.com/rl1809/shop-stock/internal/config"
	"github.com/rl1809/shop-stock/internal/core/service"
	"github.com/rl1809/shop-stock/internal/telemetry"
)

const serviceName = "shop-stock"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	// Storage
	collection, closeStorage, err := storage.OpenBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s backend: %v", cfg.Backend, err)
	}
	log.Printf("connected to %s backend", cfg.Backend)

	// Session
	session := service.NewSession(cfg.AppID, collection, auth.NewTokenAuthenticator(cfg.AuthSecret))
	if _, err := session.Authenticate(ctx, cfg.InitialAuthToken); err != nil {
		// The process stays up without identity: the view reports unavailable
		// and every mutation is refused.
		log.Printf("starting without identity: %v", err)
	}

	// Core
	broadcaster := handler.NewBroadcaster()
	engine := service.NewSyncEngine(session, broadcaster, cfg.ReorderPoint)
	mutations := service.NewMutationService(session, broadcaster,
		service.WithAdjustMode(service.AdjustMode(cfg.AdjustMode)),
	)
	engine.OnStateChange(func(state service.EngineState) {
		log.Printf("sync engine: %s", state)
	})

	// gRPC health
	grpcServer := grpc.NewServer()
	healthServer := handler.NewHealthServer(engine)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			log.Printf("sync engine stopped: %v", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// HTTP
	httpHandler := handler.NewHTTPHandler(session, engine, mutations, broadcaster)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Router(),
	}
	httpServer.RegisterOnShutdown(broadcaster.Close)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	log.Println("HTTP server stopped")

	healthServer.Shutdown()
	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	cancel()
	wg.Wait()
	log.Println("sync engine stopped")

	if err := closeStorage(); err != nil {
		log.Printf("failed to close storage: %v", err)
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Printf("failed to flush traces: %v", err)
	}
	log.Println("connections closed")
}
