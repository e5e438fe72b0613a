// Package app wires the progression engine service: storage, collaborators,
// the HTTP API, and a gRPC health endpoint for orchestration probes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/questline/internal/services/engine/api"
	"github.com/louisbranch/questline/internal/services/engine/checkin"
	"github.com/louisbranch/questline/internal/services/engine/notify"
	"github.com/louisbranch/questline/internal/services/engine/progression"
	"github.com/louisbranch/questline/internal/services/engine/storage/sqlite"
	"github.com/louisbranch/questline/internal/services/engine/submission"
)

// Config holds the engine service configuration.
type Config struct {
	HTTPPort       int           `env:"QUESTLINE_HTTP_PORT" envDefault:"8080"`
	HealthPort     int           `env:"QUESTLINE_HEALTH_PORT" envDefault:"8081"`
	StoragePath    string        `env:"QUESTLINE_STORAGE_PATH" envDefault:"questline.db"`
	CheckInSecret  string        `env:"QUESTLINE_CHECKIN_SECRET"`
	CheckInMaxAge  time.Duration `env:"QUESTLINE_CHECKIN_MAX_AGE" envDefault:"10m"`
	SnapshotTTL    time.Duration `env:"QUESTLINE_SNAPSHOT_TTL" envDefault:"30s"`
	NotifyInFlight int           `env:"QUESTLINE_NOTIFY_IN_FLIGHT" envDefault:"16"`
}

// Run starts the engine service and blocks until the context is canceled or
// a server fails.
func Run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close storage: %v", err)
		}
	}()

	dispatcher := notify.NewDispatcher(&notify.LogSink{}, cfg.NotifyInFlight, log.Printf)
	defer dispatcher.Wait()

	var verifier checkin.Verifier
	if cfg.CheckInSecret != "" {
		verifier = checkin.NewHMACVerifier([]byte(cfg.CheckInSecret), cfg.CheckInMaxAge)
	}

	service := progression.New(store, dispatcher, submission.NewPayloadValidator(), verifier,
		progression.WithSnapshotTTL(cfg.SnapshotTTL),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.New(service, log.Printf).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := gogrpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen health port: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("engine http listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.Printf("engine health listening on %s", healthListener.Addr())
		if err := grpcServer.Serve(healthListener); err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	return group.Wait()
}
