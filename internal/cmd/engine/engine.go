// Package engine parses engine command flags and starts the progression runtime.
package engine

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/questline/internal/platform/cmd"
	"github.com/louisbranch/questline/internal/services/engine/app"
)

// ParseConfig parses environment and flags into an app.Config.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Config, error) {
	var cfg app.Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return app.Config{}, err
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The engine HTTP API port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The engine gRPC health port")
	fs.StringVar(&cfg.StoragePath, "db", cfg.StoragePath, "The sqlite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// Run starts the progression engine service.
func Run(ctx context.Context, cfg app.Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(context.Context) error {
		return app.Run(ctx, cfg)
	})
}
