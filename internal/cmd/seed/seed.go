// Package seed parses seed command flags and runs the demo fixture builder.
package seed

import (
	"context"
	"flag"
	"io"

	entrypoint "github.com/louisbranch/questline/internal/platform/cmd"
	"github.com/louisbranch/questline/internal/tools/seed"
)

// ParseConfig parses flags into a seed.Config.
func ParseConfig(fs *flag.FlagSet, args []string) (seed.Config, error) {
	cfg := seed.DefaultConfig()
	fs.StringVar(&cfg.StoragePath, "db", cfg.StoragePath, "The sqlite database path")
	fs.IntVar(&cfg.Participants, "participants", cfg.Participants, "Number of demo participants to assign")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return seed.Config{}, err
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg seed.Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(context.Context) error {
		return seed.Run(ctx, cfg, out)
	})
}
