package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	enginecmd "github.com/louisbranch/questline/internal/cmd/engine"
	"github.com/louisbranch/questline/internal/platform/config"
)

func main() {
	cfg, err := enginecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[ENGINE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := enginecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
