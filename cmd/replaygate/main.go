// Package main runs the replay gate verification pipeline.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	replaygatecmd "github.com/tavernforge/statevar/internal/cmd/replaygate"
	"github.com/tavernforge/statevar/internal/platform/config"
)

func main() {
	cfg, err := replaygatecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := replaygatecmd.Run(ctx, cfg); err != nil {
		stop()
		config.Exitf("replay gate: %v", err)
	}
}
