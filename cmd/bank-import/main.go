package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/propledger/internal/cli"
	"github.com/eshaffer321/propledger/internal/infrastructure/config"
)

func main() {
	// Parse flags
	flags, err := cli.ParseImportFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	// Load configuration
	cfg := config.LoadOrEnv_WithPath(flags.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.RunImport(ctx, cfg, flags, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Import failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}
