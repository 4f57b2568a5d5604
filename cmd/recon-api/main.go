package main

import (
	"fmt"
	"os"

	"github.com/eshaffer321/propledger/internal/cli"
	"github.com/eshaffer321/propledger/internal/infrastructure/config"
)

func main() {
	// Parse flags
	flags, err := cli.ParseServeFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	// Load configuration
	cfg := config.LoadOrEnv_WithPath(flags.ConfigPath)

	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
