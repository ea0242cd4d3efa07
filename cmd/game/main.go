package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tatianab/atelos/internal/app"
	"github.com/tatianab/atelos/internal/config"
	"github.com/tatianab/atelos/internal/telemetry"
	"github.com/tatianab/atelos/internal/tui"
)

func main() {
	importPath := flag.String("import", "", "import a scenario YAML file into the store and exit")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	// The TUI owns the terminal, so logs go to a file unless one is set.
	if cfg.LogFile == "" {
		if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
			fmt.Printf("Error creating save directory: %v\n", err)
			os.Exit(1)
		}
		cfg.LogFile = filepath.Join(cfg.SaveDir, "atelos.log")
	}
	logger, logCloser, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		fmt.Printf("Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	shutdown, err := telemetry.Setup(ctx, "atelos-game", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer shutdown(context.Background())

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *importPath != "" {
		id, err := app.ImportScenario(ctx, store, *importPath)
		if err != nil {
			fmt.Printf("Error importing scenario: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported scenario %q\n", id)
		return
	}

	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := app.SeedStore(ctx, store, logger); err != nil {
		fmt.Printf("Error seeding store: %v\n", err)
		os.Exit(1)
	}

	eng, closer, err := app.NewEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("Error creating engine: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := tui.Run(eng, store, logger); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
