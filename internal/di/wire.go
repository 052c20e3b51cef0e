// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/rs/zerolog"
)

// Options tune what Wire initializes
type Options struct {
	// RunHistory opens the run history database and records every run
	RunHistory bool
}

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize databases
// 2. Initialize services
func Wire(ctx context.Context, cfg *config.Config, opts Options, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// Step 1: Initialize databases
	if opts.RunHistory {
		runsDB, err := InitializeDatabases(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize databases: %w", err)
		}
		container.RunsDB = runsDB
	}

	// Step 2: Initialize services
	if err := InitializeServices(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	log.Debug().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
