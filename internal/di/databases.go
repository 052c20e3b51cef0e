// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the run history database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*database.DB, error) {
	path := cfg.RunsDBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// runs.db - Run history (reports, scores, artifacts)
	runsDB, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    "runs",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runs database: %w", err)
	}

	if err := runsDB.Migrate(); err != nil {
		runsDB.Close()
		return nil, fmt.Errorf("failed to migrate runs database: %w", err)
	}

	log.Info().Str("path", path).Msg("Run history database ready")
	return runsDB, nil
}
