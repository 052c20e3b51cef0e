package di

import (
	"context"
	"fmt"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/artifacts"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/optimization"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/synthesis"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/workers"
	"github.com/rs/zerolog"
)

// InitializeServices creates the event system, inputs and the workflow service
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Events
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Molecular model: YAML descriptor when configured, built-in H2 otherwise
	if cfg.MoleculePath != "" {
		model, err := molecule.Load(cfg.MoleculePath)
		if err != nil {
			return fmt.Errorf("failed to load molecule: %w", err)
		}
		container.Model = model
	} else {
		container.Model = molecule.H2()
	}

	container.NoiseCache = noise.NewCache(cfg.NoiseModelDir, log)

	store, err := artifacts.NewStore(ctx, cfg.Artifacts, log)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}
	container.ArtifactStore = store

	container.Pool = workers.NewWorkerPool(cfg.EvalWorkers)

	if container.RunsDB != nil {
		container.RunRepo = workflow.NewRepository(container.RunsDB.Conn(), log)
	}

	container.Workflow = workflow.NewService(WorkflowConfig(cfg), workflow.Deps{
		Model:  container.Model,
		Noise:  container.NoiseCache,
		Pool:   container.Pool,
		Store:  container.ArtifactStore,
		Repo:   container.RunRepo,
		Events: container.EventManager,
	}, log)

	log.Info().
		Str("molecule", container.Model.Name).
		Str("noise_model_dir", cfg.NoiseModelDir).
		Bool("run_history", container.RunRepo != nil).
		Msg("Services initialized")
	return nil
}

// WorkflowConfig maps application configuration onto pipeline settings
func WorkflowConfig(cfg *config.Config) workflow.Config {
	wc := workflow.Config{
		HamiltonianPath: cfg.HamiltonianPath,
		QASMHandoff:     cfg.QASMHandoff,
		InitialLayout:   cfg.InitialLayout,
	}
	if cfg.Optimizer != nil {
		wc.Optimizer = optimization.Config{
			Strategy:      cfg.Optimizer.Strategy,
			MaxIterations: cfg.Optimizer.MaxIterations,
			Tolerance:     cfg.Optimizer.Tolerance,
		}
	}
	if cfg.Synthesis != nil {
		wc.Synthesis = synthesis.Config{
			Tolerance:      cfg.Synthesis.Tolerance,
			BlockTolerance: cfg.Synthesis.BlockTolerance,
			Timeout:        cfg.Synthesis.Timeout,
		}
	}
	return wc
}
