// Package di provides dependency injection for scheduler jobs.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the background jobs and registers those with a
// schedule on sched. Returns JobInstances for manual triggering via API.
func RegisterJobs(ctx context.Context, container *Container, sched *scheduler.Scheduler, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}

	// Benchmark sweep over noise models and seeds
	if cfg.Sweep != nil {
		sweep := scheduler.NewSweepJob(ctx, container.Workflow, container.EventManager, *cfg.Sweep)
		sweep.SetLogger(log)
		instances.Sweep = sweep

		if cfg.Sweep.Schedule != "" {
			if err := sched.AddJob(cfg.Sweep.Schedule, sweep); err != nil {
				return nil, fmt.Errorf("failed to register sweep job: %w", err)
			}
		}
	}

	// Run history upkeep
	if container.RunsDB != nil && container.RunRepo != nil && cfg.Maintenance != nil {
		retention := time.Duration(cfg.Maintenance.RetentionDays) * 24 * time.Hour
		maintenance := scheduler.NewMaintenanceJob(container.RunsDB, container.RunRepo, retention)
		maintenance.SetLogger(log.With().Str("job", maintenance.Name()).Logger())
		instances.Maintenance = maintenance

		if cfg.Maintenance.Schedule != "" {
			if err := sched.AddJob(cfg.Maintenance.Schedule, maintenance); err != nil {
				return nil, fmt.Errorf("failed to register maintenance job: %w", err)
			}
		}
	}

	log.Info().Int("jobs", len(instances.All())).Msg("Jobs registered")
	return instances, nil
}
