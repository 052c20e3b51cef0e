/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for service instances; the CLI
 * and the HTTP server both build their pipelines from it.
 */
package di

import (
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/artifacts"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/database"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/scheduler"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/workers"
)

// Container holds all application dependencies
type Container struct {
	// Database; nil when run history is disabled
	RunsDB *database.DB

	// Repositories
	RunRepo *workflow.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Inputs
	Model      *molecule.Model
	NoiseCache *noise.Cache

	// Infrastructure
	ArtifactStore artifacts.Store
	Pool          *workers.WorkerPool

	// Services
	Workflow *workflow.Service
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.RunsDB != nil {
		return c.RunsDB.Close()
	}
	return nil
}

// JobInstances holds the scheduled jobs for manual triggering via API
type JobInstances struct {
	Sweep       *scheduler.SweepJob
	Maintenance *scheduler.MaintenanceJob
}

// All returns every non-nil job
func (j *JobInstances) All() []scheduler.Job {
	var jobs []scheduler.Job
	if j.Sweep != nil {
		jobs = append(jobs, j.Sweep)
	}
	if j.Maintenance != nil {
		jobs = append(jobs, j.Maintenance)
	}
	return jobs
}
