package scheduler

import (
	"context"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/utils"
	"github.com/rs/zerolog"
)

// MaintenanceJob checkpoints the run history WAL and prunes old runs
type MaintenanceJob struct {
	JobBase
	db        CheckpointerInterface
	history   RunHistoryInterface
	retention time.Duration
	now       func() time.Time
}

// NewMaintenanceJob creates a new MaintenanceJob. A zero retention keeps
// every run.
func NewMaintenanceJob(db CheckpointerInterface, history RunHistoryInterface, retention time.Duration) *MaintenanceJob {
	return &MaintenanceJob{
		JobBase:   JobBase{log: zerolog.Nop()},
		db:        db,
		history:   history,
		retention: retention,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "run_history_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	defer utils.OperationTimer(j.Name(), j.log)()

	pruned := int64(0)
	if j.history != nil && j.retention > 0 {
		n, err := j.history.DeleteBefore(ctx, j.now().Add(-j.retention))
		if err != nil {
			return err
		}
		pruned = n
	}

	if j.db != nil {
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", j.db.Name()).
				Msg("Failed to checkpoint WAL")
			return err
		}
	}

	j.log.Info().
		Int64("pruned_runs", pruned).
		Dur("retention", j.retention).
		Msg("Run history maintenance completed")
	return nil
}

// RecoverInterrupted marks runs left running by a previous process as
// failed. It runs once at startup.
func RecoverInterrupted(ctx context.Context, history RunHistoryInterface, log zerolog.Logger) error {
	n, err := history.FailInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Warn().Int64("runs", n).Msg("Marked interrupted runs as failed")
	}
	return nil
}
