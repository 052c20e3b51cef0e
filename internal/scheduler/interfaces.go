package scheduler

import (
	"context"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
)

// RunServiceInterface defines the contract for executing pipeline runs
// Used by scheduler to enable testing with mocks
type RunServiceInterface interface {
	Run(ctx context.Context, req workflow.RunRequest) (*workflow.Report, error)
}

// RunHistoryInterface defines the run history operations used by maintenance
type RunHistoryInterface interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FailInterrupted(ctx context.Context) (int64, error)
}

// CheckpointerInterface defines the contract for WAL checkpointing
type CheckpointerInterface interface {
	WALCheckpoint(mode string) error
	Name() string
}

// EventManagerInterface defines the contract for event emission
type EventManagerInterface interface {
	EmitTyped(module, runID string, data events.EventData)
}
