// Package events provides the in-process event bus that carries run
// lifecycle and progress updates to log output and stream subscribers.
package events

// EventType represents different event types
type EventType string

const (
	// Run lifecycle
	RunStarted     EventType = "RUN_STARTED"
	StageCompleted EventType = "STAGE_COMPLETED"
	RunCompleted   EventType = "RUN_COMPLETED"
	RunFailed      EventType = "RUN_FAILED"

	// Progress within a stage
	OptimizerProgress  EventType = "OPTIMIZER_PROGRESS"
	EvaluationProgress EventType = "EVALUATION_PROGRESS"

	// Background activity
	NoiseModelReloaded  EventType = "NOISE_MODEL_RELOADED"
	SweepStarted        EventType = "SWEEP_STARTED"
	SweepCompleted      EventType = "SWEEP_COMPLETED"
	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// RunEventTypes lists every event type that belongs to a single run.
var RunEventTypes = []EventType{
	RunStarted,
	StageCompleted,
	OptimizerProgress,
	EvaluationProgress,
	RunCompleted,
	RunFailed,
}
