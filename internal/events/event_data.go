package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStatusData contains data for run lifecycle events
type RunStatusData struct {
	Status          string   `json:"status"` // "started", "completed", "failed"
	NoiseModel      string   `json:"noise_model"`
	Seed            int64    `json:"seed"`
	Shots           int      `json:"shots"`
	EstimatedEnergy *float64 `json:"estimated_energy,omitempty"`
	ReferenceEnergy *float64 `json:"reference_energy,omitempty"`
	AccuracyScore   *float64 `json:"accuracy_score,omitempty"`
	Error           string   `json:"error,omitempty"`
	ErrorKind       string   `json:"error_kind,omitempty"`
	Duration        float64  `json:"duration,omitempty"` // seconds
}

// EventType returns the event type for RunStatusData.
// The actual event type is determined by the Status field
func (d *RunStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return RunCompleted
	case "failed":
		return RunFailed
	default:
		return RunStarted
	}
}

// StageCompletedData contains data for StageCompleted events
type StageCompletedData struct {
	Stage    string                 `json:"stage"` // reference, hamiltonian, optimize, synthesize, layout, evaluate
	Duration float64                `json:"duration"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// EventType returns the event type for StageCompletedData
func (d *StageCompletedData) EventType() EventType {
	return StageCompleted
}

// OptimizerProgressData contains data for OptimizerProgress events
type OptimizerProgressData struct {
	Iteration  int       `json:"iteration"`
	Energy     float64   `json:"energy"`
	BestEnergy float64   `json:"best_energy"`
	Parameters []float64 `json:"parameters,omitempty"`
}

// EventType returns the event type for OptimizerProgressData
func (d *OptimizerProgressData) EventType() EventType {
	return OptimizerProgress
}

// EvaluationProgressData contains data for EvaluationProgress events
type EvaluationProgressData struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// EventType returns the event type for EvaluationProgressData
func (d *EvaluationProgressData) EventType() EventType {
	return EvaluationProgress
}

// NoiseModelReloadedData contains data for NoiseModelReloaded events
type NoiseModelReloadedData struct {
	Name string `json:"name"`
}

// EventType returns the event type for NoiseModelReloadedData
func (d *NoiseModelReloadedData) EventType() EventType {
	return NoiseModelReloaded
}

// SweepData contains data for scheduled sweep events
type SweepData struct {
	Status      string   `json:"status"` // "started", "completed"
	NoiseModels []string `json:"noise_models"`
	Seeds       []int    `json:"seeds"`
	Runs        int      `json:"runs,omitempty"`
	Failed      int      `json:"failed,omitempty"`
	BestScore   *float64 `json:"best_score,omitempty"`
}

// EventType returns the event type for SweepData
func (d *SweepData) EventType() EventType {
	if d.Status == "completed" {
		return SweepCompleted
	}
	return SweepStarted
}

// SystemStatusData contains data for SystemStatusChanged events
type SystemStatusData struct {
	ActiveRuns    int     `json:"active_runs"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// EventType returns the event type for SystemStatusData
func (d *SystemStatusData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	RunID     string    `json:"run_id,omitempty"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case RunStarted, RunCompleted, RunFailed:
		eventData = &RunStatusData{}
	case StageCompleted:
		eventData = &StageCompletedData{}
	case OptimizerProgress:
		eventData = &OptimizerProgressData{}
	case EvaluationProgress:
		eventData = &EvaluationProgressData{}
	case NoiseModelReloaded:
		eventData = &NoiseModelReloadedData{}
	case SweepStarted, SweepCompleted:
		eventData = &SweepData{}
	case SystemStatusChanged:
		eventData = &SystemStatusData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		eventData = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// Typed converts the generic payload of e back into its typed form.
func (e *Event) Typed() (*EventWithData, error) {
	raw, err := json.Marshal(struct {
		Type      EventType              `json:"type"`
		Timestamp time.Time              `json:"timestamp"`
		Module    string                 `json:"module"`
		RunID     string                 `json:"run_id,omitempty"`
		Data      map[string]interface{} `json:"data"`
	}{e.Type, e.Timestamp, e.Module, e.RunID, e.Data})
	if err != nil {
		return nil, err
	}
	var out EventWithData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
