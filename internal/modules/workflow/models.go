// Package workflow sequences the pipeline stages of one run: reference
// energy, Hamiltonian parsing, variational optimization, synthesis, device
// layout and noisy evaluation. It also keeps the run history.
package workflow

import (
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/evaluation"
)

// DefaultShots is the evaluation shot count when none is given.
const DefaultShots = 2852

// RunStatus is the lifecycle state of a run record
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run sources
const (
	SourceCLI   = "cli"
	SourceAPI   = "api"
	SourceSweep = "sweep"
)

// RunRequest selects the noise model, seed and shot count of a run.
type RunRequest struct {
	NoiseModel string `json:"noise_model"`
	Seed       int64  `json:"seed"`
	Shots      int    `json:"shots"`
	Source     string `json:"source,omitempty"`
}

// OptimizerSummary describes the variational stage
type OptimizerSummary struct {
	Strategy    string    `json:"strategy"`
	Energy      float64   `json:"energy"`
	StdError    float64   `json:"std_error,omitempty"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	Converged   bool      `json:"converged"`
	Parameters  []float64 `json:"parameters"`
}

// SynthesisSummary describes the synthesis stage
type SynthesisSummary struct {
	SourceCX int     `json:"source_cx"`
	CXCount  int     `json:"cx_count"`
	Depth    int     `json:"depth"`
	Fidelity float64 `json:"fidelity"`
	Passes   int     `json:"passes"`
	TimedOut bool    `json:"timed_out"`
}

// LayoutSummary describes the device mapping
type LayoutSummary struct {
	InitialLayout []int `json:"initial_layout"`
	FinalLayout   []int `json:"final_layout"`
	Swaps         int   `json:"swaps"`
}

// Report is the full outcome of a run.
type Report struct {
	ID                 string                       `json:"id"`
	NoiseModel         string                       `json:"noise_model"`
	Seed               int64                        `json:"seed"`
	Shots              int                          `json:"shots"`
	Source             string                       `json:"source"`
	Molecule           string                       `json:"molecule"`
	ReferenceEnergy    float64                      `json:"reference_energy"`
	HamiltonianTerms   int                          `json:"hamiltonian_terms"`
	HamiltonianSkipped int                          `json:"hamiltonian_skipped"`
	Optimizer          *OptimizerSummary            `json:"optimizer,omitempty"`
	Synthesis          *SynthesisSummary            `json:"synthesis,omitempty"`
	Layout             *LayoutSummary               `json:"layout,omitempty"`
	Ansatz             *circuit.Metrics             `json:"ansatz,omitempty"`
	Compiled           *circuit.Metrics             `json:"compiled,omitempty"`
	Routed             *circuit.Metrics             `json:"routed,omitempty"`
	Evaluation         *evaluation.EvaluationResult `json:"evaluation,omitempty"`
	Artifacts          map[string]string            `json:"artifacts,omitempty"`
	StartedAt          time.Time                    `json:"started_at"`
	FinishedAt         time.Time                    `json:"finished_at"`
}

// AccuracyScore returns the evaluated score, zero before evaluation
func (r *Report) AccuracyScore() float64 {
	if r.Evaluation == nil {
		return 0
	}
	return r.Evaluation.AccuracyScore
}

// Run is a row of the run history.
type Run struct {
	ID                  string     `json:"id"`
	NoiseModel          string     `json:"noise_model"`
	Seed                int64      `json:"seed"`
	Shots               int        `json:"shots"`
	Status              RunStatus  `json:"status"`
	Source              string     `json:"source"`
	ReferenceEnergy     *float64   `json:"reference_energy,omitempty"`
	EstimatedEnergy     *float64   `json:"estimated_energy,omitempty"`
	AccuracyScore       *float64   `json:"accuracy_score,omitempty"`
	StdError            *float64   `json:"std_error,omitempty"`
	OptimizerEnergy     *float64   `json:"optimizer_energy,omitempty"`
	OptimizerIterations *int       `json:"optimizer_iterations,omitempty"`
	OptimizerConverged  *bool      `json:"optimizer_converged,omitempty"`
	AnsatzCX            *int       `json:"ansatz_cx,omitempty"`
	CompiledCX          *int       `json:"compiled_cx,omitempty"`
	RoutedCX            *int       `json:"routed_cx,omitempty"`
	RoutedDepth         *int       `json:"routed_depth,omitempty"`
	DurationSeconds     *float64   `json:"duration_seconds,omitempty"`
	QASMArtifact        string     `json:"qasm_artifact,omitempty"`
	Error               string     `json:"error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

// RunFilter narrows List results
type RunFilter struct {
	NoiseModel string
	Status     RunStatus
	Limit      int
}
