// Package evaluation estimates the energy of a device-ready circuit under a
// noise model and scores it against the reference energy.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/simulator"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/workers"
	"github.com/rs/zerolog"
)

// EvaluationResult is the scored outcome of a noisy evaluation.
type EvaluationResult struct {
	EstimatedEnergy float64 `json:"estimated_energy"`
	ReferenceEnergy float64 `json:"reference_energy"`
	AccuracyScore   float64 `json:"accuracy_score"`
	RawExpectation  float64 `json:"raw_expectation"`
	StdError        float64 `json:"std_error"`
	Shots           int     `json:"shots"`
	// Duration is the circuit's critical-path time on the device in seconds
	Duration     float64 `json:"duration"`
	ActiveQubits []int   `json:"active_qubits"`
}

// Request bundles the inputs of one evaluation.
type Request struct {
	Circuit          *circuit.Circuit
	Hamiltonian      *hamiltonian.Hamiltonian
	NoiseModel       *noise.Model
	Shots            int
	Seed             int64
	NuclearRepulsion float64
	ReferenceEnergy  float64
}

// Evaluator is the NoiseAwareEvaluator.
type Evaluator struct {
	pool     *workers.WorkerPool
	progress workers.ProgressCallback
	log      zerolog.Logger
}

// NewEvaluator creates an evaluator that spreads shots over pool.
func NewEvaluator(pool *workers.WorkerPool, log zerolog.Logger) *Evaluator {
	if pool == nil {
		pool = workers.NewWorkerPool(0)
	}
	return &Evaluator{
		pool: pool,
		log:  log.With().Str("component", "evaluator").Logger(),
	}
}

// OnProgress registers a per-shot progress callback.
func (e *Evaluator) OnProgress(fn workers.ProgressCallback) {
	e.progress = fn
}

// Evaluate samples one noisy trajectory per shot and scores the mean energy.
// Shot s draws from the stream (seed, s), and results are reduced in shot
// order, so the outcome is identical for a fixed seed regardless of worker
// count.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*EvaluationResult, error) {
	if req.Shots <= 0 {
		return nil, domain.NewError("evaluate", domain.KindArgument, fmt.Errorf("shots must be positive, got %d", req.Shots))
	}
	if err := CheckPreconditions(req.Circuit, req.Hamiltonian, req.NoiseModel); err != nil {
		return nil, err
	}
	// Fail before spending shots on an unscoreable run.
	if req.ReferenceEnergy == 0 {
		return nil, degenerateReference()
	}

	active := activeQubits(req.Circuit, req.Hamiltonian)
	index := make(map[int]int, len(active))
	for i, q := range active {
		index[q] = i
	}
	h, err := req.Hamiltonian.Restrict(active)
	if err != nil {
		return nil, domain.NewError("evaluate", domain.KindLayout, err)
	}
	if err := simulator.CheckMemory(len(active)); err != nil {
		return nil, domain.NewError("evaluate", domain.KindBackend, err)
	}

	compact := make([]circuit.Gate, len(req.Circuit.Gates))
	for i, g := range req.Circuit.Gates {
		qs := make([]int, len(g.Qubits))
		for k, q := range g.Qubits {
			qs[k] = index[q]
		}
		compact[i] = circuit.Gate{Name: g.Name, Qubits: qs, Params: g.Params}
	}

	est := simulator.NewEstimator(h)
	model := req.NoiseModel
	flip := func(q int, bit uint64, rng *rand.Rand) uint64 {
		return model.ReadoutFlip(active[q], bit, rng)
	}

	shot := func(s int) (float64, error) {
		rng := rand.New(rand.NewPCG(uint64(req.Seed), uint64(s)))
		sv, err := simulator.NewStateVector(len(active))
		if err != nil {
			return 0, err
		}
		var errs []noise.PauliError
		for i, g := range compact {
			if err := sv.ApplyGate(g, nil); err != nil {
				return 0, err
			}
			errs = model.GateErrors(g.Name, req.Circuit.Gates[i].Qubits, rng, errs[:0])
			for _, pe := range errs {
				sv.ApplyPauli(index[pe.Qubit], pe.Pauli)
			}
		}
		return est.ShotEnergy(sv, rng, flip)
	}

	e.log.Info().
		Str("device", model.Device).
		Int("shots", req.Shots).
		Int("active_qubits", len(active)).
		Int("groups", est.Groups()).
		Msg("Evaluating circuit under noise")

	samples, err := e.pool.Map(ctx, req.Shots, shot, e.progress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		return nil, domain.NewError("evaluate", domain.KindBackend, err)
	}
	summary := simulator.Summarize(samples)

	estimated := summary.Mean + req.NuclearRepulsion
	score, err := AccuracyScore(estimated, req.ReferenceEnergy)
	if err != nil {
		return nil, err
	}

	res := &EvaluationResult{
		EstimatedEnergy: estimated,
		ReferenceEnergy: req.ReferenceEnergy,
		AccuracyScore:   score,
		RawExpectation:  summary.Mean,
		StdError:        summary.StdError,
		Shots:           summary.Shots,
		Duration:        CircuitDuration(req.Circuit, model),
		ActiveQubits:    active,
	}
	e.log.Info().
		Float64("estimated_energy", res.EstimatedEnergy).
		Float64("reference_energy", res.ReferenceEnergy).
		Float64("std_error", res.StdError).
		Float64("accuracy", res.AccuracyScore).
		Msg("Evaluation finished")
	return res, nil
}

// CheckPreconditions verifies that c can run on the device as is: bound,
// within the register, native gates only, every cx on a coupling edge, and
// h spanning the full device.
func CheckPreconditions(c *circuit.Circuit, h *hamiltonian.Hamiltonian, m *noise.Model) error {
	fail := func(format string, args ...any) error {
		return domain.NewError("evaluate", domain.KindLayout, fmt.Errorf(format, args...))
	}
	if !c.IsBound() {
		return fail("circuit has unbound parameters")
	}
	if c.NumQubits > m.NumQubits {
		return fail("circuit uses %d qubits, device %s has %d", c.NumQubits, m.Device, m.NumQubits)
	}
	if h.Width != m.NumQubits {
		return fail("hamiltonian width %d does not match device width %d", h.Width, m.NumQubits)
	}
	for i, g := range c.Gates {
		if !m.SupportsGate(g.Name) {
			return fail("gate %d: %s is not in the %s basis %v", i, g.Name, m.Device, m.BasisGates)
		}
		for _, q := range g.Qubits {
			if q < 0 || q >= m.NumQubits {
				return fail("gate %d (%s): qubit %d outside device", i, g.Name, q)
			}
		}
		if len(g.Qubits) == 2 && !m.HasEdge(g.Qubits[0], g.Qubits[1]) {
			return fail("gate %d: cx %v is not on the coupling map", i, g.Qubits)
		}
	}
	return nil
}

// AccuracyScore returns (1 - |estimated - reference| / |reference|) * 100.
// The score is not clamped and falls below zero for estimates far off.
func AccuracyScore(estimated, reference float64) (float64, error) {
	if reference == 0 {
		return 0, degenerateReference()
	}
	return (1 - math.Abs(estimated-reference)/math.Abs(reference)) * 100, nil
}

func degenerateReference() error {
	return domain.NewError("accuracy score", domain.KindDegenerateReference,
		errors.New("reference energy is zero"))
}

// CircuitDuration schedules every gate as soon as its qubits are free and
// returns the finishing time of the last one.
func CircuitDuration(c *circuit.Circuit, m *noise.Model) float64 {
	free := make(map[int]float64)
	var end float64
	for _, g := range c.Gates {
		var start float64
		for _, q := range g.Qubits {
			start = math.Max(start, free[q])
		}
		finish := start + m.GateDuration(g.Name, g.Qubits)
		for _, q := range g.Qubits {
			free[q] = finish
		}
		end = math.Max(end, finish)
	}
	return end
}

func activeQubits(c *circuit.Circuit, h *hamiltonian.Hamiltonian) []int {
	seen := make(map[int]bool)
	for _, q := range c.ActiveQubits() {
		seen[q] = true
	}
	for _, q := range h.Support() {
		seen[q] = true
	}
	out := make([]int, 0, len(seen))
	for q := range seen {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}
