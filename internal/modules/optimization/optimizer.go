// Package optimization runs the variational loop that tunes the ansatz
// parameters to minimize the expected molecular energy.
package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/ansatz"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/simulator"
	"github.com/rs/zerolog"
)

// Config holds loop limits and the strategy selection.
type Config struct {
	Strategy      string
	MaxIterations int
	Tolerance     float64
}

// Progress reports one iteration of the loop.
type Progress struct {
	Iteration  int       `json:"iteration"`
	Energy     float64   `json:"energy"`
	BestEnergy float64   `json:"best_energy"`
	Parameters []float64 `json:"parameters"`
}

// ProgressFunc receives iteration updates
type ProgressFunc func(Progress)

// Result is the outcome of an optimization run. Energies include the
// nuclear repulsion constant. With sampling, Energy is a fresh estimate of
// the returned point and StdError its standard error.
type Result struct {
	Circuit     *circuit.Circuit
	Parameters  []float64
	Energy      float64
	StdError    float64
	Iterations  int
	Evaluations int
	Converged   bool
	Strategy    string
}

// Optimizer is the AnsatzOptimizer.
type Optimizer struct {
	cfg      Config
	progress ProgressFunc
	log      zerolog.Logger
}

// NewOptimizer creates an optimizer.
func NewOptimizer(cfg Config, log zerolog.Logger) *Optimizer {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySPSA
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "optimizer").Logger(),
	}
}

// OnProgress registers a callback invoked after every iteration.
func (o *Optimizer) OnProgress(fn ProgressFunc) {
	o.progress = fn
}

// Optimize builds the UCCSD ansatz for model and minimizes its energy.
// shots <= 0 evaluates exact expectation values.
func (o *Optimizer) Optimize(ctx context.Context, model *molecule.Model, seed int64, shots int) (*Result, error) {
	a, err := ansatz.UCCSD(model)
	if err != nil {
		return nil, domain.NewError("optimize", domain.KindArgument, err)
	}
	h, err := model.QubitHamiltonian()
	if err != nil {
		return nil, domain.NewError("optimize", domain.KindArgument, err)
	}
	res, err := o.Minimize(ctx, a.Circuit, h, seed, shots)
	if err != nil {
		return nil, err
	}
	res.Energy += model.NuclearRepulsion()
	return res, nil
}

// Minimize varies the parameters of c to minimize <H> and binds the chosen
// point into a clone of c. Exact runs return the best point seen. Sampled
// runs return the final iterate: the minimum over noisy estimates is biased
// low, so its energy is re-estimated from independent shots.
func (o *Optimizer) Minimize(ctx context.Context, c *circuit.Circuit, h *hamiltonian.Hamiltonian, seed int64, shots int) (*Result, error) {
	if h.Width != c.NumQubits {
		return nil, domain.NewError("optimize", domain.KindArgument,
			fmt.Errorf("hamiltonian width %d does not match %d-qubit ansatz", h.Width, c.NumQubits))
	}
	strategy, err := NewStrategy(o.cfg.Strategy, o.cfg.Tolerance, seed)
	if err != nil {
		return nil, domain.NewError("optimize", domain.KindArgument, err)
	}

	est := simulator.NewEstimator(h)
	evaluations := 0
	// noise is the standard error of the latest sampled evaluation
	noise := 0.0
	sample := func(x []float64, stream uint64) (simulator.Estimate, error) {
		sv, err := simulator.Run(c, x)
		if err != nil {
			return simulator.Estimate{}, domain.NewError("optimize", domain.KindBackend, err)
		}
		e, err := est.Sample(sv, shots, rand.New(rand.NewPCG(uint64(seed), stream)))
		if err != nil {
			return simulator.Estimate{}, domain.NewError("optimize", domain.KindBackend, err)
		}
		return e, nil
	}
	objective := func(x []float64) (float64, error) {
		evaluations++
		if shots <= 0 {
			sv, err := simulator.Run(c, x)
			if err != nil {
				return 0, domain.NewError("optimize", domain.KindBackend, err)
			}
			return est.Exact(sv)
		}
		e, err := sample(x, uint64(evaluations))
		if err != nil {
			return 0, err
		}
		noise = e.StdError
		return e.Mean, nil
	}
	noiseAware, _ := strategy.(NoiseAware)

	x := make([]float64, c.NumParams)
	best := append([]float64(nil), x...)
	bestEnergy := math.Inf(1)
	strategy.Reset(len(x))

	o.log.Info().
		Str("strategy", strategy.Name()).
		Int("parameters", len(x)).
		Int("shots", shots).
		Int64("seed", seed).
		Msg("Starting variational optimization")

	iterations := 0
	var fx float64
	for ; iterations < o.cfg.MaxIterations; iterations++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		if fx, err = objective(x); err != nil {
			return nil, err
		}
		if fx < bestEnergy {
			bestEnergy = fx
			copy(best, x)
		}
		if o.progress != nil {
			o.progress(Progress{
				Iteration:  iterations,
				Energy:     fx,
				BestEnergy: bestEnergy,
				Parameters: append([]float64(nil), x...),
			})
		}
		if len(x) == 0 {
			break
		}

		if noiseAware != nil {
			noiseAware.SetNoise(noise)
		}
		next, err := strategy.ProposeStep(x, fx, objective)
		if err != nil {
			return nil, err
		}
		x = next
		if strategy.HasConverged() {
			iterations++
			break
		}
	}

	if len(x) > 0 {
		if fx, err = objective(x); err != nil {
			return nil, err
		}
		if fx < bestEnergy {
			bestEnergy = fx
			copy(best, x)
		}
	}

	energy, stdErr := bestEnergy, 0.0
	if shots > 0 && len(x) > 0 {
		copy(best, x)
		// Stream 0 is never used by objective, which counts from 1.
		e, err := sample(best, 0)
		if err != nil {
			return nil, err
		}
		energy, stdErr = e.Mean, e.StdError
	}

	converged := strategy.HasConverged() || len(x) == 0
	if !converged {
		o.log.Warn().
			Err(domain.NewError("optimize", domain.KindConvergence,
				fmt.Errorf("iteration cap %d reached", o.cfg.MaxIterations))).
			Float64("final_objective", fx).
			Float64("best_objective", bestEnergy).
			Msg("Optimizer did not converge")
	}

	bound := c.Clone()
	if !bound.IsBound() {
		if err := bound.Bind(best); err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
	}

	o.log.Info().
		Int("iterations", iterations).
		Int("evaluations", evaluations).
		Float64("energy", energy).
		Float64("std_error", stdErr).
		Bool("converged", converged).
		Msg("Variational optimization finished")

	return &Result{
		Circuit:     bound,
		Parameters:  best,
		Energy:      energy,
		StdError:    stdErr,
		Iterations:  iterations,
		Evaluations: evaluations,
		Converged:   converged,
		Strategy:    strategy.Name(),
	}, nil
}
