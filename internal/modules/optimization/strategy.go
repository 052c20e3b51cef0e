package optimization

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// Objective evaluates the energy at a parameter point.
type Objective func(x []float64) (float64, error)

// Strategy proposes parameter updates for the variational loop.
type Strategy interface {
	// Name identifies the strategy in logs and run records
	Name() string
	// Reset prepares the strategy for a fresh run of the given dimension
	Reset(dim int)
	// ProposeStep returns the next point given the current point and its value.
	ProposeStep(x []float64, fx float64, f Objective) ([]float64, error)
	// HasConverged reports whether the last step met the stopping criterion
	HasConverged() bool
}

// NoiseAware is implemented by strategies whose stopping rule depends on the
// sampling noise of the objective.
type NoiseAware interface {
	// SetNoise passes the standard error of the latest objective value;
	// zero means exact evaluation
	SetNoise(stdErr float64)
}

// Strategy names accepted by NewStrategy.
const (
	StrategyGradientDescent = "gradient_descent"
	StrategySPSA            = "spsa"
)

// NewStrategy returns a strategy by name. The seed drives any internal
// randomness (SPSA perturbations).
func NewStrategy(name string, tolerance float64, seed int64) (Strategy, error) {
	switch name {
	case StrategyGradientDescent, "gradient", "gd":
		return NewGradientDescent(tolerance), nil
	case StrategySPSA:
		return NewSPSA(tolerance, seed), nil
	default:
		return nil, fmt.Errorf("unknown optimizer strategy: %s", name)
	}
}

// GradientDescent follows central finite-difference gradients with Armijo
// backtracking. It suits exact (noise-free) objectives.
type GradientDescent struct {
	// LearningRate is the initial trial step
	LearningRate float64
	// Step is the finite-difference width
	Step float64
	// Tolerance stops the run when the gradient norm or accepted step falls below it
	Tolerance float64

	rate      float64
	converged bool
}

// NewGradientDescent creates a gradient descent strategy.
func NewGradientDescent(tolerance float64) *GradientDescent {
	return &GradientDescent{LearningRate: 0.5, Step: 1e-4, Tolerance: tolerance}
}

// Name implements Strategy
func (g *GradientDescent) Name() string { return StrategyGradientDescent }

// Reset implements Strategy
func (g *GradientDescent) Reset(dim int) {
	g.rate = g.LearningRate
	g.converged = false
}

// HasConverged implements Strategy
func (g *GradientDescent) HasConverged() bool { return g.converged }

// ProposeStep implements Strategy.
func (g *GradientDescent) ProposeStep(x []float64, fx float64, f Objective) ([]float64, error) {
	var evalErr error
	grad := fd.Gradient(nil, func(p []float64) float64 {
		v, err := f(p)
		if err != nil && evalErr == nil {
			evalErr = err
		}
		return v
	}, x, &fd.Settings{Formula: fd.Central, Step: g.Step})
	if evalErr != nil {
		return nil, evalErr
	}

	gnorm := floats.Norm(grad, 2)
	if gnorm < g.Tolerance {
		g.converged = true
		return append([]float64(nil), x...), nil
	}

	next := make([]float64, len(x))
	t := g.rate
	for i := 0; i < 30; i++ {
		floats.AddScaledTo(next, x, -t, grad)
		fn, err := f(next)
		if err != nil {
			return nil, err
		}
		if fn <= fx-1e-4*t*gnorm*gnorm {
			g.rate = math.Min(2*t, 4*g.LearningRate)
			if t*gnorm < g.Tolerance {
				g.converged = true
			}
			return next, nil
		}
		t /= 2
	}

	// No descent along the gradient within float precision.
	g.converged = true
	return append([]float64(nil), x...), nil
}

// SPSA is simultaneous perturbation stochastic approximation. Each step
// costs two evaluations regardless of dimension and tolerates shot noise.
//
// Exact objectives converge when the step norm falls below Tolerance. With
// sampling, a step norm below Tolerance is rarely reached; the run instead
// converges once the perturbation difference |f+ - f-| has stayed within
// the noise band for Patience consecutive steps.
type SPSA struct {
	A         float64
	C         float64
	Stability float64
	Alpha     float64
	Gamma     float64
	Tolerance float64
	// Patience is the number of consecutive noise-dominated steps that
	// count as convergence
	Patience int
	// NoiseBand scales the standard error of f+ - f- into the band
	NoiseBand float64

	seed      int64
	rng       *rand.Rand
	k         int
	noise     float64
	quiet     int
	converged bool
}

// NewSPSA creates an SPSA strategy with the standard gain exponents.
func NewSPSA(tolerance float64, seed int64) *SPSA {
	return &SPSA{
		A:         0.2,
		C:         0.1,
		Stability: 10,
		Alpha:     0.602,
		Gamma:     0.101,
		Tolerance: tolerance,
		Patience:  10,
		NoiseBand: 2,
		seed:      seed,
	}
}

// Name implements Strategy
func (s *SPSA) Name() string { return StrategySPSA }

// Reset implements Strategy
func (s *SPSA) Reset(dim int) {
	s.rng = rand.New(rand.NewPCG(uint64(s.seed), 0x5350534))
	s.k = 0
	s.quiet = 0
	s.converged = false
}

// SetNoise implements NoiseAware
func (s *SPSA) SetNoise(stdErr float64) { s.noise = stdErr }

// HasConverged implements Strategy
func (s *SPSA) HasConverged() bool { return s.converged }

// ProposeStep implements Strategy.
func (s *SPSA) ProposeStep(x []float64, fx float64, f Objective) ([]float64, error) {
	if s.rng == nil {
		s.Reset(len(x))
	}
	ak := s.A / math.Pow(float64(s.k+1)+s.Stability, s.Alpha)
	ck := s.C / math.Pow(float64(s.k+1), s.Gamma)
	s.k++

	delta := make([]float64, len(x))
	for i := range delta {
		if s.rng.IntN(2) == 0 {
			delta[i] = -1
		} else {
			delta[i] = 1
		}
	}

	plus := make([]float64, len(x))
	minus := make([]float64, len(x))
	floats.AddScaledTo(plus, x, ck, delta)
	floats.AddScaledTo(minus, x, -ck, delta)

	fp, err := f(plus)
	if err != nil {
		return nil, err
	}
	fm, err := f(minus)
	if err != nil {
		return nil, err
	}

	// ghat_i = (f+ - f-) / (2 c_k Δ_i); Δ_i = ±1 so 1/Δ_i = Δ_i.
	scale := (fp - fm) / (2 * ck)
	next := make([]float64, len(x))
	floats.AddScaledTo(next, x, -ak*scale, delta)

	if math.Abs(ak*scale)*math.Sqrt(float64(len(x))) < s.Tolerance {
		s.converged = true
	}
	if s.noise > 0 {
		// f+ and f- are independent estimates, so their difference has
		// standard error √2·noise.
		if math.Abs(fp-fm) <= s.NoiseBand*math.Sqrt2*s.noise {
			s.quiet++
		} else {
			s.quiet = 0
		}
		if s.Patience > 0 && s.quiet >= s.Patience {
			s.converged = true
		}
	}
	return next, nil
}
