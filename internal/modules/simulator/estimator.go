package simulator

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"gonum.org/v1/gonum/stat"
)

// Estimate is a sampled expectation value.
type Estimate struct {
	Mean     float64 `json:"mean"`
	StdError float64 `json:"std_error"`
	Shots    int     `json:"shots"`
}

// ReadoutFlip optionally corrupts a measured bit; nil means ideal readout.
type ReadoutFlip func(qubit int, bit uint64, rng *rand.Rand) uint64

// measuredGroup is a qubit-wise commuting group prepared for Z-basis readout.
type measuredGroup struct {
	rotation []circuit.Gate
	masks    []uint64
	coeffs   []float64
	qubits   []int
}

// Estimator measures a Hamiltonian by grouping its terms into qubit-wise
// commuting sets and sampling each set in a rotated basis.
type Estimator struct {
	width    int
	constant float64
	groups   []measuredGroup
	terms    *hamiltonian.Hamiltonian
}

// NewEstimator prepares measurement groups for h.
func NewEstimator(h *hamiltonian.Hamiltonian) *Estimator {
	e := &Estimator{width: h.Width, terms: h}

	var active []hamiltonian.Term
	for _, t := range h.Terms {
		if hamiltonian.IsIdentity(t.Operator) {
			e.constant += t.Coefficient
			continue
		}
		active = append(active, t)
	}

	for _, g := range hamiltonian.GroupQubitWise(&hamiltonian.Hamiltonian{Width: h.Width, Terms: active}) {
		mg := measuredGroup{}
		for q := 0; q < len(g.Basis); q++ {
			switch g.Basis[q] {
			case 'X':
				mg.rotation = append(mg.rotation, circuit.Gate{Name: "h", Qubits: []int{q}})
			case 'Y':
				mg.rotation = append(mg.rotation,
					circuit.Gate{Name: "sdg", Qubits: []int{q}},
					circuit.Gate{Name: "h", Qubits: []int{q}})
			}
			if g.Basis[q] != 'I' {
				mg.qubits = append(mg.qubits, q)
			}
		}
		for _, t := range g.Terms {
			x, z, _ := hamiltonian.Masks(t.Operator)
			mg.masks = append(mg.masks, x|z)
			mg.coeffs = append(mg.coeffs, t.Coefficient)
		}
		e.groups = append(e.groups, mg)
	}
	return e
}

// Width returns the number of qubits the estimator measures
func (e *Estimator) Width() int {
	return e.width
}

// Groups returns the number of measurement settings
func (e *Estimator) Groups() int {
	return len(e.groups)
}

// Exact returns <ψ|H|ψ> without sampling.
func (e *Estimator) Exact(sv *StateVector) (float64, error) {
	return sv.Expectation(e.terms)
}

// Sample estimates <ψ|H|ψ> from `shots` ideal measurements per group. Shot s
// contributes one outcome from every group, so the per-shot energies are
// i.i.d. and their spread gives the standard error.
func (e *Estimator) Sample(sv *StateVector, shots int, rng *rand.Rand) (Estimate, error) {
	if sv.NumQubits != e.width {
		return Estimate{}, fmt.Errorf("estimator width %d does not match %d-qubit state", e.width, sv.NumQubits)
	}
	if shots <= 0 {
		return Estimate{}, fmt.Errorf("shots must be positive, got %d", shots)
	}

	samples := make([]float64, shots)
	for i := range samples {
		samples[i] = e.constant
	}

	for _, g := range e.groups {
		rotated := sv.Clone()
		for _, gate := range g.rotation {
			if err := rotated.ApplyGate(gate, nil); err != nil {
				return Estimate{}, err
			}
		}
		cum := cumulative(rotated.Probabilities())
		for s := 0; s < shots; s++ {
			samples[s] += g.energy(draw(cum, rng))
		}
	}

	return Summarize(samples), nil
}

// ShotEnergy draws one outcome per group from sv, passes each measured bit
// through flip and returns the resulting single-shot energy.
func (e *Estimator) ShotEnergy(sv *StateVector, rng *rand.Rand, flip ReadoutFlip) (float64, error) {
	energy := e.constant
	for _, g := range e.groups {
		rotated := sv.Clone()
		for _, gate := range g.rotation {
			if err := rotated.ApplyGate(gate, nil); err != nil {
				return 0, err
			}
		}
		outcome := rotated.SampleOne(rng)
		if flip != nil {
			for _, q := range g.qubits {
				bit := (outcome >> q) & 1
				if nb := flip(q, bit, rng); nb != bit {
					outcome ^= 1 << q
				}
			}
		}
		energy += g.energy(outcome)
	}
	return energy, nil
}

func (g measuredGroup) energy(outcome uint64) float64 {
	var e float64
	for i, mask := range g.masks {
		if bits.OnesCount64(outcome&mask)%2 == 1 {
			e -= g.coeffs[i]
		} else {
			e += g.coeffs[i]
		}
	}
	return e
}

// Summarize reduces per-shot energies to a mean and standard error.
func Summarize(samples []float64) Estimate {
	if len(samples) == 0 {
		return Estimate{}
	}
	if len(samples) == 1 {
		return Estimate{Mean: samples[0], Shots: 1}
	}
	mean, variance := stat.MeanVariance(samples, nil)
	return Estimate{
		Mean:     mean,
		StdError: math.Sqrt(variance / float64(len(samples))),
		Shots:    len(samples),
	}
}
