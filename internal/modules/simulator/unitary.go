package simulator

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
)

// MaxUnitaryQubits bounds full unitary extraction.
const MaxUnitaryQubits = 10

// Unitary is a dense matrix stored by columns: Columns[k] = U|k>.
type Unitary struct {
	Dim     int
	Columns [][]complex128
}

// UnitaryOf builds the full unitary of a circuit by simulating every basis state.
func UnitaryOf(c *circuit.Circuit, theta []float64) (*Unitary, error) {
	if c.NumQubits > MaxUnitaryQubits {
		return nil, fmt.Errorf("unitary of %d qubits exceeds limit %d", c.NumQubits, MaxUnitaryQubits)
	}
	dim := 1 << c.NumQubits
	u := &Unitary{Dim: dim, Columns: make([][]complex128, dim)}
	for k := 0; k < dim; k++ {
		sv := &StateVector{Amplitudes: make([]complex128, dim), NumQubits: c.NumQubits}
		sv.Amplitudes[k] = 1
		for _, g := range c.Gates {
			if err := sv.ApplyGate(g, theta); err != nil {
				return nil, err
			}
		}
		u.Columns[k] = sv.Amplitudes
	}
	return u, nil
}

// Fidelity returns |Tr(A†B)| / dim, which is 1 exactly when A and B agree up
// to a global phase.
func Fidelity(a, b *Unitary) (float64, error) {
	if a.Dim != b.Dim {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", a.Dim, b.Dim)
	}
	var tr complex128
	for k := 0; k < a.Dim; k++ {
		for i := 0; i < a.Dim; i++ {
			tr += cmplx.Conj(a.Columns[k][i]) * b.Columns[k][i]
		}
	}
	return cmplx.Abs(tr) / float64(a.Dim), nil
}

// ProductStateFidelity estimates the agreement of two circuits on wide
// registers: it prepares `samples` random product states, runs both circuits
// and returns the worst state overlap |<ψa|ψb>|.
func ProductStateFidelity(a, b *circuit.Circuit, samples int, rng *rand.Rand) (float64, error) {
	if a.NumQubits != b.NumQubits {
		return 0, fmt.Errorf("width mismatch: %d vs %d", a.NumQubits, b.NumQubits)
	}
	worst := 1.0
	for s := 0; s < samples; s++ {
		prep := make([]circuit.Matrix2, a.NumQubits)
		for q := range prep {
			prep[q] = circuit.U3(rng.Float64()*math.Pi, (rng.Float64()*2-1)*math.Pi, (rng.Float64()*2-1)*math.Pi)
		}
		sa, err := runFrom(a, prep)
		if err != nil {
			return 0, err
		}
		sb, err := runFrom(b, prep)
		if err != nil {
			return 0, err
		}
		var overlap complex128
		for i := range sa.Amplitudes {
			overlap += cmplx.Conj(sa.Amplitudes[i]) * sb.Amplitudes[i]
		}
		if f := cmplx.Abs(overlap); f < worst {
			worst = f
		}
	}
	return worst, nil
}

func runFrom(c *circuit.Circuit, prep []circuit.Matrix2) (*StateVector, error) {
	sv, err := NewStateVector(c.NumQubits)
	if err != nil {
		return nil, err
	}
	for q, m := range prep {
		sv.Apply1(q, m)
	}
	for _, g := range c.Gates {
		if err := sv.ApplyGate(g, nil); err != nil {
			return nil, err
		}
	}
	return sv, nil
}
