// Package simulator provides the state-vector backend used for exact
// expectation values, shot sampling and unitary extraction.
//
// Basis index bit q holds qubit q.
package simulator

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"math/rand/v2"
	"sort"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/shirou/gopsutil/v3/mem"
)

// MaxQubits is the largest register the simulator allocates.
const MaxQubits = 30

// guardThreshold is the register size above which available memory is checked.
const guardThreshold = 20

// StateVector holds the 2^n amplitudes of an n-qubit pure state.
type StateVector struct {
	Amplitudes []complex128
	NumQubits  int
}

// NewStateVector allocates |0...0> on n qubits.
func NewStateVector(n int) (*StateVector, error) {
	if err := CheckMemory(n); err != nil {
		return nil, err
	}
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &StateVector{Amplitudes: amps, NumQubits: n}, nil
}

// CheckMemory fails when an n-qubit state would not fit in available memory.
func CheckMemory(n int) error {
	if n < 0 || n > MaxQubits {
		return fmt.Errorf("cannot simulate %d qubits (limit %d)", n, MaxQubits)
	}
	if n <= guardThreshold {
		return nil
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("failed to read available memory: %w", err)
	}
	// Room for the state plus one working copy.
	need := uint64(2*16) << n
	if need > vm.Available {
		return fmt.Errorf("%d-qubit state needs %d bytes, %d available", n, need, vm.Available)
	}
	return nil
}

// Clone returns a deep copy
func (s *StateVector) Clone() *StateVector {
	amps := make([]complex128, len(s.Amplitudes))
	copy(amps, s.Amplitudes)
	return &StateVector{Amplitudes: amps, NumQubits: s.NumQubits}
}

// Apply1 applies a single-qubit unitary to qubit q.
func (s *StateVector) Apply1(q int, m circuit.Matrix2) {
	bit := 1 << q
	for i := range s.Amplitudes {
		if i&bit != 0 {
			continue
		}
		j := i | bit
		a0, a1 := s.Amplitudes[i], s.Amplitudes[j]
		s.Amplitudes[i] = m[0][0]*a0 + m[0][1]*a1
		s.Amplitudes[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

// ApplyCX applies a controlled-X.
func (s *StateVector) ApplyCX(control, target int) {
	cbit, tbit := 1<<control, 1<<target
	for i := range s.Amplitudes {
		if i&cbit != 0 && i&tbit == 0 {
			j := i | tbit
			s.Amplitudes[i], s.Amplitudes[j] = s.Amplitudes[j], s.Amplitudes[i]
		}
	}
}

// ApplyCZ applies a controlled-Z.
func (s *StateVector) ApplyCZ(a, b int) {
	mask := 1<<a | 1<<b
	for i := range s.Amplitudes {
		if i&mask == mask {
			s.Amplitudes[i] = -s.Amplitudes[i]
		}
	}
}

// ApplySwap exchanges two qubits.
func (s *StateVector) ApplySwap(a, b int) {
	abit, bbit := 1<<a, 1<<b
	for i := range s.Amplitudes {
		if i&abit != 0 && i&bbit == 0 {
			j := i ^ abit ^ bbit
			s.Amplitudes[i], s.Amplitudes[j] = s.Amplitudes[j], s.Amplitudes[i]
		}
	}
}

// ApplyPauli applies a single-qubit Pauli ('I', 'X', 'Y' or 'Z') to q.
func (s *StateVector) ApplyPauli(q int, p byte) {
	bit := 1 << q
	switch p {
	case 'X':
		for i := range s.Amplitudes {
			if i&bit == 0 {
				j := i | bit
				s.Amplitudes[i], s.Amplitudes[j] = s.Amplitudes[j], s.Amplitudes[i]
			}
		}
	case 'Y':
		for i := range s.Amplitudes {
			if i&bit == 0 {
				j := i | bit
				a0, a1 := s.Amplitudes[i], s.Amplitudes[j]
				s.Amplitudes[i] = -1i * a1
				s.Amplitudes[j] = 1i * a0
			}
		}
	case 'Z':
		for i := range s.Amplitudes {
			if i&bit != 0 {
				s.Amplitudes[i] = -s.Amplitudes[i]
			}
		}
	}
}

// ApplyGate applies g with angles evaluated under theta.
func (s *StateVector) ApplyGate(g circuit.Gate, theta []float64) error {
	for _, q := range g.Qubits {
		if q < 0 || q >= s.NumQubits {
			return fmt.Errorf("gate %s: qubit %d outside %d-qubit state", g.Name, q, s.NumQubits)
		}
	}
	switch g.Name {
	case "cx":
		s.ApplyCX(g.Qubits[0], g.Qubits[1])
	case "cz":
		s.ApplyCZ(g.Qubits[0], g.Qubits[1])
	case "swap":
		s.ApplySwap(g.Qubits[0], g.Qubits[1])
	case "id":
	default:
		m, err := circuit.SingleQubitMatrix(g.Name, g.Values(theta))
		if err != nil {
			return err
		}
		s.Apply1(g.Qubits[0], m)
	}
	return nil
}

// Run simulates c from |0...0> with angles evaluated under theta. Bound
// circuits ignore theta.
func Run(c *circuit.Circuit, theta []float64) (*StateVector, error) {
	if !c.IsBound() && len(theta) != c.NumParams {
		return nil, fmt.Errorf("run: got %d parameters, circuit has %d", len(theta), c.NumParams)
	}
	sv, err := NewStateVector(c.NumQubits)
	if err != nil {
		return nil, err
	}
	for _, g := range c.Gates {
		if err := sv.ApplyGate(g, theta); err != nil {
			return nil, err
		}
	}
	if err := sv.checkNorm(); err != nil {
		return nil, err
	}
	return sv, nil
}

func (s *StateVector) checkNorm() error {
	var norm float64
	for _, a := range s.Amplitudes {
		norm += real(a)*real(a) + imag(a)*imag(a)
	}
	if math.IsNaN(norm) || math.Abs(norm-1) > 1e-8 {
		return fmt.Errorf("state norm drifted to %g", norm)
	}
	return nil
}

// Probabilities returns |amplitude|^2 per basis state.
func (s *StateVector) Probabilities() []float64 {
	p := make([]float64, len(s.Amplitudes))
	for i, a := range s.Amplitudes {
		p[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return p
}

// SampleOne draws a single basis state.
func (s *StateVector) SampleOne(rng *rand.Rand) uint64 {
	u := rng.Float64()
	var acc float64
	for i, a := range s.Amplitudes {
		acc += real(a)*real(a) + imag(a)*imag(a)
		if u < acc {
			return uint64(i)
		}
	}
	return uint64(len(s.Amplitudes) - 1)
}

// ExpectationPauli returns <ψ|P|ψ> for an operator string of the state's width.
func (s *StateVector) ExpectationPauli(op string) float64 {
	x, z, nY := hamiltonian.Masks(op)
	phase := complex(1, 0)
	for k := 0; k < nY%4; k++ {
		phase *= 1i
	}
	var acc complex128
	for b, a := range s.Amplitudes {
		if a == 0 {
			continue
		}
		v := phase * a
		if bits.OnesCount64(uint64(b)&z)%2 == 1 {
			v = -v
		}
		acc += cmplx.Conj(s.Amplitudes[uint64(b)^x]) * v
	}
	return real(acc)
}

// Expectation returns <ψ|H|ψ>.
func (s *StateVector) Expectation(h *hamiltonian.Hamiltonian) (float64, error) {
	if h.Width != s.NumQubits {
		return 0, fmt.Errorf("hamiltonian width %d does not match %d-qubit state", h.Width, s.NumQubits)
	}
	var e float64
	for _, t := range h.Terms {
		if hamiltonian.IsIdentity(t.Operator) {
			e += t.Coefficient
			continue
		}
		e += t.Coefficient * s.ExpectationPauli(t.Operator)
	}
	return e, nil
}

// cumulative returns the running sum of probabilities for sampling.
func cumulative(p []float64) []float64 {
	c := make([]float64, len(p))
	var acc float64
	for i, v := range p {
		acc += v
		c[i] = acc
	}
	return c
}

// draw picks an index from a cumulative distribution.
func draw(cum []float64, rng *rand.Rand) uint64 {
	u := rng.Float64() * cum[len(cum)-1]
	i := sort.SearchFloat64s(cum, u)
	// SearchFloat64s returns the first index with cum[i] >= u; skip zero-width bins.
	for i < len(cum)-1 && cum[i] <= u {
		i++
	}
	return uint64(i)
}
