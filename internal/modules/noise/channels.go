package noise

import (
	"math"
	"math/rand/v2"
)

// PauliError is a Pauli operator injected on one qubit.
type PauliError struct {
	Qubit int
	Pauli byte
}

const paulis = "IXYZ"

// Relaxation returns the Pauli-twirled amplitude and phase damping
// probabilities for a qubit idling t seconds.
func (q QubitProperties) Relaxation(t float64) (px, py, pz float64) {
	if t <= 0 {
		return 0, 0, 0
	}
	p1 := 1 - math.Exp(-t/q.T1)
	p2 := 1 - math.Exp(-t/q.T2)
	px = p1 / 4
	py = p1 / 4
	pz = math.Max(0, p2/2-p1/4)
	return px, py, pz
}

// GateErrors appends the Pauli errors that follow one application of name on
// qubits: a depolarizing error with the calibrated gate error, then twirled
// thermal relaxation over the gate duration on each qubit.
func (m *Model) GateErrors(name string, qubits []int, rng *rand.Rand, dst []PauliError) []PauliError {
	props, ok := m.Gate(name, qubits)
	if !ok {
		return dst
	}

	if props.Error > 0 && rng.Float64() < props.Error {
		// Uniform over the non-identity Paulis on the gate's qubits.
		k := 1 + rng.IntN(1<<(2*len(qubits))-1)
		for i, q := range qubits {
			if p := paulis[(k>>(2*i))&3]; p != 'I' {
				dst = append(dst, PauliError{Qubit: q, Pauli: p})
			}
		}
	}

	if props.Duration > 0 {
		for _, q := range qubits {
			px, py, pz := m.Qubits[q].Relaxation(props.Duration)
			u := rng.Float64()
			switch {
			case u < px:
				dst = append(dst, PauliError{Qubit: q, Pauli: 'X'})
			case u < px+py:
				dst = append(dst, PauliError{Qubit: q, Pauli: 'Y'})
			case u < px+py+pz:
				dst = append(dst, PauliError{Qubit: q, Pauli: 'Z'})
			}
		}
	}
	return dst
}

// ReadoutFlip applies the assignment error of physical qubit q to a measured bit.
func (m *Model) ReadoutFlip(q int, bit uint64, rng *rand.Rand) uint64 {
	p := m.Qubits[q].ProbMeas1Prep0
	if bit == 1 {
		p = m.Qubits[q].ProbMeas0Prep1
	}
	if rng.Float64() < p {
		return bit ^ 1
	}
	return bit
}

// GateDuration returns the calibrated duration of name on qubits, zero when
// the gate is uncalibrated.
func (m *Model) GateDuration(name string, qubits []int) float64 {
	props, _ := m.Gate(name, qubits)
	return props.Duration
}
