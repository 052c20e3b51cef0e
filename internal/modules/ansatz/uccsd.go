// Package ansatz builds the unitary coupled-cluster trial circuit the
// optimizer varies.
package ansatz

import (
	"fmt"
	"math"
	"sort"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
)

// Ansatz is a symbolic trial circuit with one parameter per excitation.
type Ansatz struct {
	Circuit     *circuit.Circuit
	Excitations []molecule.Excitation
}

// NumParameters returns the length of the parameter vector
func (a *Ansatz) NumParameters() int {
	return len(a.Excitations)
}

// Excitations enumerates the spin-preserving single and double excitations
// out of the Hartree-Fock determinant: singles per spin, then same-spin
// doubles (alpha, beta) and finally mixed alpha-beta doubles.
func Excitations(m *molecule.Model) []molecule.Excitation {
	occ := [2][]int{}
	virt := [2][]int{}
	counts := [2]int{m.NumAlpha, m.NumBeta}
	for spin := 0; spin < 2; spin++ {
		for p := 0; p < m.NumOrbitals; p++ {
			q := m.SpinOrbital(p, spin)
			if p < counts[spin] {
				occ[spin] = append(occ[spin], q)
			} else {
				virt[spin] = append(virt[spin], q)
			}
		}
	}

	var out []molecule.Excitation
	for spin := 0; spin < 2; spin++ {
		for _, i := range occ[spin] {
			for _, a := range virt[spin] {
				out = append(out, molecule.Excitation{From: []int{i}, To: []int{a}})
			}
		}
	}
	for spin := 0; spin < 2; spin++ {
		o, v := occ[spin], virt[spin]
		for x := 0; x < len(o); x++ {
			for y := x + 1; y < len(o); y++ {
				for u := 0; u < len(v); u++ {
					for w := u + 1; w < len(v); w++ {
						out = append(out, molecule.Excitation{From: []int{o[x], o[y]}, To: []int{v[u], v[w]}})
					}
				}
			}
		}
	}
	for _, i := range occ[0] {
		for _, j := range occ[1] {
			for _, a := range virt[0] {
				for _, b := range virt[1] {
					out = append(out, molecule.Excitation{From: []int{i, j}, To: []int{a, b}})
				}
			}
		}
	}
	return out
}

// UCCSD builds the Hartree-Fock reference followed by exp(θ_k G_k) for every
// excitation generator G_k. Each generator is a sum of commuting Pauli
// strings, so its exponential is an exact product of Pauli rotations.
func UCCSD(m *molecule.Model) (*Ansatz, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	n := m.NumQubits()
	excitations := Excitations(m)
	c := circuit.New(n, len(excitations))

	for _, q := range m.HartreeFockOccupation() {
		c.Add("x", []int{q})
	}

	for k, ex := range excitations {
		gen := molecule.Generator(ex, n)
		for _, op := range gen.Operators() {
			coeff := gen.Coefficient(op)
			if math.Abs(real(coeff)) > 1e-12 {
				return nil, fmt.Errorf("excitation %v: generator term %s has real coefficient %g", ex, op, real(coeff))
			}
			// exp(θ i c P) = exp(-i (-2cθ)/2 P)
			AppendPauliRotation(c, op, circuit.Sym(k, -2*imag(coeff)))
		}
	}
	return &Ansatz{Circuit: c, Excitations: excitations}, nil
}

// AppendPauliRotation appends exp(-i angle/2 P) for the Pauli string op:
// basis change onto Z, a CX parity ladder over the support, rz on the last
// support qubit, then the inverse ladder and basis change.
func AppendPauliRotation(c *circuit.Circuit, op string, angle circuit.Param) {
	var support []int
	for q := 0; q < len(op); q++ {
		if op[q] != 'I' {
			support = append(support, q)
		}
	}
	if len(support) == 0 {
		return
	}
	sort.Ints(support)

	for _, q := range support {
		switch op[q] {
		case 'X':
			c.Add("h", []int{q})
		case 'Y':
			c.Add("rx", []int{q}, circuit.Const(math.Pi/2))
		}
	}
	for i := 0; i+1 < len(support); i++ {
		c.Add("cx", []int{support[i], support[i+1]})
	}
	c.Add("rz", []int{support[len(support)-1]}, angle)
	for i := len(support) - 2; i >= 0; i-- {
		c.Add("cx", []int{support[i], support[i+1]})
	}
	for _, q := range support {
		switch op[q] {
		case 'X':
			c.Add("h", []int{q})
		case 'Y':
			c.Add("rx", []int{q}, circuit.Const(-math.Pi/2))
		}
	}
}
