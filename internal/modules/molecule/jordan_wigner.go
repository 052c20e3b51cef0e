package molecule

import (
	"strings"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
)

const integralCutoff = 1e-12

// Creation returns the Jordan-Wigner image of the creation operator on
// spin-orbital j of an n-qubit register: (X_j - iY_j)/2 with Z on every qubit below j.
func Creation(j, n int) *hamiltonian.PauliSum {
	return ladder(j, n, -0.5i)
}

// Annihilation returns the Jordan-Wigner image of the annihilation operator
// on spin-orbital j: (X_j + iY_j)/2 with Z on every qubit below j.
func Annihilation(j, n int) *hamiltonian.PauliSum {
	return ladder(j, n, 0.5i)
}

func ladder(j, n int, yCoeff complex128) *hamiltonian.PauliSum {
	prefix := strings.Repeat("Z", j)
	suffix := strings.Repeat("I", n-j-1)
	s := hamiltonian.NewPauliSum(n)
	s.Add(prefix+"X"+suffix, 0.5)
	s.Add(prefix+"Y"+suffix, yCoeff)
	return s
}

// ladderOps caches the creation and annihilation images of every spin-orbital.
type ladderOps struct {
	create  []*hamiltonian.PauliSum
	destroy []*hamiltonian.PauliSum
}

func newLadderOps(n int) *ladderOps {
	ops := &ladderOps{
		create:  make([]*hamiltonian.PauliSum, n),
		destroy: make([]*hamiltonian.PauliSum, n),
	}
	for j := 0; j < n; j++ {
		ops.create[j] = Creation(j, n)
		ops.destroy[j] = Annihilation(j, n)
	}
	return ops
}

// ElectronicOperator maps the electronic Hamiltonian
//
//	H = sum_{pq,σ} h_pq a+_pσ a_qσ + 1/2 sum_{pqrs,στ} (pq|rs) a+_pσ a+_rτ a_sτ a_qσ
//
// to qubits. The core energy is not included.
func (m *Model) ElectronicOperator() *hamiltonian.PauliSum {
	n := m.NumOrbitals
	nq := m.NumQubits()
	ops := newLadderOps(nq)
	out := hamiltonian.NewPauliSum(nq)

	for spin := 0; spin < 2; spin++ {
		for p := 0; p < n; p++ {
			for q := 0; q < n; q++ {
				h := m.H(p, q)
				if h > -integralCutoff && h < integralCutoff {
					continue
				}
				term := ops.create[m.SpinOrbital(p, spin)].Mul(ops.destroy[m.SpinOrbital(q, spin)])
				out.AddSum(term, complex(h, 0))
			}
		}
	}

	for s1 := 0; s1 < 2; s1++ {
		for s2 := 0; s2 < 2; s2++ {
			for p := 0; p < n; p++ {
				for q := 0; q < n; q++ {
					for r := 0; r < n; r++ {
						for s := 0; s < n; s++ {
							v := m.ERI(p, q, r, s)
							if v > -integralCutoff && v < integralCutoff {
								continue
							}
							ip, iq := m.SpinOrbital(p, s1), m.SpinOrbital(q, s1)
							ir, is := m.SpinOrbital(r, s2), m.SpinOrbital(s, s2)
							if ip == ir || iq == is {
								continue
							}
							term := ops.create[ip].Mul(ops.create[ir]).Mul(ops.destroy[is]).Mul(ops.destroy[iq])
							out.AddSum(term, complex(0.5*v, 0))
						}
					}
				}
			}
		}
	}

	return out.Simplify(integralCutoff)
}

// QubitHamiltonian returns the electronic qubit Hamiltonian as real-weighted
// terms in lexical operator order.
func (m *Model) QubitHamiltonian() (*hamiltonian.Hamiltonian, error) {
	return m.ElectronicOperator().ToHamiltonian(1e-10)
}

// Excitation lists the spin-orbitals a UCC generator moves electrons from
// and to.
type Excitation struct {
	From []int
	To   []int
}

// Generator returns the anti-Hermitian generator T - T+ of an excitation,
// where T = a+_{to...} a_{from...} (doubles: a+_a a+_b a_j a_i).
func Generator(ex Excitation, n int) *hamiltonian.PauliSum {
	t := hamiltonian.Identity(n, 1)
	for _, a := range ex.To {
		t = t.Mul(Creation(a, n))
	}
	for k := len(ex.From) - 1; k >= 0; k-- {
		t = t.Mul(Annihilation(ex.From[k], n))
	}
	g := hamiltonian.NewPauliSum(n)
	g.AddSum(t, 1)
	g.AddSum(t.Adjoint(), -1)
	return g.Simplify(integralCutoff)
}

// HartreeFockOccupation returns the occupied spin-orbitals of the reference
// determinant: the lowest NumAlpha alpha and NumBeta beta orbitals.
func (m *Model) HartreeFockOccupation() []int {
	occ := make([]int, 0, m.NumParticles())
	for p := 0; p < m.NumAlpha; p++ {
		occ = append(occ, m.SpinOrbital(p, 0))
	}
	for p := 0; p < m.NumBeta; p++ {
		occ = append(occ, m.SpinOrbital(p, 1))
	}
	return occ
}
