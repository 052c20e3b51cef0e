package synthesis

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
)

const phaseTolerance = 1e-12

func u3Gate(q int, m circuit.Matrix2) circuit.Gate {
	theta, phi, lambda := circuit.ZYZ(m)
	return circuit.Gate{
		Name:   "u3",
		Qubits: []int{q},
		Params: []circuit.Param{circuit.Const(theta), circuit.Const(phi), circuit.Const(lambda)},
	}
}

func cxGate(control, target int) circuit.Gate {
	return circuit.Gate{Name: "cx", Qubits: []int{control, target}}
}

func gateMatrix(g circuit.Gate) (circuit.Matrix2, error) {
	return circuit.SingleQubitMatrix(g.Name, g.Values(nil))
}

// decompose rewrites a bound circuit into u3 and cx. The rng picks the
// target of each cz and the orientation of each swap.
func decompose(gates []circuit.Gate, rng *rand.Rand) ([]circuit.Gate, error) {
	hadamard := u3Gate(0, circuit.U3(math.Pi/2, 0, math.Pi))
	h := func(q int) circuit.Gate {
		g := hadamard
		g.Qubits = []int{q}
		return g
	}

	out := make([]circuit.Gate, 0, len(gates))
	for _, g := range gates {
		switch g.Name {
		case "id":
		case "cx":
			out = append(out, cxGate(g.Qubits[0], g.Qubits[1]))
		case "cz":
			c, t := g.Qubits[0], g.Qubits[1]
			if rng.IntN(2) == 1 {
				c, t = t, c
			}
			out = append(out, h(t), cxGate(c, t), h(t))
		case "swap":
			a, b := g.Qubits[0], g.Qubits[1]
			if rng.IntN(2) == 1 {
				a, b = b, a
			}
			out = append(out, cxGate(a, b), cxGate(b, a), cxGate(a, b))
		default:
			m, err := gateMatrix(g)
			if err != nil {
				return nil, fmt.Errorf("decompose %s: %w", g.Name, err)
			}
			out = append(out, u3Gate(g.Qubits[0], m))
		}
	}
	return out, nil
}

// fuseSingles merges every run of single-qubit gates on a qubit into one u3,
// dropping runs equal to the identity up to global phase.
func fuseSingles(gates []circuit.Gate, numQubits int) ([]circuit.Gate, error) {
	pending := make([]*circuit.Matrix2, numQubits)
	out := make([]circuit.Gate, 0, len(gates))

	flush := func(q int) {
		if pending[q] == nil {
			return
		}
		if !circuit.IsIdentityUpToPhase(*pending[q], phaseTolerance) {
			out = append(out, u3Gate(q, *pending[q]))
		}
		pending[q] = nil
	}

	for _, g := range gates {
		if len(g.Qubits) == 1 {
			m, err := gateMatrix(g)
			if err != nil {
				return nil, err
			}
			q := g.Qubits[0]
			if pending[q] == nil {
				pending[q] = &m
			} else {
				fused := m.Mul(*pending[q])
				pending[q] = &fused
			}
			continue
		}
		for _, q := range g.Qubits {
			flush(q)
		}
		out = append(out, g)
	}
	for q := range pending {
		flush(q)
	}
	return out, nil
}

// cancelCX removes pairs of identical cx gates with nothing in between on
// either of their qubits.
func cancelCX(gates []circuit.Gate) []circuit.Gate {
	out := make([]circuit.Gate, 0, len(gates))
	for _, g := range gates {
		if g.Name == "cx" {
			if k := lastTouching(out, g.Qubits); k >= 0 && sameCX(out[k], g) {
				out = append(out[:k], out[k+1:]...)
				continue
			}
		}
		out = append(out, g)
	}
	return out
}

func lastTouching(gates []circuit.Gate, qubits []int) int {
	for k := len(gates) - 1; k >= 0; k-- {
		for _, q := range gates[k].Qubits {
			for _, p := range qubits {
				if p == q {
					return k
				}
			}
		}
	}
	return -1
}

func sameCX(a, b circuit.Gate) bool {
	return a.Name == "cx" && a.Qubits[0] == b.Qubits[0] && a.Qubits[1] == b.Qubits[1]
}

// block is a maximal run of gates confined to one qubit pair.
type block struct {
	a, b  int
	gates []circuit.Gate
	cx    int
}

// collectBlocks partitions gates into two-qubit blocks and loose single-qubit
// gates, calling emit in an order that preserves the gate sequence on every
// qubit.
func collectBlocks(gates []circuit.Gate, numQubits int, emit func(b *block, loose []circuit.Gate)) {
	open := make([]*block, numQubits)
	loose := make([][]circuit.Gate, numQubits)

	closeBlock := func(b *block) {
		if b == nil {
			return
		}
		open[b.a], open[b.b] = nil, nil
		emit(b, nil)
	}

	for _, g := range gates {
		if len(g.Qubits) == 1 {
			q := g.Qubits[0]
			if open[q] != nil {
				open[q].gates = append(open[q].gates, g)
			} else {
				loose[q] = append(loose[q], g)
			}
			continue
		}

		a, b := g.Qubits[0], g.Qubits[1]
		if open[a] != nil && open[a] == open[b] {
			open[a].gates = append(open[a].gates, g)
			open[a].cx++
			continue
		}
		closeBlock(open[a])
		closeBlock(open[b])

		nb := &block{a: a, b: b}
		nb.gates = append(nb.gates, loose[a]...)
		nb.gates = append(nb.gates, loose[b]...)
		nb.gates = append(nb.gates, g)
		nb.cx = 1
		loose[a], loose[b] = nil, nil
		open[a], open[b] = nb, nb
	}

	for q := range open {
		if open[q] != nil {
			closeBlock(open[q])
		}
	}
	for q := range loose {
		if len(loose[q]) > 0 {
			emit(nil, loose[q])
		}
	}
}

// unitary returns the block's matrix with a as local qubit 0.
func (b *block) unitary() (matrix4, error) {
	u := kron(circuit.Identity2, circuit.Identity2)
	for _, g := range b.gates {
		var step matrix4
		switch {
		case g.Name == "cx" && g.Qubits[0] == b.a:
			step = cxMatrix
		case g.Name == "cx":
			step = swapConjugate(cxMatrix)
		default:
			m, err := gateMatrix(g)
			if err != nil {
				return matrix4{}, err
			}
			if g.Qubits[0] == b.a {
				step = kron(m, circuit.Identity2)
			} else {
				step = kron(circuit.Identity2, m)
			}
		}
		u = mul4(step, u)
	}
	return u, nil
}

// swapConjugate exchanges the roles of the two local qubits.
func swapConjugate(m matrix4) matrix4 {
	perm := [4]int{0, 2, 1, 3}
	var out matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[perm[i]][perm[j]] = m[i][j]
		}
	}
	return out
}

func mul4(a, b matrix4) matrix4 {
	var out matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s complex128
			for k := 0; k < 4; k++ {
				s += a[i][k] * b[k][j]
			}
			out[i][j] = s
		}
	}
	return out
}

// templateGates expands fitted template angles onto qubits a and b.
func templateGates(a, b, k int, p []float64) []circuit.Gate {
	layer := func(l int) []circuit.Gate {
		o := 6 * l
		return []circuit.Gate{
			u3Gate(a, circuit.U3(p[o], p[o+1], p[o+2])),
			u3Gate(b, circuit.U3(p[o+3], p[o+4], p[o+5])),
		}
	}
	out := layer(0)
	for i := 0; i < k; i++ {
		out = append(out, cxGate(a, b))
		out = append(out, layer(i+1)...)
	}
	return out
}

func countCX(gates []circuit.Gate) int {
	n := 0
	for _, g := range gates {
		if g.Name == "cx" {
			n++
		}
	}
	return n
}
