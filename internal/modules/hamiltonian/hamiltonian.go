// Package hamiltonian provides the weighted Pauli-operator model of a qubit
// Hamiltonian, its text file format and the Pauli algebra used to build it.
//
// Operator strings index qubits left to right: character i acts on qubit i.
package hamiltonian

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Term is a single weighted Pauli operator.
type Term struct {
	Coefficient float64 `json:"coefficient" msgpack:"coefficient"`
	Operator    string  `json:"operator" msgpack:"operator"`
}

// Hamiltonian is an ordered list of terms sharing one register width.
type Hamiltonian struct {
	Width int    `json:"width" msgpack:"width"`
	Terms []Term `json:"terms" msgpack:"terms"`
}

// Len returns the number of terms
func (h *Hamiltonian) Len() int {
	return len(h.Terms)
}

// Validate checks that every operator has the register width and a valid alphabet.
func (h *Hamiltonian) Validate() error {
	for i, t := range h.Terms {
		if len(t.Operator) != h.Width {
			return fmt.Errorf("term %d: operator %q has length %d, want %d", i, t.Operator, len(t.Operator), h.Width)
		}
		if !ValidOperator(t.Operator) {
			return fmt.Errorf("term %d: operator %q contains characters outside IXYZ", i, t.Operator)
		}
		if math.IsNaN(t.Coefficient) || math.IsInf(t.Coefficient, 0) {
			return fmt.Errorf("term %d: coefficient is not finite", i)
		}
	}
	return nil
}

// Constant returns the summed coefficient of the identity terms.
func (h *Hamiltonian) Constant() float64 {
	var c float64
	for _, t := range h.Terms {
		if IsIdentity(t.Operator) {
			c += t.Coefficient
		}
	}
	return c
}

// Support returns the sorted qubit indices on which at least one term acts non-trivially.
func (h *Hamiltonian) Support() []int {
	used := make([]bool, h.Width)
	for _, t := range h.Terms {
		for q := 0; q < len(t.Operator); q++ {
			if t.Operator[q] != 'I' {
				used[q] = true
			}
		}
	}
	var out []int
	for q, u := range used {
		if u {
			out = append(out, q)
		}
	}
	return out
}

// Permute moves the operator character at position i to position perm[i].
// perm must be a permutation of [0, Width).
func (h *Hamiltonian) Permute(perm []int) (*Hamiltonian, error) {
	if len(perm) != h.Width {
		return nil, fmt.Errorf("permutation has length %d, want %d", len(perm), h.Width)
	}
	seen := make([]bool, h.Width)
	for _, p := range perm {
		if p < 0 || p >= h.Width || seen[p] {
			return nil, fmt.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
	}

	out := &Hamiltonian{Width: h.Width, Terms: make([]Term, len(h.Terms))}
	buf := make([]byte, h.Width)
	for i, t := range h.Terms {
		for q := 0; q < h.Width; q++ {
			buf[perm[q]] = t.Operator[q]
		}
		out.Terms[i] = Term{Coefficient: t.Coefficient, Operator: string(buf)}
	}
	return out, nil
}

// Restrict keeps only the listed qubit positions, in the given order.
// Positions dropped must carry the identity in every term.
func (h *Hamiltonian) Restrict(qubits []int) (*Hamiltonian, error) {
	keep := make(map[int]bool, len(qubits))
	for _, q := range qubits {
		if q < 0 || q >= h.Width {
			return nil, fmt.Errorf("qubit %d outside register of width %d", q, h.Width)
		}
		keep[q] = true
	}

	out := &Hamiltonian{Width: len(qubits), Terms: make([]Term, len(h.Terms))}
	buf := make([]byte, len(qubits))
	for i, t := range h.Terms {
		for q := 0; q < h.Width; q++ {
			if !keep[q] && t.Operator[q] != 'I' {
				return nil, fmt.Errorf("term %d acts on dropped qubit %d", i, q)
			}
		}
		for j, q := range qubits {
			buf[j] = t.Operator[q]
		}
		out.Terms[i] = Term{Coefficient: t.Coefficient, Operator: string(buf)}
	}
	return out, nil
}

// Pad left-pads op with identities up to width. Strings already at least
// width long are returned unchanged, so Pad(Pad(op, w), w) == Pad(op, w).
func Pad(op string, width int) string {
	if len(op) >= width {
		return op
	}
	return strings.Repeat("I", width-len(op)) + op
}

// Strip removes the identity padding added by Pad, keeping the trailing
// logical characters.
func Strip(op string, logical int) string {
	if logical >= len(op) {
		return op
	}
	return op[len(op)-logical:]
}

// ValidOperator reports whether op is a non-empty string over IXYZ.
func ValidOperator(op string) bool {
	if op == "" {
		return false
	}
	for i := 0; i < len(op); i++ {
		switch op[i] {
		case 'I', 'X', 'Y', 'Z':
		default:
			return false
		}
	}
	return true
}

// IsIdentity reports whether op only contains identities.
func IsIdentity(op string) bool {
	return strings.Trim(op, "I") == ""
}

// Format renders h in the line format read by Parser. Coefficients use the
// shortest representation that parses back to the same float64.
func Format(h *Hamiltonian) string {
	var b strings.Builder
	for _, t := range h.Terms {
		b.WriteString(strconv.FormatFloat(t.Coefficient, 'g', -1, 64))
		b.WriteString(" * ")
		b.WriteString(t.Operator)
		b.WriteByte('\n')
	}
	return b.String()
}
