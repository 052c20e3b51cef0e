package hamiltonian

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"sort"
	"strings"
)

// pauliProduct[a][b] is the single-qubit product a*b as (result, phase)
// with indices I=0, X=1, Y=2, Z=3.
var pauliProduct = [4][4]struct {
	op    byte
	phase complex128
}{
	{{'I', 1}, {'X', 1}, {'Y', 1}, {'Z', 1}},
	{{'X', 1}, {'I', 1}, {'Z', 1i}, {'Y', -1i}},
	{{'Y', 1}, {'Z', -1i}, {'I', 1}, {'X', 1i}},
	{{'Z', 1}, {'Y', 1i}, {'X', -1i}, {'I', 1}},
}

func pauliIndex(c byte) int {
	switch c {
	case 'X':
		return 1
	case 'Y':
		return 2
	case 'Z':
		return 3
	default:
		return 0
	}
}

// MulStrings multiplies two equal-length Pauli strings, returning the product
// string and its phase.
func MulStrings(a, b string) (string, complex128) {
	out := make([]byte, len(a))
	phase := complex(1, 0)
	for i := 0; i < len(a); i++ {
		p := pauliProduct[pauliIndex(a[i])][pauliIndex(b[i])]
		out[i] = p.op
		phase *= p.phase
	}
	return string(out), phase
}

// Masks returns the bit-flip and phase masks of a Pauli string together with
// its Y count. Bit q of x is set for X or Y on qubit q; bit q of z for Y or Z.
func Masks(op string) (x, z uint64, nY int) {
	for q := 0; q < len(op); q++ {
		switch op[q] {
		case 'X':
			x |= 1 << q
		case 'Y':
			x |= 1 << q
			z |= 1 << q
			nY++
		case 'Z':
			z |= 1 << q
		}
	}
	return x, z, nY
}

// ApplyToBasis applies op to the computational basis state |b> and returns
// the resulting basis state and phase: P|b> = phase |b'>.
func ApplyToBasis(op string, b uint64) (uint64, complex128) {
	x, z, nY := Masks(op)
	phase := iPow(nY)
	if bits.OnesCount64(b&z)%2 == 1 {
		phase = -phase
	}
	return b ^ x, phase
}

func iPow(n int) complex128 {
	switch n % 4 {
	case 0:
		return 1
	case 1:
		return 1i
	case 2:
		return -1
	default:
		return -1i
	}
}

// PauliSum is a complex linear combination of Pauli strings of one width.
type PauliSum struct {
	width int
	terms map[string]complex128
}

// NewPauliSum creates an empty sum over width qubits
func NewPauliSum(width int) *PauliSum {
	return &PauliSum{width: width, terms: make(map[string]complex128)}
}

// Identity returns c times the identity on width qubits
func Identity(width int, c complex128) *PauliSum {
	s := NewPauliSum(width)
	s.Add(strings.Repeat("I", width), c)
	return s
}

// Width returns the register width
func (s *PauliSum) Width() int {
	return s.width
}

// Len returns the number of stored strings
func (s *PauliSum) Len() int {
	return len(s.terms)
}

// Add accumulates c onto op.
func (s *PauliSum) Add(op string, c complex128) {
	if len(op) != s.width {
		panic(fmt.Sprintf("pauli string %q does not have width %d", op, s.width))
	}
	s.terms[op] += c
}

// AddSum accumulates scale*o into s.
func (s *PauliSum) AddSum(o *PauliSum, scale complex128) {
	for op, c := range o.terms {
		s.Add(op, c*scale)
	}
}

// Mul returns the operator product s*o.
func (s *PauliSum) Mul(o *PauliSum) *PauliSum {
	out := NewPauliSum(s.width)
	for a, ca := range s.terms {
		for b, cb := range o.terms {
			op, phase := MulStrings(a, b)
			out.terms[op] += ca * cb * phase
		}
	}
	return out
}

// Adjoint returns the Hermitian conjugate of s.
func (s *PauliSum) Adjoint() *PauliSum {
	out := NewPauliSum(s.width)
	for op, c := range s.terms {
		out.terms[op] = cmplx.Conj(c)
	}
	return out
}

// Coefficient returns the coefficient of op
func (s *PauliSum) Coefficient(op string) complex128 {
	return s.terms[op]
}

// Simplify drops strings whose coefficient magnitude is below tol.
func (s *PauliSum) Simplify(tol float64) *PauliSum {
	for op, c := range s.terms {
		if cmplx.Abs(c) < tol {
			delete(s.terms, op)
		}
	}
	return s
}

// Operators returns the stored strings in lexical order.
func (s *PauliSum) Operators() []string {
	ops := make([]string, 0, len(s.terms))
	for op := range s.terms {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// ToHamiltonian converts a Hermitian sum to real-weighted terms in lexical
// operator order. Coefficients whose imaginary part exceeds tol are rejected.
func (s *PauliSum) ToHamiltonian(tol float64) (*Hamiltonian, error) {
	h := &Hamiltonian{Width: s.width}
	for _, op := range s.Operators() {
		c := s.terms[op]
		if math.Abs(imag(c)) > tol {
			return nil, fmt.Errorf("operator %s has imaginary coefficient %g", op, imag(c))
		}
		if math.Abs(real(c)) < tol {
			continue
		}
		h.Terms = append(h.Terms, Term{Coefficient: real(c), Operator: op})
	}
	return h, nil
}
