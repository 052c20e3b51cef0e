// Package circuit provides the gate-sequence model shared by every pipeline
// stage, its symbolic to bound parameter lifecycle and the OpenQASM 2.0 codec.
package circuit

import (
	"errors"
	"fmt"
	"sort"
)

// ErrAlreadyBound is returned when binding a circuit a second time.
var ErrAlreadyBound = errors.New("circuit parameters are already bound")

// Param is an affine gate angle Coeff*θ[Index] + Offset. A negative Index
// marks a constant angle equal to Offset.
type Param struct {
	Index  int     `json:"index"`
	Coeff  float64 `json:"coeff"`
	Offset float64 `json:"offset"`
}

// Const returns a fixed angle
func Const(v float64) Param {
	return Param{Index: -1, Offset: v}
}

// Sym returns coeff*θ[index]
func Sym(index int, coeff float64) Param {
	return Param{Index: index, Coeff: coeff}
}

// IsSymbolic reports whether the angle depends on a parameter.
func (p Param) IsSymbolic() bool {
	return p.Index >= 0
}

// Value evaluates the angle for a parameter assignment.
func (p Param) Value(theta []float64) float64 {
	if p.Index < 0 {
		return p.Offset
	}
	return p.Coeff*theta[p.Index] + p.Offset
}

// Gate is one operation of a circuit.
type Gate struct {
	Name   string  `json:"name"`
	Qubits []int   `json:"qubits"`
	Params []Param `json:"params,omitempty"`
}

// Values evaluates the gate angles for theta.
func (g Gate) Values(theta []float64) []float64 {
	if len(g.Params) == 0 {
		return nil
	}
	out := make([]float64, len(g.Params))
	for i, p := range g.Params {
		out[i] = p.Value(theta)
	}
	return out
}

// State is a circuit's parameter lifecycle state.
type State int

const (
	// Symbolic circuits still depend on a parameter vector
	Symbolic State = iota
	// Bound circuits carry fixed angles only
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "symbolic"
}

// Circuit is an ordered gate sequence over NumQubits qubits.
type Circuit struct {
	NumQubits int
	NumParams int
	Gates     []Gate
	state     State
	bound     []float64
}

// New creates an empty circuit. Circuits without parameters start bound.
func New(numQubits, numParams int) *Circuit {
	c := &Circuit{NumQubits: numQubits, NumParams: numParams}
	if numParams == 0 {
		c.state = Bound
	}
	return c
}

// Add appends a gate.
func (c *Circuit) Add(name string, qubits []int, params ...Param) {
	q := make([]int, len(qubits))
	copy(q, qubits)
	c.Gates = append(c.Gates, Gate{Name: name, Qubits: q, Params: params})
}

// AddGate appends a copy of g.
func (c *Circuit) AddGate(g Gate) {
	c.Add(g.Name, g.Qubits, g.Params...)
}

// State returns the lifecycle state
func (c *Circuit) State() State {
	return c.state
}

// IsBound reports whether all angles are fixed.
func (c *Circuit) IsBound() bool {
	return c.state == Bound
}

// BoundParameters returns a copy of the vector the circuit was bound with.
func (c *Circuit) BoundParameters() []float64 {
	out := make([]float64, len(c.bound))
	copy(out, c.bound)
	return out
}

// Bind fixes every symbolic angle to its value under theta. It succeeds at
// most once per circuit.
func (c *Circuit) Bind(theta []float64) error {
	if c.state == Bound {
		return ErrAlreadyBound
	}
	if len(theta) != c.NumParams {
		return fmt.Errorf("bind: got %d parameters, circuit has %d", len(theta), c.NumParams)
	}
	for i := range c.Gates {
		for j, p := range c.Gates[i].Params {
			c.Gates[i].Params[j] = Const(p.Value(theta))
		}
	}
	c.bound = make([]float64, len(theta))
	copy(c.bound, theta)
	c.state = Bound
	return nil
}

// Clone returns a deep copy, including lifecycle state.
func (c *Circuit) Clone() *Circuit {
	out := &Circuit{
		NumQubits: c.NumQubits,
		NumParams: c.NumParams,
		Gates:     make([]Gate, len(c.Gates)),
		state:     c.state,
		bound:     append([]float64(nil), c.bound...),
	}
	for i, g := range c.Gates {
		out.Gates[i] = Gate{
			Name:   g.Name,
			Qubits: append([]int(nil), g.Qubits...),
			Params: append([]Param(nil), g.Params...),
		}
	}
	return out
}

// Validate checks gate names, arities, qubit ranges and parameter indices.
func (c *Circuit) Validate() error {
	for i, g := range c.Gates {
		spec, ok := gateSpecs[g.Name]
		if !ok {
			return fmt.Errorf("gate %d: unsupported gate %q", i, g.Name)
		}
		if len(g.Qubits) != spec.Qubits {
			return fmt.Errorf("gate %d (%s): want %d qubits, got %d", i, g.Name, spec.Qubits, len(g.Qubits))
		}
		if len(g.Params) != spec.Params {
			return fmt.Errorf("gate %d (%s): want %d parameters, got %d", i, g.Name, spec.Params, len(g.Params))
		}
		for _, q := range g.Qubits {
			if q < 0 || q >= c.NumQubits {
				return fmt.Errorf("gate %d (%s): qubit %d outside register of %d", i, g.Name, q, c.NumQubits)
			}
		}
		if spec.Qubits == 2 && g.Qubits[0] == g.Qubits[1] {
			return fmt.Errorf("gate %d (%s): repeated qubit %d", i, g.Name, g.Qubits[0])
		}
		for _, p := range g.Params {
			if p.Index >= c.NumParams {
				return fmt.Errorf("gate %d (%s): parameter index %d outside vector of %d", i, g.Name, p.Index, c.NumParams)
			}
			if p.IsSymbolic() && c.state == Bound {
				return fmt.Errorf("gate %d (%s): symbolic angle in a bound circuit", i, g.Name)
			}
		}
	}
	return nil
}

// Depth returns the number of layers when every gate is scheduled as early
// as its qubits allow.
func (c *Circuit) Depth() int {
	level := make([]int, c.NumQubits)
	depth := 0
	for _, g := range c.Gates {
		d := 0
		for _, q := range g.Qubits {
			if level[q] > d {
				d = level[q]
			}
		}
		d++
		for _, q := range g.Qubits {
			level[q] = d
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

// CountOps returns the number of gates per name.
func (c *Circuit) CountOps() map[string]int {
	counts := make(map[string]int)
	for _, g := range c.Gates {
		counts[g.Name]++
	}
	return counts
}

// TwoQubitCount returns the number of two-qubit gates.
func (c *Circuit) TwoQubitCount() int {
	n := 0
	for _, g := range c.Gates {
		if len(g.Qubits) == 2 {
			n++
		}
	}
	return n
}

// ActiveQubits returns the sorted qubits touched by at least one gate.
func (c *Circuit) ActiveQubits() []int {
	seen := make(map[int]bool)
	for _, g := range c.Gates {
		for _, q := range g.Qubits {
			seen[q] = true
		}
	}
	out := make([]int, 0, len(seen))
	for q := range seen {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}

// Metrics summarizes a circuit for logs and run records.
type Metrics struct {
	Qubits   int            `json:"qubits"`
	Gates    int            `json:"gates"`
	Depth    int            `json:"depth"`
	TwoQubit int            `json:"two_qubit"`
	Ops      map[string]int `json:"ops"`
}

// Metrics returns the circuit summary
func (c *Circuit) Metrics() Metrics {
	return Metrics{
		Qubits:   c.NumQubits,
		Gates:    len(c.Gates),
		Depth:    c.Depth(),
		TwoQubit: c.TwoQubitCount(),
		Ops:      c.CountOps(),
	}
}
