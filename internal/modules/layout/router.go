package layout

import (
	"fmt"
	"math"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/rs/zerolog"
)

// Result is a device-ready circuit and the qubit bookkeeping needed to
// measure it.
type Result struct {
	Circuit *circuit.Circuit
	// InitialLayout maps logical qubit j to its starting physical qubit
	InitialLayout []int
	// FinalLayout maps logical qubit j to its physical qubit after routing
	FinalLayout []int
	// Permutation maps every padded operator position to the physical
	// qubit now holding it, for Hamiltonian.Permute.
	Permutation []int
	Swaps       int
}

// DefaultLayout places logical qubit j on physical qubit width-logical+j,
// matching the position the Hamiltonian parser pads it to.
func DefaultLayout(logical, width int) []int {
	out := make([]int, logical)
	for j := range out {
		out[j] = width - logical + j
	}
	return out
}

// Layouter maps compiled circuits onto a device.
type Layouter struct {
	log zerolog.Logger
}

// NewLayouter creates a layouter
func NewLayouter(log zerolog.Logger) *Layouter {
	return &Layouter{log: log.With().Str("component", "layout").Logger()}
}

// Apply routes c onto the coupling map from the given initial layout (nil
// means DefaultLayout) and translates it into {rz, sx, cx}.
func (l *Layouter) Apply(c *circuit.Circuit, cm *CouplingMap, initial []int) (*Result, error) {
	res, err := Route(c, cm, initial)
	if err != nil {
		return nil, err
	}
	res.Circuit, err = Translate(res.Circuit)
	if err != nil {
		return nil, domain.NewError("layout", domain.KindLayout, err)
	}
	l.log.Info().
		Ints("initial_layout", res.InitialLayout).
		Ints("final_layout", res.FinalLayout).
		Int("swaps", res.Swaps).
		Int("gates", len(res.Circuit.Gates)).
		Msg("Circuit laid out on device")
	return res, nil
}

// Route maps logical qubits to physical ones and inserts swaps, each as
// three cx, until every cx acts on a coupling edge.
func Route(c *circuit.Circuit, cm *CouplingMap, initial []int) (*Result, error) {
	width := cm.NumQubits()
	if c.NumQubits > width {
		return nil, domain.NewError("layout", domain.KindLayout,
			fmt.Errorf("circuit needs %d qubits, device has %d", c.NumQubits, width))
	}
	if initial == nil {
		initial = DefaultLayout(c.NumQubits, width)
	}
	if err := validateLayout(initial, c.NumQubits, width); err != nil {
		return nil, domain.NewError("layout", domain.KindLayout, err)
	}

	// log2phys covers every physical qubit: logical j < L first, then idle
	// device qubits in ascending order.
	log2phys := make([]int, 0, width)
	log2phys = append(log2phys, initial...)
	used := make([]bool, width)
	for _, p := range initial {
		used[p] = true
	}
	for p := 0; p < width; p++ {
		if !used[p] {
			log2phys = append(log2phys, p)
		}
	}
	phys2log := make([]int, width)
	for v, p := range log2phys {
		phys2log[p] = v
	}

	out := circuit.New(width, 0)
	swaps := 0
	swap := func(x, y int) {
		out.Add("cx", []int{x, y})
		out.Add("cx", []int{y, x})
		out.Add("cx", []int{x, y})
		vx, vy := phys2log[x], phys2log[y]
		phys2log[x], phys2log[y] = vy, vx
		log2phys[vx], log2phys[vy] = y, x
		swaps++
	}

	for i, g := range c.Gates {
		if len(g.Qubits) == 1 {
			out.Add(g.Name, []int{log2phys[g.Qubits[0]]}, g.Params...)
			continue
		}
		if g.Name != "cx" {
			return nil, domain.NewError("layout", domain.KindLayout,
				fmt.Errorf("gate %d: cannot route %s, synthesize to cx first", i, g.Name))
		}
		pa, pb := log2phys[g.Qubits[0]], log2phys[g.Qubits[1]]
		if !cm.Connected(pa, pb) {
			path, err := cm.ShortestPath(pa, pb)
			if err != nil {
				return nil, domain.NewError("layout", domain.KindLayout, err)
			}
			for k := 0; k+2 < len(path); k++ {
				swap(path[k], path[k+1])
			}
			pa, pb = log2phys[g.Qubits[0]], log2phys[g.Qubits[1]]
		}
		out.Add("cx", []int{pa, pb}, g.Params...)
	}

	res := &Result{
		Circuit:       out,
		InitialLayout: append([]int(nil), initial...),
		FinalLayout:   append([]int(nil), log2phys[:c.NumQubits]...),
		Swaps:         swaps,
	}
	res.Permutation = paddedPermutation(log2phys, c.NumQubits, width)
	return res, nil
}

// paddedPermutation maps padded operator position width-L+j to the final
// physical qubit of logical j and spreads the padding positions over the
// remaining qubits in ascending order.
func paddedPermutation(log2phys []int, logical, width int) []int {
	perm := make([]int, width)
	taken := make([]bool, width)
	for j := 0; j < logical; j++ {
		perm[width-logical+j] = log2phys[j]
		taken[log2phys[j]] = true
	}
	next := 0
	for pos := 0; pos < width-logical; pos++ {
		for taken[next] {
			next++
		}
		perm[pos] = next
		taken[next] = true
	}
	return perm
}

func validateLayout(layout []int, logical, width int) error {
	if len(layout) != logical {
		return fmt.Errorf("layout has %d entries, circuit has %d qubits", len(layout), logical)
	}
	seen := make(map[int]bool)
	for j, p := range layout {
		if p < 0 || p >= width {
			return fmt.Errorf("logical qubit %d mapped to %d outside device of %d", j, p, width)
		}
		if seen[p] {
			return fmt.Errorf("physical qubit %d assigned twice", p)
		}
		seen[p] = true
	}
	return nil
}

// Translate rewrites u3 as rz(λ) sx rz(θ+π) sx rz(φ+π), equal up to global
// phase; diagonal u3 collapse to one rz. Other basis gates pass through.
func Translate(c *circuit.Circuit) (*circuit.Circuit, error) {
	if !c.IsBound() {
		return nil, fmt.Errorf("translate: circuit has unbound parameters")
	}
	out := circuit.New(c.NumQubits, 0)
	for i, g := range c.Gates {
		switch g.Name {
		case "cx", "rz", "sx", "x", "id":
			out.AddGate(g)
		case "u3", "u":
			v := g.Values(nil)
			theta, phi, lambda := v[0], v[1], v[2]
			q := g.Qubits
			if math.Abs(math.Remainder(theta, 2*math.Pi)) < 1e-12 {
				if a := math.Remainder(phi+lambda, 2*math.Pi); math.Abs(a) > 1e-12 {
					out.Add("rz", q, circuit.Const(a))
				}
				continue
			}
			out.Add("rz", q, circuit.Const(lambda))
			out.Add("sx", q)
			out.Add("rz", q, circuit.Const(theta+math.Pi))
			out.Add("sx", q)
			out.Add("rz", q, circuit.Const(phi+math.Pi))
		default:
			return nil, fmt.Errorf("gate %d: %s is not a synthesized gate", i, g.Name)
		}
	}
	return out, nil
}
