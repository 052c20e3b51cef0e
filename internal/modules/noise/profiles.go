package noise

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
)

// falconEdges is the heavy-hex coupling map of the 27-qubit Falcon devices.
var falconEdges = [][2]int{
	{0, 1}, {1, 2}, {1, 4}, {2, 3}, {3, 5}, {4, 7}, {5, 8}, {6, 7}, {7, 10},
	{8, 9}, {8, 11}, {10, 12}, {11, 14}, {12, 13}, {12, 15}, {13, 14}, {14, 16},
	{15, 18}, {16, 19}, {17, 18}, {18, 21}, {19, 20}, {19, 22}, {21, 23},
	{22, 25}, {23, 24}, {24, 25}, {25, 26},
}

const (
	falconQubits     = 27
	singleGateTime   = 35.5e-9
	microsecond      = 1e-6
	nanosecond       = 1e-9
	profileStreamTag = 0x6e6f697365
)

// Profile returns the calibration snapshot of a supported device. Values are
// drawn from a generator seeded by the device name, so every call returns the
// same model.
func Profile(name string) (*Model, error) {
	if !IsSupported(name) {
		return nil, domain.NewError("noise profile", domain.KindArgument, fmt.Errorf("unknown device %q", name))
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	rng := rand.New(rand.NewPCG(h.Sum64(), profileStreamTag))
	uniform := func(lo, hi float64) float64 {
		return lo + (hi-lo)*rng.Float64()
	}

	m := &Model{
		SchemaVersion: SchemaVersion,
		Device:        name,
		NumQubits:     falconQubits,
		BasisGates:    append([]string(nil), DeviceBasis...),
		CouplingMap:   make([][2]int, 0, 2*len(falconEdges)),
		Qubits:        make([]QubitProperties, falconQubits),
	}

	for q := 0; q < falconQubits; q++ {
		t1 := uniform(80, 140) * microsecond
		m.Qubits[q] = QubitProperties{
			T1:             t1,
			T2:             uniform(0.4, 1.8) * t1,
			ProbMeas1Prep0: uniform(0.005, 0.03),
			ProbMeas0Prep1: uniform(0.005, 0.03),
		}
		sxErr := uniform(1e-4, 5e-4)
		m.Gates = append(m.Gates,
			GateProperties{Name: "id", Qubits: []int{q}, Error: sxErr, Duration: singleGateTime},
			GateProperties{Name: "rz", Qubits: []int{q}},
			GateProperties{Name: "sx", Qubits: []int{q}, Error: sxErr, Duration: singleGateTime},
			GateProperties{Name: "x", Qubits: []int{q}, Error: sxErr, Duration: singleGateTime},
		)
	}

	for _, e := range falconEdges {
		cxErr := uniform(5e-3, 1.5e-2)
		dur := uniform(300, 500) * nanosecond
		m.CouplingMap = append(m.CouplingMap, e, [2]int{e[1], e[0]})
		m.Gates = append(m.Gates,
			GateProperties{Name: "cx", Qubits: []int{e[0], e[1]}, Error: cxErr, Duration: dur},
			GateProperties{Name: "cx", Qubits: []int{e[1], e[0]}, Error: cxErr, Duration: dur},
		)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	return m, nil
}

// Edges returns the coupling map with each undirected edge listed once.
func (m *Model) Edges() [][2]int {
	seen := make(map[[2]int]bool)
	var out [][2]int
	for _, e := range m.CouplingMap {
		a, b := e[0], e[1]
		if a > b {
			a, b = b, a
		}
		if !seen[[2]int{a, b}] {
			seen[[2]int{a, b}] = true
			out = append(out, [2]int{a, b})
		}
	}
	return out
}
