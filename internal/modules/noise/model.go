// Package noise defines the device noise model: a tagged, versioned record of
// calibration data stored as msgpack, plus the error channels the evaluator
// samples from it.
package noise

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// SchemaVersion is the noise-model layout this package reads and writes.
const SchemaVersion = 1

// FileExt is appended to a device name to form its file name.
const FileExt = ".pkl"

// SupportedDevices lists the selectable noise models.
var SupportedDevices = []string{"fakecairo", "fakekolkata", "fakemontreal"}

// DeviceBasis is the native gate set of the supported devices.
var DeviceBasis = []string{"id", "rz", "sx", "x", "cx"}

// QubitProperties holds per-qubit calibration. Times are in seconds.
type QubitProperties struct {
	T1             float64 `msgpack:"t1" json:"t1"`
	T2             float64 `msgpack:"t2" json:"t2"`
	ProbMeas1Prep0 float64 `msgpack:"prob_meas1_prep0" json:"prob_meas1_prep0"`
	ProbMeas0Prep1 float64 `msgpack:"prob_meas0_prep1" json:"prob_meas0_prep1"`
}

// GateProperties holds the calibration of one gate on specific qubits.
type GateProperties struct {
	Name     string  `msgpack:"name" json:"name"`
	Qubits   []int   `msgpack:"qubits" json:"qubits"`
	Error    float64 `msgpack:"error" json:"error"`
	Duration float64 `msgpack:"duration" json:"duration"`
}

// Model is an immutable device noise model.
type Model struct {
	SchemaVersion int               `msgpack:"schema_version" json:"schema_version"`
	Device        string            `msgpack:"device" json:"device"`
	NumQubits     int               `msgpack:"num_qubits" json:"num_qubits"`
	BasisGates    []string          `msgpack:"basis_gates" json:"basis_gates"`
	CouplingMap   [][2]int          `msgpack:"coupling_map" json:"coupling_map"`
	Qubits        []QubitProperties `msgpack:"qubits" json:"qubits"`
	Gates         []GateProperties  `msgpack:"gates" json:"gates"`

	gateIndex map[string]int
}

func gateKey(name string, qubits []int) string {
	var sb strings.Builder
	sb.WriteString(name)
	for _, q := range qubits {
		fmt.Fprintf(&sb, ":%d", q)
	}
	return sb.String()
}

// IsSupported reports whether name selects a known device.
func IsSupported(name string) bool {
	return slices.Contains(SupportedDevices, name)
}

// Validate checks the schema version and every calibration value. It also
// builds the gate lookup index.
func (m *Model) Validate() error {
	if m.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema version %d, want %d", m.SchemaVersion, SchemaVersion)
	}
	if m.Device == "" {
		return errors.New("device name is empty")
	}
	if m.NumQubits <= 0 {
		return fmt.Errorf("device has %d qubits", m.NumQubits)
	}
	if len(m.Qubits) != m.NumQubits {
		return fmt.Errorf("%d qubit calibrations for %d qubits", len(m.Qubits), m.NumQubits)
	}
	for _, g := range m.BasisGates {
		if !slices.Contains(DeviceBasis, g) {
			return fmt.Errorf("basis gate %q is not supported", g)
		}
	}
	if !slices.Contains(m.BasisGates, "cx") {
		return errors.New("basis gates do not include cx")
	}

	for q, p := range m.Qubits {
		if !(p.T1 > 0) || !(p.T2 > 0) || math.IsInf(p.T1, 0) || math.IsInf(p.T2, 0) {
			return fmt.Errorf("qubit %d: T1=%g T2=%g must be positive and finite", q, p.T1, p.T2)
		}
		if p.T2 > 2*p.T1*(1+1e-9) {
			return fmt.Errorf("qubit %d: T2=%g exceeds 2*T1=%g", q, p.T2, 2*p.T1)
		}
		if !probability(p.ProbMeas1Prep0) || !probability(p.ProbMeas0Prep1) {
			return fmt.Errorf("qubit %d: readout error outside [0, 1]", q)
		}
	}

	for _, e := range m.CouplingMap {
		if e[0] < 0 || e[1] < 0 || e[0] >= m.NumQubits || e[1] >= m.NumQubits || e[0] == e[1] {
			return fmt.Errorf("coupling edge %v invalid for %d qubits", e, m.NumQubits)
		}
	}

	index := make(map[string]int, len(m.Gates))
	for i, g := range m.Gates {
		if !slices.Contains(m.BasisGates, g.Name) {
			return fmt.Errorf("gate %d: %q is not a basis gate", i, g.Name)
		}
		want := 1
		if g.Name == "cx" {
			want = 2
		}
		if len(g.Qubits) != want {
			return fmt.Errorf("gate %d (%s): %d qubits, want %d", i, g.Name, len(g.Qubits), want)
		}
		for _, q := range g.Qubits {
			if q < 0 || q >= m.NumQubits {
				return fmt.Errorf("gate %d (%s): qubit %d out of range", i, g.Name, q)
			}
		}
		if !probability(g.Error) {
			return fmt.Errorf("gate %d (%s): error %g outside [0, 1]", i, g.Name, g.Error)
		}
		if g.Duration < 0 || math.IsNaN(g.Duration) || math.IsInf(g.Duration, 0) {
			return fmt.Errorf("gate %d (%s): invalid duration %g", i, g.Name, g.Duration)
		}
		index[gateKey(g.Name, g.Qubits)] = i
	}

	for _, e := range m.CouplingMap {
		_, fwd := index[gateKey("cx", e[:])]
		_, rev := index[gateKey("cx", []int{e[1], e[0]})]
		if !fwd && !rev {
			return fmt.Errorf("coupling edge %v has no cx calibration", e)
		}
	}
	m.gateIndex = index
	return nil
}

func probability(p float64) bool {
	return p >= 0 && p <= 1
}

// Gate returns the calibration of name on qubits. A cx falls back to the
// reverse direction.
func (m *Model) Gate(name string, qubits []int) (GateProperties, bool) {
	if i, ok := m.gateIndex[gateKey(name, qubits)]; ok {
		return m.Gates[i], true
	}
	if len(qubits) == 2 {
		if i, ok := m.gateIndex[gateKey(name, []int{qubits[1], qubits[0]})]; ok {
			return m.Gates[i], true
		}
	}
	return GateProperties{}, false
}

// HasEdge reports whether a cx between a and b is native.
func (m *Model) HasEdge(a, b int) bool {
	for _, e := range m.CouplingMap {
		if (e[0] == a && e[1] == b) || (e[0] == b && e[1] == a) {
			return true
		}
	}
	return false
}

// SupportsGate reports whether name is in the device basis.
func (m *Model) SupportsGate(name string) bool {
	return slices.Contains(m.BasisGates, name)
}

// Encode serializes the model.
func (m *Model) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses and validates a serialized model.
func Decode(data []byte) (*Model, error) {
	var m Model
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Path returns the file that holds the named model.
func Path(dir, name string) string {
	return filepath.Join(dir, name+FileExt)
}

// Load reads <dir>/<name>.pkl.
func Load(dir, name string) (*Model, error) {
	if !IsSupported(name) {
		return nil, domain.NewError("load noise model", domain.KindArgument,
			fmt.Errorf("unknown noise model %q, expected one of %s", name, strings.Join(SupportedDevices, ", ")))
	}
	path := Path(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewPathError("load noise model", domain.KindIO, path, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, domain.NewPathError("load noise model", domain.KindInvalidNoiseModel, path, err)
	}
	return m, nil
}

// Save writes the model to <dir>/<device>.pkl.
func Save(dir string, m *Model) (string, error) {
	if err := m.Validate(); err != nil {
		return "", domain.NewError("save noise model", domain.KindInvalidNoiseModel, err)
	}
	data, err := m.Encode()
	if err != nil {
		return "", fmt.Errorf("failed to encode noise model: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", domain.NewPathError("save noise model", domain.KindIO, dir, err)
	}
	path := Path(dir, m.Device)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", domain.NewPathError("save noise model", domain.KindIO, path, err)
	}
	return path, nil
}
