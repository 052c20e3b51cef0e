// Package molecule holds the fixed molecular input of the pipeline: geometry,
// basis, charge, spin and the molecular-orbital integrals, plus the
// Jordan-Wigner mapping of its electronic Hamiltonian onto qubits.
package molecule

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// BohrPerAngstrom converts Angstrom to atomic units of length.
const BohrPerAngstrom = 1.0 / 0.529177210903

var atomicNumbers = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8, "F": 9, "Ne": 10,
	"Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15, "S": 16, "Cl": 17, "Ar": 18,
}

// Atom is a nucleus position in Angstrom.
type Atom struct {
	Symbol   string     `yaml:"symbol" json:"symbol" msgpack:"symbol"`
	Position [3]float64 `yaml:"position" json:"position" msgpack:"position"`
}

// Model is an immutable molecular description with its MO integrals.
// Spin is 2S. Two-electron integrals use chemist notation (pq|rs).
type Model struct {
	Name        string    `json:"name" msgpack:"name"`
	Basis       string    `json:"basis" msgpack:"basis"`
	Charge      int       `json:"charge" msgpack:"charge"`
	Spin        int       `json:"spin" msgpack:"spin"`
	Geometry    []Atom    `json:"geometry" msgpack:"geometry"`
	NumOrbitals int       `json:"num_orbitals" msgpack:"num_orbitals"`
	NumAlpha    int       `json:"num_alpha" msgpack:"num_alpha"`
	NumBeta     int       `json:"num_beta" msgpack:"num_beta"`
	OneBody     []float64 `json:"-" msgpack:"one_body"`
	TwoBody     []float64 `json:"-" msgpack:"two_body"`
	// CoreEnergy is the nuclear repulsion plus any frozen-core energy.
	CoreEnergy float64 `json:"core_energy" msgpack:"core_energy"`
}

// H returns the one-electron integral h_pq.
func (m *Model) H(p, q int) float64 {
	return m.OneBody[p*m.NumOrbitals+q]
}

// ERI returns the two-electron integral (pq|rs).
func (m *Model) ERI(p, q, r, s int) float64 {
	n := m.NumOrbitals
	return m.TwoBody[((p*n+q)*n+r)*n+s]
}

// NumQubits is the number of spin-orbitals, one qubit each.
func (m *Model) NumQubits() int {
	return 2 * m.NumOrbitals
}

// NumParticles returns the active electron count
func (m *Model) NumParticles() int {
	return m.NumAlpha + m.NumBeta
}

// NuclearRepulsion returns the constant energy added to electronic eigenvalues.
func (m *Model) NuclearRepulsion() float64 {
	return m.CoreEnergy
}

// SpinOrbital maps spatial orbital p and spin (0 alpha, 1 beta) to a qubit.
// Alpha orbitals occupy qubits [0, n), beta orbitals [n, 2n).
func (m *Model) SpinOrbital(p, spin int) int {
	return p + spin*m.NumOrbitals
}

// Validate checks integral dimensions and particle counts.
func (m *Model) Validate() error {
	n := m.NumOrbitals
	if n <= 0 {
		return fmt.Errorf("model %s: no orbitals", m.Name)
	}
	if len(m.OneBody) != n*n {
		return fmt.Errorf("model %s: one-body integrals have %d entries, want %d", m.Name, len(m.OneBody), n*n)
	}
	if len(m.TwoBody) != n*n*n*n {
		return fmt.Errorf("model %s: two-body integrals have %d entries, want %d", m.Name, len(m.TwoBody), n*n*n*n)
	}
	if m.NumAlpha < 0 || m.NumBeta < 0 || m.NumAlpha > n || m.NumBeta > n {
		return fmt.Errorf("model %s: cannot place %d alpha and %d beta electrons in %d orbitals", m.Name, m.NumAlpha, m.NumBeta, n)
	}
	if m.NumAlpha-m.NumBeta != m.Spin {
		return fmt.Errorf("model %s: spin %d does not match %d alpha and %d beta electrons", m.Name, m.Spin, m.NumAlpha, m.NumBeta)
	}
	for i, v := range m.OneBody {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("model %s: one-body integral %d is not finite", m.Name, i)
		}
	}
	return nil
}

// Fingerprint identifies the model's numerical content.
func (m *Model) Fingerprint() string {
	data, err := msgpack.Marshal(m)
	if err != nil {
		// Every field is a plain value; marshalling cannot fail.
		panic(fmt.Sprintf("molecule: fingerprint: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// TotalElectrons returns the electron count implied by geometry and charge.
func TotalElectrons(geometry []Atom, charge int) (int, error) {
	total := 0
	for _, a := range geometry {
		z, ok := atomicNumbers[a.Symbol]
		if !ok {
			return 0, fmt.Errorf("unknown element %q", a.Symbol)
		}
		total += z
	}
	return total - charge, nil
}

// NuclearRepulsion computes sum Z_A Z_B / R_AB in Hartree for a geometry in Angstrom.
func NuclearRepulsion(geometry []Atom) (float64, error) {
	var e float64
	for i := 0; i < len(geometry); i++ {
		zi, ok := atomicNumbers[geometry[i].Symbol]
		if !ok {
			return 0, fmt.Errorf("unknown element %q", geometry[i].Symbol)
		}
		for j := i + 1; j < len(geometry); j++ {
			zj, ok := atomicNumbers[geometry[j].Symbol]
			if !ok {
				return 0, fmt.Errorf("unknown element %q", geometry[j].Symbol)
			}
			var d2 float64
			for k := 0; k < 3; k++ {
				d := geometry[i].Position[k] - geometry[j].Position[k]
				d2 += d * d
			}
			r := math.Sqrt(d2) * BohrPerAngstrom
			if r == 0 {
				return 0, fmt.Errorf("atoms %d and %d coincide", i, j)
			}
			e += float64(zi*zj) / r
		}
	}
	return e, nil
}

// Formula returns a compact chemical formula such as "H2" or "OH".
func Formula(geometry []Atom) string {
	var order []string
	counts := make(map[string]int)
	for _, a := range geometry {
		if counts[a.Symbol] == 0 {
			order = append(order, a.Symbol)
		}
		counts[a.Symbol]++
	}
	var b strings.Builder
	for _, s := range order {
		b.WriteString(s)
		if counts[s] > 1 {
			fmt.Fprintf(&b, "%d", counts[s])
		}
	}
	return b.String()
}

// H2 returns hydrogen in the STO-3G basis at a bond length of 1.4 bohr,
// with the molecular-orbital integrals tabulated by Szabo and Ostlund.
// Its exact ground-state energy is about -1.1373 Hartree.
func H2() *Model {
	const bond = 1.4 // bohr
	n := 2
	m := &Model{
		Name:        "h2",
		Basis:       "sto-3g",
		Charge:      0,
		Spin:        0,
		NumOrbitals: n,
		NumAlpha:    1,
		NumBeta:     1,
		Geometry: []Atom{
			{Symbol: "H", Position: [3]float64{0, 0, 0}},
			{Symbol: "H", Position: [3]float64{0, 0, bond / BohrPerAngstrom}},
		},
		OneBody:    make([]float64, n*n),
		TwoBody:    make([]float64, n*n*n*n),
		CoreEnergy: 1 / bond,
	}

	m.OneBody[0] = -1.2528
	m.OneBody[3] = -0.4756

	set := func(p, q, r, s int, v float64) {
		setERI(m.TwoBody, n, p, q, r, s, v)
	}
	set(0, 0, 0, 0, 0.6746)
	set(1, 1, 1, 1, 0.6975)
	set(0, 0, 1, 1, 0.6636)
	set(0, 1, 0, 1, 0.1813)

	return m
}

// setERI stores (pq|rs) together with its seven symmetry-equivalent entries.
func setERI(eri []float64, n, p, q, r, s int, v float64) {
	idx := func(a, b, c, d int) int { return ((a*n+b)*n+c)*n + d }
	for _, k := range [][4]int{
		{p, q, r, s}, {q, p, r, s}, {p, q, s, r}, {q, p, s, r},
		{r, s, p, q}, {s, r, p, q}, {r, s, q, p}, {s, r, q, p},
	} {
		eri[idx(k[0], k[1], k[2], k[3])] = v
	}
}
