package molecule

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"gopkg.in/yaml.v3"
)

// Descriptor is the YAML description of a molecule whose integrals live in
// an FCIDUMP file next to it.
//
//	name: h2
//	basis: sto-3g
//	charge: 0
//	spin: 0
//	units: angstrom
//	geometry:
//	  - {symbol: H, position: [0, 0, 0]}
//	  - {symbol: H, position: [0, 0, 0.7408]}
//	integrals: h2.fcidump
type Descriptor struct {
	Name       string   `yaml:"name"`
	Basis      string   `yaml:"basis"`
	Charge     int      `yaml:"charge"`
	Spin       int      `yaml:"spin"`
	Units      string   `yaml:"units"`
	Geometry   []Atom   `yaml:"geometry"`
	Integrals  string   `yaml:"integrals"`
	CoreEnergy *float64 `yaml:"core_energy,omitempty"`
}

// Load reads a descriptor and its integrals. An empty path selects the
// built-in H2 model.
func Load(path string) (*Model, error) {
	if path == "" {
		return H2(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewPathError("molecule.Load", domain.KindIO, path, err)
	}

	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, domain.NewPathError("molecule.Load", domain.KindArgument, path, fmt.Errorf("failed to decode descriptor: %w", err))
	}
	if desc.Integrals == "" {
		return nil, domain.NewPathError("molecule.Load", domain.KindArgument, path, fmt.Errorf("descriptor has no integrals file"))
	}

	integralsPath := desc.Integrals
	if !filepath.IsAbs(integralsPath) {
		integralsPath = filepath.Join(filepath.Dir(path), integralsPath)
	}
	f, err := os.Open(integralsPath)
	if err != nil {
		return nil, domain.NewPathError("molecule.Load", domain.KindIO, integralsPath, err)
	}
	defer f.Close()

	dump, err := ReadFCIDump(f)
	if err != nil {
		return nil, domain.NewPathError("molecule.Load", domain.KindArgument, integralsPath, err)
	}

	m, err := desc.Build(dump)
	if err != nil {
		return nil, domain.NewPathError("molecule.Load", domain.KindArgument, path, err)
	}
	return m, nil
}

// Build combines the descriptor with parsed integrals into a Model.
func (d *Descriptor) Build(dump *FCIDump) (*Model, error) {
	geometry := make([]Atom, len(d.Geometry))
	copy(geometry, d.Geometry)

	switch strings.ToLower(d.Units) {
	case "", "angstrom":
	case "bohr":
		for i := range geometry {
			for k := 0; k < 3; k++ {
				geometry[i].Position[k] /= BohrPerAngstrom
			}
		}
	default:
		return nil, fmt.Errorf("unsupported units %q", d.Units)
	}

	if len(geometry) > 0 {
		total, err := TotalElectrons(geometry, d.Charge)
		if err != nil {
			return nil, err
		}
		if dump.NumElectrons > total || (total-dump.NumElectrons)%2 != 0 {
			return nil, fmt.Errorf("integrals describe %d active electrons, molecule has %d", dump.NumElectrons, total)
		}
	}
	if dump.MS2 != d.Spin {
		return nil, fmt.Errorf("descriptor spin %d does not match integrals MS2 %d", d.Spin, dump.MS2)
	}

	core := dump.CoreEnergy
	switch {
	case d.CoreEnergy != nil:
		core = *d.CoreEnergy
	case core == 0 && len(geometry) > 1:
		e, err := NuclearRepulsion(geometry)
		if err != nil {
			return nil, err
		}
		core = e
	}
	if math.IsNaN(core) || math.IsInf(core, 0) {
		return nil, fmt.Errorf("core energy is not finite")
	}

	name := d.Name
	if name == "" {
		name = strings.ToLower(Formula(geometry))
	}

	m := &Model{
		Name:        name,
		Basis:       d.Basis,
		Charge:      d.Charge,
		Spin:        d.Spin,
		Geometry:    geometry,
		NumOrbitals: dump.NumOrbitals,
		NumAlpha:    (dump.NumElectrons + dump.MS2) / 2,
		NumBeta:     (dump.NumElectrons - dump.MS2) / 2,
		OneBody:     dump.OneBody,
		TwoBody:     dump.TwoBody,
		CoreEnergy:  core,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
