package molecule

import (
	"bytes"
	"math/bits"
	"os"
	"path/filepath"
	"testing"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestH2Model(t *testing.T) {
	m := H2()

	require.NoError(t, m.Validate())
	assert.Equal(t, 4, m.NumQubits())
	assert.Equal(t, 2, m.NumParticles())
	assert.Equal(t, []int{0, 2}, m.HartreeFockOccupation())

	enuc, err := NuclearRepulsion(m.Geometry)
	require.NoError(t, err)
	assert.InDelta(t, m.NuclearRepulsion(), enuc, 1e-9)
	assert.InDelta(t, 0.714286, enuc, 1e-6)
}

func TestFingerprintTracksContent(t *testing.T) {
	a, b := H2(), H2()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.OneBody[0] += 1e-6
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestJordanWignerAnticommutation(t *testing.T) {
	const n = 3
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			ab := Annihilation(i, n).Mul(Creation(j, n))
			ba := Creation(j, n).Mul(Annihilation(i, n))
			ab.AddSum(ba, 1)
			ab.Simplify(1e-12)

			if i == j {
				assert.Equal(t, 1, ab.Len(), "{a_%d, a+_%d}", i, j)
				assert.Equal(t, complex128(1), ab.Coefficient("III"))
			} else {
				assert.Equal(t, 0, ab.Len(), "{a_%d, a+_%d}", i, j)
			}
		}
	}
}

func TestNumberOperator(t *testing.T) {
	num := Creation(1, 2).Mul(Annihilation(1, 2)).Simplify(1e-12)

	assert.Equal(t, complex128(0.5), num.Coefficient("II"))
	assert.Equal(t, complex128(-0.5), num.Coefficient("IZ"))
}

func TestQubitHamiltonianHartreeFockEnergy(t *testing.T) {
	m := H2()
	h, err := m.QubitHamiltonian()
	require.NoError(t, err)
	require.NoError(t, h.Validate())

	// |HF> occupies alpha and beta orbital 0: qubits 0 and 2.
	hf := uint64(0b0101)
	var energy float64
	for _, term := range h.Terms {
		x, z, _ := hamiltonian.Masks(term.Operator)
		if x != 0 {
			continue
		}
		sign := 1.0
		if bits.OnesCount64(hf&z)%2 == 1 {
			sign = -1
		}
		energy += sign * term.Coefficient
	}

	// 2 h11 + J11
	assert.InDelta(t, -1.8310, energy, 1e-9)
}

func TestGeneratorIsAntiHermitian(t *testing.T) {
	g := Generator(Excitation{From: []int{0, 2}, To: []int{1, 3}}, 4)

	require.Equal(t, 8, g.Len())
	for _, op := range g.Operators() {
		c := g.Coefficient(op)
		assert.InDelta(t, 0, real(c), 1e-12, op)
		assert.InDelta(t, 0.125, abs(imag(c)), 1e-12, op)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestFCIDumpRoundTrip(t *testing.T) {
	m := H2()
	var buf bytes.Buffer
	require.NoError(t, WriteFCIDump(&buf, m))

	dump, err := ReadFCIDump(&buf)
	require.NoError(t, err)

	assert.Equal(t, 2, dump.NumOrbitals)
	assert.Equal(t, 2, dump.NumElectrons)
	assert.Equal(t, 0, dump.MS2)
	assert.InDelta(t, m.CoreEnergy, dump.CoreEnergy, 1e-15)
	assert.InDeltaSlice(t, m.OneBody, dump.OneBody, 1e-15)
	assert.InDeltaSlice(t, m.TwoBody, dump.TwoBody, 1e-15)
}

func TestReadFCIDumpRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no header", "0.5 1 1 0 0\n"},
		{"unterminated header", "&FCI NORB=2,NELEC=2,\n"},
		{"missing norb", "&FCI NELEC=2, &END\n"},
		{"index out of range", "&FCI NORB=1,NELEC=2,MS2=0, &END\n0.5 2 1 0 0\n"},
		{"short line", "&FCI NORB=1,NELEC=2,MS2=0, &END\n0.5 1 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFCIDump(bytes.NewBufferString(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadDescriptor(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, WriteFCIDump(&buf, H2()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h2.fcidump"), buf.Bytes(), 0644))

	descriptor := `name: h2-file
basis: sto-3g
charge: 0
spin: 0
units: bohr
geometry:
  - {symbol: H, position: [0, 0, 0]}
  - {symbol: H, position: [0, 0, 1.4]}
integrals: h2.fcidump
`
	path := filepath.Join(dir, "h2.yaml")
	require.NoError(t, os.WriteFile(path, []byte(descriptor), 0644))

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "h2-file", m.Name)
	assert.Equal(t, 1, m.NumAlpha)
	assert.Equal(t, 1, m.NumBeta)
	assert.InDelta(t, 1/1.4, m.NuclearRepulsion(), 1e-12)
	assert.InDelta(t, 0.7408, m.Geometry[1].Position[2], 1e-3)
}

func TestLoadEmptyPathReturnsH2(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "h2", m.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindIO))
}

func TestLoadInconsistentElectrons(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, WriteFCIDump(&buf, H2()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h2.fcidump"), buf.Bytes(), 0644))

	descriptor := "charge: 2\ngeometry:\n  - {symbol: H, position: [0, 0, 0]}\n  - {symbol: H, position: [0, 0, 0.74]}\nintegrals: h2.fcidump\n"
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(descriptor), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindArgument))
}
