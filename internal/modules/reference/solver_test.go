package reference

import (
	"context"
	"testing"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveH2(t *testing.T) {
	s := NewSolver(zerolog.Nop())

	e, err := s.Solve(context.Background(), molecule.H2())

	require.NoError(t, err)
	assert.InDelta(t, -1.1373, e, 1e-3)
}

func TestSolveIsCachedPerModel(t *testing.T) {
	s := NewSolver(zerolog.Nop())
	m := molecule.H2()

	first, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	second, err := s.Solve(context.Background(), molecule.H2())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, s.cache, 1)
}

func TestGroundStateFullSpace(t *testing.T) {
	h := &hamiltonian.Hamiltonian{Width: 2, Terms: []hamiltonian.Term{
		{Coefficient: 0.5, Operator: "ZI"},
		{Coefficient: 0.5, Operator: "IZ"},
		{Coefficient: 1.0, Operator: "XX"},
	}}

	e, dim, err := GroundState(context.Background(), h, Sector{})

	require.NoError(t, err)
	assert.Equal(t, 4, dim)
	// Spectrum is {-sqrt(2), -1, 1, sqrt(2)}
	assert.InDelta(t, -1.4142135623730951, e, 1e-9)
}

func TestGroundStateSectorRestriction(t *testing.T) {
	// Z on one qubit: the full-space ground state has the qubit set, the
	// zero-particle sector does not.
	h := &hamiltonian.Hamiltonian{Width: 1, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "Z"}}}

	full, _, err := GroundState(context.Background(), h, Sector{})
	require.NoError(t, err)
	empty, dim, err := GroundState(context.Background(), h, Sector{Masks: []uint64{1}, Counts: []int{0}})
	require.NoError(t, err)

	assert.InDelta(t, -1, full, 1e-12)
	assert.InDelta(t, 1, empty, 1e-12)
	assert.Equal(t, 1, dim)
}

func TestGroundStateEmptySector(t *testing.T) {
	h := &hamiltonian.Hamiltonian{Width: 1, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "Z"}}}

	_, _, err := GroundState(context.Background(), h, Sector{Masks: []uint64{1}, Counts: []int{2}})

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindArgument))
}
