package synthesis

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/simulator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynthesizer(timeout time.Duration) *Synthesizer {
	return NewSynthesizer(Config{Tolerance: 1e-6, BlockTolerance: 1e-10, Timeout: timeout}, zerolog.Nop())
}

func assertNative(t *testing.T, c *circuit.Circuit) {
	t.Helper()
	assert.True(t, c.IsBound())
	for _, g := range c.Gates {
		assert.Contains(t, []string{"u3", "cx"}, g.Name)
		for _, p := range g.Params {
			assert.False(t, p.IsSymbolic())
		}
	}
}

func mixedCircuit() *circuit.Circuit {
	c := circuit.New(3, 0)
	c.Add("h", []int{0})
	c.Add("cz", []int{0, 1})
	c.Add("rx", []int{2}, circuit.Const(0.4))
	c.Add("swap", []int{1, 2})
	c.Add("ry", []int{1}, circuit.Const(-1.2))
	c.Add("cx", []int{2, 0})
	c.Add("s", []int{0})
	c.Add("cx", []int{0, 1})
	c.Add("rz", []int{1}, circuit.Const(0.9))
	c.Add("cx", []int{0, 1})
	return c
}

func TestSynthesizePreservesExpectationValues(t *testing.T) {
	src := mixedCircuit()
	compiled, err := newTestSynthesizer(time.Minute).Synthesize(context.Background(), src, 11)
	require.NoError(t, err)

	assertNative(t, compiled.Circuit)
	assert.GreaterOrEqual(t, compiled.Fidelity, 1-1e-6)
	assert.LessOrEqual(t, compiled.CXCount, compiled.SourceCX+5) // cz and swap expand

	h := &hamiltonian.Hamiltonian{Width: 3, Terms: []hamiltonian.Term{
		{Coefficient: 0.7, Operator: "ZZI"},
		{Coefficient: -0.3, Operator: "XIY"},
		{Coefficient: 0.2, Operator: "IYZ"},
		{Coefficient: 1.1, Operator: "IIX"},
	}}
	want, err := simulator.Run(src, nil)
	require.NoError(t, err)
	got, err := simulator.Run(compiled.Circuit, nil)
	require.NoError(t, err)

	we, err := want.Expectation(h)
	require.NoError(t, err)
	ge, err := got.Expectation(h)
	require.NoError(t, err)
	assert.InDelta(t, we, ge, 1e-6)
}

func TestSynthesizeRequiresBoundCircuit(t *testing.T) {
	c := circuit.New(1, 1)
	c.Add("rz", []int{0}, circuit.Sym(0, 1))

	_, err := newTestSynthesizer(time.Minute).Synthesize(context.Background(), c, 1)
	assert.True(t, domain.IsKind(err, domain.KindArgument))
}

func TestSynthesizeCancelsAdjacentCX(t *testing.T) {
	c := circuit.New(2, 0)
	c.Add("cx", []int{0, 1})
	c.Add("cx", []int{0, 1})
	c.Add("h", []int{1})
	c.Add("h", []int{1})

	compiled, err := newTestSynthesizer(time.Minute).Synthesize(context.Background(), c, 1)
	require.NoError(t, err)

	assert.Empty(t, compiled.Circuit.Gates)
	assert.Equal(t, 0, compiled.CXCount)
}

func TestSynthesizeResynthesizesBlocks(t *testing.T) {
	// rz on the control and x on the target commute with cx, so the block
	// is a single cx up to local gates.
	c := circuit.New(2, 0)
	c.Add("cx", []int{0, 1})
	c.Add("rz", []int{0}, circuit.Const(0.3))
	c.Add("cx", []int{0, 1})
	c.Add("x", []int{1})
	c.Add("cx", []int{0, 1})

	compiled, err := newTestSynthesizer(time.Minute).Synthesize(context.Background(), c, 5)
	require.NoError(t, err)

	assertNative(t, compiled.Circuit)
	assert.Equal(t, 3, compiled.SourceCX)
	assert.Equal(t, 1, compiled.CXCount)
	assert.GreaterOrEqual(t, compiled.Fidelity, 1-1e-6)
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	a, err := newTestSynthesizer(time.Minute).Synthesize(context.Background(), mixedCircuit(), 3)
	require.NoError(t, err)
	b, err := newTestSynthesizer(time.Minute).Synthesize(context.Background(), mixedCircuit(), 3)
	require.NoError(t, err)

	assert.Equal(t, a.Circuit.Gates, b.Circuit.Gates)
}

func TestSynthesizeDeadlineReturnsVerifiedCircuit(t *testing.T) {
	compiled, err := newTestSynthesizer(time.Nanosecond).Synthesize(context.Background(), mixedCircuit(), 2)
	require.NoError(t, err)

	assert.True(t, compiled.TimedOut)
	assertNative(t, compiled.Circuit)
	assert.GreaterOrEqual(t, compiled.Fidelity, 1-1e-6)
}

func TestSynthesizeKeepsVerifiedCircuitWhenPassFails(t *testing.T) {
	// A block tolerance of 1 accepts any template, so the swap block is
	// replaced by local gates that no longer reproduce it.
	c := circuit.New(2, 0)
	c.Add("swap", []int{0, 1})

	s := NewSynthesizer(Config{Tolerance: 1e-6, BlockTolerance: 1, Timeout: time.Minute}, zerolog.Nop())
	compiled, err := s.Synthesize(context.Background(), c, 1)
	require.NoError(t, err)

	assert.True(t, compiled.Rejected)
	assert.Equal(t, 3, compiled.CXCount)
	assertNative(t, compiled.Circuit)
	assert.GreaterOrEqual(t, compiled.Fidelity, 1-1e-6)
}

func TestSynthesizeCanceledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSynthesizer(time.Minute).Synthesize(ctx, mixedCircuit(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecomposeTieBreaksAreEquivalent(t *testing.T) {
	src := circuit.New(2, 0)
	src.Add("cz", []int{0, 1})
	src.Add("swap", []int{0, 1})
	want, err := simulator.UnitaryOf(src, nil)
	require.NoError(t, err)

	for seed := uint64(0); seed < 4; seed++ {
		gates, err := decompose(src.Gates, rand.New(rand.NewPCG(seed, 0)))
		require.NoError(t, err)
		out := circuit.New(2, 0)
		for _, g := range gates {
			out.AddGate(g)
		}
		got, err := simulator.UnitaryOf(out, nil)
		require.NoError(t, err)
		f, err := simulator.Fidelity(want, got)
		require.NoError(t, err)
		assert.InDelta(t, 1, f, 1e-12)
	}
}

func TestFuseSinglesDropsIdentity(t *testing.T) {
	gates := []circuit.Gate{
		{Name: "s", Qubits: []int{0}},
		{Name: "sdg", Qubits: []int{0}},
		{Name: "rz", Qubits: []int{1}, Params: []circuit.Param{circuit.Const(2 * math.Pi)}},
	}
	out, err := fuseSingles(gates, 2)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInstantiateMatchesLocalUnitary(t *testing.T) {
	target := kron(circuit.U3(0.4, 1.0, -0.3), circuit.U3(2.1, -0.5, 0.8))
	p, cost := instantiate(target, 0, 4, 1e-10, rand.New(rand.NewPCG(1, 1)))

	require.NotNil(t, p)
	assert.Less(t, cost, 1e-10)
}
