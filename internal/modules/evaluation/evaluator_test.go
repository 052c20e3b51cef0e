package evaluation

import (
	"context"
	"testing"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/workers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idealDevice is a three-qubit line without any errors.
func idealDevice(t *testing.T) *noise.Model {
	t.Helper()
	m := &noise.Model{
		SchemaVersion: noise.SchemaVersion,
		Device:        "ideal",
		NumQubits:     3,
		BasisGates:    noise.DeviceBasis,
		CouplingMap:   [][2]int{{0, 1}, {1, 2}},
		Qubits:        []noise.QubitProperties{{T1: 1e6, T2: 1e6}, {T1: 1e6, T2: 1e6}, {T1: 1e6, T2: 1e6}},
		Gates: []noise.GateProperties{
			{Name: "x", Qubits: []int{2}, Duration: 50e-9},
			{Name: "cx", Qubits: []int{0, 1}, Duration: 300e-9},
			{Name: "cx", Qubits: []int{1, 2}, Duration: 400e-9},
		},
	}
	require.NoError(t, m.Validate())
	return m
}

func newTestEvaluator(workersN int) *Evaluator {
	return NewEvaluator(workers.NewWorkerPool(workersN), zerolog.Nop())
}

func TestAccuracyScore(t *testing.T) {
	s, err := AccuracyScore(-1.137, -1.137)
	require.NoError(t, err)
	assert.InDelta(t, 100, s, 1e-12)

	near, err := AccuracyScore(-1.13, -1.137)
	require.NoError(t, err)
	far, err := AccuracyScore(-1.0, -1.137)
	require.NoError(t, err)
	assert.Greater(t, near, far)

	// Not clamped
	neg, err := AccuracyScore(-3.411, -1.137)
	require.NoError(t, err)
	assert.InDelta(t, -100, neg, 1e-9)

	_, err = AccuracyScore(-1, 0)
	assert.True(t, domain.IsKind(err, domain.KindDegenerateReference))
}

func TestEvaluateIdealDevice(t *testing.T) {
	c := circuit.New(3, 0)
	c.Add("x", []int{2})
	c.Add("cx", []int{2, 1})
	h := &hamiltonian.Hamiltonian{Width: 3, Terms: []hamiltonian.Term{
		{Coefficient: 0.25, Operator: "III"},
		{Coefficient: 1, Operator: "IZZ"},
		{Coefficient: 0.5, Operator: "IZI"},
	}}

	res, err := newTestEvaluator(4).Evaluate(context.Background(), Request{
		Circuit:          c,
		Hamiltonian:      h,
		NoiseModel:       idealDevice(t),
		Shots:            64,
		Seed:             9,
		NuclearRepulsion: 0.5,
		ReferenceEnergy:  1.25,
	})
	require.NoError(t, err)

	// |q2 q1> = |11>: <ZZ> = 1, <Z1> = -1.
	assert.InDelta(t, 0.75, res.RawExpectation, 1e-12)
	assert.InDelta(t, 1.25, res.EstimatedEnergy, 1e-12)
	assert.InDelta(t, 100, res.AccuracyScore, 1e-9)
	assert.InDelta(t, 0, res.StdError, 1e-12)
	assert.Equal(t, 64, res.Shots)
	assert.Equal(t, []int{1, 2}, res.ActiveQubits)
	assert.InDelta(t, 450e-9, res.Duration, 1e-15)
}

func TestEvaluateIsReproducibleAcrossWorkerCounts(t *testing.T) {
	device, err := noise.Profile("fakemontreal")
	require.NoError(t, err)

	c := circuit.New(27, 0)
	c.Add("sx", []int{25})
	c.Add("rz", []int{25}, circuit.Const(0.3))
	c.Add("cx", []int{25, 26})
	c.Add("sx", []int{24})
	c.Add("cx", []int{24, 25})
	h := &hamiltonian.Hamiltonian{Width: 27, Terms: []hamiltonian.Term{
		{Coefficient: 0.4, Operator: hamiltonian.Pad("ZZI", 27)},
		{Coefficient: -0.6, Operator: hamiltonian.Pad("XIX", 27)},
		{Coefficient: 0.2, Operator: hamiltonian.Pad("IYY", 27)},
	}}
	req := Request{
		Circuit:         c,
		Hamiltonian:     h,
		NoiseModel:      device,
		Shots:           300,
		Seed:            1234,
		ReferenceEnergy: -1,
	}

	a, err := newTestEvaluator(1).Evaluate(context.Background(), req)
	require.NoError(t, err)
	b, err := newTestEvaluator(8).Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, []int{24, 25, 26}, a.ActiveQubits)
	assert.Greater(t, a.StdError, 0.0)

	req.Seed = 4321
	other, err := newTestEvaluator(8).Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.RawExpectation, other.RawExpectation)
}

func TestEvaluateReadoutNoiseBiasesEnergy(t *testing.T) {
	device := idealDevice(t)
	for q := range device.Qubits {
		device.Qubits[q].ProbMeas1Prep0 = 0.2
		device.Qubits[q].ProbMeas0Prep1 = 0.2
	}

	c := circuit.New(3, 0)
	h := &hamiltonian.Hamiltonian{Width: 3, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "ZII"}}}

	res, err := newTestEvaluator(4).Evaluate(context.Background(), Request{
		Circuit: c, Hamiltonian: h, NoiseModel: device, Shots: 4000, Seed: 1, ReferenceEnergy: 1,
	})
	require.NoError(t, err)

	// <Z> shrinks to 1 - 2p under symmetric readout error.
	assert.InDelta(t, 0.6, res.RawExpectation, 5*res.StdError)
	assert.Less(t, res.AccuracyScore, 100.0)
}

func TestEvaluatePreconditions(t *testing.T) {
	device := idealDevice(t)
	h3 := &hamiltonian.Hamiltonian{Width: 3, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "ZII"}}}

	tests := []struct {
		name  string
		build func() (*circuit.Circuit, *hamiltonian.Hamiltonian)
	}{
		{"non-native gate", func() (*circuit.Circuit, *hamiltonian.Hamiltonian) {
			c := circuit.New(3, 0)
			c.Add("h", []int{0})
			return c, h3
		}},
		{"cx off coupling map", func() (*circuit.Circuit, *hamiltonian.Hamiltonian) {
			c := circuit.New(3, 0)
			c.Add("cx", []int{0, 2})
			return c, h3
		}},
		{"too wide", func() (*circuit.Circuit, *hamiltonian.Hamiltonian) {
			return circuit.New(4, 0), h3
		}},
		{"hamiltonian width", func() (*circuit.Circuit, *hamiltonian.Hamiltonian) {
			return circuit.New(3, 0), &hamiltonian.Hamiltonian{Width: 2, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "ZI"}}}
		}},
		{"unbound", func() (*circuit.Circuit, *hamiltonian.Hamiltonian) {
			c := circuit.New(3, 1)
			c.Add("rz", []int{0}, circuit.Sym(0, 1))
			return c, h3
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, h := tt.build()
			_, err := newTestEvaluator(2).Evaluate(context.Background(), Request{
				Circuit: c, Hamiltonian: h, NoiseModel: device, Shots: 10, Seed: 1, ReferenceEnergy: -1,
			})
			assert.True(t, domain.IsKind(err, domain.KindLayout), "got %v", err)
		})
	}
}

func TestEvaluateRejectsDegenerateReference(t *testing.T) {
	device := idealDevice(t)
	h := &hamiltonian.Hamiltonian{Width: 3, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "ZII"}}}

	_, err := newTestEvaluator(2).Evaluate(context.Background(), Request{
		Circuit: circuit.New(3, 0), Hamiltonian: h, NoiseModel: device, Shots: 10, Seed: 1,
	})
	assert.True(t, domain.IsKind(err, domain.KindDegenerateReference))
}

func TestEvaluateRejectsNonPositiveShots(t *testing.T) {
	device := idealDevice(t)
	h := &hamiltonian.Hamiltonian{Width: 3, Terms: []hamiltonian.Term{{Coefficient: 1, Operator: "ZII"}}}

	_, err := newTestEvaluator(2).Evaluate(context.Background(), Request{
		Circuit: circuit.New(3, 0), Hamiltonian: h, NoiseModel: device, Shots: 0, ReferenceEnergy: 1,
	})
	assert.True(t, domain.IsKind(err, domain.KindArgument))
}
