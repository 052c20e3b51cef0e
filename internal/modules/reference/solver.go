// Package reference computes the exact ground-state energy of a molecular
// model by diagonalizing its qubit Hamiltonian.
package reference

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// MaxSectorDimension bounds the dense matrix the solver is willing to build.
const MaxSectorDimension = 6000

// Solver computes and caches reference energies per model fingerprint.
type Solver struct {
	mu    sync.Mutex
	cache map[string]float64
	log   zerolog.Logger
}

// NewSolver creates a new reference solver
func NewSolver(log zerolog.Logger) *Solver {
	return &Solver{
		cache: make(map[string]float64),
		log:   log.With().Str("component", "reference_solver").Logger(),
	}
}

// Solve returns the lowest eigenvalue of the model's electronic Hamiltonian
// within its (alpha, beta) particle sector plus the nuclear repulsion.
func (s *Solver) Solve(ctx context.Context, model *molecule.Model) (float64, error) {
	key := model.Fingerprint()

	s.mu.Lock()
	if e, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	start := time.Now()
	h, err := model.QubitHamiltonian()
	if err != nil {
		return 0, domain.NewError("reference.Solve", domain.KindBackend, err)
	}

	electronic, dim, err := GroundState(ctx, h, sectorMasks(model))
	if err != nil {
		return 0, err
	}
	energy := electronic + model.NuclearRepulsion()

	s.mu.Lock()
	s.cache[key] = energy
	s.mu.Unlock()

	s.log.Info().
		Str("model", model.Name).
		Int("qubits", model.NumQubits()).
		Int("sector_dim", dim).
		Float64("electronic", electronic).
		Float64("reference_energy", energy).
		Dur("elapsed", time.Since(start)).
		Msg("Computed reference energy")

	return energy, nil
}

// Sector restricts diagonalization to basis states with the given number of
// set bits under each mask.
type Sector struct {
	Masks  []uint64
	Counts []int
}

func (sec Sector) contains(b uint64) bool {
	for i, m := range sec.Masks {
		if bits.OnesCount64(b&m) != sec.Counts[i] {
			return false
		}
	}
	return true
}

func sectorMasks(model *molecule.Model) Sector {
	n := model.NumOrbitals
	alpha := uint64(1)<<n - 1
	beta := alpha << n
	return Sector{
		Masks:  []uint64{alpha, beta},
		Counts: []int{model.NumAlpha, model.NumBeta},
	}
}

// GroundState diagonalizes h restricted to sector and returns the lowest
// eigenvalue and the sector dimension. An empty sector selects the full space.
func GroundState(ctx context.Context, h *hamiltonian.Hamiltonian, sector Sector) (float64, int, error) {
	if h.Width > 30 {
		return 0, 0, domain.NewError("reference.GroundState", domain.KindArgument, fmt.Errorf("%d qubits exceed exact diagonalization limits", h.Width))
	}

	var basis []uint64
	index := make(map[uint64]int)
	for b := uint64(0); b < uint64(1)<<h.Width; b++ {
		if sector.contains(b) {
			index[b] = len(basis)
			basis = append(basis, b)
		}
	}
	dim := len(basis)
	if dim == 0 {
		return 0, 0, domain.NewError("reference.GroundState", domain.KindArgument, fmt.Errorf("particle sector is empty"))
	}
	if dim > MaxSectorDimension {
		return 0, dim, domain.NewError("reference.GroundState", domain.KindArgument, fmt.Errorf("sector dimension %d exceeds %d", dim, MaxSectorDimension))
	}

	dense := make([]float64, dim*dim)
	for col, b := range basis {
		if col%256 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, dim, err
			}
		}
		for _, t := range h.Terms {
			target, phase := hamiltonian.ApplyToBasis(t.Operator, b)
			row, ok := index[target]
			if !ok {
				continue
			}
			dense[row*dim+col] += t.Coefficient * real(phase)
		}
	}

	sym := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			sym.SetSym(i, j, 0.5*(dense[i*dim+j]+dense[j*dim+i]))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return 0, dim, domain.NewError("reference.GroundState", domain.KindBackend, fmt.Errorf("eigendecomposition did not converge"))
	}

	lowest := math.Inf(1)
	for _, v := range eig.Values(nil) {
		lowest = math.Min(lowest, v)
	}
	return lowest, dim, nil
}
