// Package synthesis compiles bound circuits into the native {u3, cx} set and
// reduces their two-qubit gate count.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/simulator"
	"github.com/rs/zerolog"
)

// Config controls verification and the search budget.
type Config struct {
	// Tolerance is the allowed infidelity between source and compiled circuit
	Tolerance float64
	// BlockTolerance is the allowed infidelity of a resynthesized block
	BlockTolerance float64
	// Timeout bounds the optimization search; zero means no limit
	Timeout time.Duration
	// MultiStarts is the number of seeded starting points per template fit
	MultiStarts int
	// MaxPasses caps the fixed-point iteration
	MaxPasses int
}

// Compiled is a verified native circuit with its synthesis metadata.
type Compiled struct {
	Circuit  *circuit.Circuit
	Depth    int
	CXCount  int
	SourceCX int
	Fidelity float64
	Passes   int
	TimedOut bool
	// Rejected is set when a pass produced a circuit that failed
	// verification and was discarded
	Rejected bool
}

// Synthesizer is the CircuitSynthesizer.
type Synthesizer struct {
	cfg Config
	log zerolog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(cfg Config, log zerolog.Logger) *Synthesizer {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-6
	}
	if cfg.BlockTolerance <= 0 {
		cfg.BlockTolerance = 1e-9
	}
	if cfg.MultiStarts <= 0 {
		cfg.MultiStarts = 4
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 20
	}
	return &Synthesizer{
		cfg: cfg,
		log: log.With().Str("component", "synthesizer").Logger(),
	}
}

// Synthesize decomposes c into {u3, cx} and optimizes it to a fixed point
// of single-qubit fusion, cx cancellation and two-qubit block resynthesis.
// When the search deadline expires the best verified circuit so far is
// returned.
func (s *Synthesizer) Synthesize(ctx context.Context, c *circuit.Circuit, seed int64) (*Compiled, error) {
	if !c.IsBound() {
		return nil, domain.NewError("synthesize", domain.KindArgument, errors.New("circuit has unbound parameters"))
	}
	if err := c.Validate(); err != nil {
		return nil, domain.NewError("synthesize", domain.KindArgument, err)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	gates, err := decompose(c.Gates, rng)
	if err != nil {
		return nil, domain.NewError("synthesize", domain.KindSynthesis, err)
	}
	gates, err = fuseSingles(gates, c.NumQubits)
	if err != nil {
		return nil, domain.NewError("synthesize", domain.KindSynthesis, err)
	}

	best, fidelity, err := s.verify(c, gates, seed)
	if err != nil {
		return nil, err
	}

	searchCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	r := &resynthesizer{
		cfg:    s.cfg,
		seed:   seed,
		failed: make(map[string]bool),
	}
	passes := 0
	timedOut := false
	rejected := false
	for passes < s.cfg.MaxPasses {
		next, err := r.pass(searchCtx, best.Gates, c.NumQubits)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("synthesize: %w", ctx.Err())
			}
			if errors.Is(err, context.DeadlineExceeded) {
				timedOut = true
				break
			}
			return nil, domain.NewError("synthesize", domain.KindSynthesis, err)
		}
		passes++
		if countCX(next) >= best.TwoQubitCount() && len(next) >= len(best.Gates) {
			break
		}
		candidate, f, err := s.verify(c, next, seed)
		if err != nil {
			// Later passes only refine; keep the last verified circuit.
			s.log.Warn().
				Err(err).
				Int("pass", passes).
				Msg("Synthesis pass failed verification, keeping previous circuit")
			rejected = true
			break
		}
		best, fidelity = candidate, f
	}

	if timedOut {
		s.log.Warn().
			Dur("timeout", s.cfg.Timeout).
			Int("passes", passes).
			Msg("Synthesis search deadline reached, returning best verified circuit")
	}

	out := &Compiled{
		Circuit:  best,
		Depth:    best.Depth(),
		CXCount:  best.TwoQubitCount(),
		SourceCX: c.TwoQubitCount(),
		Fidelity: fidelity,
		Passes:   passes,
		TimedOut: timedOut,
		Rejected: rejected,
	}
	s.log.Info().
		Int("source_cx", out.SourceCX).
		Int("cx", out.CXCount).
		Int("depth", out.Depth).
		Float64("fidelity", fidelity).
		Int("passes", passes).
		Msg("Circuit synthesized")
	return out, nil
}

// verify compares gates against the source circuit and wraps them in a bound
// circuit when they agree within tolerance.
func (s *Synthesizer) verify(source *circuit.Circuit, gates []circuit.Gate, seed int64) (*circuit.Circuit, float64, error) {
	out := circuit.New(source.NumQubits, 0)
	for _, g := range gates {
		out.AddGate(g)
	}

	var fidelity float64
	if source.NumQubits <= simulator.MaxUnitaryQubits {
		want, err := simulator.UnitaryOf(source, nil)
		if err != nil {
			return nil, 0, domain.NewError("synthesize", domain.KindBackend, err)
		}
		got, err := simulator.UnitaryOf(out, nil)
		if err != nil {
			return nil, 0, domain.NewError("synthesize", domain.KindBackend, err)
		}
		if fidelity, err = simulator.Fidelity(want, got); err != nil {
			return nil, 0, domain.NewError("synthesize", domain.KindBackend, err)
		}
	} else {
		rng := rand.New(rand.NewPCG(uint64(seed), 0x7665726966))
		var err error
		if fidelity, err = simulator.ProductStateFidelity(source, out, 8, rng); err != nil {
			return nil, 0, domain.NewError("synthesize", domain.KindBackend, err)
		}
	}

	if fidelity < 1-s.cfg.Tolerance {
		return nil, 0, domain.NewError("synthesize", domain.KindSynthesis,
			fmt.Errorf("compiled circuit fidelity %.9f below %.9f", fidelity, 1-s.cfg.Tolerance))
	}
	return out, fidelity, nil
}

// resynthesizer runs optimization passes and remembers blocks no template
// could shorten.
type resynthesizer struct {
	cfg    Config
	seed   int64
	fits   uint64
	failed map[string]bool
}

func (r *resynthesizer) pass(ctx context.Context, gates []circuit.Gate, numQubits int) ([]circuit.Gate, error) {
	gates, err := fuseSingles(gates, numQubits)
	if err != nil {
		return nil, err
	}
	gates = cancelCX(gates)

	out := make([]circuit.Gate, 0, len(gates))
	var passErr error
	collectBlocks(gates, numQubits, func(b *block, loose []circuit.Gate) {
		if b == nil {
			out = append(out, loose...)
			return
		}
		if passErr == nil {
			if passErr = expired(ctx); passErr == nil {
				var replaced []circuit.Gate
				replaced, passErr = r.resynthesize(b)
				if replaced != nil {
					out = append(out, replaced...)
					return
				}
			}
		}
		out = append(out, b.gates...)
	})
	if passErr != nil {
		return nil, passErr
	}

	return fuseSingles(cancelCX(out), numQubits)
}

// resynthesize returns a cheaper equivalent of b, or nil when no template
// with fewer cx gates matches.
func (r *resynthesizer) resynthesize(b *block) ([]circuit.Gate, error) {
	if b.cx == 0 {
		return nil, nil
	}
	key := blockKey(b)
	if r.failed[key] {
		return nil, nil
	}
	target, err := b.unitary()
	if err != nil {
		return nil, err
	}

	maxK := b.cx - 1
	if maxK > 3 {
		maxK = 3
	}
	for k := 0; k <= maxK; k++ {
		r.fits++
		rng := rand.New(rand.NewPCG(uint64(r.seed), r.fits))
		p, cost := instantiate(target, k, r.cfg.MultiStarts, r.cfg.BlockTolerance, rng)
		if p != nil && cost <= r.cfg.BlockTolerance {
			return templateGates(b.a, b.b, k, p), nil
		}
	}
	r.failed[key] = true
	return nil, nil
}

// expired also reports a deadline whose timer has not fired yet.
func expired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return nil
}

func blockKey(b *block) string {
	return fmt.Sprint(b.a, b.b, b.gates)
}
