package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/artifacts"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/evaluation"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/layout"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/molecule"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/optimization"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/reference"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/synthesis"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/workers"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const moduleName = "workflow"

// evaluationProgressStep throttles per-shot progress events.
const evaluationProgressStep = 100

// Config holds the per-service pipeline settings
type Config struct {
	HamiltonianPath string
	Optimizer       optimization.Config
	Synthesis       synthesis.Config
	// QASMHandoff serializes every stage's circuit to OpenQASM and parses it
	// back before the next stage consumes it
	QASMHandoff bool
	// InitialLayout maps logical qubit j to a physical qubit; nil selects
	// layout.DefaultLayout
	InitialLayout []int
}

// Deps are the collaborators of the service. Store, Repo and Events are
// optional.
type Deps struct {
	Model  *molecule.Model
	Noise  *noise.Cache
	Solver *reference.Solver
	Pool   *workers.WorkerPool
	Store  artifacts.Store
	Repo   *Repository
	Events *events.Manager
}

// Service is the WorkflowOrchestrator. Runs are independent; the service
// itself holds only read-only collaborators and can run them concurrently.
type Service struct {
	cfg    Config
	deps   Deps
	parser *hamiltonian.Parser
	log    zerolog.Logger

	// active tracks cancel funcs of in-flight runs by ID
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewService creates a new workflow service
func NewService(cfg Config, deps Deps, log zerolog.Logger) *Service {
	if deps.Model == nil {
		deps.Model = molecule.H2()
	}
	if deps.Solver == nil {
		deps.Solver = reference.NewSolver(log)
	}
	if deps.Pool == nil {
		deps.Pool = workers.NewWorkerPool(0)
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		parser: hamiltonian.NewParser(log),
		log:    log.With().Str("service", "workflow").Logger(),
		active: make(map[string]context.CancelFunc),
	}
}

// Model returns the molecular model runs are built from
func (s *Service) Model() *molecule.Model {
	return s.deps.Model
}

// NoiseCache returns the noise model cache
func (s *Service) NoiseCache() *noise.Cache {
	return s.deps.Noise
}

// Repository returns the run history, nil when runs are not persisted
func (s *Service) Repository() *Repository {
	return s.deps.Repo
}

// Prepare validates req, fills defaults and assigns a run ID without
// starting anything.
func (s *Service) Prepare(req RunRequest) (*Report, error) {
	if !noise.IsSupported(req.NoiseModel) {
		return nil, domain.NewError("workflow.Run", domain.KindArgument,
			fmt.Errorf("unknown noise model %q (want one of %v)", req.NoiseModel, noise.SupportedDevices))
	}
	if req.Shots < 0 {
		return nil, domain.NewError("workflow.Run", domain.KindArgument,
			fmt.Errorf("shots must be positive, got %d", req.Shots))
	}
	if req.Shots == 0 {
		req.Shots = DefaultShots
	}
	if req.Source == "" {
		req.Source = SourceCLI
	}
	return &Report{
		ID:         uuid.New().String(),
		NoiseModel: req.NoiseModel,
		Seed:       req.Seed,
		Shots:      req.Shots,
		Source:     req.Source,
		Molecule:   s.deps.Model.Name,
		Artifacts:  make(map[string]string),
	}, nil
}

// Run executes one full pipeline run and returns its report.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Report, error) {
	report, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, report)
}

// Execute runs the pipeline for a prepared report. The report is returned
// even on failure so callers can see how far the run got.
func (s *Service) Execute(ctx context.Context, report *Report) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(report.ID, cancel)
	defer s.untrack(report.ID)

	report.StartedAt = time.Now().UTC()
	if s.deps.Repo != nil {
		if err := s.deps.Repo.Create(ctx, report); err != nil {
			return report, err
		}
	}
	s.emit(report.ID, &events.RunStatusData{
		Status:     "started",
		NoiseModel: report.NoiseModel,
		Seed:       report.Seed,
		Shots:      report.Shots,
	})
	s.log.Info().
		Str("run_id", report.ID).
		Str("noise_model", report.NoiseModel).
		Int64("seed", report.Seed).
		Int("shots", report.Shots).
		Msg("Starting run")

	runErr := s.execute(ctx, report)
	report.FinishedAt = time.Now().UTC()
	elapsed := report.FinishedAt.Sub(report.StartedAt).Seconds()

	// Bookkeeping outlives a cancelled run context.
	bg := context.WithoutCancel(ctx)

	if runErr != nil {
		s.log.Error().Err(runErr).Str("run_id", report.ID).Msg("Run failed")
		if s.deps.Repo != nil {
			if err := s.deps.Repo.Fail(bg, report.ID, runErr, report.FinishedAt); err != nil {
				s.log.Error().Err(err).Str("run_id", report.ID).Msg("Failed to record run failure")
			}
		}
		s.emit(report.ID, &events.RunStatusData{
			Status:     "failed",
			NoiseModel: report.NoiseModel,
			Seed:       report.Seed,
			Shots:      report.Shots,
			Error:      runErr.Error(),
			ErrorKind:  string(domain.KindOf(runErr)),
			Duration:   elapsed,
		})
		return report, runErr
	}

	if err := s.putJSON(bg, report, "result.json", report); err != nil {
		s.log.Warn().Err(err).Str("run_id", report.ID).Msg("Failed to store result artifact")
	}
	if s.deps.Repo != nil {
		if err := s.deps.Repo.Complete(bg, report); err != nil {
			return report, err
		}
	}

	estimated := report.Evaluation.EstimatedEnergy
	score := report.Evaluation.AccuracyScore
	ref := report.ReferenceEnergy
	s.emit(report.ID, &events.RunStatusData{
		Status:          "completed",
		NoiseModel:      report.NoiseModel,
		Seed:            report.Seed,
		Shots:           report.Shots,
		EstimatedEnergy: &estimated,
		ReferenceEnergy: &ref,
		AccuracyScore:   &score,
		Duration:        elapsed,
	})
	s.log.Info().
		Str("run_id", report.ID).
		Float64("accuracy", score).
		Float64("elapsed_s", elapsed).
		Msg("Run completed")
	return report, nil
}

// Cancel stops an in-flight run. It reports whether the run was active.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.active[id]
	if ok {
		cancel()
	}
	return ok
}

// Active returns the IDs of in-flight runs
func (s *Service) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.active[id] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Service) execute(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	model := s.deps.Model

	device, err := s.deps.Noise.Get(report.NoiseModel)
	if err != nil {
		return err
	}

	// Reference solve and Hamiltonian parsing are independent; both must
	// finish before evaluation.
	var (
		h     *hamiltonian.Hamiltonian
		diags []hamiltonian.Diagnostic
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		ref, err := s.deps.Solver.Solve(gctx, model)
		if err != nil {
			return err
		}
		report.ReferenceEnergy = ref
		s.stage(report.ID, "reference", start, map[string]interface{}{"reference_energy": ref})
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		h, diags, err = s.parser.ParseFile(s.cfg.HamiltonianPath, device.NumQubits)
		if err != nil {
			return err
		}
		s.stage(report.ID, "hamiltonian", start, map[string]interface{}{
			"terms":   h.Len(),
			"skipped": len(diags),
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	report.HamiltonianTerms = h.Len()
	report.HamiltonianSkipped = len(diags)
	s.checkSupport(h, model.NumQubits(), device.NumQubits)

	// Variational stage
	start := time.Now()
	opt := optimization.NewOptimizer(s.cfg.Optimizer, s.log)
	opt.OnProgress(func(p optimization.Progress) {
		s.emit(report.ID, &events.OptimizerProgressData{
			Iteration:  p.Iteration,
			Energy:     p.Energy,
			BestEnergy: p.BestEnergy,
			Parameters: p.Parameters,
		})
	})
	optRes, err := opt.Optimize(ctx, model, report.Seed, s.optimizerShots(report.Shots))
	if err != nil {
		return err
	}
	report.Optimizer = &OptimizerSummary{
		Strategy:    optRes.Strategy,
		Energy:      optRes.Energy,
		StdError:    optRes.StdError,
		Iterations:  optRes.Iterations,
		Evaluations: optRes.Evaluations,
		Converged:   optRes.Converged,
		Parameters:  optRes.Parameters,
	}
	ansatzCircuit, err := s.handoff(ctx, report, "ansatz.qasm", optRes.Circuit)
	if err != nil {
		return err
	}
	ansatzMetrics := ansatzCircuit.Metrics()
	report.Ansatz = &ansatzMetrics
	s.stage(report.ID, "optimize", start, map[string]interface{}{
		"energy":     optRes.Energy,
		"iterations": optRes.Iterations,
		"converged":  optRes.Converged,
	})

	// Synthesis stage
	start = time.Now()
	compiled, err := synthesis.NewSynthesizer(s.cfg.Synthesis, s.log).Synthesize(ctx, ansatzCircuit, report.Seed)
	if err != nil {
		return err
	}
	report.Synthesis = &SynthesisSummary{
		SourceCX: compiled.SourceCX,
		CXCount:  compiled.CXCount,
		Depth:    compiled.Depth,
		Fidelity: compiled.Fidelity,
		Passes:   compiled.Passes,
		TimedOut: compiled.TimedOut,
	}
	compiledCircuit, err := s.handoff(ctx, report, "compiled.qasm", compiled.Circuit)
	if err != nil {
		return err
	}
	compiledMetrics := compiledCircuit.Metrics()
	report.Compiled = &compiledMetrics
	s.stage(report.ID, "synthesize", start, map[string]interface{}{
		"source_cx": compiled.SourceCX,
		"cx_count":  compiled.CXCount,
		"fidelity":  compiled.Fidelity,
	})

	// Device layout
	start = time.Now()
	cm, err := layout.NewCouplingMap(device.NumQubits, device.Edges())
	if err != nil {
		return domain.NewError("workflow.layout", domain.KindInvalidNoiseModel, err)
	}
	var initial []int
	if len(s.cfg.InitialLayout) > 0 {
		initial = s.cfg.InitialLayout
	}
	routed, err := layout.NewLayouter(s.log).Apply(compiledCircuit, cm, initial)
	if err != nil {
		return err
	}
	report.Layout = &LayoutSummary{
		InitialLayout: routed.InitialLayout,
		FinalLayout:   routed.FinalLayout,
		Swaps:         routed.Swaps,
	}
	routedCircuit, err := s.handoff(ctx, report, "routed.qasm", routed.Circuit)
	if err != nil {
		return err
	}
	routedMetrics := routedCircuit.Metrics()
	report.Routed = &routedMetrics
	measured, err := h.Permute(routed.Permutation)
	if err != nil {
		return domain.NewError("workflow.layout", domain.KindLayout, err)
	}
	s.stage(report.ID, "layout", start, map[string]interface{}{
		"swaps":          routed.Swaps,
		"routed_cx":      routedMetrics.TwoQubit,
		"routed_depth":   routedMetrics.Depth,
		"final_layout":   routed.FinalLayout,
		"default_layout": initial == nil,
	})

	// Noisy evaluation
	start = time.Now()
	evaluator := evaluation.NewEvaluator(s.deps.Pool, s.log)
	evaluator.OnProgress(func(current, total int, message string) {
		if current%evaluationProgressStep != 0 && current != total {
			return
		}
		s.emit(report.ID, &events.EvaluationProgressData{Current: current, Total: total, Message: message})
	})
	result, err := evaluator.Evaluate(ctx, evaluation.Request{
		Circuit:          routedCircuit,
		Hamiltonian:      measured,
		NoiseModel:       device,
		Shots:            report.Shots,
		Seed:             report.Seed,
		NuclearRepulsion: model.NuclearRepulsion(),
		ReferenceEnergy:  report.ReferenceEnergy,
	})
	if err != nil {
		return err
	}
	report.Evaluation = result
	s.stage(report.ID, "evaluate", start, map[string]interface{}{
		"estimated_energy": result.EstimatedEnergy,
		"std_error":        result.StdError,
		"accuracy_score":   result.AccuracyScore,
	})
	return nil
}

// optimizerShots selects the sampling budget of the variational loop. SPSA
// tolerates shot noise and samples like the evaluator; gradient descent
// needs exact expectation values for its line search.
func (s *Service) optimizerShots(shots int) int {
	switch s.cfg.Optimizer.Strategy {
	case optimization.StrategyGradientDescent, "gradient", "gd":
		return 0
	default:
		return shots
	}
}

// checkSupport warns when the Hamiltonian acts on padding positions, which
// the ansatz never touches.
func (s *Service) checkSupport(h *hamiltonian.Hamiltonian, logical, width int) {
	for _, q := range h.Support() {
		if q < width-logical {
			s.log.Warn().
				Int("position", q).
				Int("logical_qubits", logical).
				Int("device_qubits", width).
				Msg("Hamiltonian acts on qubits outside the ansatz register")
			return
		}
	}
}

// handoff passes c to the next stage, optionally through OpenQASM text, and
// stores the text as a run artifact when a store is configured.
func (s *Service) handoff(ctx context.Context, report *Report, name string, c *circuit.Circuit) (*circuit.Circuit, error) {
	if !s.cfg.QASMHandoff && s.deps.Store == nil {
		return c, nil
	}
	text, err := circuit.ToQASM(c)
	if err != nil {
		return nil, domain.NewError("workflow.handoff", domain.KindBackend, err)
	}
	if err := s.put(ctx, report, name, []byte(text), artifacts.ContentTypeQASM); err != nil {
		s.log.Warn().Err(err).Str("artifact", name).Msg("Failed to store circuit artifact")
	}
	if !s.cfg.QASMHandoff {
		return c, nil
	}
	parsed, err := circuit.ParseQASM(text)
	if err != nil {
		return nil, domain.NewError("workflow.handoff", domain.KindBackend, fmt.Errorf("%s: %w", name, err))
	}
	return parsed, nil
}

func (s *Service) put(ctx context.Context, report *Report, name string, data []byte, contentType string) error {
	if s.deps.Store == nil {
		return nil
	}
	loc, err := s.deps.Store.Put(ctx, artifacts.RunKey(report.ID, name), data, contentType)
	if err != nil {
		return err
	}
	report.Artifacts[name] = loc
	return nil
}

func (s *Service) putJSON(ctx context.Context, report *Report, name string, v interface{}) error {
	if s.deps.Store == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return s.put(ctx, report, name, data, artifacts.ContentTypeJSON)
}

func (s *Service) stage(runID, name string, start time.Time, details map[string]interface{}) {
	s.emit(runID, &events.StageCompletedData{
		Stage:    name,
		Duration: time.Since(start).Seconds(),
		Details:  details,
	})
}

func (s *Service) emit(runID string, data events.EventData) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.EmitTyped(moduleName, runID, data)
}

// IsNotFound reports whether err means a run ID is unknown
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
