package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/utils"
	"github.com/rs/zerolog"
)

// SweepJob runs the pipeline for every configured noise model and seed,
// one run at a time. A tick that fires while a sweep is still running is
// skipped.
type SweepJob struct {
	ctx     context.Context
	runs    RunServiceInterface
	events  EventManagerInterface
	cfg     config.SweepConfig
	running atomic.Bool
	log     zerolog.Logger
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Runs      int
	Failed    int
	BestScore *float64
	Skipped   bool
}

// NewSweepJob creates a new SweepJob. Runs are cancelled when ctx ends.
func NewSweepJob(ctx context.Context, runs RunServiceInterface, eventManager EventManagerInterface, cfg config.SweepConfig) *SweepJob {
	return &SweepJob{
		ctx:    ctx,
		runs:   runs,
		events: eventManager,
		cfg:    cfg,
		log:    zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *SweepJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *SweepJob) Name() string {
	return "benchmark_sweep"
}

// Run executes the sweep. Individual run failures are counted, not returned.
func (j *SweepJob) Run() error {
	_, err := j.Sweep()
	return err
}

// Sweep executes the sweep and returns its summary
func (j *SweepJob) Sweep() (*SweepResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn().Msg("Previous sweep still running, skipping")
		return &SweepResult{Skipped: true}, nil
	}
	defer j.running.Store(false)
	defer utils.OperationTimer(j.Name(), j.log)()

	j.emit(&events.SweepData{
		Status:      "started",
		NoiseModels: j.cfg.NoiseModels,
		Seeds:       j.cfg.Seeds,
	})
	j.log.Info().
		Strs("noise_models", j.cfg.NoiseModels).
		Ints("seeds", j.cfg.Seeds).
		Int("shots", j.cfg.Shots).
		Msg("Starting benchmark sweep")

	res := &SweepResult{}
	for _, name := range j.cfg.NoiseModels {
		for _, seed := range j.cfg.Seeds {
			if err := j.ctx.Err(); err != nil {
				j.finish(res)
				return res, err
			}

			res.Runs++
			report, err := j.runs.Run(j.ctx, workflow.RunRequest{
				NoiseModel: name,
				Seed:       int64(seed),
				Shots:      j.cfg.Shots,
				Source:     workflow.SourceSweep,
			})
			if err != nil {
				res.Failed++
				j.log.Warn().
					Err(err).
					Str("noise_model", name).
					Int("seed", seed).
					Msg("Sweep run failed")
				continue
			}

			score := report.AccuracyScore()
			if res.BestScore == nil || score > *res.BestScore {
				res.BestScore = &score
			}
		}
	}

	j.finish(res)
	return res, nil
}

func (j *SweepJob) finish(res *SweepResult) {
	j.emit(&events.SweepData{
		Status:      "completed",
		NoiseModels: j.cfg.NoiseModels,
		Seeds:       j.cfg.Seeds,
		Runs:        res.Runs,
		Failed:      res.Failed,
		BestScore:   res.BestScore,
	})
	ev := j.log.Info().Int("runs", res.Runs).Int("failed", res.Failed)
	if res.BestScore != nil {
		ev = ev.Float64("best_score", *res.BestScore)
	}
	ev.Msg("Benchmark sweep completed")
}

func (j *SweepJob) emit(data events.EventData) {
	if j.events == nil {
		return
	}
	j.events.EmitTyped("scheduler", "", data)
}
