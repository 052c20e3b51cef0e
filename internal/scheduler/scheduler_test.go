package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/config"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/evaluation"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	mu    sync.Mutex
	calls int
	err   error
}

func (j *countingJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func TestSchedulerAddJob(t *testing.T) {
	s := New(zerolog.New(nil).Level(zerolog.Disabled))

	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "benchmark_sweep"}))
	require.NoError(t, s.AddJob("0 3 * * *", &countingJob{name: "run_history_maintenance"}))
	assert.Equal(t, 2, s.Entries())

	err := s.AddJob("not a schedule", &countingJob{name: "other"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other")
	assert.ErrorContains(t, s.AddJob("@daily", &countingJob{name: "benchmark_sweep"}), "already scheduled")
	assert.Equal(t, 2, s.Entries())

	st, ok := s.Status("run_history_maintenance")
	require.True(t, ok)
	assert.Equal(t, "0 3 * * *", st.Schedule)
	assert.True(t, st.Next.IsZero())
	_, ok = s.Status("unknown")
	assert.False(t, ok)

	s.Start()
	st, ok = s.Status("benchmark_sweep")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), st.Next, time.Minute)
	assert.True(t, st.Prev.IsZero())
	require.NoError(t, s.Stop(context.Background()))
}

type blockingJob struct {
	countingJob
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Run() error {
	_ = j.countingJob.Run()
	if j.count() == 1 {
		close(j.started)
	}
	<-j.release
	return nil
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for cron ticks")
	}
	s := New(zerolog.New(nil).Level(zerolog.Disabled))
	job := &blockingJob{
		countingJob: countingJob{name: "benchmark_sweep"},
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()

	select {
	case <-job.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}
	// Another tick passes while the first run is blocked
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 1, job.count())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	close(job.release)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 1, job.count())
}

func TestCronLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{log: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	l.Error(errors.New("boom"), "panic", "stack", "trace")
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
	assert.Contains(t, buf.String(), `"stack":"trace"`)

	buf.Reset()
	l.Info("skip", 1, "odd")
	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), `"1":"odd"`)
}

type fakeRuns struct {
	mu       sync.Mutex
	requests []workflow.RunRequest
	fail     map[string]bool
	scores   map[int64]float64
	block    chan struct{}
}

func (f *fakeRuns) Run(ctx context.Context, req workflow.RunRequest) (*workflow.Report, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.fail[req.NoiseModel] {
		return nil, errors.New("noise model unavailable")
	}
	return &workflow.Report{
		ID:         "run",
		NoiseModel: req.NoiseModel,
		Seed:       req.Seed,
		Shots:      req.Shots,
		Evaluation: &evaluation.EvaluationResult{AccuracyScore: f.scores[req.Seed]},
	}, nil
}

type recordedEvents struct {
	mu   sync.Mutex
	data []events.EventData
}

func (r *recordedEvents) EmitTyped(_, _ string, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, data)
}

func TestSweepJobRunsEveryCombination(t *testing.T) {
	runs := &fakeRuns{
		fail:   map[string]bool{"fakekolkata": true},
		scores: map[int64]float64{1: 80, 2: 95},
	}
	rec := &recordedEvents{}
	job := NewSweepJob(context.Background(), runs, rec, config.SweepConfig{
		Seeds:       []int{1, 2},
		NoiseModels: []string{"fakecairo", "fakekolkata"},
		Shots:       500,
	})
	job.SetLogger(zerolog.New(nil).Level(zerolog.Disabled))
	assert.Equal(t, "benchmark_sweep", job.Name())

	res, err := job.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 4, res.Runs)
	assert.Equal(t, 2, res.Failed)
	require.NotNil(t, res.BestScore)
	assert.InDelta(t, 95, *res.BestScore, 1e-9)

	require.Len(t, runs.requests, 4)
	for _, req := range runs.requests {
		assert.Equal(t, workflow.SourceSweep, req.Source)
		assert.Equal(t, 500, req.Shots)
	}
	assert.Equal(t, "fakecairo", runs.requests[0].NoiseModel)
	assert.Equal(t, int64(1), runs.requests[0].Seed)
	assert.Equal(t, "fakekolkata", runs.requests[3].NoiseModel)
	assert.Equal(t, int64(2), runs.requests[3].Seed)

	require.Len(t, rec.data, 2)
	assert.Equal(t, events.SweepStarted, rec.data[0].EventType())
	done := rec.data[1].(*events.SweepData)
	assert.Equal(t, events.SweepCompleted, done.EventType())
	assert.Equal(t, 4, done.Runs)
	assert.Equal(t, 2, done.Failed)
}

func TestSweepJobSkipsOverlappingTick(t *testing.T) {
	runs := &fakeRuns{block: make(chan struct{})}
	job := NewSweepJob(context.Background(), runs, nil, config.SweepConfig{
		Seeds:       []int{1},
		NoiseModels: []string{"fakecairo"},
	})

	done := make(chan *SweepResult)
	go func() {
		res, _ := job.Sweep()
		done <- res
	}()

	require.Eventually(t, job.running.Load, time.Second, time.Millisecond)
	skipped, err := job.Sweep()
	require.NoError(t, err)
	assert.True(t, skipped.Skipped)

	close(runs.block)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Runs)
}

func TestSweepJobStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runs := &fakeRuns{}
	rec := &recordedEvents{}
	job := NewSweepJob(ctx, runs, rec, config.SweepConfig{
		Seeds:       []int{1, 2},
		NoiseModels: []string{"fakecairo"},
	})

	res, err := job.Sweep()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Runs)
	assert.Empty(t, runs.requests)
	require.Len(t, rec.data, 2)
	assert.Equal(t, events.SweepCompleted, rec.data[1].EventType())
}

type fakeHistory struct {
	cutoff      time.Time
	deleted     int64
	interrupted int64
	err         error
}

func (f *fakeHistory) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func (f *fakeHistory) FailInterrupted(context.Context) (int64, error) {
	return f.interrupted, f.err
}

type fakeCheckpointer struct {
	modes []string
	err   error
}

func (f *fakeCheckpointer) WALCheckpoint(mode string) error {
	f.modes = append(f.modes, mode)
	return f.err
}

func (f *fakeCheckpointer) Name() string { return "runs" }

func TestMaintenanceJobPrunesAndCheckpoints(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{deleted: 3}
	db := &fakeCheckpointer{}

	job := NewMaintenanceJob(db, history, 30*24*time.Hour)
	job.SetLogger(zerolog.New(nil).Level(zerolog.Disabled))
	job.now = func() time.Time { return now }
	assert.Equal(t, "run_history_maintenance", job.Name())

	require.NoError(t, job.Run())
	assert.Equal(t, now.Add(-30*24*time.Hour), history.cutoff)
	assert.Equal(t, []string{"TRUNCATE"}, db.modes)
}

func TestMaintenanceJobZeroRetentionKeepsRuns(t *testing.T) {
	history := &fakeHistory{}
	job := NewMaintenanceJob(&fakeCheckpointer{}, history, 0)

	require.NoError(t, job.Run())
	assert.True(t, history.cutoff.IsZero())
}

func TestMaintenanceJobErrors(t *testing.T) {
	job := NewMaintenanceJob(&fakeCheckpointer{}, &fakeHistory{err: errors.New("locked")}, time.Hour)
	assert.EqualError(t, job.Run(), "locked")

	job = NewMaintenanceJob(&fakeCheckpointer{err: errors.New("busy")}, &fakeHistory{}, time.Hour)
	assert.EqualError(t, job.Run(), "busy")

	job = NewMaintenanceJob(nil, nil, time.Hour)
	assert.NoError(t, job.Run())
}

func TestRecoverInterrupted(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	assert.NoError(t, RecoverInterrupted(context.Background(), &fakeHistory{interrupted: 2}, log))
	assert.Error(t, RecoverInterrupted(context.Background(), &fakeHistory{err: errors.New("x")}, log))
}
