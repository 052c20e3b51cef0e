package workflow

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/circuit"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/evaluation"
	testingpkg "github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRunsDB(t *testing.T) *sql.DB {
	t.Helper()
	return testingpkg.NewTestDB(t).Conn()
}

func newReport(id, noiseModel string, seed int64, createdAt time.Time) *Report {
	return &Report{
		ID:         id,
		NoiseModel: noiseModel,
		Seed:       seed,
		Shots:      DefaultShots,
		Source:     SourceCLI,
		StartedAt:  createdAt,
		Artifacts:  map[string]string{},
	}
}

func completeReport(r *Report, score float64) {
	r.ReferenceEnergy = -1.137
	r.Optimizer = &OptimizerSummary{Strategy: "spsa", Energy: -1.13, Iterations: 40, Converged: true}
	r.Ansatz = &circuit.Metrics{TwoQubit: 56, Depth: 90}
	r.Compiled = &circuit.Metrics{TwoQubit: 3, Depth: 12}
	r.Routed = &circuit.Metrics{TwoQubit: 9, Depth: 30}
	r.Evaluation = &evaluation.EvaluationResult{
		EstimatedEnergy: -1.1,
		ReferenceEnergy: -1.137,
		AccuracyScore:   score,
		StdError:        0.01,
		Duration:        3.2e-6,
	}
	r.Artifacts["routed.qasm"] = "runs/" + r.ID + "/routed.qasm"
	r.FinishedAt = r.StartedAt.Add(time.Minute)
}

func TestRepository_CreateCompleteGet(t *testing.T) {
	repo := NewRepository(setupRunsDB(t), zerolog.Nop())
	ctx := context.Background()
	created := time.Unix(1_700_000_000, 0).UTC()

	r := newReport("run-1", "fakemontreal", 7, created)
	require.NoError(t, repo.Create(ctx, r))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, created, got.CreatedAt)
	assert.Nil(t, got.AccuracyScore)
	assert.Nil(t, got.FinishedAt)

	completeReport(r, 96.75)
	require.NoError(t, repo.Complete(ctx, r))

	got, err = repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.AccuracyScore)
	assert.Equal(t, 96.75, *got.AccuracyScore)
	require.NotNil(t, got.ReferenceEnergy)
	assert.Equal(t, -1.137, *got.ReferenceEnergy)
	require.NotNil(t, got.OptimizerConverged)
	assert.True(t, *got.OptimizerConverged)
	require.NotNil(t, got.RoutedCX)
	assert.Equal(t, 9, *got.RoutedCX)
	assert.Equal(t, 56, *got.AnsatzCX)
	assert.Equal(t, "runs/run-1/routed.qasm", got.QASMArtifact)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, created.Add(time.Minute), *got.FinishedAt)
}

func TestRepository_GetUnknown(t *testing.T) {
	repo := NewRepository(setupRunsDB(t), zerolog.Nop())

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, domain.IsKind(err, domain.KindArgument))
}

func TestRepository_Fail(t *testing.T) {
	repo := NewRepository(setupRunsDB(t), zerolog.Nop())
	ctx := context.Background()

	r := newReport("run-f", "fakecairo", 1, time.Now())
	require.NoError(t, repo.Create(ctx, r))
	require.NoError(t, repo.Fail(ctx, "run-f", errors.New("noise model missing"), time.Now()))

	got, err := repo.Get(ctx, "run-f")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "noise model missing", got.Error)

	err = repo.Fail(ctx, "nope", errors.New("x"), time.Now())
	assert.True(t, IsNotFound(err))
}

func TestRepository_ListFiltersAndOrder(t *testing.T) {
	repo := NewRepository(setupRunsDB(t), zerolog.Nop())
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i, nm := range []string{"fakecairo", "fakemontreal", "fakecairo"} {
		r := newReport(string(rune('a'+i)), nm, int64(i), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Create(ctx, r))
		if i < 2 {
			completeReport(r, float64(90+i))
			require.NoError(t, repo.Complete(ctx, r))
		}
	}

	all, err := repo.List(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	cairo, err := repo.List(ctx, RunFilter{NoiseModel: "fakecairo"})
	require.NoError(t, err)
	assert.Len(t, cairo, 2)

	done, err := repo.List(ctx, RunFilter{Status: StatusCompleted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "b", done[0].ID)
}

func TestRepository_Best(t *testing.T) {
	repo := NewRepository(setupRunsDB(t), zerolog.Nop())
	ctx := context.Background()

	best, err := repo.Best(ctx, "fakekolkata")
	require.NoError(t, err)
	assert.Nil(t, best)

	for i, score := range []float64{88.5, 97.25, 91} {
		r := newReport(string(rune('x'+i)), "fakekolkata", int64(i), time.Now())
		require.NoError(t, repo.Create(ctx, r))
		completeReport(r, score)
		require.NoError(t, repo.Complete(ctx, r))
	}

	best, err = repo.Best(ctx, "fakekolkata")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "y", best.ID)
}

func TestRepository_DeleteBeforeAndInterrupted(t *testing.T) {
	repo := NewRepository(setupRunsDB(t), zerolog.Nop())
	ctx := context.Background()
	now := time.Now()

	old := newReport("old", "fakecairo", 1, now.Add(-48*time.Hour))
	require.NoError(t, repo.Create(ctx, old))
	completeReport(old, 90)
	require.NoError(t, repo.Complete(ctx, old))

	stuck := newReport("stuck", "fakecairo", 2, now.Add(-48*time.Hour))
	require.NoError(t, repo.Create(ctx, stuck))

	fresh := newReport("fresh", "fakecairo", 3, now)
	require.NoError(t, repo.Create(ctx, fresh))
	completeReport(fresh, 95)
	require.NoError(t, repo.Complete(ctx, fresh))

	n, err := repo.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "running records are kept")

	n, err = repo.FailInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.Error)
}
