package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/rs/zerolog"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Repository handles run history database operations
// Database: runs.db (runs table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

const runColumns = `id, noise_model, seed, shots, status, source, reference_energy,
	estimated_energy, accuracy_score, std_error, optimizer_energy,
	optimizer_iterations, optimizer_converged, ansatz_cx, compiled_cx,
	routed_cx, routed_depth, duration_seconds, qasm_artifact, error,
	created_at, finished_at`

// Create inserts a running record for a new run
func (r *Repository) Create(ctx context.Context, report *Report) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, noise_model, seed, shots, status, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.NoiseModel, report.Seed, report.Shots,
		string(StatusRunning), report.Source, report.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.ID, err)
	}
	return nil
}

// Complete stores the results of a finished run
func (r *Repository) Complete(ctx context.Context, report *Report) error {
	var (
		estimated, accuracy, stdErr, duration sql.NullFloat64
		optEnergy                             sql.NullFloat64
		optIterations, optConverged           sql.NullInt64
		ansatzCX, compiledCX                  sql.NullInt64
		routedCX, routedDepth                 sql.NullInt64
	)
	if e := report.Evaluation; e != nil {
		estimated = sql.NullFloat64{Float64: e.EstimatedEnergy, Valid: true}
		accuracy = sql.NullFloat64{Float64: e.AccuracyScore, Valid: true}
		stdErr = sql.NullFloat64{Float64: e.StdError, Valid: true}
		duration = sql.NullFloat64{Float64: e.Duration, Valid: true}
	}
	if o := report.Optimizer; o != nil {
		optEnergy = sql.NullFloat64{Float64: o.Energy, Valid: true}
		optIterations = sql.NullInt64{Int64: int64(o.Iterations), Valid: true}
		optConverged = sql.NullInt64{Int64: boolToInt(o.Converged), Valid: true}
	}
	if m := report.Ansatz; m != nil {
		ansatzCX = sql.NullInt64{Int64: int64(m.TwoQubit), Valid: true}
	}
	if m := report.Compiled; m != nil {
		compiledCX = sql.NullInt64{Int64: int64(m.TwoQubit), Valid: true}
	}
	if m := report.Routed; m != nil {
		routedCX = sql.NullInt64{Int64: int64(m.TwoQubit), Valid: true}
		routedDepth = sql.NullInt64{Int64: int64(m.Depth), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, reference_energy = ?, estimated_energy = ?,
			accuracy_score = ?, std_error = ?, optimizer_energy = ?,
			optimizer_iterations = ?, optimizer_converged = ?, ansatz_cx = ?,
			compiled_cx = ?, routed_cx = ?, routed_depth = ?,
			duration_seconds = ?, qasm_artifact = ?, finished_at = ?
		WHERE id = ?`,
		string(StatusCompleted), report.ReferenceEnergy, estimated,
		accuracy, stdErr, optEnergy,
		optIterations, optConverged, ansatzCX,
		compiledCX, routedCX, routedDepth,
		duration, nullString(report.Artifacts["routed.qasm"]), report.FinishedAt.Unix(),
		report.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", report.ID, err)
	}
	return expectOneRow(res, report.ID)
}

// Fail marks a run as failed with its error message
func (r *Repository) Fail(ctx context.Context, id string, runErr error, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		string(StatusFailed), runErr.Error(), finishedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run %s failed: %w", id, err)
	}
	return expectOneRow(res, id)
}

// FailInterrupted marks runs left running by a previous process as failed
func (r *Repository) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE status = ?",
		string(StatusFailed), "interrupted", time.Now().Unix(), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError("runs.Get", domain.KindArgument, fmt.Errorf("%w: %s", ErrRunNotFound, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs newest first
func (r *Repository) List(ctx context.Context, filter RunFilter) ([]Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.NoiseModel != "" {
		where = append(where, "noise_model = ?")
		args = append(args, filter.NoiseModel)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Best returns the completed run with the highest accuracy for a noise model
func (r *Repository) Best(ctx context.Context, noiseModel string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+` FROM runs
		WHERE noise_model = ? AND status = ? AND accuracy_score IS NOT NULL
		ORDER BY accuracy_score DESC LIMIT 1`,
		noiseModel, string(StatusCompleted),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get best run for %s: %w", noiseModel, err)
	}
	return run, nil
}

// DeleteBefore removes finished runs created before cutoff
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM runs WHERE created_at < ? AND status != ?",
		cutoff.Unix(), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned run history")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                                       Run
		status                                    string
		reference, estimated, accuracy, stdErr    sql.NullFloat64
		optEnergy, duration                       sql.NullFloat64
		optIterations, optConverged               sql.NullInt64
		ansatzCX, compiledCX, routedCX, routedDep sql.NullInt64
		qasm, runErr                              sql.NullString
		createdAt                                 int64
		finishedAt                                sql.NullInt64
	)
	err := row.Scan(
		&run.ID, &run.NoiseModel, &run.Seed, &run.Shots, &status, &run.Source,
		&reference, &estimated, &accuracy, &stdErr, &optEnergy,
		&optIterations, &optConverged, &ansatzCX, &compiledCX,
		&routedCX, &routedDep, &duration, &qasm, &runErr,
		&createdAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.ReferenceEnergy = floatPtr(reference)
	run.EstimatedEnergy = floatPtr(estimated)
	run.AccuracyScore = floatPtr(accuracy)
	run.StdError = floatPtr(stdErr)
	run.OptimizerEnergy = floatPtr(optEnergy)
	run.DurationSeconds = floatPtr(duration)
	run.OptimizerIterations = intPtr(optIterations)
	run.AnsatzCX = intPtr(ansatzCX)
	run.CompiledCX = intPtr(compiledCX)
	run.RoutedCX = intPtr(routedCX)
	run.RoutedDepth = intPtr(routedDep)
	if optConverged.Valid {
		converged := optConverged.Int64 != 0
		run.OptimizerConverged = &converged
	}
	run.QASMArtifact = qasm.String
	run.Error = runErr.String
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewError("runs", domain.KindArgument, fmt.Errorf("%w: %s", ErrRunNotFound, id))
	}
	return nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
