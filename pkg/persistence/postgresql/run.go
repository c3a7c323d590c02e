package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
)

// RunRepository handles workflow run storage and the per-run claim lease.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id
  , workflow_id
  , publication_id
  , subscriber_id
  , current_node_id
  , status
  , resume_at
  , step_count
  , context
  , definition
  , claimed_by
  , claim_expires_at
  , last_error
  , created_at
  , updated_at
  , finished_at
`

func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	definitionJSON, err := json.Marshal(run.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal run definition: %w", err)
	}

	query := `
		INSERT INTO workflow_runs (
			id, workflow_id, publication_id, subscriber_id, current_node_id,
			status, resume_at, step_count, context, definition,
			claimed_by, claim_expires_at, last_error, created_at, updated_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.PublicationID,
		run.SubscriberID,
		run.CurrentNodeID,
		string(run.Status),
		run.ResumeAt,
		run.StepCount,
		contextJSON,
		definitionJSON,
		run.ClaimedBy,
		run.ClaimExpiresAt,
		run.LastError,
		run.CreatedAt,
		run.UpdatedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow run: %w", err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := "SELECT " + runColumns + " FROM workflow_runs WHERE id = $1"

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow run: %w", err)
	}

	return run, nil
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	query := "SELECT " + runColumns + " FROM workflow_runs WHERE workflow_id = $1 ORDER BY created_at DESC"

	return r.queryRuns(ctx, query, workflowID)
}

func (r *RunRepository) Stats(ctx context.Context, workflowID string) (*models.RunStats, error) {
	query := `
		SELECT status, COUNT(*)
		FROM workflow_runs
		WHERE workflow_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run stats: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	stats := &models.RunStats{WorkflowID: workflowID}

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}

		stats.Total += count

		switch models.RunStatus(status) {
		case models.RunStatusRunning:
			stats.Running = count
		case models.RunStatusWaiting:
			stats.Waiting = count
		case models.RunStatusCompleted:
			stats.Completed = count
		case models.RunStatusFailed:
			stats.Failed = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run stats: %w", err)
	}

	return stats, nil
}

// ClaimDue leases up to limit due runs. SKIP LOCKED keeps concurrent workers
// from fighting over the same rows.
func (r *RunRepository) ClaimDue(ctx context.Context, ownerID string, now time.Time, lease time.Duration, limit int) ([]*models.WorkflowRun, error) {
	expiresAt := now.Add(lease)

	query := `
		UPDATE workflow_runs SET
			claimed_by = $1,
			claim_expires_at = $2,
			updated_at = $3
		WHERE id IN (
			SELECT id FROM workflow_runs
			WHERE status IN ('running', 'waiting')
			  AND (status = 'running' OR resume_at <= $3)
			  AND (claimed_by = '' OR claim_expires_at IS NULL OR claim_expires_at <= $3)
			ORDER BY updated_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + runColumns

	rows, err := r.db.QueryContext(ctx, query, ownerID, expiresAt, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed runs: %w", err)
	}

	return runs, nil
}

// Release drops the lease without changing run state. Releasing a claim held
// by someone else is a no-op.
func (r *RunRepository) Release(ctx context.Context, runID, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE workflow_runs SET claimed_by = '', claim_expires_at = NULL, updated_at = $1 WHERE id = $2 AND claimed_by = $3",
		time.Now().UTC(), runID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to release run claim: %w", err)
	}

	return nil
}

// CommitStep persists the run's new position, guarded by the expected step
// count and the caller's claim.
func (r *RunRepository) CommitStep(ctx context.Context, run *models.WorkflowRun, expectedStep int) error {
	query := `
		UPDATE workflow_runs SET
			current_node_id = $1,
			status = $2,
			resume_at = $3,
			step_count = $4,
			last_error = $5,
			updated_at = $6,
			finished_at = $7
		WHERE id = $8
		  AND step_count = $9
		  AND (claimed_by = '' OR claimed_by = $10)
	`

	result, err := r.db.ExecContext(ctx, query,
		run.CurrentNodeID,
		string(run.Status),
		run.ResumeAt,
		run.StepCount,
		run.LastError,
		run.UpdatedAt,
		run.FinishedAt,
		run.ID,
		expectedStep,
		run.ClaimedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to commit run step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check step commit: %w", err)
	}

	if affected > 0 {
		return nil
	}

	return r.classifyCommitConflict(ctx, run.ID, expectedStep)
}

// classifyCommitConflict turns a zero-row commit into the right sentinel.
func (r *RunRepository) classifyCommitConflict(ctx context.Context, runID string, expectedStep int) error {
	var (
		stepCount int
		claimedBy string
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT step_count, claimed_by FROM workflow_runs WHERE id = $1", runID,
	).Scan(&stepCount, &claimedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrRunNotFound
		}

		return fmt.Errorf("failed to inspect run after commit conflict: %w", err)
	}

	if stepCount != expectedStep {
		return persistence.ErrStaleRun
	}

	return persistence.ErrClaimLost
}

// FailActiveByWorkflow marks every non-terminal run of a workflow failed.
func (r *RunRepository) FailActiveByWorkflow(ctx context.Context, workflowID, reason string) (int64, error) {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs SET
			status = 'failed',
			last_error = $1,
			claimed_by = '',
			claim_expires_at = NULL,
			step_count = step_count + 1,
			updated_at = $2,
			finished_at = $2
		WHERE workflow_id = $3 AND status IN ('running', 'waiting')
	`, reason, now, workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to fail active runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check failed runs: %w", err)
	}

	return affected, nil
}

func (r *RunRepository) queryRuns(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow runs: %w", err)
	}

	return runs, nil
}

func (r *RunRepository) scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run            models.WorkflowRun
		contextJSON    []byte
		definitionJSON []byte
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.PublicationID,
		&run.SubscriberID,
		&run.CurrentNodeID,
		&run.Status,
		&run.ResumeAt,
		&run.StepCount,
		&contextJSON,
		&definitionJSON,
		&run.ClaimedBy,
		&run.ClaimExpiresAt,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
		}
	}

	if len(definitionJSON) > 0 {
		if err := json.Unmarshal(definitionJSON, &run.Definition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run definition: %w", err)
		}
	}

	return &run, nil
}
