package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
)

// ErrRunNotFound is returned when a workflow run is not found.
var ErrRunNotFound = persistence.ErrRunNotFound

// Runs exposes run history and aggregate health for the dashboard.
type Runs struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewRuns creates a new runs service.
func NewRuns(persistence persistence.Persistence, logger *slog.Logger) *Runs {
	return &Runs{
		persistence: persistence,
		logger:      logger.With("module", "runs_service"),
	}
}

// FetchByID retrieves a run by its ID.
func (r *Runs) FetchByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return r.persistence.RunRepository().GetByID(ctx, id)
}

// ListByWorkflow returns the run history of a workflow, newest first. The
// workflow must exist; a missing one surfaces as not found rather than an
// empty list.
func (r *Runs) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	if _, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	runs, err := r.persistence.RunRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// Stats returns run counts by status for one workflow.
func (r *Runs) Stats(ctx context.Context, workflowID string) (*models.RunStats, error) {
	if _, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	stats, err := r.persistence.RunRepository().Stats(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run stats: %w", err)
	}

	return stats, nil
}
