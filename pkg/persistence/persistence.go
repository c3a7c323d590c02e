// Package persistence provides the data storage abstraction for workflows
// and workflow runs.
package persistence

import (
	"context"
	"time"

	"github.com/letterflow/letterflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions controls filtering, sorting and pagination of
// workflow listings.
type ListWorkflowsOptions struct {
	Limit  int
	Offset int

	PublicationID string
	Status        *models.WorkflowStatus

	SortBy    string
	SortOrder string

	IncludeDefinition bool
}

// ListWorkflowsResult is a page of workflows plus pagination metadata.
type ListWorkflowsResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// WorkflowRepository stores workflows and their normalized graph rows.
type WorkflowRepository interface {
	List(ctx context.Context, opts ListWorkflowsOptions) (*ListWorkflowsResult, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// Save persists metadata and, if the workflow carries a definition, its
	// nodes and edges. Graph rows are replaced transactionally: a failure
	// never leaves a workflow half-updated.
	Save(ctx context.Context, workflow *models.Workflow) error

	// ReplaceDefinition swaps the stored graph for the workflow atomically.
	ReplaceDefinition(ctx context.Context, workflowID string, def *models.Definition) error

	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, isActive bool) error
	Delete(ctx context.Context, id string) error

	// ActiveByTrigger returns the active workflows of a publication with the
	// given trigger kind, definitions included.
	ActiveByTrigger(ctx context.Context, publicationID string, kind models.TriggerKind) ([]*models.Workflow, error)

	// DueCustomDate returns active CUSTOM_DATE workflows whose configured
	// date has passed and that have not fired yet.
	DueCustomDate(ctx context.Context, now time.Time) ([]*models.Workflow, error)

	// MarkFired records the one-time fire of a CUSTOM_DATE workflow. It
	// returns false when another sweep already fired it.
	MarkFired(ctx context.Context, id string, at time.Time) (bool, error)
}

// RunRepository stores workflow runs and implements the per-run lease.
type RunRepository interface {
	Create(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
	Stats(ctx context.Context, workflowID string) (*models.RunStats, error)

	// ClaimDue leases up to limit due runs (running, or waiting with an
	// elapsed resume time) whose claims are absent or expired. A claimed run
	// is advanced only by the worker holding the lease.
	ClaimDue(ctx context.Context, ownerID string, now time.Time, lease time.Duration, limit int) ([]*models.WorkflowRun, error)

	// Release drops the lease without changing run state.
	Release(ctx context.Context, runID, ownerID string) error

	// CommitStep persists the run's new position and status, guarded by the
	// expected step count. ErrStaleRun means another advancement already
	// committed this step; the caller must skip instead of re-executing.
	CommitStep(ctx context.Context, run *models.WorkflowRun, expectedStep int) error

	// FailActiveByWorkflow marks every non-terminal run of a workflow failed
	// with the given reason. Used when a workflow is archived.
	FailActiveByWorkflow(ctx context.Context, workflowID, reason string) (int64, error)
}
