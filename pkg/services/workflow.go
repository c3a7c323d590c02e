package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
	"github.com/letterflow/letterflow/pkg/workflow"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow implements the workflow lifecycle: create, edit, activate, pause,
// archive. Structural validation gates activation; drafts can hold any shape.
type Workflow struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit  int
	Offset int

	PublicationID string
	Status        *models.WorkflowStatus

	SortBy    string
	SortOrder string

	IncludeDefinition bool
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, err
	}

	opts := persistence.ListWorkflowsOptions{
		Limit:             req.Limit,
		Offset:            req.Offset,
		PublicationID:     req.PublicationID,
		Status:            req.Status,
		SortBy:            req.SortBy,
		SortOrder:         req.SortOrder,
		IncludeDefinition: req.IncludeDefinition,
	}

	result, err := w.persistence.WorkflowRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name", "status"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil && !req.Status.IsValid() {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// CreateWorkflowRequest contains the data needed to create a workflow.
type CreateWorkflowRequest struct {
	PublicationID string
	Name          string
	Description   string
	Trigger       models.TriggerKind
	TriggerConfig models.TriggerConfig
	Definition    *models.Definition
}

// Create creates a workflow in draft status. The definition, when provided,
// is stored as-is; structural validation happens at activation.
func (w *Workflow) Create(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	if strings.TrimSpace(req.PublicationID) == "" {
		return nil, NewValidationError("Create", "EMPTY_PUBLICATION_ID", "publication ID is required", ErrEmptyPublicationID)
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, NewValidationError("Create", "NAME_REQUIRED", "workflow name is required", ErrNameRequired)
	}

	if !req.Trigger.IsValid() {
		return nil, NewValidationError("Create", "INVALID_TRIGGER",
			fmt.Sprintf("unknown trigger kind '%s'", req.Trigger), ErrInvalidTrigger)
	}

	if err := req.TriggerConfig.Validate(req.Trigger); err != nil {
		return nil, NewValidationError("Create", "INVALID_TRIGGER_CONFIG", err.Error(), ErrInvalidRequest)
	}

	wf := &models.Workflow{
		PublicationID: req.PublicationID,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Trigger:       req.Trigger,
		TriggerConfig: req.TriggerConfig,
		Status:        models.WorkflowStatusDraft,
		IsActive:      false,
		Definition:    req.Definition,
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created",
		"workflow_id", wf.ID, "publication_id", wf.PublicationID, "trigger", wf.Trigger)

	return wf, nil
}

// UpdateWorkflowRequest contains the mutable workflow metadata. Nil fields
// are left unchanged.
type UpdateWorkflowRequest struct {
	Name          *string
	Description   *string
	Trigger       *models.TriggerKind
	TriggerConfig *models.TriggerConfig
}

// Update edits workflow metadata. Archived workflows are immutable.
func (w *Workflow) Update(ctx context.Context, id string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError("Update", "WORKFLOW_ARCHIVED", "archived workflows cannot be edited", ErrWorkflowArchived)
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, NewValidationError("Update", "NAME_REQUIRED", "workflow name is required", ErrNameRequired)
		}

		wf.Name = strings.TrimSpace(*req.Name)
	}

	if req.Description != nil {
		wf.Description = *req.Description
	}

	if req.Trigger != nil {
		if !req.Trigger.IsValid() {
			return nil, NewValidationError("Update", "INVALID_TRIGGER",
				fmt.Sprintf("unknown trigger kind '%s'", *req.Trigger), ErrInvalidTrigger)
		}

		wf.Trigger = *req.Trigger

		// A new trigger kind invalidates the old one-time fire marker.
		wf.FiredAt = nil
	}

	if req.TriggerConfig != nil {
		wf.TriggerConfig = *req.TriggerConfig
	}

	if err := wf.TriggerConfig.Validate(wf.Trigger); err != nil {
		return nil, NewValidationError("Update", "INVALID_TRIGGER_CONFIG", err.Error(), ErrInvalidRequest)
	}

	// Definition is replaced through ReplaceDefinition, never here.
	wf.Definition = nil

	if err := w.persistence.WorkflowRepository().Save(ctx, wf); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// ReplaceDefinition swaps the workflow's step graph. Drafts accept any
// shape; an active workflow only accepts a structurally valid graph, so the
// active-implies-valid invariant holds across edits.
func (w *Workflow) ReplaceDefinition(ctx context.Context, id string, def *models.Definition) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError("ReplaceDefinition", "WORKFLOW_ARCHIVED", "archived workflows cannot be edited", ErrWorkflowArchived)
	}

	if wf.Status == models.WorkflowStatusActive {
		if result := workflow.Validate(def); !result.Valid() {
			return nil, result.Err()
		}
	}

	if err := w.persistence.WorkflowRepository().ReplaceDefinition(ctx, id, def); err != nil {
		return nil, fmt.Errorf("failed to replace definition: %w", err)
	}

	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Activate validates the workflow's graph and trigger config, then turns it
// on. Invalid graphs are rejected with the full violation list.
func (w *Workflow) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError("Activate", "WORKFLOW_ARCHIVED", "archived workflows cannot be activated", ErrWorkflowArchived)
	}

	if wf.Definition == nil {
		return nil, NewValidationError("Activate", "DEFINITION_REQUIRED", "workflow has no step definition", ErrDefinitionRequired)
	}

	if result := workflow.Validate(wf.Definition); !result.Valid() {
		return nil, result.Err()
	}

	if err := wf.TriggerConfig.Validate(wf.Trigger); err != nil {
		return nil, NewValidationError("Activate", "INVALID_TRIGGER_CONFIG", err.Error(), ErrInvalidRequest)
	}

	if err := w.persistence.WorkflowRepository().UpdateStatus(ctx, id, models.WorkflowStatusActive, true); err != nil {
		return nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow activated", "workflow_id", id)

	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Pause suspends an active workflow. In-flight runs keep their state and
// resume when the workflow is reactivated.
func (w *Workflow) Pause(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.Status != models.WorkflowStatusActive {
		return nil, NewConflictError("Pause", "WORKFLOW_NOT_ACTIVE", "only active workflows can be paused", ErrWorkflowNotActive)
	}

	if err := w.persistence.WorkflowRepository().UpdateStatus(ctx, id, models.WorkflowStatusPaused, false); err != nil {
		return nil, fmt.Errorf("failed to pause workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow paused", "workflow_id", id)

	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Archive retires the workflow permanently and cancels its in-flight runs.
func (w *Workflow) Archive(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if wf.Status == models.WorkflowStatusArchived {
		return nil, NewConflictError("Archive", "WORKFLOW_ARCHIVED", "workflow is already archived", ErrWorkflowArchived)
	}

	if err := w.persistence.WorkflowRepository().UpdateStatus(ctx, id, models.WorkflowStatusArchived, false); err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}

	cancelled, err := w.persistence.RunRepository().FailActiveByWorkflow(ctx, id, workflow.ReasonWorkflowArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel runs of archived workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow archived", "workflow_id", id, "cancelled_runs", cancelled)

	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Delete soft deletes the workflow and cancels its in-flight runs.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	if err := w.persistence.WorkflowRepository().Delete(ctx, id); err != nil {
		return err
	}

	cancelled, err := w.persistence.RunRepository().FailActiveByWorkflow(ctx, id, workflow.ReasonWorkflowDeleted)
	if err != nil {
		return fmt.Errorf("failed to cancel runs of deleted workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id, "cancelled_runs", cancelled)

	return nil
}

// ValidateDefinition runs structural validation without persisting anything,
// backing the editor's pre-activation check.
func (w *Workflow) ValidateDefinition(def *models.Definition) []workflow.Violation {
	return workflow.Validate(def).Violations
}
