// Package web provides the HTTP handlers and request types for the workflow API.
package web

import (
	"encoding/json"
	"time"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/workflow"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	PublicationID string               `json:"publication_id" validate:"required"`
	Name          string               `json:"name"           validate:"required,min=3,max=255"`
	Description   string               `json:"description"`
	Trigger       string               `json:"trigger"        validate:"required"`
	TriggerConfig models.TriggerConfig `json:"trigger_config"`

	// Definition is kept raw so the wire shape can be checked before the
	// typed decode runs.
	Definition json.RawMessage `json:"definition,omitempty"`
}

// UpdateWorkflowRequest represents the request body for updating workflow
// metadata. All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name          *string               `json:"name,omitempty" validate:"omitempty,min=3,max=255"`
	Description   *string               `json:"description,omitempty"`
	Trigger       *string               `json:"trigger,omitempty"`
	TriggerConfig *models.TriggerConfig `json:"trigger_config,omitempty"`
}

// ReplaceDefinitionRequest carries a full step graph.
type ReplaceDefinitionRequest struct {
	Definition json.RawMessage `json:"definition" validate:"required"`
}

// PreviewRequest represents the request body for email preview rendering.
type PreviewRequest struct {
	Subject string            `json:"subject"`
	Content string            `json:"content" validate:"required"`
	Values  map[string]string `json:"values,omitempty"`
}

// ViolationResponse is one structural problem found in a definition.
type ViolationResponse struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

// TransformViolations converts validator violations into their API shape.
func TransformViolations(violations []workflow.Violation) []ViolationResponse {
	out := make([]ViolationResponse, 0, len(violations))

	for _, v := range violations {
		out = append(out, ViolationResponse{
			Code:    v.Code,
			NodeID:  v.NodeID,
			EdgeID:  v.EdgeID,
			Message: v.Message,
		})
	}

	return out
}

// ValidationResponse is the editor's pre-activation check result.
type ValidationResponse struct {
	Valid      bool                `json:"valid"`
	Violations []ViolationResponse `json:"violations"`
}

// RunResponse represents a workflow run without its graph snapshot; run
// history listings do not need the full definition payload.
type RunResponse struct {
	ID            string           `json:"id"`
	WorkflowID    string           `json:"workflow_id"`
	PublicationID string           `json:"publication_id"`
	SubscriberID  string           `json:"subscriber_id,omitempty"`
	CurrentNodeID string           `json:"current_node_id"`
	Status        models.RunStatus `json:"status"`
	ResumeAt      *time.Time       `json:"resume_at,omitempty"`
	StepCount     int              `json:"step_count"`
	LastError     string           `json:"last_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// TransformRunResponse strips the definition snapshot from a run.
func TransformRunResponse(run *models.WorkflowRun) RunResponse {
	return RunResponse{
		ID:            run.ID,
		WorkflowID:    run.WorkflowID,
		PublicationID: run.PublicationID,
		SubscriberID:  run.SubscriberID,
		CurrentNodeID: run.CurrentNodeID,
		Status:        run.Status,
		ResumeAt:      run.ResumeAt,
		StepCount:     run.StepCount,
		LastError:     run.LastError,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
		FinishedAt:    run.FinishedAt,
	}
}
