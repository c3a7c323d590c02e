package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
	"github.com/letterflow/letterflow/pkg/services"
	"github.com/letterflow/letterflow/pkg/workflow"
)

type APIHandlers struct {
	workflowService *services.Workflow
	runsService     *services.Runs
	previewService  *services.Preview
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	runsService *services.Runs,
	previewService *services.Preview,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		runsService:     runsService,
		previewService:  previewService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Letterflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Letterflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses and validates query parameters for listing workflows.
func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.PublicationID = c.Query("publication_id")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	if includeStr := c.Query("include_definition"); includeStr != "" {
		include, err := strconv.ParseBool(includeStr)
		if err != nil {
			return nil, err
		}

		req.IncludeDefinition = include
	}

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"workflow": wf})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def, err := decodeDefinition(req.Definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	wf, err := h.workflowService.Create(c.Context(), services.CreateWorkflowRequest{
		PublicationID: req.PublicationID,
		Name:          req.Name,
		Description:   req.Description,
		Trigger:       models.TriggerKind(req.Trigger),
		TriggerConfig: req.TriggerConfig,
		Definition:    def,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	update := services.UpdateWorkflowRequest{
		Name:          req.Name,
		Description:   req.Description,
		TriggerConfig: req.TriggerConfig,
	}

	if req.Trigger != nil {
		trigger := models.TriggerKind(*req.Trigger)
		update.Trigger = &trigger
	}

	wf, err := h.workflowService.Update(c.Context(), id, update)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ReplaceDefinition(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ReplaceDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	def, err := decodeDefinition(req.Definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if def == nil {
		return badRequest(c, "Definition is required")
	}

	wf, err := h.workflowService.ReplaceDefinition(c.Context(), id, def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

// ValidateDefinition checks a definition body without persisting anything,
// backing the editor's pre-activation check.
func (h *APIHandlers) ValidateDefinition(c fiber.Ctx) error {
	var req ReplaceDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	def, err := decodeDefinition(req.Definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	violations := h.workflowService.ValidateDefinition(def)

	return c.JSON(ValidationResponse{
		Valid:      len(violations) == 0,
		Violations: TransformViolations(violations),
	})
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.transitionWorkflow(c, h.workflowService.Activate)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	return h.transitionWorkflow(c, h.workflowService.Pause)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	return h.transitionWorkflow(c, h.workflowService.Archive)
}

func (h *APIHandlers) transitionWorkflow(c fiber.Ctx, transition func(ctx context.Context, id string) (*models.Workflow, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	wf, err := transition(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(wf)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	runs, err := h.runsService.ListByWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	responses := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, TransformRunResponse(run))
	}

	return c.JSON(fiber.Map{
		"runs":        responses,
		"total_count": len(responses),
	})
}

func (h *APIHandlers) GetWorkflowRunStats(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	stats, err := h.runsService.Stats(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runsService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) PreviewTemplate(c fiber.Ctx) error {
	var req PreviewRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.previewService.RenderEmail(services.EmailPreviewRequest{
		Subject: req.Subject,
		Content: req.Content,
		Values:  req.Values,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetVariables(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"variables": h.previewService.Catalog(),
	})
}

// decodeDefinition checks the wire shape against the JSON schema before the
// typed node config decode runs, so shape errors come back as one list
// instead of the first unmarshal failure.
func decodeDefinition(raw json.RawMessage) (*models.Definition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	schemaErrors, err := workflow.ValidateRawDefinition(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to check definition shape: %w", err)
	}

	if len(schemaErrors) > 0 {
		return nil, fmt.Errorf("invalid definition shape: %s", strings.Join(schemaErrors, "; "))
	}

	var def models.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}

	return &def, nil
}
