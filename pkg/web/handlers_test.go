package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence/memory"
	"github.com/letterflow/letterflow/pkg/services"
	"github.com/letterflow/letterflow/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.Workflow, *memory.Persistence) {
	t.Helper()

	persistence := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workflowService := services.NewWorkflow(persistence, logger)
	runsService := services.NewRuns(persistence, logger)
	previewService := services.NewPreview()
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(workflowService, runsService, previewService, validate)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/validate", handlers.ValidateDefinition)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Put("/:id/steps", handlers.ReplaceDefinition)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/pause", handlers.PauseWorkflow)
	w.Post("/:id/archive", handlers.ArchiveWorkflow)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)
	w.Get("/:id/runs/stats", handlers.GetWorkflowRunStats)

	app.Get("/runs/:id", handlers.GetRun)
	app.Get("/personalization/variables", handlers.GetVariables)
	app.Post("/personalization/preview", handlers.PreviewTemplate)

	return app, workflowService, persistence
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func definitionJSON() json.RawMessage {
	return json.RawMessage(`{
		"nodes": [
			{"id": "trigger", "kind": "trigger", "type": "TRIGGER", "config": {}},
			{"id": "email", "kind": "action", "type": "SEND_EMAIL", "config": {"subject": "Welcome", "content": "Hi {{subscriber.first_name}}"}}
		],
		"edges": [
			{"id": "e1", "source": "trigger", "target": "email"}
		]
	}`)
}

func createTestWorkflow(t *testing.T, app *fiber.App) models.Workflow {
	t.Helper()

	req := jsonRequest(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		PublicationID: "pub-1",
		Name:          "Welcome series",
		Trigger:       string(models.TriggerSubscribe),
		Definition:    definitionJSON(),
	})

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.Workflow
	decodeBody(t, resp, &wf)

	return wf
}

func TestCreateWorkflowEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	wf := createTestWorkflow(t, app)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, models.WorkflowStatusDraft, wf.Status)
	assert.Equal(t, models.TriggerSubscribe, wf.Trigger)
	require.NotNil(t, wf.Definition)
	assert.Len(t, wf.Definition.Nodes, 2)
}

func TestCreateWorkflowEndpointValidation(t *testing.T) {
	app, _, _ := setupTestApp(t)

	tests := []struct {
		name string
		body web.CreateWorkflowRequest
	}{
		{
			"missing publication id",
			web.CreateWorkflowRequest{Name: "Welcome series", Trigger: "SUBSCRIBE"},
		},
		{
			"name too short",
			web.CreateWorkflowRequest{PublicationID: "pub-1", Name: "Hi", Trigger: "SUBSCRIBE"},
		},
		{
			"missing trigger",
			web.CreateWorkflowRequest{PublicationID: "pub-1", Name: "Welcome series"},
		},
		{
			"unknown trigger kind",
			web.CreateWorkflowRequest{PublicationID: "pub-1", Name: "Welcome series", Trigger: "NOT_A_TRIGGER"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows", tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateWorkflowEndpointRejectsMalformedDefinition(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := jsonRequest(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		PublicationID: "pub-1",
		Name:          "Welcome series",
		Trigger:       "SUBSCRIBE",
		Definition:    json.RawMessage(`{"nodes": "not-a-list"}`),
	})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflowEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)
	wf := createTestWorkflow(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+wf.ID, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Workflow models.Workflow `json:"workflow"`
	}
	decodeBody(t, resp, &envelope)
	assert.Equal(t, wf.ID, envelope.Workflow.ID)
	require.NotNil(t, envelope.Workflow.Definition)
	assert.Len(t, envelope.Workflow.Definition.Nodes, 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/does-not-exist", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListWorkflowsEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)
	createTestWorkflow(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/?publication_id=pub-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Workflows  []models.Workflow `json:"workflows"`
		TotalCount int64             `json:"total_count"`
	}
	decodeBody(t, resp, &body)

	assert.EqualValues(t, 1, body.TotalCount)
	require.Len(t, body.Workflows, 1)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/?sort_by=secret_column", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowLifecycleEndpoints(t *testing.T) {
	app, _, _ := setupTestApp(t)
	wf := createTestWorkflow(t, app)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+wf.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var activated models.Workflow
	decodeBody(t, resp, &activated)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+wf.ID+"/pause", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+wf.ID+"/archive", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// An archived workflow refuses further transitions.
	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+wf.ID+"/activate", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestActivateEndpointReturnsViolations(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := jsonRequest(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		PublicationID: "pub-1",
		Name:          "Broken flow",
		Trigger:       "SUBSCRIBE",
		Definition: json.RawMessage(`{
			"nodes": [{"id": "email", "kind": "action", "type": "SEND_EMAIL", "config": {"subject": "x", "content": "y"}}],
			"edges": []
		}`),
	})

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.Workflow
	decodeBody(t, resp, &wf)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+wf.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Type       string                  `json:"type"`
		Violations []web.ViolationResponse `json:"violations"`
	}
	decodeBody(t, resp, &body)

	assert.Equal(t, "invalid_definition", body.Type)
	assert.NotEmpty(t, body.Violations)
}

func TestValidateDefinitionEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows/validate", web.ReplaceDefinitionRequest{
		Definition: definitionJSON(),
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result web.ValidationResponse
	decodeBody(t, resp, &result)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/workflows/validate", web.ReplaceDefinitionRequest{
		Definition: json.RawMessage(`{"nodes": [], "edges": []}`),
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decodeBody(t, resp, &result)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Violations)
}

func TestReplaceDefinitionEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)
	wf := createTestWorkflow(t, app)

	replacement := json.RawMessage(`{
		"nodes": [
			{"id": "trigger", "kind": "trigger", "type": "TRIGGER", "config": {}},
			{"id": "wait", "kind": "action", "type": "WAIT", "config": {"delay": 3, "unit": "days"}}
		],
		"edges": [
			{"id": "e1", "source": "trigger", "target": "wait"}
		]
	}`)

	resp, err := app.Test(jsonRequest(t, http.MethodPut, "/workflows/"+wf.ID+"/steps", web.ReplaceDefinitionRequest{
		Definition: replacement,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow
	decodeBody(t, resp, &updated)
	require.NotNil(t, updated.Definition)
	assert.Equal(t, "wait", updated.Definition.Nodes[1].ID)
}

func TestDeleteWorkflowEndpoint(t *testing.T) {
	app, _, _ := setupTestApp(t)
	wf := createTestWorkflow(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/workflows/"+wf.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+wf.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpoints(t *testing.T) {
	app, _, persistence := setupTestApp(t)
	wf := createTestWorkflow(t, app)

	run := &models.WorkflowRun{
		ID:            "run-1",
		WorkflowID:    wf.ID,
		PublicationID: "pub-1",
		SubscriberID:  "sub-1",
		CurrentNodeID: "trigger",
		Status:        models.RunStatusCompleted,
	}
	require.NoError(t, persistence.RunRepository().Create(context.Background(), run))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+wf.ID+"/runs", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Runs       []web.RunResponse `json:"runs"`
		TotalCount int               `json:"total_count"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "run-1", list.Runs[0].ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+wf.ID+"/runs/stats", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats models.RunStats
	decodeBody(t, resp, &stats)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 1, stats.Completed)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsForUnknownWorkflow(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/ghost/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewEndpoints(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/personalization/preview", web.PreviewRequest{
		Subject: "Hi {{subscriber.first_name}}!",
		Content: "Your {{publication.name}} digest is ready.",
		Values:  map[string]string{"{{subscriber.first_name}}": "Margaret"},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var preview struct {
		Subject   string   `json:"subject"`
		Content   string   `json:"content"`
		Variables []string `json:"variables"`
	}
	decodeBody(t, resp, &preview)
	assert.Equal(t, "Hi Margaret!", preview.Subject)
	assert.NotContains(t, preview.Content, "{{")
	assert.Equal(t, []string{"{{subscriber.first_name}}", "{{publication.name}}"}, preview.Variables)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/personalization/preview", web.PreviewRequest{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/personalization/variables", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var catalog struct {
		Variables []struct {
			Key string `json:"key"`
		} `json:"variables"`
	}
	decodeBody(t, resp, &catalog)
	assert.NotEmpty(t, catalog.Variables)
}
