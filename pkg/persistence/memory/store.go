package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/letterflow/letterflow/pkg/models"
)

type store struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	runs      map[string]*models.WorkflowRun
}

func newStore() *store {
	return &store{
		workflows: make(map[string]*models.Workflow),
		runs:      make(map[string]*models.WorkflowRun),
	}
}

// Clones go through JSON so node configs come back as their concrete
// variants.
func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	var clone models.Workflow

	if err := roundTrip(workflow, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone workflow %s: %w", workflow.ID, err)
	}

	return &clone, nil
}

func cloneDefinition(def *models.Definition) (*models.Definition, error) {
	if def == nil {
		return nil, nil
	}

	var clone models.Definition

	if err := roundTrip(def, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone definition: %w", err)
	}

	return &clone, nil
}

func cloneRun(run *models.WorkflowRun) (*models.WorkflowRun, error) {
	var clone models.WorkflowRun

	if err := roundTrip(run, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone run %s: %w", run.ID, err)
	}

	return &clone, nil
}

func roundTrip(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dst)
}
