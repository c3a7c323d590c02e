package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/letterflow/letterflow/pkg/models"
	"github.com/letterflow/letterflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations. Graph
// definitions live in normalized workflow_nodes and workflow_edges rows.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , publication_id
  , name
  , description
  , trigger_kind
  , trigger_config
  , status
  , is_active
  , fired_at
  , created_at
  , updated_at
  , deleted_at
`

var sortColumns = map[string]string{
	"name":       "name",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// List returns a page of workflows for the given filters.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.ListWorkflowsResult, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}

	if opts.PublicationID != "" {
		args = append(args, opts.PublicationID)
		where = append(where, fmt.Sprintf("publication_id = $%d", len(args)))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64

	countQuery := "SELECT COUNT(*) FROM workflows WHERE " + whereClause

	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	orderColumn, ok := sortColumns[opts.SortBy]
	if !ok {
		orderColumn = "created_at"
	}

	orderDirection := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		orderDirection = "ASC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT %s FROM workflows WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		workflowColumns, whereClause, orderColumn, orderDirection, limit, max(opts.Offset, 0),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	if opts.IncludeDefinition {
		for _, workflow := range workflows {
			if err := r.loadDefinition(ctx, workflow); err != nil {
				return nil, err
			}
		}
	}

	return &persistence.ListWorkflowsResult{
		Workflows:   workflows,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(workflows)) < total,
	}, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := "SELECT " + workflowColumns + " FROM workflows WHERE id = $1 AND deleted_at IS NULL"

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadDefinition(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save persists a workflow and, when present, its definition. The graph rows
// are replaced inside the same transaction as the metadata update.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	triggerConfigJSON, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO workflows (
			id, publication_id, name, description, trigger_kind, trigger_config,
			status, is_active, fired_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_kind = EXCLUDED.trigger_kind,
			trigger_config = EXCLUDED.trigger_config,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			fired_at = EXCLUDED.fired_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		workflow.ID,
		workflow.PublicationID,
		workflow.Name,
		workflow.Description,
		string(workflow.Trigger),
		triggerConfigJSON,
		string(workflow.Status),
		workflow.IsActive,
		workflow.FiredAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	if workflow.Definition != nil {
		err = r.replaceGraphTx(ctx, tx, workflow.ID, workflow.Definition)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow save: %w", err)
	}

	return nil
}

// ReplaceDefinition swaps the stored graph for the workflow atomically.
func (r *WorkflowRepository) ReplaceDefinition(ctx context.Context, workflowID string, def *models.Definition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		"UPDATE workflows SET updated_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check workflow update: %w", err)
	}

	if affected == 0 {
		err = persistence.ErrWorkflowNotFound

		return err
	}

	err = r.replaceGraphTx(ctx, tx, workflowID, def)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit definition replace: %w", err)
	}

	return nil
}

// replaceGraphTx deletes and re-inserts the graph rows. Edges go first on
// delete and last on insert to keep the foreign keys satisfied.
func (r *WorkflowRepository) replaceGraphTx(ctx context.Context, tx *sql.Tx, workflowID string, def *models.Definition) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM workflow_edges WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow edges: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow nodes: %w", err)
	}

	nodeQuery := `
		INSERT INTO workflow_nodes (workflow_id, id, kind, node_type, config, position_x, position_y)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, node := range def.Nodes {
		configJSON, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, nodeQuery,
			workflowID, node.ID, string(node.Kind), node.Type, configJSON,
			node.Position.X, node.Position.Y,
		)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	edgeQuery := `
		INSERT INTO workflow_edges (workflow_id, id, source_id, target_id, branch, label, animated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, edge := range def.Edges {
		_, err = tx.ExecContext(ctx, edgeQuery,
			workflowID, edge.ID, edge.Source, edge.Target,
			string(edge.Branch), edge.Label, edge.Animated,
		)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, isActive bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET status = $1, is_active = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL",
		string(status), isActive, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = $1, is_active = false, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check workflow delete: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

// ActiveByTrigger returns the active workflows of a publication with the
// given trigger kind, definitions included.
func (r *WorkflowRepository) ActiveByTrigger(ctx context.Context, publicationID string, kind models.TriggerKind) ([]*models.Workflow, error) {
	query := "SELECT " + workflowColumns + ` FROM workflows
		WHERE publication_id = $1
		  AND trigger_kind = $2
		  AND status = 'active'
		  AND is_active = true
		  AND deleted_at IS NULL
		ORDER BY created_at
	`

	return r.queryWorkflowsWithDefinitions(ctx, query, publicationID, string(kind))
}

// DueCustomDate returns active CUSTOM_DATE workflows whose configured date
// has passed and that have not fired yet.
func (r *WorkflowRepository) DueCustomDate(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	query := "SELECT " + workflowColumns + ` FROM workflows
		WHERE trigger_kind = $1
		  AND status = 'active'
		  AND is_active = true
		  AND fired_at IS NULL
		  AND deleted_at IS NULL
		  AND (trigger_config->>'date')::timestamptz <= $2
		ORDER BY created_at
	`

	return r.queryWorkflowsWithDefinitions(ctx, query, string(models.TriggerCustomDate), now)
}

// MarkFired records the one-time fire of a CUSTOM_DATE workflow. False means
// another sweep got there first.
func (r *WorkflowRepository) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET fired_at = $1, updated_at = $1 WHERE id = $2 AND fired_at IS NULL AND deleted_at IS NULL",
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark workflow fired: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check fired update: %w", err)
	}

	return affected > 0, nil
}

func (r *WorkflowRepository) queryWorkflowsWithDefinitions(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadDefinition(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow          models.Workflow
		triggerConfigJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.PublicationID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Trigger,
		&triggerConfigJSON,
		&workflow.Status,
		&workflow.IsActive,
		&workflow.FiredAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerConfigJSON) > 0 {
		if err := json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}

	return &workflow, nil
}

// loadDefinition hydrates the workflow's nodes and edges. A workflow without
// graph rows keeps a nil definition.
func (r *WorkflowRepository) loadDefinition(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := r.loadNodes(ctx, workflow.ID)
	if err != nil {
		return err
	}

	edges, err := r.loadEdges(ctx, workflow.ID)
	if err != nil {
		return err
	}

	if len(nodes) == 0 && len(edges) == 0 {
		workflow.Definition = nil

		return nil
	}

	workflow.Definition = &models.Definition{Nodes: nodes, Edges: edges}

	return nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID string) ([]*models.Node, error) {
	query := `
		SELECT id, kind, node_type, config, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	nodes := make([]*models.Node, 0)

	for rows.Next() {
		var (
			node       models.Node
			configJSON []byte
		)

		err := rows.Scan(&node.ID, &node.Kind, &node.Type, &configJSON, &node.Position.X, &node.Position.Y)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow node: %w", err)
		}

		node.Config, err = models.DecodeNodeConfig(node.Type, configJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config of node %s: %w", node.ID, err)
		}

		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow nodes: %w", err)
	}

	return nodes, nil
}

func (r *WorkflowRepository) loadEdges(ctx context.Context, workflowID string) ([]*models.Edge, error) {
	query := `
		SELECT id, source_id, target_id, branch, label, animated
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow edges: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	edges := make([]*models.Edge, 0)

	for rows.Next() {
		var edge models.Edge

		err := rows.Scan(&edge.ID, &edge.Source, &edge.Target, &edge.Branch, &edge.Label, &edge.Animated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow edge: %w", err)
		}

		edges = append(edges, &edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow edges: %w", err)
	}

	return edges, nil
}
