package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations. Nodes and
// edges are stored as JSONB documents alongside the workflow row.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `id, name, description, status, workspace_id, nodes, edges, variables, owner, created_at, updated_at, deleted_at`

// GetByID retrieves a workflow by its ID, excluding soft-deleted rows.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 AND deleted_at IS NULL`

	workflow, err := wr.scanWorkflow(wr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// Save upserts a workflow row.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(workflow.Edges)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	variablesJSON, err := json.Marshal(workflow.Variables)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			workspace_id = EXCLUDED.workspace_id,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = wr.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.WorkspaceID,
		nodesJSON,
		edgesJSON,
		variablesJSON,
		workflow.Owner,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete soft deletes a workflow by setting its deleted_at timestamp.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := wr.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

// List returns every non-deleted workflow, oldest first.
func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE deleted_at IS NULL ORDER BY created_at ASC`

	rows, err := wr.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			wr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := wr.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// NodesBySession returns nodes carrying divergent metadata for the session,
// ordered by level then node identifier. Filtering happens in memory since
// nodes live inside JSONB documents.
func (wr *WorkflowRepository) NodesBySession(ctx context.Context, sessionID string) ([]*models.Node, error) {
	workflows, err := wr.List(ctx)
	if err != nil {
		return nil, err
	}

	var nodes []*models.Node

	for _, workflow := range workflows {
		for _, node := range workflow.Nodes {
			if node.Divergent != nil && node.Divergent.SessionID == sessionID {
				nodes = append(nodes, node)
			}
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Divergent.Level != nodes[j].Divergent.Level {
			return nodes[i].Divergent.Level < nodes[j].Divergent.Level
		}

		return nodes[i].ID < nodes[j].ID
	})

	return nodes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (wr *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		nodesJSON     []byte
		edgesJSON     []byte
		variablesJSON []byte
		workspaceID   sql.NullString
		owner         sql.NullString
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workspaceID,
		&nodesJSON,
		&edgesJSON,
		&variablesJSON,
		&owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.WorkspaceID = workspaceID.String
	workflow.Owner = owner.String

	if err := json.Unmarshal(nodesJSON, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &workflow.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &workflow, nil
}
