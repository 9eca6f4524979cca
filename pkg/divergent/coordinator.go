// Package divergent coordinates recursive decomposition sessions: leveled
// fan-out of execution nodes, a per-level summary scoring progress, and a
// single converging final output.
package divergent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/events"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/scheduler"
)

// CompletionScoreField is the summary output field carrying the level's
// progress score.
const CompletionScoreField = "completionScore"

// DefaultScoreThreshold converges a session once a summary scores at or
// above it.
const DefaultScoreThreshold = 0.9

// Planner decides what execution work the next level consists of. The
// summary record of the previous level is nil at level zero.
type Planner interface {
	PlanLevel(ctx context.Context, sessionID string, level int, parentSummary *models.NodeExecutionRecord) ([]*models.Node, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, sessionID string, level int, parentSummary *models.NodeExecutionRecord) ([]*models.Node, error)

func (f PlannerFunc) PlanLevel(ctx context.Context, sessionID string, level int, parentSummary *models.NodeExecutionRecord) ([]*models.Node, error) {
	return f(ctx, sessionID, level, parentSummary)
}

// SessionResult summarizes a finished divergent session.
type SessionResult struct {
	SessionID   string         `json:"session_id"`
	FinalLevel  int            `json:"final_level"`
	FinalOutput map[string]any `json:"final_output,omitempty"`
	FinalScore  float64        `json:"final_score"`
	DepthCapped bool           `json:"depth_capped"`
}

// SessionOptions configures a session run.
type SessionOptions struct {
	// ScoreThreshold converges the session once reached. Zero means the
	// default threshold.
	ScoreThreshold float64

	// SummarySkill names the skill invoked to fold a level's outputs.
	SummarySkill string

	// FinalSkill names the skill invoked for the converging final output.
	FinalSkill string

	// Input is passed through to every level's run.
	Input map[string]any

	// Authorization covers toolsets the planned nodes reference.
	Authorization models.ToolsetAuthorization
}

// Coordinator drives divergent sessions on top of the run scheduler. Each
// level is one partial run scoped to that level's nodes; session state lives
// entirely in the workflow's node metadata, recoverable via the session
// index.
type Coordinator struct {
	persistence persistence.Persistence
	scheduler   *scheduler.Scheduler
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewCoordinator(p persistence.Persistence, s *scheduler.Scheduler, publisher eventbus.EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		persistence: p,
		scheduler:   s,
		publisher:   publisher,
		logger:      logger.With("module", "divergent"),
	}
}

// NewSessionID mints a session identifier.
func NewSessionID() string {
	return "ds-" + uuid.New().String()[:8]
}

// RunSession decomposes work level by level until a summary scores at or
// above the threshold or the depth cap is hit, then converges on exactly one
// final output node. The workflow is mutated in place and saved as levels
// are added.
func (c *Coordinator) RunSession(ctx context.Context, workflow *models.Workflow, sessionID string, planner Planner, opts SessionOptions) (*SessionResult, error) {
	threshold := opts.ScoreThreshold
	if threshold == 0 {
		threshold = DefaultScoreThreshold
	}

	existing, err := c.persistence.WorkflowRepository().NodesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for _, node := range existing {
		if node.Divergent.Role == models.DivergentRoleFinalOutput {
			return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyConverged, sessionID)
		}
	}

	var (
		parentSummary *models.NodeExecutionRecord
		summaryNodeID string
		score         float64
	)

	logger := c.logger.With("session_id", sessionID, "workflow_id", workflow.ID)

	for level := 0; level <= models.MaxDivergentLevel; level++ {
		planned, err := planner.PlanLevel(ctx, sessionID, level, parentSummary)
		if err != nil {
			return nil, fmt.Errorf("planning level %d: %w", level, err)
		}

		if len(planned) == 0 {
			// Nothing left to decompose: converge on what we have.
			return c.converge(ctx, workflow, sessionID, level, summaryNodeID, score, false, opts)
		}

		summaryID, err := c.buildLevel(ctx, workflow, sessionID, level, planned, summaryNodeID, opts)
		if err != nil {
			return nil, err
		}

		startNodes := make([]string, 0, len(planned))
		for _, node := range planned {
			startNodes = append(startNodes, node.ID)
		}

		summaryRecord, err := c.runLevel(ctx, workflow, level, startNodes, opts, summaryID)
		if err != nil {
			return nil, err
		}

		score, err = extractScore(summaryRecord)
		if err != nil {
			return nil, fmt.Errorf("level %d summary: %w", level, err)
		}

		summaryNode := workflow.NodeByID(summaryID)
		if err := summaryNode.Divergent.SetCompletionScore(score); err != nil {
			return nil, fmt.Errorf("level %d summary: %w", level, err)
		}

		if err := c.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
			return nil, err
		}

		logger.Info("level completed", "level", level, "completion_score", score)

		c.publish(ctx, workflow.ID, events.SessionLevelCompleted{
			BaseEvent:       events.NewBaseEvent(events.SessionLevelCompletedEvent, workflow.ID),
			SessionID:       sessionID,
			Level:           level,
			CompletionScore: score,
		})

		parentSummary = summaryRecord
		summaryNodeID = summaryID

		if score >= threshold {
			return c.converge(ctx, workflow, sessionID, level, summaryNodeID, score, false, opts)
		}
	}

	// Depth cap reached without convergence by score.
	return c.converge(ctx, workflow, sessionID, models.MaxDivergentLevel, summaryNodeID, score, true, opts)
}

// buildLevel appends the level's execution nodes and its summary node to the
// workflow. Execution nodes reference the previous summary through parent
// back-references, never through ownership edges.
func (c *Coordinator) buildLevel(ctx context.Context, workflow *models.Workflow, sessionID string, level int, planned []*models.Node, prevSummaryID string, opts SessionOptions) (string, error) {
	var parents []string
	if prevSummaryID != "" {
		parents = []string{prevSummaryID}
	}

	summaryID := fmt.Sprintf("%s-l%d-summary", sessionID, level)

	summaryMeta, err := models.NewDivergentMetadata(models.DivergentRoleSummary, level, sessionID, parents)
	if err != nil {
		return "", err
	}

	summarySkill := opts.SummarySkill
	if summarySkill == "" {
		summarySkill = "summarize_level"
	}

	summaryNode := &models.Node{
		ID:        summaryID,
		Type:      models.NodeTypeSkill,
		Name:      fmt.Sprintf("level %d summary", level),
		TaskID:    "task-" + summaryID,
		Skill:     &models.SkillConfig{SkillName: summarySkill},
		Divergent: summaryMeta,
	}

	for _, node := range planned {
		meta, err := models.NewDivergentMetadata(models.DivergentRoleExecution, level, sessionID, parents)
		if err != nil {
			return "", err
		}

		node.Divergent = meta

		if err := node.Validate(); err != nil {
			return "", err
		}

		workflow.Nodes = append(workflow.Nodes, node)
		workflow.Edges = append(workflow.Edges, &models.Edge{
			ID:           "e-" + node.ID + "-" + summaryID,
			SourceNodeID: node.ID,
			TargetNodeID: summaryID,
		})
	}

	workflow.Nodes = append(workflow.Nodes, summaryNode)

	if err := c.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return "", err
	}

	return summaryID, nil
}

// runLevel executes one level as a partial run scoped to its execution nodes
// and returns the summary's execution record.
func (c *Coordinator) runLevel(ctx context.Context, workflow *models.Workflow, level int, startNodes []string, opts SessionOptions, summaryID string) (*models.NodeExecutionRecord, error) {
	run, err := c.scheduler.StartRun(ctx, workflow, scheduler.StartOptions{
		StartNodes:    startNodes,
		Input:         opts.Input,
		Authorization: opts.Authorization,
	})
	if err != nil {
		return nil, err
	}

	if run.Status == models.RunStatusInit {
		return nil, fmt.Errorf("%w: level %d blocked on unauthorized toolsets", ErrLevelFailed, level)
	}

	final, err := c.scheduler.Execute(ctx, workflow, run.ID)
	if err != nil {
		return nil, err
	}

	if final.Status != models.RunStatusCompleted {
		return nil, fmt.Errorf("%w: level %d run %s ended %s", ErrLevelFailed, level, final.ID, final.Status)
	}

	return c.persistence.NodeExecutionRepository().Get(ctx, final.ID, summaryID)
}

// converge creates the session's single final output node, runs it, and
// publishes the convergence event.
func (c *Coordinator) converge(ctx context.Context, workflow *models.Workflow, sessionID string, level int, summaryNodeID string, score float64, depthCapped bool, opts SessionOptions) (*SessionResult, error) {
	finalID := sessionID + "-final"

	var parents []string
	if summaryNodeID != "" {
		parents = []string{summaryNodeID}
	}

	meta, err := models.NewDivergentMetadata(models.DivergentRoleFinalOutput, level, sessionID, parents)
	if err != nil {
		return nil, err
	}

	finalSkill := opts.FinalSkill
	if finalSkill == "" {
		finalSkill = "finalize_session"
	}

	finalNode := &models.Node{
		ID:        finalID,
		Type:      models.NodeTypeSkill,
		Name:      "session final output",
		TaskID:    "task-" + finalID,
		Skill:     &models.SkillConfig{SkillName: finalSkill},
		Divergent: meta,
	}

	workflow.Nodes = append(workflow.Nodes, finalNode)

	if summaryNodeID != "" {
		workflow.Edges = append(workflow.Edges, &models.Edge{
			ID:           "e-" + summaryNodeID + "-" + finalID,
			SourceNodeID: summaryNodeID,
			TargetNodeID: finalID,
		})
	}

	if err := c.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	record, err := c.runLevel(ctx, workflow, level, []string{finalID}, opts, finalID)
	if err != nil {
		return nil, err
	}

	c.publish(ctx, workflow.ID, events.SessionConverged{
		BaseEvent:         events.NewBaseEvent(events.SessionConvergedEvent, workflow.ID),
		SessionID:         sessionID,
		FinalLevel:        level,
		FinalOutputNodeID: finalID,
		DepthCapped:       depthCapped,
	})

	c.logger.Info("session converged",
		"session_id", sessionID, "final_level", level, "depth_capped", depthCapped, "final_score", score)

	return &SessionResult{
		SessionID:   sessionID,
		FinalLevel:  level,
		FinalOutput: record.Output,
		FinalScore:  score,
		DepthCapped: depthCapped,
	}, nil
}

// extractScore reads the completion score from a summary's output. A missing
// or non-numeric score is a fatal input error, and out-of-range values are
// rejected by the metadata setter rather than clamped.
func extractScore(record *models.NodeExecutionRecord) (float64, error) {
	if record == nil || record.Output == nil {
		return 0, ErrMissingCompletionScore
	}

	raw, ok := record.Output[CompletionScoreField]
	if !ok {
		return 0, ErrMissingCompletionScore
	}

	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: got %T", ErrMissingCompletionScore, raw)
	}
}

func (c *Coordinator) publish(ctx context.Context, key string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, key, event); err != nil {
		c.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
