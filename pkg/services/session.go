package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillweave/skillweave/pkg/divergent"
	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/events"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// SessionNodesResponse lists a divergent session's nodes ordered by level.
type SessionNodesResponse struct {
	SessionID string         `json:"session_id"`
	Converged bool           `json:"converged"`
	MaxLevel  int            `json:"max_level"`
	Nodes     []*models.Node `json:"nodes"`
}

// StartSessionRequest carries the options for starting a divergent session.
// Empty skill names fall back to the worker's defaults.
type StartSessionRequest struct {
	Goal           string                      `json:"goal"`
	PlannerSkill   string                      `json:"planner_skill,omitempty"`
	ExecutionSkill string                      `json:"execution_skill,omitempty"`
	SummarySkill   string                      `json:"summary_skill,omitempty"`
	FinalSkill     string                      `json:"final_skill,omitempty"`
	ScoreThreshold float64                     `json:"score_threshold,omitempty"`
	Input          map[string]any              `json:"input,omitempty"`
	Authorization  models.ToolsetAuthorization `json:"authorization,omitempty"`
}

// StartSessionResponse acknowledges a dispatched session start.
type StartSessionResponse struct {
	SessionID  string `json:"session_id"`
	WorkflowID string `json:"workflow_id"`
}

// SessionProgress is the live view of a running session, fed by
// session-scoped level events. For sessions without a live watcher it is
// reconstructed from the persisted node metadata.
type SessionProgress struct {
	SessionID       string    `json:"session_id"`
	Level           int       `json:"level"`
	CompletionScore float64   `json:"completion_score"`
	Converged       bool      `json:"converged"`
	DepthCapped     bool      `json:"depth_capped"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Session starts divergent sessions and answers queries about them. Session
// starts are handed to workers through the event bus; progress is tracked by
// a session-scoped subscription so status queries need no polling.
type Session struct {
	persistence persistence.Persistence
	bus         eventbus.EventBus
	logger      *slog.Logger

	mu       sync.RWMutex
	progress map[string]*SessionProgress
}

// NewSession creates a new session service. A nil bus disables session
// starts and live progress; queries still work.
func NewSession(p persistence.Persistence, bus eventbus.EventBus, logger *slog.Logger) *Session {
	return &Session{
		persistence: p,
		bus:         bus,
		logger:      logger.With("module", "session_service"),
		progress:    make(map[string]*SessionProgress),
	}
}

// StartSession dispatches a divergent session against a published workflow
// and begins watching its progress. The session runs on a worker; the
// returned session id keys all follow-up queries.
func (s *Session) StartSession(ctx context.Context, workflowID string, req StartSessionRequest) (*StartSessionResponse, error) {
	if s.bus == nil {
		return nil, ErrDispatchUnavailable
	}

	if req.Goal == "" {
		return nil, ErrGoalRequired
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotPublished, workflowID)
	}

	sessionID := divergent.NewSessionID()

	s.watch(sessionID)

	event := events.SessionStartRequested{
		BaseEvent:      events.NewBaseEvent(events.SessionStartRequestedEvent, workflowID),
		SessionID:      sessionID,
		Goal:           req.Goal,
		PlannerSkill:   req.PlannerSkill,
		ExecutionSkill: req.ExecutionSkill,
		SummarySkill:   req.SummarySkill,
		FinalSkill:     req.FinalSkill,
		ScoreThreshold: req.ScoreThreshold,
		Input:          req.Input,
		Authorization:  req.Authorization,
	}

	if err := s.bus.Publish(ctx, workflowID, event); err != nil {
		s.bus.DropSession(sessionID)
		s.forget(sessionID)

		return nil, err
	}

	s.logger.InfoContext(ctx, "Session start dispatched", "session_id", sessionID, "workflow_id", workflowID)

	return &StartSessionResponse{SessionID: sessionID, WorkflowID: workflowID}, nil
}

// watch subscribes to the session's scoped events and mirrors them into the
// progress map. The subscription is dropped once the session converges.
func (s *Session) watch(sessionID string) {
	s.mu.Lock()
	s.progress[sessionID] = &SessionProgress{SessionID: sessionID, UpdatedAt: time.Now().UTC()}
	s.mu.Unlock()

	s.bus.HandleSession(sessionID, func(_ context.Context, event any) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		entry, ok := s.progress[sessionID]
		if !ok {
			return nil
		}

		switch e := event.(type) {
		case *events.SessionLevelCompleted:
			entry.Level = e.Level
			entry.CompletionScore = e.CompletionScore
		case *events.SessionConverged:
			entry.Level = e.FinalLevel
			entry.Converged = true
			entry.DepthCapped = e.DepthCapped
			s.bus.DropSession(sessionID)
		}

		entry.UpdatedAt = time.Now().UTC()

		return nil
	})
}

func (s *Session) forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.progress, sessionID)
}

// GetSessionProgress returns the session's live progress when a watcher
// exists, falling back to the persisted node metadata otherwise.
func (s *Session) GetSessionProgress(ctx context.Context, sessionID string) (*SessionProgress, error) {
	s.mu.RLock()
	entry, ok := s.progress[sessionID]

	if ok {
		snapshot := *entry
		s.mu.RUnlock()

		return &snapshot, nil
	}

	s.mu.RUnlock()

	nodes, err := s.GetSessionNodes(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	progress := &SessionProgress{
		SessionID: sessionID,
		Level:     nodes.MaxLevel,
		Converged: nodes.Converged,
	}

	for _, node := range nodes.Nodes {
		if node.Divergent.Role == models.DivergentRoleSummary && node.Divergent.CompletionScore != nil {
			progress.CompletionScore = *node.Divergent.CompletionScore
		}
	}

	return progress, nil
}

// GetSessionNodes returns every node belonging to the session, ordered by
// level then id. The session index on node metadata makes sessions
// recoverable without separate session state.
func (s *Session) GetSessionNodes(ctx context.Context, sessionID string) (*SessionNodesResponse, error) {
	nodes, err := s.persistence.WorkflowRepository().NodesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	resp := &SessionNodesResponse{
		SessionID: sessionID,
		Nodes:     nodes,
	}

	for _, node := range nodes {
		if node.Divergent.Level > resp.MaxLevel {
			resp.MaxLevel = node.Divergent.Level
		}

		if node.Divergent.Role == models.DivergentRoleFinalOutput {
			resp.Converged = true
		}
	}

	return resp, nil
}
