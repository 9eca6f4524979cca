// Package events defines event types for run and session lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/skillweave/skillweave/pkg/models"
)

type EventType string

// Kafka topics.
const Topic = "skillweave.events"                 // Run and node lifecycle events
const RunRequestTopic = "skillweave.run.requests" // Run start requests consumed by workers

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const SessionMetadataKey = "session_id"

const (
	// Run lifecycle events.
	RunStartRequestedEvent EventType = "run.start.requested"
	RunStartedEvent        EventType = "run.started"
	RunCompletedEvent      EventType = "run.completed"
	RunFailedEvent         EventType = "run.failed"
	RunAbortedEvent        EventType = "run.aborted"

	// Node lifecycle events.
	NodeDispatchedEvent EventType = "node.dispatched"
	NodeCompletedEvent  EventType = "node.completed"
	NodeFailedEvent     EventType = "node.failed"
	NodeSkippedEvent    EventType = "node.skipped"

	// Divergent session events.
	SessionStartRequestedEvent EventType = "session.start.requested"
	SessionLevelCompletedEvent EventType = "session.level.completed"
	SessionConvergedEvent      EventType = "session.converged"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event with a fresh identifier and timestamp.
func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         "ev-" + uuid.New().String()[:8],
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// RunStartRequested asks a worker to start a run. StartNodes restricts the
// run to a subtree; empty means the full graph.
type RunStartRequested struct {
	BaseEvent

	RunID      string         `json:"run_id"`
	StartNodes []string       `json:"start_nodes,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

func (e RunStartRequested) GetType() EventType {
	return RunStartRequestedEvent
}

type RunStarted struct {
	BaseEvent

	RunID      string   `json:"run_id"`
	StartNodes []string `json:"start_nodes,omitempty"`
	ScopeSize  int      `json:"scope_size"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID    string        `json:"run_id"`
	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID         string        `json:"run_id"`
	FailedNodeIDs []string      `json:"failed_node_ids,omitempty"`
	Error         string        `json:"error"`
	Duration      time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunAborted struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (e RunAborted) GetType() EventType {
	return RunAbortedEvent
}

type NodeDispatched struct {
	BaseEvent

	RunID  string `json:"run_id"`
	NodeID string `json:"node_id"`
	TaskID string `json:"task_id,omitempty"`
}

func (e NodeDispatched) GetType() EventType {
	return NodeDispatchedEvent
}

type NodeCompleted struct {
	BaseEvent

	RunID      string              `json:"run_id"`
	NodeID     string              `json:"node_id"`
	Output     map[string]any      `json:"output,omitempty"`
	Usage      *models.UsageReport `json:"usage,omitempty"`
	DurationMs int64               `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	RunID  string `json:"run_id"`
	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type NodeSkipped struct {
	BaseEvent

	RunID  string            `json:"run_id"`
	NodeID string            `json:"node_id"`
	Reason models.SkipReason `json:"reason"`
}

func (e NodeSkipped) GetType() EventType {
	return NodeSkippedEvent
}

// SessionStartRequested asks a worker to run a divergent session against the
// workflow. Empty skill names fall back to the worker's defaults.
type SessionStartRequested struct {
	BaseEvent

	SessionID      string                      `json:"session_id"`
	Goal           string                      `json:"goal"`
	PlannerSkill   string                      `json:"planner_skill,omitempty"`
	ExecutionSkill string                      `json:"execution_skill,omitempty"`
	SummarySkill   string                      `json:"summary_skill,omitempty"`
	FinalSkill     string                      `json:"final_skill,omitempty"`
	ScoreThreshold float64                     `json:"score_threshold,omitempty"`
	Input          map[string]any              `json:"input,omitempty"`
	Authorization  models.ToolsetAuthorization `json:"authorization,omitempty"`
}

func (e SessionStartRequested) GetType() EventType {
	return SessionStartRequestedEvent
}

// SessionKey tags the event for session-scoped subscriptions.
func (e SessionStartRequested) SessionKey() string {
	return e.SessionID
}

// SessionLevelCompleted fires when every execution node of one divergent
// level reached a terminal state and the summary scored the level.
type SessionLevelCompleted struct {
	BaseEvent

	SessionID       string  `json:"session_id"`
	Level           int     `json:"level"`
	CompletionScore float64 `json:"completion_score"`
}

func (e SessionLevelCompleted) GetType() EventType {
	return SessionLevelCompletedEvent
}

// SessionKey tags the event for session-scoped subscriptions.
func (e SessionLevelCompleted) SessionKey() string {
	return e.SessionID
}

// SessionConverged fires when a divergent session produced its final output,
// either by reaching the score threshold or hitting the depth cap.
type SessionConverged struct {
	BaseEvent

	SessionID         string `json:"session_id"`
	FinalLevel        int    `json:"final_level"`
	FinalOutputNodeID string `json:"final_output_node_id"`
	DepthCapped       bool   `json:"depth_capped"`
}

func (e SessionConverged) GetType() EventType {
	return SessionConvergedEvent
}

// SessionKey tags the event for session-scoped subscriptions.
func (e SessionConverged) SessionKey() string {
	return e.SessionID
}
