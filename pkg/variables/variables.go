// Package variables applies workflow variable updates optimistically and
// reconciles them through a Redis stream, rolling back on confirmed failure.
package variables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dario.cat/mergo"
	redis "github.com/redis/go-redis/v9"

	"github.com/skillweave/skillweave/pkg/persistence"
)

const (
	// Stream is the Redis stream carrying pending variable updates.
	Stream = "skillweave:variable-updates"

	// Group is the consumer group reconcilers read the stream through.
	Group = "variable-reconcilers"
)

// ErrUpdateNotFound indicates the pending update id is unknown to the stream.
var ErrUpdateNotFound = errors.New("pending variable update not found")

// PendingUpdate is one optimistic variable commit awaiting reconciliation.
// Snapshot holds the prior values of every overwritten key; AbsentKeys lists
// updated keys that did not exist before, so rollback can delete them.
type PendingUpdate struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Updates    map[string]any `json:"updates"`
	Snapshot   map[string]any `json:"snapshot"`
	AbsentKeys []string       `json:"absent_keys,omitempty"`
	AppliedAt  time.Time      `json:"applied_at"`
}

// Service commits variable updates in two phases: the merge is applied and
// saved immediately, and a reconciliation entry goes onto the stream. A
// confirmed downstream failure rolls the workflow's variables back to the
// snapshot.
type Service struct {
	persistence persistence.Persistence
	client      redis.UniversalClient
	logger      *slog.Logger
}

// NewService creates a variable commit service. A nil client disables the
// reconciliation queue; updates then apply without rollback coverage.
func NewService(p persistence.Persistence, client redis.UniversalClient, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		client:      client,
		logger:      logger.With("module", "variables"),
	}
}

// EnsureGroup creates the stream and consumer group if missing.
func (s *Service) EnsureGroup(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	err := s.client.XGroupCreateMkStream(ctx, Stream, Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	return nil
}

// Apply merges the updates into the workflow's variables, saves, and queues
// a reconciliation entry. The returned pending update carries everything a
// rollback needs.
func (s *Service) Apply(ctx context.Context, workflowID string, updates map[string]any) (*PendingUpdate, error) {
	if len(updates) == 0 {
		return nil, errors.New("no variable updates given")
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	pending := &PendingUpdate{
		WorkflowID: workflowID,
		Updates:    updates,
		Snapshot:   make(map[string]any),
		AppliedAt:  time.Now().UTC(),
	}

	if workflow.Variables == nil {
		workflow.Variables = make(map[string]any)
	}

	for key := range updates {
		if prior, ok := workflow.Variables[key]; ok {
			pending.Snapshot[key] = prior
		} else {
			pending.AbsentKeys = append(pending.AbsentKeys, key)
		}
	}

	if err := mergo.Merge(&workflow.Variables, updates, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge variables: %w", err)
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, pending); err != nil {
		return nil, err
	}

	s.logger.Info("variables applied", "workflow_id", workflowID, "keys", len(updates), "update_id", pending.ID)

	return pending, nil
}

func (s *Service) enqueue(ctx context.Context, pending *PendingUpdate) error {
	if s.client == nil {
		s.logger.Warn("reconciliation queue disabled, update applied without rollback coverage",
			"workflow_id", pending.WorkflowID)

		return nil
	}

	payload, err := json.Marshal(pending)
	if err != nil {
		return err
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		Values: map[string]any{
			"workflow_id": pending.WorkflowID,
			"payload":     string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to queue reconciliation entry: %w", err)
	}

	pending.ID = id

	return nil
}

// Outcome reports whether the work a pending update fed into ultimately
// succeeded. Reconcile only acts once the outcome is known.
type Outcome func(ctx context.Context, pending *PendingUpdate) (succeeded, known bool, err error)

// Reconcile reads pending entries from the stream and settles each one whose
// outcome is known: successful updates are acknowledged and dropped, failed
// ones are rolled back first. Unknown outcomes stay pending for the next
// pass. Returns the number of settled entries.
func (s *Service) Reconcile(ctx context.Context, consumer string, outcome Outcome) (int, error) {
	if s.client == nil {
		return 0, errors.New("reconciliation queue disabled")
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    Group,
		Consumer: consumer,
		Streams:  []string{Stream, ">"},
		Count:    64,
		Block:    time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read reconciliation stream: %w", err)
	}

	settled := 0

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			pending, err := decodePending(msg)
			if err != nil {
				s.logger.Error("dropping malformed reconciliation entry", "entry_id", msg.ID, "error", err)
				s.ack(ctx, msg.ID)

				continue
			}

			succeeded, known, err := outcome(ctx, pending)
			if err != nil {
				return settled, err
			}

			if !known {
				continue
			}

			if !succeeded {
				if err := s.Rollback(ctx, pending); err != nil {
					return settled, err
				}
			}

			s.ack(ctx, msg.ID)

			settled++
		}
	}

	return settled, nil
}

// Rollback restores the overwritten keys to their snapshot values and
// removes keys the update introduced.
func (s *Service) Rollback(ctx context.Context, pending *PendingUpdate) error {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, pending.WorkflowID)
	if err != nil {
		return err
	}

	if workflow.Variables == nil {
		workflow.Variables = make(map[string]any)
	}

	for key, prior := range pending.Snapshot {
		workflow.Variables[key] = prior
	}

	for _, key := range pending.AbsentKeys {
		delete(workflow.Variables, key)
	}

	if err := s.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return err
	}

	s.logger.Warn("variable update rolled back",
		"workflow_id", pending.WorkflowID, "update_id", pending.ID, "keys", len(pending.Updates))

	return nil
}

func (s *Service) ack(ctx context.Context, entryID string) {
	if err := s.client.XAck(ctx, Stream, Group, entryID).Err(); err != nil {
		s.logger.Error("failed to ack reconciliation entry", "entry_id", entryID, "error", err)
	}

	if err := s.client.XDel(ctx, Stream, entryID).Err(); err != nil {
		s.logger.Error("failed to delete reconciliation entry", "entry_id", entryID, "error", err)
	}
}

func decodePending(msg redis.XMessage) (*PendingUpdate, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: entry %s has no payload", ErrUpdateNotFound, msg.ID)
	}

	var pending PendingUpdate
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return nil, err
	}

	pending.ID = msg.ID

	return &pending, nil
}
