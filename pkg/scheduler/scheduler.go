// Package scheduler drives workflow runs: it materializes per-node execution
// records, dispatches eligible nodes concurrently, propagates skips across
// failed subtrees, and settles the run's terminal status.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/events"
	"github.com/skillweave/skillweave/pkg/gate"
	"github.com/skillweave/skillweave/pkg/graph"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// StartOptions configures a run start.
type StartOptions struct {
	// StartNodes restricts the run to the listed nodes and everything
	// downstream of them. Empty means the full graph.
	StartNodes []string

	// Input is the external variable document bound into node inputs.
	Input map[string]any

	// Authorization is the invoking principal's toolset grants, read fresh
	// for this attempt.
	Authorization models.ToolsetAuthorization
}

// Scheduler owns the run lifecycle from authorization through terminal status.
type Scheduler struct {
	persistence persistence.Persistence
	gate        *gate.Gate
	meter       *credits.Meter
	executor    Executor
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	workerID    string

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates a scheduler. The executor performs per-node work; everything
// else is orchestration state.
func New(
	p persistence.Persistence,
	g *gate.Gate,
	meter *credits.Meter,
	executor Executor,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	workerID string,
) *Scheduler {
	return &Scheduler{
		persistence: p,
		gate:        g,
		meter:       meter,
		executor:    executor,
		publisher:   publisher,
		logger:      logger.With("module", "scheduler", "worker_id", workerID),
		workerID:    workerID,
		active:      make(map[string]context.CancelFunc),
	}
}

// StartRun creates a run for the workflow. When every referenced toolset is
// authorized the run leaves init immediately: execution records are
// materialized and the run is saved as pending. Otherwise the run stays in
// init carrying the blocker list, and the caller retries via RetryStart
// after fixing authorizations.
func (s *Scheduler) StartRun(ctx context.Context, workflow *models.Workflow, opts StartOptions) (*models.WorkflowRun, error) {
	if workflow.Status != models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrWorkflowNotExecutable, workflow.ID, workflow.Status)
	}

	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	snapshot, err := graph.NewSnapshot(workflow.Nodes, workflow.Edges)
	if err != nil {
		return nil, err
	}

	scope, err := s.resolveScope(snapshot, opts.StartNodes)
	if err != nil {
		return nil, err
	}

	run := &models.WorkflowRun{
		ID:         "run-" + uuid.New().String()[:8],
		WorkflowID: workflow.ID,
		Status:     models.RunStatusInit,
		StartNodes: opts.StartNodes,
		Input:      opts.Input,
		StartedAt:  time.Now().UTC(),
	}

	blockers := s.gate.Check(snapshot, scope, opts.Authorization)
	if len(blockers) > 0 {
		run.UnauthorizedTools = blockers

		if err := s.persistence.RunRepository().Save(ctx, run); err != nil {
			return nil, err
		}

		return run, nil
	}

	if err := s.materialize(ctx, run, snapshot, scope); err != nil {
		return nil, err
	}

	return run, nil
}

// RetryStart re-checks authorization for a run stuck in init. Each attempt
// reads the grants passed now, never the ones from the failed attempt.
func (s *Scheduler) RetryStart(ctx context.Context, workflow *models.Workflow, runID string, auth models.ToolsetAuthorization) (*models.WorkflowRun, error) {
	run, err := s.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusInit {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotRetryable, runID, run.Status)
	}

	snapshot, err := graph.NewSnapshot(workflow.Nodes, workflow.Edges)
	if err != nil {
		return nil, err
	}

	scope, err := s.resolveScope(snapshot, run.StartNodes)
	if err != nil {
		return nil, err
	}

	blockers := s.gate.Check(snapshot, scope, auth)
	if len(blockers) > 0 {
		run.UnauthorizedTools = blockers

		if err := s.persistence.RunRepository().Save(ctx, run); err != nil {
			return nil, err
		}

		return run, nil
	}

	run.UnauthorizedTools = nil

	if err := s.materialize(ctx, run, snapshot, scope); err != nil {
		return nil, err
	}

	return run, nil
}

// resolveScope computes and validates the execution scope. Cycles inside the
// scope can never become eligible, so they fail the start instead of hanging
// the run.
func (s *Scheduler) resolveScope(snapshot *graph.Snapshot, startNodes []string) ([]string, error) {
	for _, id := range startNodes {
		node := snapshot.Node(id)
		if node == nil {
			return nil, fmt.Errorf("%w: %s", ErrStartNodeNotFound, id)
		}

		if node.TaskID == "" {
			return nil, fmt.Errorf("%w: %s", ErrStartNodeMissingTask, id)
		}
	}

	scope := snapshot.NodeIDs()
	if len(startNodes) > 0 {
		scope = snapshot.Closure(startNodes)
	}

	if _, err := snapshot.TopologicalOrder(scope); err != nil {
		return nil, err
	}

	return scope, nil
}

// materialize creates the full record set for the run and promotes it to
// pending. Out-of-scope nodes get records immediately marked skipped, loaded
// with their most recent prior outputs so in-scope consumers can bind them.
func (s *Scheduler) materialize(ctx context.Context, run *models.WorkflowRun, snapshot *graph.Snapshot, scope []string) error {
	inScope := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		inScope[id] = struct{}{}
	}

	var prior map[string]map[string]any

	if run.Partial() {
		var err error

		prior, err = s.persistence.NodeExecutionRepository().LatestOutputs(ctx, run.WorkflowID)
		if err != nil {
			return err
		}
	}

	records := make([]*models.NodeExecutionRecord, 0, len(snapshot.NodeIDs()))

	for _, nodeID := range snapshot.NodeIDs() {
		node := snapshot.Node(nodeID)

		record := &models.NodeExecutionRecord{
			RunID:  run.ID,
			NodeID: nodeID,
			TaskID: node.TaskID,
			Status: models.NodeExecutionPending,
		}

		if _, ok := inScope[nodeID]; !ok {
			record.Status = models.NodeExecutionSkipped
			record.SkipReason = models.SkipReasonOutOfScope
			record.Output = prior[nodeID]
		}

		records = append(records, record)
	}

	if err := s.persistence.NodeExecutionRepository().SaveAll(ctx, records); err != nil {
		return err
	}

	run.Status = models.RunStatusPending

	return s.persistence.RunRepository().Save(ctx, run)
}

type nodeResult struct {
	nodeID string
	record *models.NodeExecutionRecord
}

// Execute drives a pending or running run until it reaches a terminal
// status. It is safe to call on a run recovered from persistence: eligibility
// is recomputed from the stored records, so completed work is never redone.
func (s *Scheduler) Execute(ctx context.Context, workflow *models.Workflow, runID string) (*models.WorkflowRun, error) {
	run, err := s.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status.Terminal() {
		return run, nil
	}

	if run.Status == models.RunStatusInit {
		return nil, fmt.Errorf("%w: run %s", ErrRunNotAuthorized, runID)
	}

	snapshot, err := graph.NewSnapshot(workflow.Nodes, workflow.Edges)
	if err != nil {
		return nil, err
	}

	stored, err := s.persistence.NodeExecutionRepository().ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	records := make(map[string]*models.NodeExecutionRecord, len(stored))
	for _, record := range stored {
		records[record.NodeID] = record
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.register(runID, cancel)
	defer s.unregister(runID)

	if run.Status == models.RunStatusPending {
		run.Status = models.RunStatusRunning
		if err := s.persistence.RunRepository().Save(ctx, run); err != nil {
			return nil, err
		}

		s.publish(ctx, run.WorkflowID, events.RunStarted{
			BaseEvent:  s.baseEvent(events.RunStartedEvent, run.WorkflowID),
			RunID:      run.ID,
			StartNodes: run.StartNodes,
			ScopeSize:  countInScope(records),
		})
	}

	s.logger.Info("executing run", "run_id", runID, "workflow_id", run.WorkflowID, "nodes", len(records))

	done := make(chan nodeResult)
	inflight := 0

	for {
		if runCtx.Err() == nil {
			s.applySkips(ctx, run, snapshot, records)
			inflight += s.dispatchEligible(runCtx, run, snapshot, records, done)
		}

		if inflight == 0 {
			break
		}

		select {
		case result := <-done:
			inflight--
			records[result.nodeID] = result.record
		case <-runCtx.Done():
			// Drain what is already running, then settle below.
			for inflight > 0 {
				result := <-done
				inflight--
				records[result.nodeID] = result.record
			}
		}
	}

	return s.settle(ctx, run, records)
}

// Abort requests termination of a run. Aborting a terminal run is a no-op
// returning the stored status; repeated aborts are idempotent.
func (s *Scheduler) Abort(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	run, err := s.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status.Terminal() {
		return run, nil
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusAborted
	run.FinishedAt = &now

	if err := s.persistence.RunRepository().Save(ctx, run); err != nil {
		return nil, err
	}

	s.skipRemaining(ctx, runID, models.SkipReasonRunAborted)
	s.cancelActive(runID)

	s.publish(ctx, run.WorkflowID, events.RunAborted{
		BaseEvent: s.baseEvent(events.RunAbortedEvent, run.WorkflowID),
		RunID:     runID,
	})

	s.logger.Info("run aborted", "run_id", runID)

	return run, nil
}

// applySkips marks pending nodes whose upstream failures make them
// unrunnable, cascading until no further skips apply.
func (s *Scheduler) applySkips(ctx context.Context, run *models.WorkflowRun, snapshot *graph.Snapshot, records map[string]*models.NodeExecutionRecord) {
	for changed := true; changed; {
		changed = false

		for nodeID, record := range records {
			if record.Status != models.NodeExecutionPending {
				continue
			}

			if !s.shouldSkip(snapshot, nodeID, records) {
				continue
			}

			swapped, err := s.persistence.NodeExecutionRepository().CompareAndSwapStatus(
				ctx, run.ID, nodeID, models.NodeExecutionPending, models.NodeExecutionSkipped)
			if err != nil || !swapped {
				continue
			}

			fresh, err := s.persistence.NodeExecutionRepository().Get(ctx, run.ID, nodeID)
			if err != nil {
				fresh = record
				fresh.Status = models.NodeExecutionSkipped
			}

			fresh.SkipReason = models.SkipReasonUpstreamFailed

			if err := s.persistence.NodeExecutionRepository().Save(ctx, fresh); err != nil {
				s.logger.Error("failed to persist skip", "run_id", run.ID, "node_id", nodeID, "error", err)
			}

			records[nodeID] = fresh

			s.publish(ctx, run.WorkflowID, events.NodeSkipped{
				BaseEvent: s.baseEvent(events.NodeSkippedEvent, run.WorkflowID),
				RunID:     run.ID,
				NodeID:    nodeID,
				Reason:    models.SkipReasonUpstreamFailed,
			})

			changed = true
		}
	}
}

// shouldSkip reports whether upstream failures doom this pending node. Node
// types that tolerate partial upstream failure only skip when every
// predecessor failed.
func (s *Scheduler) shouldSkip(snapshot *graph.Snapshot, nodeID string, records map[string]*models.NodeExecutionRecord) bool {
	node := snapshot.Node(nodeID)
	preds := snapshot.Predecessors(nodeID)

	if len(preds) == 0 {
		return false
	}

	failures := 0
	terminal := 0

	for _, pred := range preds {
		record, ok := records[pred]
		if !ok {
			continue
		}

		if record.Status.Terminal() {
			terminal++
		}

		if record.Failure() {
			failures++
		}
	}

	if node.Type.ToleratesUpstreamFailure() {
		return terminal == len(preds) && failures == len(preds)
	}

	return failures > 0
}

// eligible reports whether every in-scope predecessor reached a terminal
// non-failure state. Failure-tolerant node types additionally require at
// least one usable upstream result.
func (s *Scheduler) eligible(snapshot *graph.Snapshot, nodeID string, records map[string]*models.NodeExecutionRecord) bool {
	node := snapshot.Node(nodeID)
	preds := snapshot.Predecessors(nodeID)

	succeeded := 0

	for _, pred := range preds {
		record, ok := records[pred]
		if !ok {
			continue
		}

		if !record.Status.Terminal() {
			return false
		}

		if !record.Failure() {
			succeeded++
		}
	}

	if node.Type.ToleratesUpstreamFailure() {
		return len(preds) == 0 || succeeded > 0
	}

	return succeeded == countRecorded(preds, records)
}

func countRecorded(preds []string, records map[string]*models.NodeExecutionRecord) int {
	n := 0

	for _, pred := range preds {
		if _, ok := records[pred]; ok {
			n++
		}
	}

	return n
}

// dispatchEligible starts every currently eligible pending node and returns
// how many were dispatched. The pending-to-running swap fences duplicate
// dispatches: losing the swap means another worker took the node.
func (s *Scheduler) dispatchEligible(ctx context.Context, run *models.WorkflowRun, snapshot *graph.Snapshot, records map[string]*models.NodeExecutionRecord, done chan<- nodeResult) int {
	dispatched := 0

	for nodeID, record := range records {
		if record.Status != models.NodeExecutionPending {
			continue
		}

		if !s.eligible(snapshot, nodeID, records) {
			continue
		}

		swapped, err := s.persistence.NodeExecutionRepository().CompareAndSwapStatus(
			ctx, run.ID, nodeID, models.NodeExecutionPending, models.NodeExecutionRunning)
		if err != nil {
			s.logger.Error("dispatch swap failed", "run_id", run.ID, "node_id", nodeID, "error", err)

			continue
		}

		if !swapped {
			continue
		}

		record.Status = models.NodeExecutionRunning

		node := snapshot.Node(nodeID)
		inputs := s.gatherInputs(node, run, records)

		s.publish(ctx, run.WorkflowID, events.NodeDispatched{
			BaseEvent: s.baseEvent(events.NodeDispatchedEvent, run.WorkflowID),
			RunID:     run.ID,
			NodeID:    nodeID,
			TaskID:    node.TaskID,
		})

		go s.runNode(ctx, run, node, inputs, done)

		dispatched++
	}

	return dispatched
}

// gatherInputs resolves a node's input bindings against upstream outputs and
// the run's external input document.
func (s *Scheduler) gatherInputs(node *models.Node, run *models.WorkflowRun, records map[string]*models.NodeExecutionRecord) map[string]any {
	inputs := make(map[string]any, len(node.Inputs))

	for _, binding := range node.Inputs {
		switch {
		case binding.SourceNodeID != "":
			record, ok := records[binding.SourceNodeID]
			if !ok || record.Output == nil {
				continue
			}

			if binding.OutputField == "" {
				inputs[binding.Name] = record.Output
			} else if value, ok := record.Output[binding.OutputField]; ok {
				inputs[binding.Name] = value
			}
		case binding.Variable != "":
			if value, ok := run.Input[binding.Variable]; ok {
				inputs[binding.Name] = value
			}
		}
	}

	return inputs
}

// runNode executes one node and persists its terminal record. Completion is
// idempotent: the running-to-terminal swap makes redelivered results no-ops.
func (s *Scheduler) runNode(ctx context.Context, run *models.WorkflowRun, node *models.Node, inputs map[string]any, done chan<- nodeResult) {
	started := time.Now()
	result, execErr := s.executor.ExecuteNode(ctx, run, node, inputs)

	repo := s.persistence.NodeExecutionRepository()

	// Persist with a fresh context so completion survives run cancellation.
	saveCtx := context.WithoutCancel(ctx)

	target := models.NodeExecutionSucceeded
	if execErr != nil {
		target = models.NodeExecutionFailed
	}

	swapped, err := repo.CompareAndSwapStatus(saveCtx, run.ID, node.ID, models.NodeExecutionRunning, target)
	if err != nil {
		s.logger.Error("completion swap failed", "run_id", run.ID, "node_id", node.ID, "error", err)
	}

	record, getErr := repo.Get(saveCtx, run.ID, node.ID)
	if getErr != nil {
		s.logger.Error("failed to reload record", "run_id", run.ID, "node_id", node.ID, "error", getErr)
		done <- nodeResult{nodeID: node.ID, record: &models.NodeExecutionRecord{RunID: run.ID, NodeID: node.ID, Status: target}}

		return
	}

	if swapped {
		if execErr != nil {
			record.ErrorMessage = execErr.Error()

			s.publish(saveCtx, run.WorkflowID, events.NodeFailed{
				BaseEvent: s.baseEvent(events.NodeFailedEvent, run.WorkflowID),
				RunID:     run.ID,
				NodeID:    node.ID,
				Error:     execErr.Error(),
			})
		} else {
			record.Output = result.Output
			record.Usage = result.Usage

			s.recordUsage(saveCtx, run, node, result.Usage)

			s.publish(saveCtx, run.WorkflowID, events.NodeCompleted{
				BaseEvent:  s.baseEvent(events.NodeCompletedEvent, run.WorkflowID),
				RunID:      run.ID,
				NodeID:     node.ID,
				Output:     result.Output,
				Usage:      result.Usage,
				DurationMs: time.Since(started).Milliseconds(),
			})
		}

		if err := repo.Save(saveCtx, record); err != nil {
			s.logger.Error("failed to persist record", "run_id", run.ID, "node_id", node.ID, "error", err)
		}
	}

	done <- nodeResult{nodeID: node.ID, record: record}
}

// recordUsage bills a completed node execution. Built-in free skills produce
// no record; a billable execution that costs zero is logged for diagnostics
// but never blocks completion.
func (s *Scheduler) recordUsage(ctx context.Context, run *models.WorkflowRun, node *models.Node, usage *models.UsageReport) {
	if usage == nil {
		return
	}

	if node.Skill != nil {
		if _, free := credits.NonBillableSkills[node.Skill.SkillName]; free {
			return
		}
	}

	record := s.meter.Record(run.ID, node.ID, usage)
	if record == nil {
		s.logger.Warn("billable execution produced no charge",
			"run_id", run.ID, "node_id", node.ID, "modality", usage.Modality)

		return
	}

	if err := s.persistence.CreditUsageRepository().Save(ctx, record); err != nil {
		s.logger.Error("failed to persist credit usage", "run_id", run.ID, "node_id", node.ID, "error", err)
	}
}

// settle computes and persists the run's terminal status from its records.
func (s *Scheduler) settle(ctx context.Context, run *models.WorkflowRun, records map[string]*models.NodeExecutionRecord) (*models.WorkflowRun, error) {
	// An abort may have landed while nodes were draining.
	current, err := s.persistence.RunRepository().GetByID(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	if current.Status == models.RunStatusAborted {
		s.skipRemaining(ctx, run.ID, models.SkipReasonRunAborted)

		return current, nil
	}

	var failed []string

	for nodeID, record := range records {
		if record.Failure() {
			failed = append(failed, nodeID)
		}
	}

	now := time.Now().UTC()
	current.FinishedAt = &now

	if len(failed) > 0 {
		current.Status = models.RunStatusFailed
		current.ErrorMessage = fmt.Sprintf("%d node(s) failed or were skipped by upstream failures: %s",
			len(failed), strings.Join(failed, ", "))
	} else {
		current.Status = models.RunStatusCompleted
	}

	if err := s.persistence.RunRepository().Save(ctx, current); err != nil {
		return nil, err
	}

	duration := now.Sub(current.StartedAt)

	if current.Status == models.RunStatusFailed {
		s.publish(ctx, current.WorkflowID, events.RunFailed{
			BaseEvent:     s.baseEvent(events.RunFailedEvent, current.WorkflowID),
			RunID:         current.ID,
			FailedNodeIDs: failed,
			Error:         current.ErrorMessage,
			Duration:      duration,
		})
	} else {
		s.publish(ctx, current.WorkflowID, events.RunCompleted{
			BaseEvent: s.baseEvent(events.RunCompletedEvent, current.WorkflowID),
			RunID:     current.ID,
			Duration:  duration,
		})
	}

	s.logger.Info("run settled", "run_id", current.ID, "status", current.Status, "duration", duration)

	return current, nil
}

// skipRemaining marks every still-pending record of the run skipped with the
// given reason.
func (s *Scheduler) skipRemaining(ctx context.Context, runID string, reason models.SkipReason) {
	repo := s.persistence.NodeExecutionRepository()

	stored, err := repo.ListByRun(ctx, runID)
	if err != nil {
		s.logger.Error("failed to list records for skip", "run_id", runID, "error", err)

		return
	}

	for _, record := range stored {
		if record.Status != models.NodeExecutionPending {
			continue
		}

		swapped, err := repo.CompareAndSwapStatus(ctx, runID, record.NodeID, models.NodeExecutionPending, models.NodeExecutionSkipped)
		if err != nil || !swapped {
			continue
		}

		fresh, err := repo.Get(ctx, runID, record.NodeID)
		if err != nil {
			continue
		}

		fresh.SkipReason = reason

		if err := repo.Save(ctx, fresh); err != nil {
			s.logger.Error("failed to persist skip reason", "run_id", runID, "node_id", record.NodeID, "error", err)
		}
	}
}

func countInScope(records map[string]*models.NodeExecutionRecord) int {
	n := 0

	for _, record := range records {
		if record.SkipReason != models.SkipReasonOutOfScope {
			n++
		}
	}

	return n
}

func (s *Scheduler) register(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[runID] = cancel
}

func (s *Scheduler) unregister(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, runID)
}

func (s *Scheduler) cancelActive(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.active[runID]; ok {
		cancel()
	}
}

func (s *Scheduler) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = s.workerID

	return base
}

func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
