package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/divergent"
	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/events"
	"github.com/skillweave/skillweave/pkg/gate"
	"github.com/skillweave/skillweave/pkg/otelhelper"
	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/registry"
	"github.com/skillweave/skillweave/pkg/scheduler"
)

// Worker consumes run and session start requests and drives the scheduler
// over the workflow graph, executing nodes through the registry.
type Worker struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *registry.Registry
	scheduler   *scheduler.Scheduler
	coordinator *divergent.Coordinator
	tracer      trace.Tracer
}

func NewWorker(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	reg *registry.Registry,
	logger *slog.Logger,
) *Worker {
	meter := credits.NewMeter(credits.DefaultRates, logger)
	executor := registry.NewExecutor(reg, logger)
	sched := scheduler.New(p, gate.New(logger), meter, executor, eventBus, logger, id)

	return &Worker{
		id:          id,
		logger:      logger.With("module", "worker"),
		persistence: p,
		eventBus:    eventBus,
		registry:    reg,
		scheduler:   sched,
		coordinator: divergent.NewCoordinator(p, sched, eventBus, logger),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker", "worker_id", w.id)

	tracer, err := otelhelper.NewTracer(ctx, "skillweave-worker")
	if err != nil {
		return err
	}

	w.tracer = tracer

	if err := w.eventBus.Handle(events.RunStartRequestedEvent, w.handleRunStartRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.SessionStartRequestedEvent, w.handleSessionStartRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}

func (w *Worker) handleRunStartRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.RunStartRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunStartRequested")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "execute_run",
		attribute.String(otelhelper.WorkflowIDKey, request.WorkflowID),
		attribute.String(otelhelper.RunIDKey, request.RunID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("workflow_id", request.WorkflowID, "run_id", request.RunID)
	logger.InfoContext(ctx, "Processing run start request")

	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, request.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to fetch workflow", "error", err)

		return err
	}

	run, err := w.scheduler.Execute(ctx, workflow, request.RunID)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Run execution failed", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Run settled", "status", run.Status)

	return nil
}

func (w *Worker) handleSessionStartRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.SessionStartRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for SessionStartRequested")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "run_session",
		attribute.String(otelhelper.WorkflowIDKey, request.WorkflowID),
		attribute.String(otelhelper.SessionIDKey, request.SessionID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	logger := w.logger.With("workflow_id", request.WorkflowID, "session_id", request.SessionID)
	logger.InfoContext(ctx, "Processing session start request", "goal", request.Goal)

	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, request.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to fetch workflow", "error", err)

		return err
	}

	planner := registry.NewSessionPlanner(w.registry, request.PlannerSkill, request.ExecutionSkill, request.Goal)

	result, err := w.coordinator.RunSession(ctx, workflow, request.SessionID, planner, divergent.SessionOptions{
		ScoreThreshold: request.ScoreThreshold,
		SummarySkill:   request.SummarySkill,
		FinalSkill:     request.FinalSkill,
		Input:          request.Input,
		Authorization:  request.Authorization,
	})
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Session execution failed", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Session converged",
		"final_level", result.FinalLevel, "final_score", result.FinalScore, "depth_capped", result.DepthCapped)

	return nil
}
