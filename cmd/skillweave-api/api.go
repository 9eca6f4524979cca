// Package main provides the Skillweave API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	redis "github.com/redis/go-redis/v9"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/gate"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/poller"
	"github.com/skillweave/skillweave/pkg/scheduler"
	"github.com/skillweave/skillweave/pkg/services"
	"github.com/skillweave/skillweave/pkg/variables"
	"github.com/skillweave/skillweave/pkg/web"
)

const schedulePollInterval = 30 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	runService  *services.Run
	handlers    *web.APIHandlers
}

func NewAPI(logger *slog.Logger, p persistence.Persistence, eventBus eventbus.EventBus, redisURL string) *API {
	meter := credits.NewMeter(credits.DefaultRates, logger)

	// The API never executes nodes itself; runs it starts are handed to
	// workers over the event bus.
	sched := scheduler.New(p, gate.New(logger), meter, nil, eventBus, logger, "api")

	runService := services.NewRun(p, sched, eventBus, logger)

	var redisClient redis.UniversalClient
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(p, nil),
		runService,
		services.NewContext(p),
		services.NewSession(p, eventBus, logger),
		services.NewCredits(p, meter),
		variables.NewService(p, redisClient, logger),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	return &API{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		runService:  runService,
		handlers:    handlers,
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Skillweave API")
	})

	a.handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	err := poller.Wait(ctx, "persistence layer", func(ctx context.Context) (bool, error) {
		return a.persistence.HealthCheck(ctx) == nil, nil
	}, 500*time.Millisecond, 30*time.Second)
	if err != nil {
		return err
	}

	// Session progress watchers are fed through the bus.
	if err := a.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	return a.App().Listen(":" + strconv.Itoa(port))
}

// RunScheduleLoop starts runs for due schedules and advances their next due
// time. One loop per API instance is enough; overlapping instances at worst
// start a duplicate run, never corrupt a schedule.
func (a *API) RunScheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(schedulePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.startDueSchedules(ctx)
		}
	}
}

func (a *API) startDueSchedules(ctx context.Context) {
	due, err := a.persistence.ScheduleRepository().ListDue(ctx, time.Now().UTC())
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to list due schedules", "error", err)

		return
	}

	for _, schedule := range due {
		a.startSchedule(ctx, schedule)
	}
}

func (a *API) startSchedule(ctx context.Context, schedule *models.Schedule) {
	logger := a.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

	run, err := a.runService.StartRun(ctx, schedule.WorkflowID, services.StartRunRequest{
		Input: schedule.Input,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start scheduled run", "error", err)
	} else {
		logger.InfoContext(ctx, "Scheduled run started", "run_id", run.ID, "status", run.Status)
	}

	// Advance the schedule even when the start failed, so a broken
	// workflow cannot wedge the loop into retrying every tick.
	if err := schedule.UpdateNextDueAt(); err != nil {
		logger.ErrorContext(ctx, "Failed to advance schedule", "error", err)

		return
	}

	if err := a.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
		logger.ErrorContext(ctx, "Failed to save schedule", "error", err)
	}
}
