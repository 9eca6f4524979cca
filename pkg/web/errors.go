package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/skillweave/skillweave/pkg/graph"
	"github.com/skillweave/skillweave/pkg/scheduler"
	"github.com/skillweave/skillweave/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// notFoundType names the missing resource in the problem type, so API
// callers can tell a missing workflow from a missing run.
func notFoundType(err error) string {
	switch {
	case errors.Is(err, services.ErrWorkflowNotFound):
		return "workflow_not_found"
	case errors.Is(err, services.ErrRunNotFound):
		return "run_not_found"
	case errors.Is(err, services.ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, services.ErrSessionNotFound):
		return "session_not_found"
	default:
		return "not_found"
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(notFoundType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, scheduler.ErrRunNotAuthorized):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("toolset_not_authorized").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case services.IsValidationError(err),
		errors.Is(err, graph.ErrCyclicDependency),
		errors.Is(err, scheduler.ErrStartNodeNotFound),
		errors.Is(err, scheduler.ErrStartNodeMissingTask):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err),
		errors.Is(err, scheduler.ErrWorkflowNotExecutable),
		errors.Is(err, scheduler.ErrRunNotRetryable):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, services.ErrDispatchUnavailable):
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("dispatch_unavailable").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
