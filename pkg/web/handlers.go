// Package web provides HTTP handlers and REST API endpoints for workflow
// and run management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/services"
	"github.com/skillweave/skillweave/pkg/variables"
)

type APIHandlers struct {
	workflowService *services.Workflow
	runService      *services.Run
	contextService  *services.Context
	sessionService  *services.Session
	creditsService  *services.Credits
	variableService *variables.Service
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	runService *services.Run,
	contextService *services.Context,
	sessionService *services.Session,
	creditsService *services.Credits,
	variableService *variables.Service,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		runService:      runService,
		contextService:  contextService,
		sessionService:  sessionService,
		creditsService:  creditsService,
		variableService: variableService,
		validator:       validator,
	}
}

// RegisterRoutes mounts every API endpoint on the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/publish", h.PublishWorkflow)
	w.Post("/:id/runs", h.StartRun)
	w.Get("/:id/runs", h.ListRuns)
	w.Post("/:id/sessions", h.StartSession)
	w.Post("/:id/variables", h.ApplyVariables)
	w.Get("/:id/nodes/:nodeId/context", h.GetNodeGraphContext)

	r := app.Group("/runs")
	r.Get("/:id", h.GetRunStatus)
	r.Post("/:id/abort", h.AbortRun)
	r.Post("/:id/authorize", h.AuthorizeRun)

	s := app.Group("/sessions")
	s.Get("/:id/nodes", h.GetSessionNodes)
	s.Get("/:id/progress", h.GetSessionProgress)

	c := app.Group("/credits")
	c.Post("/cost", h.GetCreditCost)
	c.Get("/:scope/:scopeId", h.AggregateUsage)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		WorkspaceID: req.WorkspaceID,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
		Variables:   req.Variables,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	updated, err := h.workflowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	published, err := h.workflowService.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

// StartRun initializes a run. A run blocked on unauthorized toolsets comes
// back 202 with its blockers; an authorized run comes back 201 already
// handed to a worker.
func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	run, err := h.runService.StartRun(c.Context(), id, services.StartRunRequest{
		StartNodes:    req.StartNodes,
		Input:         req.Input,
		Authorization: req.Authorization,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	if run.Status == models.RunStatusInit {
		return c.Status(fiber.StatusAccepted).JSON(run)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	runs, err := h.runService.ListRuns(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

func (h *APIHandlers) GetRunStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	status, err := h.runService.GetRunStatus(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) AbortRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.AbortRun(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) AuthorizeRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	var req AuthorizeRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.RetryAuthorization(c.Context(), id, req.Authorization)
	if err != nil {
		return handleServiceError(c, err)
	}

	if run.Status == models.RunStatusInit {
		return c.Status(fiber.StatusAccepted).JSON(run)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetNodeGraphContext(c fiber.Ctx) error {
	workflowID := c.Params("id")
	nodeID := c.Params("nodeId")

	if workflowID == "" || nodeID == "" {
		return badRequest(c, "Workflow ID and node ID are required")
	}

	result, err := h.contextService.GetNodeGraphContext(c.Context(), workflowID, nodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// StartSession dispatches a divergent session to the workers and comes back
// 202 with the session id to poll.
func (h *APIHandlers) StartSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req StartSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	resp, err := h.sessionService.StartSession(c.Context(), id, services.StartSessionRequest{
		Goal:           req.Goal,
		PlannerSkill:   req.PlannerSkill,
		ExecutionSkill: req.ExecutionSkill,
		SummarySkill:   req.SummarySkill,
		FinalSkill:     req.FinalSkill,
		ScoreThreshold: req.ScoreThreshold,
		Input:          req.Input,
		Authorization:  req.Authorization,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

func (h *APIHandlers) GetSessionProgress(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	progress, err := h.sessionService.GetSessionProgress(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(progress)
}

func (h *APIHandlers) GetSessionNodes(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	result, err := h.sessionService.GetSessionNodes(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ApplyVariables(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ApplyVariablesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if len(req.Updates) == 0 {
		return badRequest(c, "At least one variable update is required")
	}

	pending, err := h.variableService.Apply(c.Context(), id, req.Updates)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(pending)
}

func (h *APIHandlers) GetCreditCost(c fiber.Ctx) error {
	var req CreditCostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Usage == nil {
		return badRequest(c, "Usage report is required")
	}

	cost, err := h.creditsService.GetCreditCost(req.Usage)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(cost)
}

func (h *APIHandlers) AggregateUsage(c fiber.Ctx) error {
	scope := c.Params("scope")
	scopeID := c.Params("scopeId")

	agg, err := h.creditsService.AggregateUsage(c.Context(), models.UsageScope(scope), scopeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(agg)
}
