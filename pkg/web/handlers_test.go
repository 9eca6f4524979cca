package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/gate"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence/file"
	"github.com/skillweave/skillweave/pkg/scheduler"
	"github.com/skillweave/skillweave/pkg/services"
	"github.com/skillweave/skillweave/pkg/variables"
	"github.com/skillweave/skillweave/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.Default()

	executor := scheduler.ExecutorFunc(func(_ context.Context, _ *models.WorkflowRun, node *models.Node, _ map[string]any) (*scheduler.ExecutionResult, error) {
		return &scheduler.ExecutionResult{Output: map[string]any{"node": node.ID}}, nil
	})

	meter := credits.NewMeter(credits.RateTable{
		"text": {Modality: "text", InputCost: 0.5, OutputCost: 2.0},
	}, logger)

	sched := scheduler.New(p, gate.New(logger), meter, executor, nil, logger, "worker-test")

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubsub, pubsub)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(p, nil),
		services.NewRun(p, sched, nil, logger),
		services.NewContext(p),
		services.NewSession(p, bus, logger),
		services.NewCredits(p, meter),
		variables.NewService(p, nil, logger),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return app, p
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func createTestWorkflow(t *testing.T, app *fiber.App) models.Workflow {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name: "Test Workflow",
		Nodes: []*models.Node{
			{
				ID:     "n1",
				Type:   models.NodeTypeSkill,
				Name:   "first",
				TaskID: "task-n1",
				Skill:  &models.SkillConfig{SkillName: "echo"},
			},
			{ID: "n2", Type: models.NodeTypeOutput, Name: "out", TaskID: "task-n2"},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "n1", TargetNodeID: "n2"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	return workflow
}

func TestCreateWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	workflow := createTestWorkflow(t, app)
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
}

func TestCreateWorkflow_InvalidBody(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows", map[string]any{"name": "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublishThenStartRun(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/runs", web.StartRunRequest{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run models.WorkflowRun
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, models.RunStatusPending, run.Status)

	resp, body = doJSON(t, app, http.MethodGet, "/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status services.RunStatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Len(t, status.Records, 2)
}

func TestStartRun_DraftConflict(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/runs", web.StartRunRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAbortRun(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/runs", web.StartRunRequest{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run models.WorkflowRun
	require.NoError(t, json.Unmarshal(body, &run))

	resp, body = doJSON(t, app, http.MethodPost, "/runs/"+run.ID+"/abort", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var aborted models.WorkflowRun
	require.NoError(t, json.Unmarshal(body, &aborted))
	assert.Equal(t, models.RunStatusAborted, aborted.Status)
}

func TestNodeGraphContext(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/nodes/n2/context", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result services.NodeGraphContext
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, []string{"task-n1"}, result.UpstreamTaskIDs)
	assert.Empty(t, result.DownstreamTaskIDs)
}

func TestApplyVariables(t *testing.T) {
	app, p := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/variables", web.ApplyVariablesRequest{
		Updates: map[string]any{"region": "eu"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var pending variables.PendingUpdate
	require.NoError(t, json.Unmarshal(body, &pending))
	assert.Equal(t, workflow.ID, pending.WorkflowID)

	stored, err := p.WorkflowRepository().GetByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "eu", stored.Variables["region"])
}

func TestCreditCost(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/credits/cost", web.CreditCostRequest{
		Usage: &models.UsageReport{Modality: "text", PromptUnits: 2000, OutputUnits: 500},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cost services.CreditCostResponse
	require.NoError(t, json.Unmarshal(body, &cost))
	assert.InDelta(t, 2.0, cost.Amount, 1e-9)
}

func TestAggregateUsage_InvalidScope(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/credits/galaxy/x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartSession(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/sessions", web.StartSessionRequest{
		Goal: "summarize the repo",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started services.StartSessionResponse
	require.NoError(t, json.Unmarshal(body, &started))
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, workflow.ID, started.WorkflowID)

	resp, body = doJSON(t, app, http.MethodGet, "/sessions/"+started.SessionID+"/progress", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var progress services.SessionProgress
	require.NoError(t, json.Unmarshal(body, &progress))
	assert.Equal(t, started.SessionID, progress.SessionID)
	assert.False(t, progress.Converged)
}

func TestStartSession_RequiresGoal(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/sessions", web.StartSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartSession_DraftConflict(t *testing.T) {
	app, _ := setupTestApp(t)
	workflow := createTestWorkflow(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/"+workflow.ID+"/sessions", web.StartSessionRequest{
		Goal: "too early",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSessionNodes_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/sessions/ds-none/nodes", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}
