// Command skillweave is a command-line caller for the Skillweave API. Every
// invocation prints one JSON envelope on stdout; the exit code encodes the
// failure group.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/services"
	"github.com/skillweave/skillweave/pkg/variables"
	"github.com/skillweave/skillweave/pkg/web"
)

func main() {
	var client *Client

	command := &cli.Command{
		Name:                  "skillweave",
		Usage:                 "Manage skill workflows, runs, and sessions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Base URL of the Skillweave API",
				Value:   "http://localhost:9091",
				Sources: cli.EnvVars("SKILLWEAVE_API_URL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			client = NewClient(command.String("api-url"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:    "workflow",
				Aliases: []string{"w"},
				Usage:   "Manage workflow definitions",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List workflows",
						Action: func(ctx context.Context, _ *cli.Command) error {
							var result map[string]any
							if envErr := client.do(ctx, http.MethodGet, "/workflows", nil, &result); envErr != nil {
								return fail(envErr)
							}

							return emit("workflow_list", result["workflows"])
						},
					},
					{
						Name:      "get",
						Usage:     "Fetch one workflow",
						ArgsUsage: "<workflow-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "workflow-id")
							if envErr != nil {
								return fail(envErr)
							}

							var workflow models.Workflow
							if envErr := client.do(ctx, http.MethodGet, "/workflows/"+id, nil, &workflow); envErr != nil {
								return fail(envErr)
							}

							return emit("workflow", workflow)
						},
					},
					{
						Name:      "create",
						Usage:     "Create a workflow from a JSON definition file",
						ArgsUsage: "<definition.json>",
						Action: func(ctx context.Context, command *cli.Command) error {
							path, envErr := requireArg(command, 0, "definition file")
							if envErr != nil {
								return fail(envErr)
							}

							raw, err := os.ReadFile(path)
							if err != nil {
								return fail(&EnvelopeError{Code: "VALIDATION_BAD_INPUT", Message: err.Error()})
							}

							var req web.CreateWorkflowRequest
							if err := json.Unmarshal(raw, &req); err != nil {
								return fail(&EnvelopeError{
									Code:    "VALIDATION_BAD_INPUT",
									Message: err.Error(),
									Hint:    "the definition file must be a JSON workflow document",
								})
							}

							var workflow models.Workflow
							if envErr := client.do(ctx, http.MethodPost, "/workflows", req, &workflow); envErr != nil {
								return fail(envErr)
							}

							return emit("workflow", workflow)
						},
					},
					{
						Name:      "publish",
						Usage:     "Publish a draft workflow",
						ArgsUsage: "<workflow-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "workflow-id")
							if envErr != nil {
								return fail(envErr)
							}

							var workflow models.Workflow
							if envErr := client.do(ctx, http.MethodPost, "/workflows/"+id+"/publish", nil, &workflow); envErr != nil {
								return fail(envErr)
							}

							return emit("workflow", workflow)
						},
					},
				},
			},
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Manage workflow runs",
				Commands: []*cli.Command{
					{
						Name:      "start",
						Usage:     "Start a run",
						ArgsUsage: "<workflow-id>",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:  "start-node",
								Usage: "Restrict the run to these nodes and their downstream closure",
							},
							&cli.StringFlag{
								Name:  "input",
								Usage: "JSON document passed to the run as external input",
							},
						},
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "workflow-id")
							if envErr != nil {
								return fail(envErr)
							}

							req := web.StartRunRequest{StartNodes: command.StringSlice("start-node")}

							if raw := command.String("input"); raw != "" {
								if err := json.Unmarshal([]byte(raw), &req.Input); err != nil {
									return fail(&EnvelopeError{
										Code:    "VALIDATION_BAD_INPUT",
										Message: err.Error(),
										Hint:    "--input must be a JSON object",
									})
								}
							}

							var run models.WorkflowRun
							if envErr := client.do(ctx, http.MethodPost, "/workflows/"+id+"/runs", req, &run); envErr != nil {
								return fail(envErr)
							}

							if run.Status == models.RunStatusInit {
								return fail(&EnvelopeError{
									Code:    "AUTH_TOOLSET_BLOCKED",
									Message: "run blocked on unauthorized toolsets",
									Details: run.UnauthorizedTools,
									Hint:    "authorize the listed toolsets, then retry with 'run authorize " + run.ID + "'",
								})
							}

							return emit("run", run)
						},
					},
					{
						Name:      "status",
						Usage:     "Fetch a run and its node execution records",
						ArgsUsage: "<run-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "run-id")
							if envErr != nil {
								return fail(envErr)
							}

							var status services.RunStatusResponse
							if envErr := client.do(ctx, http.MethodGet, "/runs/"+id, nil, &status); envErr != nil {
								return fail(envErr)
							}

							return emit("run_status", status)
						},
					},
					{
						Name:      "abort",
						Usage:     "Abort a run",
						ArgsUsage: "<run-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "run-id")
							if envErr != nil {
								return fail(envErr)
							}

							var run models.WorkflowRun
							if envErr := client.do(ctx, http.MethodPost, "/runs/"+id+"/abort", nil, &run); envErr != nil {
								return fail(envErr)
							}

							return emit("run", run)
						},
					},
					{
						Name:      "authorize",
						Usage:     "Retry a blocked run with fresh toolset grants",
						ArgsUsage: "<run-id>",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:  "toolset",
								Usage: "Toolset ID to authorize (repeatable)",
							},
						},
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "run-id")
							if envErr != nil {
								return fail(envErr)
							}

							auth := make(models.ToolsetAuthorization)
							for _, toolsetID := range command.StringSlice("toolset") {
								auth[toolsetID] = true
							}

							var run models.WorkflowRun
							envErr2 := client.do(ctx, http.MethodPost, "/runs/"+id+"/authorize", web.AuthorizeRunRequest{Authorization: auth}, &run)
							if envErr2 != nil {
								return fail(envErr2)
							}

							if run.Status == models.RunStatusInit {
								return fail(&EnvelopeError{
									Code:    "AUTH_TOOLSET_BLOCKED",
									Message: "run still blocked on unauthorized toolsets",
									Details: run.UnauthorizedTools,
									Hint:    "the grant did not cover every blocked toolset",
								})
							}

							return emit("run", run)
						},
					},
				},
			},
			{
				Name:      "context",
				Usage:     "Show the task ids upstream and downstream of a node",
				ArgsUsage: "<workflow-id> <node-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					workflowID, envErr := requireArg(command, 0, "workflow-id")
					if envErr != nil {
						return fail(envErr)
					}

					nodeID, envErr := requireArg(command, 1, "node-id")
					if envErr != nil {
						return fail(envErr)
					}

					var result services.NodeGraphContext
					if envErr := client.do(ctx, http.MethodGet, "/workflows/"+workflowID+"/nodes/"+nodeID+"/context", nil, &result); envErr != nil {
						return fail(envErr)
					}

					return emit("node_graph_context", result)
				},
			},
			{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Start and inspect divergent sessions",
				Commands: []*cli.Command{
					{
						Name:      "start",
						Usage:     "Start a divergent session on a published workflow",
						ArgsUsage: "<workflow-id>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "goal",
								Usage:    "Goal the session decomposes and pursues",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "planner-skill",
								Usage: "Skill that plans each level's subgoals",
							},
							&cli.StringFlag{
								Name:  "execution-skill",
								Usage: "Skill run for each planned subgoal",
							},
							&cli.StringFlag{
								Name:  "summary-skill",
								Usage: "Skill that folds a level's outputs",
							},
							&cli.StringFlag{
								Name:  "final-skill",
								Usage: "Skill that produces the final output",
							},
							&cli.FloatFlag{
								Name:  "threshold",
								Usage: "Completion score at which the session converges",
							},
							&cli.StringFlag{
								Name:  "input",
								Usage: "JSON document passed to the session as external input",
							},
							&cli.StringSliceFlag{
								Name:  "toolset",
								Usage: "Toolset ID to authorize (repeatable)",
							},
						},
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "workflow-id")
							if envErr != nil {
								return fail(envErr)
							}

							req := web.StartSessionRequest{
								Goal:           command.String("goal"),
								PlannerSkill:   command.String("planner-skill"),
								ExecutionSkill: command.String("execution-skill"),
								SummarySkill:   command.String("summary-skill"),
								FinalSkill:     command.String("final-skill"),
								ScoreThreshold: command.Float("threshold"),
							}

							if raw := command.String("input"); raw != "" {
								if err := json.Unmarshal([]byte(raw), &req.Input); err != nil {
									return fail(&EnvelopeError{
										Code:    "VALIDATION_BAD_INPUT",
										Message: err.Error(),
										Hint:    "--input must be a JSON object",
									})
								}
							}

							if toolsets := command.StringSlice("toolset"); len(toolsets) > 0 {
								req.Authorization = make(models.ToolsetAuthorization)
								for _, toolsetID := range toolsets {
									req.Authorization[toolsetID] = true
								}
							}

							var started services.StartSessionResponse
							if envErr := client.do(ctx, http.MethodPost, "/workflows/"+id+"/sessions", req, &started); envErr != nil {
								return fail(envErr)
							}

							return emit("session", started)
						},
					},
					{
						Name:      "progress",
						Usage:     "Show a session's current level and completion score",
						ArgsUsage: "<session-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "session-id")
							if envErr != nil {
								return fail(envErr)
							}

							var progress services.SessionProgress
							if envErr := client.do(ctx, http.MethodGet, "/sessions/"+id+"/progress", nil, &progress); envErr != nil {
								return fail(envErr)
							}

							return emit("session_progress", progress)
						},
					},
					{
						Name:      "nodes",
						Usage:     "List a session's nodes ordered by level",
						ArgsUsage: "<session-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							id, envErr := requireArg(command, 0, "session-id")
							if envErr != nil {
								return fail(envErr)
							}

							var result services.SessionNodesResponse
							if envErr := client.do(ctx, http.MethodGet, "/sessions/"+id+"/nodes", nil, &result); envErr != nil {
								return fail(envErr)
							}

							return emit("session_nodes", result)
						},
					},
				},
			},
			{
				Name:  "credits",
				Usage: "Query credit costs and usage",
				Commands: []*cli.Command{
					{
						Name:      "cost",
						Usage:     "Price a usage report without recording it",
						ArgsUsage: "<usage.json>",
						Action: func(ctx context.Context, command *cli.Command) error {
							path, envErr := requireArg(command, 0, "usage file")
							if envErr != nil {
								return fail(envErr)
							}

							raw, err := os.ReadFile(path)
							if err != nil {
								return fail(&EnvelopeError{Code: "VALIDATION_BAD_INPUT", Message: err.Error()})
							}

							var usage models.UsageReport
							if err := json.Unmarshal(raw, &usage); err != nil {
								return fail(&EnvelopeError{Code: "VALIDATION_BAD_INPUT", Message: err.Error()})
							}

							var cost services.CreditCostResponse
							if envErr := client.do(ctx, http.MethodPost, "/credits/cost", web.CreditCostRequest{Usage: &usage}, &cost); envErr != nil {
								return fail(envErr)
							}

							return emit("credit_cost", cost)
						},
					},
					{
						Name:      "usage",
						Usage:     "Aggregate recorded usage within a scope",
						ArgsUsage: "<scope> <scope-id>",
						Action: func(ctx context.Context, command *cli.Command) error {
							scope, envErr := requireArg(command, 0, "scope")
							if envErr != nil {
								return fail(envErr)
							}

							scopeID, envErr := requireArg(command, 1, "scope-id")
							if envErr != nil {
								return fail(envErr)
							}

							var agg models.UsageAggregate
							if envErr := client.do(ctx, http.MethodGet, "/credits/"+scope+"/"+scopeID, nil, &agg); envErr != nil {
								return fail(envErr)
							}

							return emit("usage_aggregate", agg)
						},
					},
				},
			},
			{
				Name:      "variables",
				Usage:     "Apply an optimistic variable update to a workflow",
				ArgsUsage: "<workflow-id> <updates-json>",
				Action: func(ctx context.Context, command *cli.Command) error {
					workflowID, envErr := requireArg(command, 0, "workflow-id")
					if envErr != nil {
						return fail(envErr)
					}

					raw, envErr := requireArg(command, 1, "updates")
					if envErr != nil {
						return fail(envErr)
					}

					var updates map[string]any
					if err := json.Unmarshal([]byte(raw), &updates); err != nil {
						return fail(&EnvelopeError{
							Code:    "VALIDATION_BAD_INPUT",
							Message: err.Error(),
							Hint:    "updates must be a JSON object",
						})
					}

					var pending variables.PendingUpdate
					if envErr := client.do(ctx, http.MethodPost, "/workflows/"+workflowID+"/variables", web.ApplyVariablesRequest{Updates: updates}, &pending); envErr != nil {
						return fail(envErr)
					}

					return emit("pending_variable_update", pending)
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}

		os.Exit(exitInternal)
	}
}

func requireArg(command *cli.Command, index int, name string) (string, *EnvelopeError) {
	value := command.Args().Get(index)
	if value == "" {
		return "", &EnvelopeError{
			Code:    "VALIDATION_MISSING_ARGUMENT",
			Message: name + " is required",
		}
	}

	return value, nil
}
