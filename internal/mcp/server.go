// Package mcp exposes workflow runs as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"workflow-orchestrator/backend/internal/services"
	"workflow-orchestrator/backend/pkg/models"
)

// maxWait bounds the wait_seconds argument of start_run.
const maxWait = 60 * time.Second

type Server struct {
	mcpServer       *server.MCPServer
	workflowService *services.WorkflowService
}

func NewServer(workflowService *services.WorkflowService, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Workflow Orchestrator",
			version,
			server.WithToolCapabilities(true),
		),
		workflowService: workflowService,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List the workflows that can be started"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_run",
			mcp.WithDescription("Start a run of a stored workflow and return the run"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithObject("input", mcp.Description("The run input payload")),
			mcp.WithNumber("wait_seconds", mcp.Description("Seconds to wait for the run to finish (max 60)")),
		),
		s.handleStartRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_run",
			mcp.WithDescription("Get the status, output and step log of a run"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
		),
		s.handleGetRun,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"cancel_run",
			mcp.WithDescription("Cancel a run that is still executing"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("The ID of the run")),
		),
		s.handleCancelRun,
	)
}

// workflowSummary is the list_workflows view of a workflow.
type workflowSummary struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       int            `json:"steps"`
	InputSchema *models.Schema `json:"input_schema,omitempty"`
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflows, err := s.workflowService.ListWorkflows(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}
	out := make([]workflowSummary, 0, len(workflows))
	for _, w := range workflows {
		out = append(out, workflowSummary{ID: w.ID, Name: w.Name, Description: w.Description, Steps: len(w.Steps), InputSchema: w.InputSchema})
	}
	return jsonResult(out)
}

func (s *Server) handleStartRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := request.RequireString("workflow_id")
	if err != nil || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	args := request.GetArguments()
	input := models.Payload{}
	if raw, ok := args["input"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("Parameter input must be an object"), nil
		}
		input = m
	}

	wait := time.Duration(request.GetFloat("wait_seconds", 0) * float64(time.Second))
	if wait > maxWait {
		wait = maxWait
	}

	run, err := s.workflowService.StartRun(ctx, services.RunRequest{WorkflowID: workflowID, Input: input, Wait: wait})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start run: %v", err)), nil
	}
	return jsonResult(run)
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil || runID == "" {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}
	run, err := s.workflowService.GetRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get run: %v", err)), nil
	}
	return jsonResult(run)
}

func (s *Server) handleCancelRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil || runID == "" {
		return mcp.NewToolResultError("Missing required parameter: run_id"), nil
	}
	run, err := s.workflowService.CancelRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel run: %v", err)), nil
	}
	return jsonResult(run)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Handler serves the SSE transport under basePath: events on
// basePath/sse and client messages on basePath/message.
func Handler(mcpServer *server.MCPServer, basePath string) *server.SSEServer {
	basePath = "/" + strings.Trim(basePath, "/")
	return server.NewSSEServer(mcpServer, server.WithStaticBasePath(basePath))
}
