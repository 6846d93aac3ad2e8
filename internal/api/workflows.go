package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workflow-orchestrator/backend/internal/services"
	"workflow-orchestrator/backend/pkg/models"
)

// MaxWait caps the wait query parameter.
const MaxWait = 60 * time.Second

// Server holds the dependencies for the API server.
type Server struct {
	Service *services.WorkflowService
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates a new Server.
func NewServer(service *services.WorkflowService) *Server {
	return &Server{Service: service}
}

// ListComponents returns a list of all components
// (GET /api/v1/components)
func (s *Server) ListComponents(c echo.Context) error {
	components, err := s.Service.ListComponents(c.Request().Context())
	if err != nil {
		return err
	}
	if components == nil {
		components = []*models.Component{}
	}
	return c.JSON(http.StatusOK, components)
}

// GetComponent returns one component
// (GET /api/v1/components/{id})
func (s *Server) GetComponent(c echo.Context, id string) error {
	component, err := s.Service.GetComponent(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, component)
}

// GetComponentSchema returns a component's contracts as JSON Schema
// (GET /api/v1/components/{id}/schema)
func (s *Server) GetComponentSchema(c echo.Context, id string) error {
	schemas, err := s.Service.ComponentSchemas(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, schemas)
}

// ListWorkflows returns a list of all workflows
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	workflows, err := s.Service.ListWorkflows(c.Request().Context())
	if err != nil {
		return err
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns one workflow
// (GET /api/v1/workflows/{id})
func (s *Server) GetWorkflow(c echo.Context, id string) error {
	workflow, err := s.Service.GetWorkflow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflow)
}

// ValidationResult is returned for a valid workflow.
type ValidationResult struct {
	WorkflowID string `json:"workflow_id"`
	Valid      bool   `json:"valid"`
}

// ValidateWorkflow checks a stored workflow
// (POST /api/v1/workflows/{id}/validate)
func (s *Server) ValidateWorkflow(c echo.Context, id string) error {
	if err := s.Service.ValidateWorkflow(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ValidationResult{WorkflowID: id, Valid: true})
}

// StartWorkflowRunRequest is the body of StartWorkflowRun.
type StartWorkflowRunRequest struct {
	Input models.Payload `json:"input"`
}

// StartWorkflowRun starts a run of a stored workflow
// (POST /api/v1/workflows/{id}/runs)
func (s *Server) StartWorkflowRun(c echo.Context, id string, params StartRunParams) error {
	var body StartWorkflowRunRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	wait, err := parseWait(params)
	if err != nil {
		return err
	}
	return s.startRun(c, services.RunRequest{WorkflowID: id, Input: body.Input, Wait: wait})
}

// StartRun starts a run of a stored or inline workflow
// (POST /api/v1/runs)
func (s *Server) StartRun(c echo.Context, params StartRunParams) error {
	var req services.RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	wait, err := parseWait(params)
	if err != nil {
		return err
	}
	req.Wait = wait
	return s.startRun(c, req)
}

func (s *Server) startRun(c echo.Context, req services.RunRequest) error {
	if req.Input == nil {
		req.Input = models.Payload{}
	}
	run, err := s.Service.StartRun(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/runs/"+run.ID)
	status := http.StatusAccepted
	if run.Status.Terminal() {
		status = http.StatusOK
	}
	return c.JSON(status, run)
}

// GetRun returns a run snapshot
// (GET /api/v1/runs/{id})
func (s *Server) GetRun(c echo.Context, id string) error {
	run, err := s.Service.GetRun(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

// CancelRun requests cancellation of a run
// (POST /api/v1/runs/{id}/cancel)
func (s *Server) CancelRun(c echo.Context, id string) error {
	run, err := s.Service.CancelRun(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, run)
}


func parseWait(params StartRunParams) (time.Duration, error) {
	if params.Wait == nil || *params.Wait == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(*params.Wait)
	if err != nil || d < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid wait duration %q", *params.Wait))
	}
	if d > MaxWait {
		d = MaxWait
	}
	return d, nil
}
