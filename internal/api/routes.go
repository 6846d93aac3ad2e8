package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// StartRunParams defines parameters for the run-starting operations.
type StartRunParams struct {
	// Wait is a Go duration; the response is delayed until the run
	// finishes or the duration elapses.
	Wait *string `form:"wait,omitempty" json:"wait,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /healthz)
	GetHealth(ctx echo.Context) error
	// (GET /api/v1/components)
	ListComponents(ctx echo.Context) error
	// (GET /api/v1/components/{id})
	GetComponent(ctx echo.Context, id string) error
	// (GET /api/v1/components/{id}/schema)
	GetComponentSchema(ctx echo.Context, id string) error
	// (GET /api/v1/workflows)
	ListWorkflows(ctx echo.Context) error
	// (GET /api/v1/workflows/{id})
	GetWorkflow(ctx echo.Context, id string) error
	// (POST /api/v1/workflows/{id}/validate)
	ValidateWorkflow(ctx echo.Context, id string) error
	// (POST /api/v1/workflows/{id}/runs)
	StartWorkflowRun(ctx echo.Context, id string, params StartRunParams) error
	// (POST /api/v1/runs)
	StartRun(ctx echo.Context, params StartRunParams) error
	// (GET /api/v1/runs/{id})
	GetRun(ctx echo.Context, id string) error
	// (POST /api/v1/runs/{id}/cancel)
	CancelRun(ctx echo.Context, id string) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func bindID(ctx echo.Context) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", ctx.Param("id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter id: %s", err))
	}
	return id, nil
}

func bindStartRunParams(ctx echo.Context) (StartRunParams, error) {
	var params StartRunParams
	if err := runtime.BindQueryParameter("form", true, false, "wait", ctx.QueryParams(), &params.Wait); err != nil {
		return params, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter wait: %s", err))
	}
	return params, nil
}

// GetHealth converts echo context to params.
func (w *ServerInterfaceWrapper) GetHealth(ctx echo.Context) error {
	return w.Handler.GetHealth(ctx)
}

// ListComponents converts echo context to params.
func (w *ServerInterfaceWrapper) ListComponents(ctx echo.Context) error {
	return w.Handler.ListComponents(ctx)
}

// GetComponent converts echo context to params.
func (w *ServerInterfaceWrapper) GetComponent(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetComponent(ctx, id)
}

// GetComponentSchema converts echo context to params.
func (w *ServerInterfaceWrapper) GetComponentSchema(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetComponentSchema(ctx, id)
}

// ListWorkflows converts echo context to params.
func (w *ServerInterfaceWrapper) ListWorkflows(ctx echo.Context) error {
	return w.Handler.ListWorkflows(ctx)
}

// GetWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflow(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetWorkflow(ctx, id)
}

// ValidateWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) ValidateWorkflow(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.ValidateWorkflow(ctx, id)
}

// StartWorkflowRun converts echo context to params.
func (w *ServerInterfaceWrapper) StartWorkflowRun(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	params, err := bindStartRunParams(ctx)
	if err != nil {
		return err
	}
	return w.Handler.StartWorkflowRun(ctx, id, params)
}

// StartRun converts echo context to params.
func (w *ServerInterfaceWrapper) StartRun(ctx echo.Context) error {
	params, err := bindStartRunParams(ctx)
	if err != nil {
		return err
	}
	return w.Handler.StartRun(ctx, params)
}

// GetRun converts echo context to params.
func (w *ServerInterfaceWrapper) GetRun(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetRun(ctx, id)
}

// CancelRun converts echo context to params.
func (w *ServerInterfaceWrapper) CancelRun(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.CancelRun(ctx, id)
}

// EchoRouter is the subset of echo.Echo and echo.Group used for routing.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the router.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	w := &ServerInterfaceWrapper{Handler: si}

	router.GET("/healthz", w.GetHealth)
	router.GET("/api/v1/components", w.ListComponents)
	router.GET("/api/v1/components/:id", w.GetComponent)
	router.GET("/api/v1/components/:id/schema", w.GetComponentSchema)
	router.GET("/api/v1/workflows", w.ListWorkflows)
	router.GET("/api/v1/workflows/:id", w.GetWorkflow)
	router.POST("/api/v1/workflows/:id/validate", w.ValidateWorkflow)
	router.POST("/api/v1/workflows/:id/runs", w.StartWorkflowRun)
	router.POST("/api/v1/runs", w.StartRun)
	router.GET("/api/v1/runs/:id", w.GetRun)
	router.POST("/api/v1/runs/:id/cancel", w.CancelRun)
}
