// Package api contains the HTTP handlers for the workflow orchestrator
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workflow-orchestrator/backend/internal/engine"
	"workflow-orchestrator/backend/internal/logging"
	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/internal/services"
)

// Version is reported by the health endpoint.
var Version = "dev"

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// GetHealth returns basic health status (always returns 200 OK)
func (s *Server) GetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "workflow-orchestrator",
		Version:   Version,
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Status   int      `json:"status"`
	Detail   string   `json:"detail"`
	Instance string   `json:"instance,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

// problemFor maps a handler error onto a problem response.
func problemFor(err error) ProblemDetails {
	p := ProblemDetails{Type: "about:blank", Status: http.StatusInternalServerError, Title: "Internal Server Error", Detail: err.Error()}

	var httpErr *echo.HTTPError
	var defErr *engine.DefinitionError
	switch {
	case errors.As(err, &httpErr):
		p.Status = httpErr.Code
		p.Title = http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			p.Detail = msg
		}
	case errors.As(err, &defErr):
		p.Status = http.StatusUnprocessableEntity
		p.Title = "Invalid workflow definition"
		p.Problems = defErr.Problems
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, engine.ErrRunNotFound):
		p.Status = http.StatusNotFound
		p.Title = "Not Found"
	case errors.Is(err, engine.ErrRunFinished), errors.Is(err, engine.ErrRunNotActive):
		p.Status = http.StatusConflict
		p.Title = "Conflict"
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, services.ErrInvalidRequest):
		p.Status = http.StatusBadRequest
		p.Title = "Bad Request"
	case errors.Is(err, engine.ErrShuttingDown):
		p.Status = http.StatusServiceUnavailable
		p.Title = "Service Unavailable"
	}
	return p
}

// ErrorHandler writes every handler error as an RFC 7807 Problem Details
// JSON response.
func ErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		p := problemFor(err)
		p.Instance = c.Request().URL.Path
		if p.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", p.Instance, "error", err)
		}

		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(p.Status)
		} else {
			err = c.JSON(p.Status, p)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}
