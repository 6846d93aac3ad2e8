package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"workflow-orchestrator/backend/internal/logging"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Server *Server
	Logger *logging.Logger

	// MCP, when set, is mounted under MCPBasePath.
	MCP         http.Handler
	MCPBasePath string
}

// NewRouter builds the echo instance serving the REST API, the OpenAPI
// document, Swagger UI and, optionally, the MCP endpoints.
func NewRouter(cfg RouterConfig) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("workflow-orchestrator"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:    func(c echo.Context) bool { return c.Path() == "/healthz" },
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []interface{}{"method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds()}
			if v.Error != nil {
				kv = append(kv, "error", v.Error)
			}
			logger.Info("request", kv...)
			return nil
		},
	}))

	RegisterHandlers(e, cfg.Server)
	e.GET("/openapi.yaml", echo.WrapHandler(SpecHandler()))
	e.GET("/docs", echo.WrapHandler(SwaggerHandler("/openapi.yaml")))

	if cfg.MCP != nil {
		base := "/" + strings.Trim(cfg.MCPBasePath, "/")
		e.Any(base+"/*", echo.WrapHandler(cfg.MCP))
	}
	return e
}
