package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"workflow-orchestrator/backend/internal/adapters"
	"workflow-orchestrator/backend/internal/api"
	"workflow-orchestrator/backend/internal/auth"
	"workflow-orchestrator/backend/internal/catalog"
	"workflow-orchestrator/backend/internal/config"
	"workflow-orchestrator/backend/internal/engine"
	"workflow-orchestrator/backend/internal/logging"
	"workflow-orchestrator/backend/internal/mcp"
	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/internal/services"
	"workflow-orchestrator/backend/internal/tls"
	"workflow-orchestrator/backend/pkg/models"
)

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting workflow orchestrator",
		"version", api.Version,
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, runs, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if len(cfg.Catalog.Files) > 0 {
		doc, err := catalog.LoadFiles(cfg.Catalog.Files...)
		if err != nil {
			return err
		}
		if err := doc.Apply(ctx, cat); err != nil {
			return err
		}
		logger.Info("Catalog loaded", "components", len(doc.Components), "workflows", len(doc.Workflows))
	}

	registry, err := newAdapterRegistry(cfg, logger)
	if err != nil {
		return err
	}

	exec := engine.New(engine.Deps{
		Registry: cat,
		Runs:     runs,
		Adapters: registry,
		Logger:   logger,
	}, engine.Options{
		StepTimeout:    cfg.Executor.StepTimeout,
		MaxAttempts:    cfg.Executor.MaxAttempts,
		InitialBackoff: cfg.Executor.InitialBackoff,
		MaxBackoff:     cfg.Executor.MaxBackoff,
	})
	workflowService := services.NewWorkflowService(cat, exec)

	routerCfg := api.RouterConfig{
		Server: api.NewServer(workflowService),
		Logger: logger,
	}
	var sse interface{ Shutdown(context.Context) error }
	if cfg.MCP.Enable {
		mcpServer := mcp.NewServer(workflowService, api.Version)
		handler := mcp.Handler(mcpServer.GetMCPServer(), cfg.MCP.BasePath)
		sse = handler
		routerCfg.MCP = handler
		routerCfg.MCPBasePath = cfg.MCP.BasePath
		logger.Info("MCP tools mounted", "base_path", cfg.MCP.BasePath)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.TLS.Enable {
		created, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return err
		}
		if created {
			logger.Warn("Generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		var err error
		if cfg.TLS.Enable {
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if sse != nil {
			errs = append(errs, sse.Shutdown(shutdownCtx))
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			_ = server.Close()
		}
		if err := exec.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("executor shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Catalog, repository.RunStore, func(), error) {
	if cfg.Store.Driver != "postgres" {
		return repository.NewMemoryCatalog(), repository.NewMemoryRunStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	return repository.NewPostgresCatalog(pool), repository.NewPostgresRunStore(pool), pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func newAdapterRegistry(cfg *config.Config, logger *logging.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry()

	apiClient := adapters.NewHTTPClient(cfg.Adapters.API.Timeout)
	credentials := auth.New(cfg.Adapters.API.Credentials, apiClient, logger)
	if err := registry.Register(models.EndpointTypeAPI, adapters.Instance(adapters.NewAPIAdapter(apiClient, credentials))); err != nil {
		return nil, err
	}

	if err := registry.Register(models.EndpointTypeFunction, adapters.Instance(adapters.NewFunctionAdapter())); err != nil {
		return nil, err
	}

	// Profiles are resolved on the first model step.
	err := registry.Register(models.EndpointTypeModel, func() (adapters.Adapter, error) {
		modelClient := adapters.NewHTTPClient(cfg.Adapters.Model.Timeout)
		profiles := make(map[string]adapters.ModelProfile, len(cfg.Adapters.Model.Profiles))
		for name, p := range cfg.Adapters.Model.Profiles {
			profiles[name] = adapters.ModelProfile{
				Client:     adapters.NewHTTPInferenceClient(p.Endpoint, p.APIKey, p.APIVersion, modelClient),
				Deployment: p.Deployment,
				Defaults:   p.Defaults,
			}
		}
		return adapters.NewModelAdapter(profiles, otel.Meter("workflow-orchestrator/adapters"))
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// validateCatalog loads files into an in-memory catalog and validates every
// workflow against it, printing one line per workflow.
func validateCatalog(ctx context.Context, out io.Writer, files []string) error {
	doc, err := catalog.LoadFiles(files...)
	if err != nil {
		return err
	}
	cat := repository.NewMemoryCatalog()
	if err := doc.Apply(ctx, cat); err != nil {
		return err
	}

	registry, err := newAdapterRegistry(&config.Config{}, logging.NewNop())
	if err != nil {
		return err
	}
	exec := engine.New(engine.Deps{
		Registry: cat,
		Runs:     repository.NewMemoryRunStore(),
		Adapters: registry,
	}, engine.Options{})
	defer func() { _ = exec.Shutdown(context.WithoutCancel(ctx)) }()

	failed := 0
	for _, wf := range doc.Workflows {
		if _, err := exec.ValidateWorkflow(ctx, wf); err != nil {
			failed++
			var defErr *engine.DefinitionError
			if errors.As(err, &defErr) {
				fmt.Fprintf(out, "FAIL %s\n", wf.ID)
				for _, p := range defErr.Problems {
					fmt.Fprintf(out, "     %s\n", p)
				}
				continue
			}
			return err
		}
		fmt.Fprintf(out, "ok   %s\n", wf.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d workflows are invalid", failed, len(doc.Workflows))
	}
	return nil
}
