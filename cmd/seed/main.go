// Command seed loads catalog files into the Postgres catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"workflow-orchestrator/backend/internal/catalog"
	"workflow-orchestrator/backend/internal/config"
	"workflow-orchestrator/backend/internal/logging"
	"workflow-orchestrator/backend/internal/repository"
)

func main() {
	var (
		configPath string
		files      []string
	)

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load components and workflows into the database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return seed(cmd.Context(), configPath, files)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringSliceVar(&files, "catalog", nil, "catalog files to load (default: catalog.files from config)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, configPath string, files []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if len(files) == 0 {
		files = cfg.Catalog.Files
	}
	if len(files) == 0 {
		return errors.New("no catalog files given")
	}

	doc, err := catalog.LoadFiles(files...)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}

	store := repository.NewPostgresCatalog(pool)
	if err := doc.Apply(ctx, store); err != nil {
		return err
	}
	for _, c := range doc.Components {
		logger.Info("Seeded component", "id", c.ID, "endpoint_type", c.EndpointType)
	}
	for _, w := range doc.Workflows {
		logger.Info("Seeded workflow", "id", w.ID, "steps", len(w.Steps))
	}
	logger.Info("Seeding complete!")
	return nil
}
