package commands

import (
	"context"
	"fmt"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/config"
	"github.com/octopus-bim/octopus/pkg/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the Octopus database.

This command applies pending database migrations to the configured database
(SQLite or PostgreSQL). It is required after upgrading Octopus when schema
changes have been made.

Examples:
  # Run migrations with default config
  octopus migrate

  # Run migrations with custom config
  octopus migrate --config /etc/octopus/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", "provider", cfg.Database.Type)

	// Creating the store triggers the migrations for both backends.
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Ping(context.Background()); err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database provider: %s)\n", cfg.Database.Type)
	return nil
}
