package migrate

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/orris-inc/soundmesh/internal/infrastructure/config"
	"github.com/orris-inc/soundmesh/internal/infrastructure/database"
	"github.com/orris-inc/soundmesh/internal/infrastructure/migration"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

func NewCommand(flags *bootstrap.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back and inspect the schema of the audit database.`,
	}

	cmd.AddCommand(
		newUpCommand(flags),
		newDownCommand(flags),
		newStatusCommand(flags),
	)

	return cmd
}

func newUpCommand(flags *bootstrap.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(flags, func(cfg *config.Config, db *gorm.DB, log logger.Interface) error {
				manager, err := migration.NewManager(cfg.Database.Migration, cfg.Database.Driver, log)
				if err != nil {
					return err
				}
				return manager.Migrate(db)
			})
		},
	}
}

func newDownCommand(flags *bootstrap.Flags) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(flags, func(cfg *config.Config, db *gorm.DB, log logger.Interface) error {
				gs, err := gooseStrategy(cfg, log)
				if err != nil {
					return err
				}
				return gs.MigrateDown(db, steps)
			})
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newStatusCommand(flags *bootstrap.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(flags, func(cfg *config.Config, db *gorm.DB, log logger.Interface) error {
				gs, err := gooseStrategy(cfg, log)
				if err != nil {
					return err
				}
				v, err := gs.GetVersion(db)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Migration Status:\n")
				fmt.Fprintf(out, "  Driver:          %s\n", cfg.Database.Driver)
				fmt.Fprintf(out, "  Current Version: %d\n", v)
				return nil
			})
		},
	}
}

func gooseStrategy(cfg *config.Config, log logger.Interface) (*migration.GooseStrategy, error) {
	manager, err := migration.NewManager("goose", cfg.Database.Driver, log)
	if err != nil {
		return nil, err
	}
	return manager.GetStrategy().(*migration.GooseStrategy), nil
}

func withDatabase(flags *bootstrap.Flags, fn func(cfg *config.Config, db *gorm.DB, log logger.Interface) error) error {
	cfg, log, err := bootstrap.Init(flags)
	if err != nil {
		return err
	}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	return fn(cfg, database.Get(), log)
}
