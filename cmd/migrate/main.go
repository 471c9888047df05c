package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/eddy-backend/eddy/internal/infrastructure/config"
	"github.com/eddy-backend/eddy/internal/infrastructure/database"
	"github.com/eddy-backend/eddy/internal/infrastructure/logging"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFlag string
	pg      *database.Postgres
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for Eddy",
	Long: `Database migration tool for Eddy.
Manages the PostgreSQL records table and its change notifications using golang-migrate.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupDatabase,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pg != nil {
			pg.Close()
		}
		_ = logger.Sync()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err = logging.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to database",
		zap.String("env", envFlag),
		zap.String("user", cfg.Database.User),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database),
	)
	return nil
}

func newMigrate() (*migrate.Migrate, error) {
	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}
	migrationsPath := filepath.Join(projectRoot, database.MigrationsDir)
	logger.Debug("using migrations path", zap.String("path", migrationsPath))
	return pg.NewMigrate(migrationsPath)
}

func runUp(cmd *cobra.Command, args []string) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	logger.Info("migration up completed")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("steps must be a positive integer, got %q", args[0])
		}
		steps = n
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	logger.Info("migration down completed", zap.Int("steps", steps))
	return nil
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Migrate(uint(version))
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("already at version", zap.Uint64("version", version))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	logger.Info("migration goto completed", zap.Uint64("version", version))
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty - migration may have failed)\n", version)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", version)
	}
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("version must be an integer, got %q", args[0])
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}
