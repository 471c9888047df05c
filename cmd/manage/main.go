package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/eddy-backend/eddy/internal/infrastructure/config"
	"github.com/eddy-backend/eddy/internal/infrastructure/database"
	"github.com/eddy-backend/eddy/internal/infrastructure/logging"
	"github.com/eddy-backend/eddy/internal/repositories/postgres"
	"github.com/eddy-backend/eddy/internal/services"
	"github.com/eddy-backend/eddy/internal/services/bootstrap"
	"github.com/eddy-backend/eddy/internal/services/parser"
	"github.com/eddy-backend/eddy/internal/services/session"
)

var (
	envFlag    string
	schemaFlag string
	cfg        *config.Config
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "manage",
	Short: "Administrative commands for Eddy",
	Long: `Administrative commands for Eddy.
Seeds the records a fresh installation needs and inspects the entity schema.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var createAdminUserCmd = &cobra.Command{
	Use:   "create-admin-user",
	Short: "Create the admin superuser when no user exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if username == "" {
			username = cfg.Admin.Username
		}
		if password == "" {
			password = cfg.Admin.Password
		}
		return withSeeder(cmd, func(s *bootstrap.Seeder, ctx context.Context) (bool, error) {
			return s.EnsureAdminUser(ctx, username, password)
		}, "admin user")
	},
}

var createIntegrationTypeCmd = &cobra.Command{
	Use:   "create-integration-type",
	Short: "Create the default Debezium integration type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSeeder(cmd, (*bootstrap.Seeder).EnsureIntegrationType, "Debezium integration type")
	},
}

var createDataConnectorTypeCmd = &cobra.Command{
	Use:   "create-data-connector-type",
	Short: "Create the default Debezium data connector type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSeeder(cmd, (*bootstrap.Seeder).EnsureDataConnectorType, "Debezium data connector type")
	},
}

var printSchemaCmd = &cobra.Command{
	Use:   "print-schema",
	Short: "Validate the entity schema and print it in canonical form",
	RunE: func(cmd *cobra.Command, args []string) error {
		schemas, err := loadSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), parser.Format(schemas.Schema()))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVar(&schemaFlag, "schema", "", "Path to the entity schema (default: SCHEMA_PATH)")

	createAdminUserCmd.Flags().String("username", "", "Admin username (default: ADMIN_USERNAME)")
	createAdminUserCmd.Flags().String("password", "", "Admin password (default: ADMIN_PASSWORD)")

	rootCmd.AddCommand(createAdminUserCmd)
	rootCmd.AddCommand(createIntegrationTypeCmd)
	rootCmd.AddCommand(createDataConnectorTypeCmd)
	rootCmd.AddCommand(printSchemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	if schemaFlag != "" {
		viper.Set("SCHEMA_PATH", schemaFlag)
	}

	// print-schema needs no credentials
	if cmd == printSchemaCmd {
		cfg = &config.Config{Schema: config.SchemaConfig{Path: viper.GetString("SCHEMA_PATH")}}
		return nil
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err = logging.NewLogger(cfg.Log.Format, cfg.Log.Level)
	return err
}

func loadSchema() (*services.SchemaService, error) {
	schemas, err := services.NewSchemaService()
	if err != nil {
		return nil, err
	}
	path := cfg.Schema.ResolveSchemaPath()
	if err := schemas.LoadSchema(path); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", path, err)
	}
	return schemas, nil
}

// withSeeder connects to the database, builds the operations and runs one seed
func withSeeder(cmd *cobra.Command, seed func(*bootstrap.Seeder, context.Context) (bool, error), what string) error {
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	schemas, err := loadSchema()
	if err != nil {
		return err
	}
	store := postgres.NewPostgresRecordRepository(pg.DB)
	sets, err := schemas.BuildOperations(store, session.NewBcryptHasher(0))
	if err != nil {
		return err
	}

	created, err := seed(bootstrap.NewSeeder(sets, logger), cmd.Context())
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "%s created\n", what)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", what)
	}
	return nil
}
