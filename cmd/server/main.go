package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/handlers"
	"github.com/eddy-backend/eddy/internal/infrastructure/cache"
	"github.com/eddy-backend/eddy/internal/infrastructure/config"
	"github.com/eddy-backend/eddy/internal/infrastructure/database"
	"github.com/eddy-backend/eddy/internal/infrastructure/logging"
	"github.com/eddy-backend/eddy/internal/infrastructure/metrics"
	"github.com/eddy-backend/eddy/internal/repositories/postgres"
	"github.com/eddy-backend/eddy/internal/services"
	"github.com/eddy-backend/eddy/internal/services/connectors"
	"github.com/eddy-backend/eddy/internal/services/session"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
	"github.com/eddy-backend/eddy/pkg/cache/memorycache"
)

const (
	defaultEnv            = "dev"
	metricsUpdateInterval = 15 * time.Second
)

func main() {
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	logger.Info("connected to database",
		zap.String("user", cfg.Database.User),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database),
	)

	migrationsPath := database.MigrationsDir
	if root, err := config.FindProjectRoot(); err == nil {
		migrationsPath = filepath.Join(root, database.MigrationsDir)
	}
	if err := pg.RunMigrations(migrationsPath); err != nil {
		return err
	}

	// Entity schema
	schemaPath := cfg.Schema.ResolveSchemaPath()
	schemas, err := services.NewSchemaService()
	if err != nil {
		return err
	}
	if err := schemas.LoadSchema(schemaPath); err != nil {
		return fmt.Errorf("failed to load schema %s: %w", schemaPath, err)
	}
	reg := schemas.Registry()
	logger.Info("schema loaded", zap.String("path", schemaPath), zap.Int("entities", len(schemas.Schema().Entities)))

	store := postgres.NewPostgresRecordRepository(pg.DB)
	hasher := session.NewBcryptHasher(0)

	// Sessions
	issuer, err := session.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	if err != nil {
		return err
	}
	providerOpts := []session.ProviderOption{session.WithLogger(logger)}
	var principalCache *memorycache.Cache[*entities.Principal]
	if cfg.Cache.Enabled {
		principalCache = memorycache.New[*entities.Principal](&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			EnableMetrics: cfg.Cache.Metrics,
		})
		defer principalCache.Close()
		providerOpts = append(providerOpts, session.WithPrincipalCache(principalCache))
	}
	provider, err := session.NewProvider(reg, store, issuer, hasher, providerOpts...)
	if err != nil {
		return err
	}

	if principalCache != nil {
		invalidator := cache.NewPrincipalInvalidator(cfg.Database.ConnectionString(), provider.PrincipalEntity(), provider, logger)
		if err := invalidator.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start principal invalidator: %w", err)
		}
		defer invalidator.Stop()
	}

	// Operations
	synthOpts := []synthesizer.Option{
		synthesizer.WithHook(provider.PrincipalEntity(), session.NewInvalidationHook(provider)),
	}
	if cfg.Connect.Enabled {
		client := connectors.NewKafkaConnectClient(cfg.Connect.BaseURL(), cfg.Connect.RetryMax, logger)
		if _, ok := reg.Get(connectors.ConnectorEntity); ok {
			synthOpts = append(synthOpts, synthesizer.WithHook(connectors.ConnectorEntity, connectors.NewDebeziumHook(client, store, logger)))
		}
		if _, ok := reg.Get(connectors.ConfigEntity); ok {
			synthOpts = append(synthOpts, synthesizer.WithHook(connectors.ConfigEntity, connectors.NewConfigHook(client, store, logger)))
		}
		logger.Info("connector provisioning enabled", zap.String("url", cfg.Connect.BaseURL()))
	}
	sets, err := schemas.BuildOperations(store, hasher, synthOpts...)
	if err != nil {
		return err
	}
	operations, err := handlers.NewOperationService(sets, logger)
	if err != nil {
		return err
	}

	// Metrics
	collector := metrics.NewCollector()
	if principalCache != nil {
		collector.SetCache(principalCache)
	}
	exporter := metrics.NewPrometheusExporter(collector, prometheus.DefaultRegisterer)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handlers.UnaryInterceptors(logger, provider, metrics.UnaryServerInterceptor(collector, exporter))...,
	))
	operations.Register(grpcServer)
	handlers.NewAuthHandler(provider).Register(grpcServer)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening",
			zap.String("addr", listener.Addr().String()),
			zap.Int("operations", len(operations.Methods())),
		)
		if err := grpcServer.Serve(listener); err != nil {
			serverErrors <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	stopMetrics := make(chan struct{})
	defer close(stopMetrics)
	go func() {
		ticker := time.NewTicker(metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopMetrics:
				return
			case <-ticker.C:
				exporter.Update()
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		grpcServer.Stop()
		return err
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down metrics server", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
