package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/column-stream/exportd/internal/api/handler"
	"github.com/column-stream/exportd/internal/api/router"
	"github.com/column-stream/exportd/internal/config"
	"github.com/column-stream/exportd/internal/export/benchmark"
	"github.com/column-stream/exportd/internal/export/events"
	"github.com/column-stream/exportd/internal/export/pipeline"
	"github.com/column-stream/exportd/internal/export/registry"
	"github.com/column-stream/exportd/shared/logger"
	"github.com/column-stream/exportd/shared/postgresql"
	"github.com/column-stream/exportd/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("EXPORT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/export-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("starting export service",
		slog.Int("port", cfg.Server.Port),
		slog.Int("export_row_limit", cfg.Export.RowLimit),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appLogger.Info("database connection established")

	var rabbitClient *rabbitmq.Client
	var publisher *events.Publisher
	if cfg.RabbitMQ.Host != "" {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize rabbitmq: %w", err)
		}
		appLogger.Info("rabbitmq connection established")
		publisher = events.New(rabbitClient, appLogger.Logger)
	} else {
		appLogger.Warn("rabbitmq host not configured, job lifecycle events are disabled")
		publisher = events.New(nil, appLogger.Logger)
	}

	reg := registry.New()
	driver := pipeline.New(dbClient, reg, publisher)
	driver.RowLimit = cfg.Export.RowLimit

	countRecords := func(ctx context.Context) (int64, error) {
		var count int64
		err := dbClient.GetContext(ctx, &count, "SELECT COUNT(*) FROM records")
		return count, err
	}
	harness := benchmark.New(dbClient, countRecords, cfg.Export.BenchmarkRowLimit, appLogger.Logger)

	r := initRouter(appLogger.Logger, dbClient, rabbitClient, reg, driver, publisher, harness)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed to start", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	appLogger.Info("export service is running", slog.String("address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server, draining in-flight exports...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}

func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	}
	return logger.New(loggerCfg)
}

func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}
	return postgresql.NewClient(dbConfig, logger)
}

func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
	return rabbitmq.NewClient(rabbitConfig, logger)
}

func initRouter(
	logger *slog.Logger,
	dbClient *postgresql.Client,
	rabbitClient *rabbitmq.Client,
	reg *registry.Registry,
	driver *pipeline.Driver,
	publisher *events.Publisher,
	harness *benchmark.Harness,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	handlerDeps := &handler.Dependencies{
		Logger:       logger,
		DBClient:     dbClient,
		RabbitClient: rabbitClient,
		Registry:     reg,
		Driver:       driver,
		Publisher:    publisher,
		Benchmark:    harness,
	}

	return router.SetupRouter(handlerDeps)
}
