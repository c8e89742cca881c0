package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/internal/handlers"
	"github.com/Ramsey-B/aster/pkg/alerts"
	"github.com/Ramsey-B/aster/pkg/blob"
	"github.com/Ramsey-B/aster/pkg/browser"
	"github.com/Ramsey-B/aster/pkg/connector"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/health"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/repositories"
	"github.com/Ramsey-B/aster/pkg/scheduler"
	syncpkg "github.com/Ramsey-B/aster/pkg/sync"
	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/tracing/exporters"
	"github.com/Ramsey-B/aster/pkg/vault"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	shutdownTracing := setupTracing(ctx, cfg, logger)
	defer shutdownTracing()

	db, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(cfg, db, logger); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	cipher, err := vault.NewCipher(cfg.VaultSecret)
	if err != nil {
		logger.WithError(err).Error("Vault secret is missing or invalid")
		os.Exit(1)
	}

	var emitter events.Emitter = events.NoopEmitter{}
	if cfg.KafkaEnabled {
		emitter = events.NewKafkaEmitter(events.ProducerConfig{
			Brokers: strings.Split(cfg.KafkaBrokers, ","),
			Topic:   cfg.KafkaEventsTopic,
		}, logger)
	}
	defer emitter.Close()

	dbInstance := database.NewDatabaseInstance(db, logger)

	// Repositories
	accountTypes := repositories.NewAccountTypeRepository(dbInstance, logger)
	connections := repositories.NewConnectionRepository(dbInstance, logger)
	credentials := repositories.NewCredentialRepository(dbInstance, logger)
	bills := repositories.NewBillRepository(dbInstance, logger)
	alertRepo := repositories.NewAlertRepository(dbInstance, logger)
	syncRuns := repositories.NewSyncRunRepository(dbInstance, logger)
	settings := repositories.NewSettingsRepository(dbInstance, logger)

	// Services
	blobs := blob.NewPostgresStore(dbInstance, logger)
	credentialVault := vault.NewService(cipher, credentials, logger)
	driver := browser.NewRemoteDriver(browser.RemoteConfig{
		BaseURL: cfg.BrowserBaseURL,
		Timeout: cfg.BrowserRequestTimeout,
	}, logger)
	runner := connector.NewRunner(driver, credentialVault, bills, blobs, logger)
	alertEngine := alerts.NewEngine(bills, alertRepo, settings, emitter, logger)
	locker := redis.NewLocker(redisClient, cfg.AppName)
	orchestrator := syncpkg.NewOrchestrator(
		connections, syncRuns, settings, runner, alertEngine, locker, emitter, logger,
	).WithLockTTL(cfg.SyncLockTTL)

	// Scheduler
	sched := scheduler.NewScheduler(orchestrator, alertEngine, scheduler.Config{
		SyncInterval:  cfg.SchedulerSyncInterval,
		AlertInterval: cfg.SchedulerAlertInterval,
	}, logger)
	if cfg.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start scheduler")
			os.Exit(1)
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker := health.NewChecker(db, redisClient.Redis(), version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	handlers.NewAccountTypeHandler(accountTypes, logger).RegisterRoutes(api.Group("/account-types"))
	handlers.NewConnectionHandler(connections, credentials, syncRuns, credentialVault, orchestrator, logger).
		RegisterRoutes(api.Group("/connections"))
	handlers.NewBillHandler(bills, alertRepo, settings, blobs, alertEngine, logger).
		RegisterRoutes(api.Group("/bills"))
	handlers.NewAlertHandler(alertRepo, logger).RegisterRoutes(api.Group("/alerts"))
	handlers.NewSettingsHandler(settings, logger).RegisterRoutes(api.Group("/settings"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		checker.SetReady(true)
		logger.Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server did not stop cleanly")
	}

	logger.Info("Shutdown complete")
}

func newLogger(cfg *config.Config) ectologger.Logger {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		level = parsed
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connectDatabase(cfg *config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	var db *sqlx.DB
	var err error
	for attempt := 1; attempt <= cfg.StartupMaxAttempts; attempt++ {
		db, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
		if err == nil {
			break
		}
		logger.WithError(err).Warnf("Database connection attempt %d/%d failed", attempt, cfg.StartupMaxAttempts)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	logger.Infof("Connected to database %s", cfg.DatabaseName)
	return db, nil
}

func runMigrations(cfg *config.Config, db *sqlx.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func setupTracing(ctx context.Context, cfg *config.Config, logger ectologger.Logger) func() {
	var opts []sdktrace.TracerProviderOption

	if cfg.OTLPEnabled {
		exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to create OTLP exporter, tracing disabled")
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Tracer provider shutdown failed")
		}
	}
}
