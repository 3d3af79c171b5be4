package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/assistant"
	"github.com/songo-inc/songo-engine/pkg/config"
	"github.com/songo-inc/songo-engine/pkg/crypto"
	"github.com/songo-inc/songo-engine/pkg/database"
	"github.com/songo-inc/songo-engine/pkg/handlers"
	"github.com/songo-inc/songo-engine/pkg/middleware"
	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/services"
	"github.com/songo-inc/songo-engine/pkg/source"
	"github.com/songo-inc/songo-engine/pkg/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load("config.yaml", Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host),
		zap.String("assistant_provider", cfg.Assistant.Provider))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	// golang-migrate needs database/sql, not the pgx pool.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return err
	}
	_ = sqlDB.Close()

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		return err
	}

	connectionRepo := repositories.NewConnectionRepository(db)
	dataSourceRepo := repositories.NewDataSourceRepository(db)
	recordRepo := repositories.NewSyncedRecordRepository(db)
	auditRepo := repositories.NewRefreshAuditRepository(db)
	chatRepo := repositories.NewChatRepository(db)

	clientFactory := func(clientCfg source.ClientConfig) source.Client {
		return source.NewHTTPClient(clientCfg, logger)
	}

	assistantClient, err := assistant.New(cfg.Assistant, logger)
	if err != nil {
		return err
	}

	queue := workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewThrottledStrategy(0, cfg.Assistant.MaxConcurrent)))

	executor := services.NewRefreshExecutor(
		dataSourceRepo, connectionRepo, recordRepo, auditRepo,
		encryptor, clientFactory, cfg.Source, cfg.Refresh, logger)
	scheduler := services.NewRefreshScheduler(
		dataSourceRepo, executor, queue, cfg.Refresh.TickInterval, logger)
	janitor := services.NewAuditJanitor(
		auditRepo, queue, cfg.Refresh.AuditRetention, logger)

	connectionService := services.NewConnectionService(
		connectionRepo, dataSourceRepo, encryptor, clientFactory,
		cfg.Source, cfg.Refresh, logger)
	dataSourceService := services.NewDataSourceService(
		dataSourceRepo, connectionRepo, recordRepo, auditRepo,
		executor, queue, logger)
	chatService := services.NewChatService(
		chatRepo, recordRepo, assistantClient, services.NewClassifier(), queue,
		cfg.Assistant.Timeout, logger)

	// Crash recovery before accepting traffic: refreshes stuck running fail,
	// sessions stuck awaiting a reply return to active with a system notice.
	if err := executor.RecoverStaleRunning(ctx); err != nil {
		return err
	}
	if err := chatService.RecoverStaleSessions(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewConnectionsHandler(connectionService, logger).RegisterRoutes(mux)
	handlers.NewDataSourcesHandler(dataSourceService, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux)

	scheduler.Start(ctx)
	janitor.Start(ctx)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting songo-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not complete cleanly", zap.Error(err))
	}

	scheduler.Stop()
	janitor.Stop()
	queue.Cancel()
	if err := queue.Wait(shutdownCtx); err != nil {
		logger.Warn("Work queue did not drain cleanly", zap.Error(err))
	}

	return nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
