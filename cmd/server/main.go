// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/internal/database"
	"accel-link-service/internal/handler"
	"accel-link-service/internal/link"
	"accel-link-service/internal/platform"
	"accel-link-service/internal/repository"
	"accel-link-service/internal/routes"
	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	linkManager *link.Manager
	linkService *service.LinkService
	wsHandler   *handler.WebSocketHandler

	operationRepo repository.OperationRepository
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "accel-link-service")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeLinkManager(); err != nil {
		return nil, fmt.Errorf("failed to initialize link manager: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up the optional audit database and runs
// migrations. The service runs without it when auditing is disabled.
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Operation auditing disabled, skipping database setup")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.operationRepo = repository.NewOperationRepository(db, app.logger)

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeLinkManager builds the transport platform and the manager
// on a shared profiler so transfer counters include transport traffic
func (app *Application) initializeLinkManager() error {
	profiler := link.NewProfiler()

	plat, err := platform.New(&app.config.Platform, profiler, app.logger)
	if err != nil {
		return fmt.Errorf("failed to build platform: %w", err)
	}

	manager, err := link.NewManager(service.ManagerConfig(&app.config.Link), plat, profiler, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create link manager: %w", err)
	}
	app.linkManager = manager

	app.logger.Info("Link manager initialized",
		zap.Int("max_links", app.config.Link.MaxLinks),
		zap.Bool("skip_device_reset", app.config.Link.SkipDeviceReset),
	)
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	app.wsHandler = handler.NewWebSocketHandler(app.logger)
	app.linkService = service.NewLinkService(
		app.linkManager,
		app.operationRepo,
		app.wsHandler,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.linkService,
		app.wsHandler,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// startBackgroundServices starts background maintenance loops
func (app *Application) startBackgroundServices() {
	if app.operationRepo != nil {
		go app.startCleanupService()
	}

	app.logger.Info("Background services started")
}

// startCleanupService prunes old audit records hourly
func (app *Application) startCleanupService() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started")

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)

		oldDate := time.Now().AddDate(0, 0, -30)
		deleted, err := app.operationRepo.DeleteOldOperations(ctx, oldDate)
		if err != nil {
			app.logger.Error("Failed to cleanup old operations", zap.Error(err))
		} else if deleted > 0 {
			app.logger.Info("Cleaned up old operations", zap.Int64("deleted", deleted))
		}

		cancel()
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "accel-link-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Tear all links down before the process exits
	app.linkService.Shutdown(ctx)

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown()

	return nil
}
