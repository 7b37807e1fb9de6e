// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/internal/database"
	"accel-link-service/internal/handler"
	"accel-link-service/internal/middleware"
	"accel-link-service/internal/service"
	"accel-link-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config      *config.Config
	logger      *zap.Logger
	db          *database.DB
	linkService *service.LinkService
	wsHandler   *handler.WebSocketHandler
}

// NewRouter creates a new router instance. The database may be nil when
// operation auditing is disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	linkService *service.LinkService,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:      config,
		logger:      logger,
		db:          db,
		linkService: linkService,
		wsHandler:   wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Server))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.linkService, r.config, r.logger)
	linkHandler := handler.NewLinkHandler(r.linkService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.linkService, r.logger)
	profilingHandler := handler.NewProfilingHandler(r.linkService, r.logger)
	operationHandler := handler.NewOperationHandler(r.linkService, r.logger)

	// Health check routes
	health := router.Group("")
	healthHandler.RegisterRoutes(health)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	linkHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)
	profilingHandler.RegisterRoutes(apiV1)
	operationHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	ws := router.Group("/ws")
	r.wsHandler.RegisterRoutes(ws)

	r.logger.Info("All routes configured successfully")
}
