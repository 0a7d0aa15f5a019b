package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/orris-inc/soundmesh/docs"
	fleetHandlers "github.com/orris-inc/soundmesh/internal/interfaces/http/handlers/fleet"
	"github.com/orris-inc/soundmesh/internal/interfaces/http/middleware"
	"github.com/orris-inc/soundmesh/internal/interfaces/http/routes"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
	"github.com/orris-inc/soundmesh/internal/shared/version"
)

// Router represents the HTTP router configuration
type Router struct {
	engine       *gin.Engine
	fleetHandler *fleetHandlers.Handler
	logger       logger.Interface
}

// NewRouter creates the engine with the shared middleware chain.
func NewRouter(fleetHandler *fleetHandlers.Handler, log logger.Interface) *Router {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.ErrorHandler(log),
		middleware.RequestLogger(log),
	)

	return &Router{
		engine:       engine,
		fleetHandler: fleetHandler,
		logger:       log,
	}
}

// SetupRoutes registers every route.
func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": version.String(),
		})
	})

	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupFleetRoutes(r.engine, &routes.FleetRouteConfig{
		FleetHandler: r.fleetHandler,
	})
}

// GetEngine returns the gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
