package routes

import (
	"github.com/gin-gonic/gin"

	fleetHandlers "github.com/orris-inc/soundmesh/internal/interfaces/http/handlers/fleet"
)

// FleetRouteConfig holds dependencies for fleet status routes.
type FleetRouteConfig struct {
	FleetHandler *fleetHandlers.Handler
}

// SetupFleetRoutes configures the fleet status API.
func SetupFleetRoutes(engine *gin.Engine, cfg *FleetRouteConfig) {
	fleet := engine.Group("/fleet")
	{
		fleet.GET("", cfg.FleetHandler.Summary)
		fleet.GET("/stats", cfg.FleetHandler.ListCachedStats)
	}

	nodes := engine.Group("/nodes")
	{
		nodes.GET("", cfg.FleetHandler.ListNodes)
		nodes.GET("/:name", cfg.FleetHandler.GetNode)
		nodes.POST("/:name/connect", cfg.FleetHandler.ConnectNode)
		nodes.POST("/:name/disconnect", cfg.FleetHandler.DisconnectNode)
	}

	engine.GET("/players", cfg.FleetHandler.ListPlayers)
	engine.GET("/failovers", cfg.FleetHandler.ListFailovers)
}
