package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/icepitch/internal/api/handlers"
	"github.com/playmatatu/icepitch/internal/config"
	"github.com/playmatatu/icepitch/internal/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	// No-cache in development so the renderer always sees fresh state
	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] No-cache headers enabled for all routes")
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/config", handlers.GetConfig(cfg))
		v1.GET("/formations", handlers.ListFormations)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", handlers.CreateSession(cfg))

			// The websocket carries its token in the query string.
			sessions.GET("/:id/ws", middleware.WebSocketCORSCheck(cfg), handlers.HandleSessionWebSocket())

			authed := sessions.Group("/:id", handlers.SessionAuthMiddleware(cfg))
			{
				authed.GET("", handlers.GetSession)
				authed.POST("/formation", handlers.SelectFormation)
				authed.POST("/reset", handlers.ResetSession)
				authed.DELETE("", handlers.DeleteSession)
			}
		}
	}
}
