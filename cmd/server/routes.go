package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/waypair/server/api/rest/health"
	sessionsapi "codeberg.org/waypair/server/api/rest/sessions"
	"codeberg.org/waypair/server/api/websocket"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(CORSMiddleware(server.config))
	router.GET("/health", health.Handler)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware())

	{
		v1.GET("/ping", health.PingHandler)

		sessionsapi.RegisterRoutes(v1, server.store, server.hub)
		websocket.RegisterRoutes(v1, server.hub)
	}
}
