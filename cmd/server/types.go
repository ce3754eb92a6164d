package main

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/waypair/server/internal/config"
	ws "codeberg.org/waypair/server/internal/websocket"
	"codeberg.org/waypair/server/sessions"
)

// holds all dependencies and state for the API server
type Server struct {
	config         *config.Config
	store          sessions.Store
	generator      *sessions.Generator
	cleanupService *sessions.CleanupService
	hub            *ws.Hub
	router         *gin.Engine
}
