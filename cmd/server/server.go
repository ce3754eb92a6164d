package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"codeberg.org/waypair/server/internal/config"
	"codeberg.org/waypair/server/internal/logger"
	ws "codeberg.org/waypair/server/internal/websocket"
	"codeberg.org/waypair/server/sessions"
)

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	generator := sessions.NewGenerator(store)

	hub := ws.NewHub()

	// register websocket message handlers
	hub.RegisterHandler(ws.TypeCreateSession, ws.CreateSessionHandler(generator))
	hub.RegisterHandler(ws.TypeJoinSession, ws.JoinSessionHandler(store))
	hub.RegisterHandler(ws.TypeUpdateLocation, ws.UpdateLocationHandler(store))
	hub.RegisterHandler(ws.TypeLeaveSession, ws.LeaveSessionHandler(store))
	hub.RegisterHandler(ws.TypePing, ws.PingHandler())

	// a connection drop tears down the client's session
	hub.OnClientDisconnect(ws.DisconnectHandler(store))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// expired sessions are swept hourly; remaining participants are notified
	cleanupService := sessions.NewCleanupService(
		store,
		sessions.DefaultSweepInterval,
		sessions.DefaultRetention,
		func(code string, reason string) {
			hub.EndRoom(code, reason)
		},
	)

	server := &Server{
		config:         cfg,
		store:          store,
		generator:      generator,
		cleanupService: cleanupService,
		hub:            hub,
		router:         router,
	}

	RegisterRoutes(router, server)

	return server, nil
}

// selects and initializes the configured session store backend
func newSessionStore(ctx context.Context, cfg *config.Config) (sessions.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("using in-memory session store")
		return sessions.NewMemoryStore(), nil

	case config.BackendPostgres:
		store, err := sessions.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres session store: %w", err)
		}

		logger.Info("using postgres session store")

		return store, nil

	case config.BackendRedis:
		store, err := sessions.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis session store: %w", err)
		}

		logger.Info("using redis session store")

		return store, nil
	}

	return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
}
