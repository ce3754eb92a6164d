package sessions

import (
	"github.com/gin-gonic/gin"

	ws "codeberg.org/waypair/server/internal/websocket"
	store "codeberg.org/waypair/server/sessions"
)

// registers session lookup and stats routes
func RegisterRoutes(rg *gin.RouterGroup, sessionStore store.Store, hub *ws.Hub) {
	rg.GET("/sessions/:code", GetSessionHandler(sessionStore))
	rg.GET("/stats", StatsHandler(sessionStore, hub))
}
