package websocket

import (
	"github.com/gin-gonic/gin"

	ws "codeberg.org/waypair/server/internal/websocket"
)

// registers the websocket upgrade endpoint
func RegisterRoutes(rg *gin.RouterGroup, hub *ws.Hub) {
	rg.GET("/ws", Handler(hub))
}
