package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/waypair/server/internal/errors"
	"codeberg.org/waypair/server/internal/logger"
	ws "codeberg.org/waypair/server/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     ws.CheckOrigin,
}

// handles websocket connections. A connection starts with no session; the
// client drives pairing afterwards with create-session / join-session events.
func Handler(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ipAddress := c.ClientIP()

		// check connection limits before accepting new connection
		canAccept, reason := hub.CanAcceptConnection(ipAddress)
		if !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		clientID, err := ws.GenerateClientID()
		if err != nil {
			errors.InternalError(c, "failed to generate client ID", err)
			return
		}

		// upgrade HTTP connection to websocket
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection", "ip", ipAddress)
			return
		}

		// track IP connection only after successful upgrade
		hub.TrackIPConnection(ipAddress)

		client := ws.NewClient(clientID, ipAddress, conn, hub)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"ip", ipAddress,
		)
	}
}
