package sessions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "codeberg.org/waypair/server/internal/errors"
	ws "codeberg.org/waypair/server/internal/websocket"
	store "codeberg.org/waypair/server/sessions"
)

// looks up a session by code so a client can validate a code before opening
// the websocket. Only existence, pairing state, and age are exposed.
func GetSessionHandler(sessionStore store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")

		if !apierrors.IsValidSessionCode(code) {
			apierrors.BadRequest(c, "invalid session code format", nil)
			return
		}

		session, err := sessionStore.Get(c.Request.Context(), code)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apierrors.SessionNotFound(c)
				return
			}

			apierrors.InternalError(c, "failed to look up session", err)

			return
		}

		c.JSON(http.StatusOK, SessionResponse{
			Code:      session.Code,
			Paired:    session.Paired(),
			CreatedAt: session.CreatedAt,
		})
	}
}

// reports live session and connection counts
func StatsHandler(sessionStore store.Store, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := sessionStore.Count(c.Request.Context())
		if err != nil {
			apierrors.InternalError(c, "failed to count sessions", err)
			return
		}

		c.JSON(http.StatusOK, StatsResponse{
			ActiveSessions:   count,
			ConnectedClients: hub.ClientCount(),
		})
	}
}
