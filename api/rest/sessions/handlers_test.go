package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "codeberg.org/waypair/server/internal/websocket"
	store "codeberg.org/waypair/server/sessions"
)

func setupRouter(sessionStore store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), sessionStore, ws.NewHub())

	return router
}

func TestGetSessionHandler(t *testing.T) {
	sessionStore := store.NewMemoryStore()
	router := setupRouter(sessionStore)

	_, err := sessionStore.Create(context.Background(), "482913", "conn-a")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/482913", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "482913", resp.Code)
	assert.False(t, resp.Paired)
	assert.False(t, resp.CreatedAt.IsZero())
}

func TestGetSessionHandlerPaired(t *testing.T) {
	sessionStore := store.NewMemoryStore()
	router := setupRouter(sessionStore)

	_, err := sessionStore.Create(context.Background(), "482913", "conn-a")
	require.NoError(t, err)

	_, err = sessionStore.Join(context.Background(), "482913", "conn-b")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/482913", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Paired)
}

func TestGetSessionHandlerNotFound(t *testing.T) {
	router := setupRouter(store.NewMemoryStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/999999", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionHandlerInvalidCode(t *testing.T) {
	router := setupRouter(store.NewMemoryStore())

	for _, code := range []string{"12345", "1234567", "12ab56", "012345"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+code, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "code %q", code)
	}
}

func TestStatsHandler(t *testing.T) {
	sessionStore := store.NewMemoryStore()
	router := setupRouter(sessionStore)

	_, err := sessionStore.Create(context.Background(), "482913", "conn-a")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ActiveSessions)
	assert.Equal(t, 0, resp.ConnectedClients)
}
