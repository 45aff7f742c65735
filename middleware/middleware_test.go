package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/auth"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/config"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAdminRouter(t *testing.T, cfg *config.Config) (*gin.Engine, database.Store) {
	t.Helper()
	store, err := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	r := gin.New()
	r.Use(Logger())
	r.GET("/admin", AdminAuth(cfg, store), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin_id": c.GetInt64(AdminIDKey)})
	})
	return r, store
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	cfg := &config.Config{JWTSecret: "secret", JWTAccessExpiry: time.Hour, AdminUserIDs: []int64{1}}
	r, store := newAdminRouter(t, cfg)
	ctx := context.Background()

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)

	configured, err := auth.GenerateAdminToken(cfg, 1)
	require.NoError(t, err)
	w := do(r, configured)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	// токен выпущен, но права в базе не выданы
	dbAdmin, err := auth.GenerateAdminToken(cfg, 2)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, dbAdmin).Code)

	_, err = store.UpsertUser(ctx, &models.User{ID: 2, FullName: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, dbAdmin).Code)

	require.NoError(t, store.SetAdmin(ctx, 2, true))
	assert.Equal(t, http.StatusOK, do(r, dbAdmin).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.False(t, rl.Limit(1))
	assert.False(t, rl.Limit(1))
	assert.True(t, rl.Limit(1))
	assert.False(t, rl.Limit(2), "keys are independent")

	now = now.Add(time.Minute)
	assert.False(t, rl.Limit(1))

	rl.Reset(1)
	assert.False(t, rl.Limit(1))
	assert.False(t, rl.Limit(1))
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	for key := int64(1); key <= 100; key++ {
		rl.Limit(key)
		rl.Limit(key)
	}
	assert.Len(t, rl.attempts, 100)

	// ключ 500 приходит после окна: остальные удаляются
	now = now.Add(time.Minute)
	assert.False(t, rl.Limit(500))
	assert.Len(t, rl.attempts, 1)
	assert.Contains(t, rl.attempts, int64(500))
}
