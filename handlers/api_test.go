package handlers

import (
	"context"
	"encoding/json"
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
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/reconcile"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSweeper struct {
	calls  int
	err    error
	ctxErr error // состояние контекста, с которым запущен цикл
}

func (f *fakeSweeper) RunNow(ctx context.Context) (reconcile.CycleResult, error) {
	f.calls++
	f.ctxErr = ctx.Err()
	return reconcile.CycleResult{ID: "cycle-1", Entries: 3, Updated: 2, Notified: 1}, f.err
}

type testServer struct {
	router  http.Handler
	store   database.Store
	sweeper *fakeSweeper
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cfg := &config.Config{
		Env:             "test",
		AllowedOrigins:  []string{"*"},
		AdminUserIDs:    []int64{1},
		JWTSecret:       "secret",
		JWTAccessExpiry: time.Hour,
	}
	token, err := auth.GenerateAdminToken(cfg, 1)
	require.NoError(t, err)

	sw := &fakeSweeper{}
	return &testServer{
		router:  NewRouter(cfg, store, sw, models.DefaultThresholds()),
		store:   store,
		sweeper: sw,
		token:   token,
	}
}

func (s *testServer) do(method, path string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/health", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/api/health", false)
	w := s.do(http.MethodGet, "/metrics", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/admin/sweep", false).Code)
	assert.Zero(t, s.sweeper.calls)
}

func TestRunSweep(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodPost, "/api/admin/sweep", true)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Cycle struct {
			ID       string `json:"id"`
			Entries  int    `json:"entries"`
			Notified int    `json:"notified"`
		} `json:"cycle"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "cycle-1", body.Cycle.ID)
	assert.Equal(t, 3, body.Cycle.Entries)
	assert.Equal(t, 1, body.Cycle.Notified)

	s.sweeper.err = reconcile.ErrCycleInProgress
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/admin/sweep", true).Code)
}

func TestRunSweepOutlivesClientDisconnect(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/sweep", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, s.sweeper.calls)
	assert.NoError(t, s.sweeper.ctxErr)
}

func TestListReferralsAndBonusPaid(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.store.UpsertUser(ctx, &models.User{ID: 100, FullName: "Driver", ReferrerID: models.Int64Ptr(42)})
	require.NoError(t, err)
	_, err = s.store.UpsertReferralEdge(ctx, 42, 100, models.PositionCargo)
	require.NoError(t, err)
	_, err = s.store.SetOrderCount(ctx, 100, 31)
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/api/admin/referrals/42", true)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Stats   models.ReferralStats `json:"stats"`
		Invited []models.InvitedUser `json:"invited"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Stats.InvitedCount)
	assert.Equal(t, 1, body.Stats.CompletedCount)
	require.Len(t, body.Invited, 1)
	assert.Equal(t, 31, body.Invited[0].OrderCount)

	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/admin/referrals/42/100/bonus-paid", true).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/admin/referrals/42/999/bonus-paid", true).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/admin/referrals/abc", true).Code)

	edge, err := s.store.GetReferral(ctx, 42, 100)
	require.NoError(t, err)
	assert.True(t, edge.BonusPaid)
}
