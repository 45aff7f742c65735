package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/config"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/reconcile"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/middleware"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// Sweeper: внеочередной запуск сверки
type Sweeper interface {
	RunNow(ctx context.Context) (reconcile.CycleResult, error)
}

// NewRouter собирает ops API: health, метрики и админские маршруты
func NewRouter(cfg *config.Config, store database.Store, sweeper Sweeper, thresholds models.Thresholds) *gin.Engine {
	if cfg.Env == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SetupCORS(cfg))

	health := &HealthHandler{store: store}
	admin := &AdminHandler{store: store, sweeper: sweeper, thresholds: thresholds}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", health.Health)

		adminAPI := api.Group("/admin")
		adminAPI.Use(middleware.AdminAuth(cfg, store))
		{
			adminAPI.POST("/sweep", admin.RunSweep)
			adminAPI.GET("/referrals/:referrerId", admin.ListReferrals)
			adminAPI.POST("/referrals/:referrerId/:referredId/bonus-paid", admin.MarkBonusPaid)
		}
	}
	return r
}

type HealthHandler struct {
	store database.Store
}

// Health: живость процесса и доступность базы
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	dbStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": dbStatus,
		"time":     time.Now().Unix(),
	})
}
