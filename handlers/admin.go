package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/reconcile"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/middleware"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

type AdminHandler struct {
	store      database.Store
	sweeper    Sweeper
	thresholds models.Thresholds
}

// RunSweep запускает цикл сверки и ждёт его завершения.
// Обрыв соединения клиента цикл не прерывает.
func (h *AdminHandler) RunSweep(c *gin.Context) {
	zap.L().Info("🔄 Внеочередная сверка по запросу администратора",
		zap.Int64("admin_id", c.GetInt64(middleware.AdminIDKey)))

	result, err := h.sweeper.RunNow(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, reconcile.ErrCycleInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "sweep already in progress"})
		return
	}
	if err != nil {
		zap.L().Error("RunSweep error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cycle": gin.H{
			"id":          result.ID,
			"started":     result.Started,
			"finished":    result.Finished,
			"fallback":    result.Fallback,
			"entries":     result.Entries,
			"updated":     result.Updated,
			"unknown":     result.Unknown,
			"notified":    result.Notified,
			"skipped":     result.Skipped,
			"failed":      result.Failed,
			"interrupted": result.Interrupted,
		},
	})
}

// ListReferrals: приглашённые пользователя и сводка
func (h *AdminHandler) ListReferrals(c *gin.Context) {
	referrerID, ok := parseID(c, "referrerId")
	if !ok {
		return
	}

	invited, err := h.store.ListReferrals(c.Request.Context(), referrerID)
	if err != nil {
		zap.L().Error("ListReferrals query error", zap.Int64("referrer_id", referrerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	stats, err := h.store.ReferralStats(c.Request.Context(), referrerID, h.thresholds)
	if err != nil {
		zap.L().Error("ReferralStats query error", zap.Int64("referrer_id", referrerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if invited == nil {
		invited = []models.InvitedUser{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"referrer_id": referrerID,
		"stats":       stats,
		"invited":     invited,
	})
}

// MarkBonusPaid отмечает ручную выплату бонуса за приглашённого
func (h *AdminHandler) MarkBonusPaid(c *gin.Context) {
	referrerID, ok := parseID(c, "referrerId")
	if !ok {
		return
	}
	referredID, ok := parseID(c, "referredId")
	if !ok {
		return
	}

	err := h.store.MarkBonusPaid(c.Request.Context(), referrerID, referredID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "referral not found"})
		return
	}
	if err != nil {
		zap.L().Error("MarkBonusPaid error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	zap.L().Info("💰 Бонус отмечен выплаченным",
		zap.Int64("admin_id", c.GetInt64(middleware.AdminIDKey)),
		zap.Int64("referrer_id", referrerID),
		zap.Int64("referred_id", referredID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}
