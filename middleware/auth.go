package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/auth"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/config"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
)

// AdminIDKey: ключ gin.Context с Telegram id администратора
const AdminIDKey = "adminID"

// AdminAuth проверяет JWT администратора и то, что права не отозваны:
// id из ADMIN_USER_IDS или флаг is_admin в базе
func AdminAuth(cfg *config.Config, store database.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && strings.ToLower(parts[0]) == "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := auth.ValidateAccessToken(cfg, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired access token"})
			return
		}

		if !cfg.IsConfiguredAdmin(claims.UserID) {
			u, err := store.GetUser(c.Request.Context(), claims.UserID)
			switch {
			case errors.Is(err, database.ErrNotFound):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
				return
			case err != nil:
				zap.L().Error("❌ Не удалось проверить права администратора", zap.Int64("user_id", claims.UserID), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			case !u.IsAdmin:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
				return
			}
		}

		c.Set(AdminIDKey, claims.UserID)
		c.Next()
	}
}
