package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/monitoring"
)

// Log пишет события только в лог: запуск без токена бота и CLI
type Log struct{}

func (Log) GoalReached(_ context.Context, ev GoalReached) error {
	zap.L().Info("🎯 Приглашённый достиг цели",
		zap.Int64("referrer_id", ev.ReferrerID),
		zap.Int64("referred_id", ev.ReferredID),
		zap.String("position", string(ev.Position)),
		zap.Int("order_count", ev.OrderCount),
		zap.Int("threshold", ev.Threshold))
	monitoring.NotificationsTotal.WithLabelValues("goal_reached", "logged").Inc()
	return nil
}

func (Log) NewApplication(_ context.Context, app Application) error {
	zap.L().Info("🆕 Новая заявка",
		zap.Int64("user_id", app.UserID),
		zap.String("category", string(app.Category)))
	monitoring.NotificationsTotal.WithLabelValues("application", "logged").Inc()
	return nil
}
