// Package notify доставляет события реферальной программы: достижение цели
// приглашённым и новую заявку на подключение.
package notify

import (
	"context"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// GoalReached: приглашённый выполнил порог заказов своей позиции
type GoalReached struct {
	ReferrerID int64           `json:"referrer_id"`
	ReferredID int64           `json:"referred_id"`
	Position   models.Position `json:"position"`
	OrderCount int             `json:"order_count"`
	Threshold  int             `json:"threshold"`
}

// Application: заявка кандидата, не найденного в парке, после выбора категории
type Application struct {
	UserID     int64
	Username   string
	FullName   string
	Phone      string
	Category   models.Category
	ReferrerID *int64
}

// Dispatcher: приёмник событий. GoalReached возвращает ошибку, если доставка
// не подтверждена; тогда событие будет отправлено повторно.
type Dispatcher interface {
	GoalReached(ctx context.Context, ev GoalReached) error
	NewApplication(ctx context.Context, app Application) error
}
