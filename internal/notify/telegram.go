package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/monitoring"
)

// Sender: часть tgbotapi.BotAPI, которой хватает для отправки сообщений
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserLookup подставляет имена в тексты уведомлений
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Telegram отправляет уведомления пригласившему, приглашённому и в канал аудита
type Telegram struct {
	bot       Sender
	users     UserLookup
	channelID int64 // 0: канал не настроен
}

func NewTelegram(bot Sender, users UserLookup, channelID int64) *Telegram {
	return &Telegram{bot: bot, users: users, channelID: channelID}
}

// GoalReached считается доставленным, когда сообщение принял канал аудита,
// а без канала, пригласивший. Сообщение приглашённому не обязательно.
func (t *Telegram) GoalReached(ctx context.Context, ev GoalReached) error {
	referrer := t.userName(ctx, ev.ReferrerID)
	referred := t.userName(ctx, ev.ReferredID)

	referrerErr := t.sendHTML(ev.ReferrerID, fmt.Sprintf(
		"🎉 <b>Ваш друг выполнил условия!</b>\n\n"+
			"👤 %s\n"+
			"📦 Заказов: %d/%d\n\n"+
			"💰 Бонус <b>1000 руб</b> будет начислен после проверки администратором.",
		userLink(ev.ReferredID, referred), ev.OrderCount, ev.Threshold))
	if referrerErr != nil {
		zap.L().Warn("Не удалось уведомить пригласившего", zap.Int64("referrer_id", ev.ReferrerID), zap.Error(referrerErr))
	}

	if err := t.sendHTML(ev.ReferredID, fmt.Sprintf(
		"🎉 <b>Поздравляем!</b>\n\nВы выполнили %d заказов. Бонус <b>500 руб</b> будет начислен после проверки.",
		ev.Threshold)); err != nil {
		zap.L().Warn("Не удалось уведомить приглашённого", zap.Int64("referred_id", ev.ReferredID), zap.Error(err))
	}

	delivered := referrerErr
	if t.channelID != 0 {
		delivered = t.sendHTML(t.channelID, fmt.Sprintf(
			"🎯 <b>Реферал выполнил условия</b>\n\n"+
				"👥 <b>Пригласил:</b> %s\n"+
				"👤 <b>Приглашённый:</b> %s\n"+
				"🚦 <b>Позиция:</b> %s\n"+
				"📦 <b>Заказов:</b> %d/%d\n\n"+
				"💰 Бонус ожидает выплаты",
			userLink(ev.ReferrerID, referrer), userLink(ev.ReferredID, referred),
			ev.Position.Title(), ev.OrderCount, ev.Threshold))
	}

	if delivered != nil {
		monitoring.NotificationsTotal.WithLabelValues("goal_reached", "failed").Inc()
		return eris.Wrapf(delivered, "notify: goal reached %d -> %d", ev.ReferrerID, ev.ReferredID)
	}
	monitoring.NotificationsTotal.WithLabelValues("goal_reached", "sent").Inc()
	zap.L().Info("📨 Уведомление о достижении цели отправлено",
		zap.Int64("referrer_id", ev.ReferrerID), zap.Int64("referred_id", ev.ReferredID))
	return nil
}

// NewApplication отправляет заявку в канал аудита
func (t *Telegram) NewApplication(ctx context.Context, app Application) error {
	if t.channelID == 0 {
		zap.L().Warn("Канал уведомлений не настроен, заявка только в логе", zap.Int64("user_id", app.UserID))
		return nil
	}

	var b strings.Builder
	b.WriteString("🆕 <b>Новая заявка!</b>\n\n")
	fmt.Fprintf(&b, "%s\n\n", app.Category.Title())
	fmt.Fprintf(&b, "👤 <b>Пользователь:</b> %s\n", userLink(app.UserID, app.FullName))
	fmt.Fprintf(&b, "🆔 <b>Username:</b> %s\n", usernameOrDash(app.Username))
	fmt.Fprintf(&b, "🔢 <b>ID:</b> <code>%d</code>\n", app.UserID)
	if app.Phone != "" {
		fmt.Fprintf(&b, "📱 <b>Телефон:</b> <code>%s</code>\n", html.EscapeString(app.Phone))
	}
	if app.ReferrerID != nil {
		if referrer, err := t.lookup(ctx, *app.ReferrerID); err == nil {
			fmt.Fprintf(&b, "\n👥 <b>Приглашён пользователем:</b> %s\n", userLink(referrer.ID, referrer.FullName))
			fmt.Fprintf(&b, "📱 <b>Username реферера:</b> %s", usernameOrDash(referrer.Username))
		} else {
			fmt.Fprintf(&b, "\n👥 <b>Приглашён пользователем:</b> <code>%d</code>", *app.ReferrerID)
		}
	}

	if err := t.sendHTML(t.channelID, b.String()); err != nil {
		monitoring.NotificationsTotal.WithLabelValues("application", "failed").Inc()
		return eris.Wrapf(err, "notify: application from %d", app.UserID)
	}
	monitoring.NotificationsTotal.WithLabelValues("application", "sent").Inc()
	zap.L().Info("Уведомление о заявке отправлено в канал", zap.Int64("user_id", app.UserID))
	return nil
}

func (t *Telegram) sendHTML(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

func (t *Telegram) lookup(ctx context.Context, id int64) (*models.User, error) {
	if t.users == nil {
		return nil, eris.New("notify: no user lookup")
	}
	return t.users.GetUser(ctx, id)
}

func (t *Telegram) userName(ctx context.Context, id int64) string {
	u, err := t.lookup(ctx, id)
	if err != nil {
		return ""
	}
	if u.ExternalDriverName != nil && *u.ExternalDriverName != "" {
		return *u.ExternalDriverName
	}
	return u.FullName
}

func userLink(id int64, name string) string {
	if name == "" {
		name = fmt.Sprintf("id%d", id)
	}
	return fmt.Sprintf("<a href='tg://user?id=%d'>%s</a>", id, html.EscapeString(name))
}

func usernameOrDash(username string) string {
	if username == "" {
		return "не указан"
	}
	return "@" + html.EscapeString(username)
}
