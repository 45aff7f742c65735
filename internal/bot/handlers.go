package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/enrollment"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/phone"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/session"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

const (
	textInvalidPhone = "❌ Неверный формат номера телефона.\n\n" +
		"Пожалуйста, введите номер в формате:\n" +
		"+79XXXXXXXXX или 89XXXXXXXXX"
	textNeedStart    = "Сначала пройдите регистрацию, отправив /start"
	textNeedPhone    = "Сначала отправьте номер телефона через /start."
	textTryLater     = "⚠️ Что-то пошло не так. Попробуйте ещё раз чуть позже."
	textTooMany      = "⏳ Слишком много попыток. Попробуйте через несколько минут."
	textNoAdminRight = "У вас нет прав администратора"
	textRecheck      = "Если вы уже работаете в парке, отправьте номер телефона ещё раз для повторной проверки."

	profileListLimit = 10
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user := msg.From
	chatID := msg.Chat.ID
	referrerID := parseReferrer(msg.CommandArguments(), user.ID)

	existing, err := b.store.GetUser(ctx, user.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		zap.L().Error("❌ Не удалось загрузить пользователя", zap.Int64("user_id", user.ID), zap.Error(err))
		b.reply(chatID, textTryLater)
		return
	}

	// зарегистрированным считается пользователь с телефоном
	if existing != nil && existing.HasPhone() {
		text := fmt.Sprintf("👋 С возвращением, %s!", html.EscapeString(user.FirstName))
		if !existing.Enrolled {
			text += "\n\n" + textRecheck
		}
		b.replyHTML(chatID, text, mainMenuKeyboard(b.isAdmin(ctx, user.ID)))
		return
	}

	if err := b.sessions.Put(ctx, &session.Session{
		UserID:     user.ID,
		ReferrerID: referrerID,
		Stage:      session.StageAwaitingPhone,
		UpdatedAt:  time.Now(),
	}); err != nil {
		zap.L().Error("Не удалось сохранить сессию", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👋 Здравствуйте, %s!\n\n", html.EscapeString(user.FirstName))
	if referrerID != nil {
		if referrer, err := b.store.GetUser(ctx, *referrerID); err == nil {
			fmt.Fprintf(&sb, "Вы приглашены пользователем %s!\n\n", html.EscapeString(referrer.FullName))
		}
	}
	sb.WriteString("📱 <b>Для начала работы введите ваш номер телефона</b>\n\n" +
		"Формат: +79XXXXXXXXX или 89XXXXXXXXX\n\n" +
		"Номер телефона нужен для проверки регистрации.")

	zap.L().Info("👋 /start", zap.Int64("user_id", user.ID), zap.Bool("referred", referrerID != nil))
	b.replyHTML(chatID, sb.String(), phoneKeyboard())
}

func (b *Bot) handlePhone(ctx context.Context, msg *tgbotapi.Message, raw string) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if b.limiter.Limit(userID) {
		zap.L().Warn("⚠️ Превышен лимит попыток ввода телефона", zap.Int64("user_id", userID))
		b.reply(chatID, textTooMany)
		return
	}
	if !phone.Valid(raw) {
		b.reply(chatID, textInvalidPhone)
		return
	}

	var referrerID *int64
	sess, err := b.sessions.Get(ctx, userID)
	if err != nil {
		zap.L().Error("Не удалось прочитать сессию", zap.Int64("user_id", userID), zap.Error(err))
	}
	if sess != nil {
		referrerID = sess.ReferrerID
	}

	checking := b.replyHTML(chatID, "🔍 Проверяю регистрацию в Яндекс Парке...", nil)

	out, err := b.resolver.Resolve(ctx, candidateOf(msg.From, referrerID), raw)
	if errors.Is(err, enrollment.ErrInvalidPhone) {
		b.edit(chatID, checking.MessageID, textInvalidPhone)
		return
	}
	if err != nil {
		zap.L().Error("❌ Ошибка регистрации по телефону", zap.Int64("user_id", userID), zap.Error(err))
		b.edit(chatID, checking.MessageID, textTryLater)
		return
	}

	b.limiter.Reset(userID)
	if err := b.sessions.Delete(ctx, userID); err != nil {
		zap.L().Warn("Не удалось удалить сессию", zap.Int64("user_id", userID), zap.Error(err))
	}

	b.edit(chatID, checking.MessageID, outcomeText(out))
	b.replyHTML(chatID, "Главное меню:", mainMenuKeyboard(b.isAdmin(ctx, userID)))
}

func outcomeText(out *enrollment.Outcome) string {
	if out.Status == enrollment.StatusEnrolled {
		name := "Не указано"
		if out.Driver != nil {
			name = out.Driver.DisplayName()
		}
		return fmt.Sprintf("✅ <b>Вы уже зарегистрированы!</b>\n\n"+
			"👤 <b>Имя:</b> %s\n"+
			"📱 <b>Телефон:</b> %s\n\n"+
			"🎉 Регистрация завершена!\n"+
			"Используйте меню ниже для доступа к функциям бота.",
			html.EscapeString(name), out.Phone)
	}

	text := "📋 <b>Вы ещё не зарегистрированы в Яндекс Парке</b>\n\n" +
		"Нажмите «🚀 Начать работать» и выберите категорию. Менеджер свяжется с вами в ближайшее время."
	if out.Cause == fleet.CauseTimeout || out.Cause == fleet.CauseError {
		text = "⚠️ Яндекс Парк сейчас отвечает с задержкой. " + textRecheck + "\n\n" + text
	}
	return text
}

func (b *Bot) handleStartWork(ctx context.Context, msg *tgbotapi.Message) {
	u, err := b.store.GetUser(ctx, msg.From.ID)
	if err != nil || !u.HasPhone() {
		b.reply(msg.Chat.ID, textNeedPhone)
		return
	}
	if u.Enrolled {
		b.reply(msg.Chat.ID, "Вы уже зарегистрированы в Яндекс Парке.")
		return
	}

	if err := b.sessions.Put(ctx, &session.Session{
		UserID:     u.ID,
		ReferrerID: u.ReferrerID,
		Stage:      session.StageAwaitingCategory,
		Phone:      *u.Phone,
		UpdatedAt:  time.Now(),
	}); err != nil {
		zap.L().Error("Не удалось сохранить сессию", zap.Int64("user_id", u.ID), zap.Error(err))
	}
	b.replyHTML(msg.Chat.ID, "Выберите вашу категорию:", categoryKeyboard())
}

func (b *Bot) handleCategory(ctx context.Context, q *tgbotapi.CallbackQuery, value string) {
	chatID := q.Message.Chat.ID
	category, err := models.ParseCategory(value)
	if err != nil {
		zap.L().Warn("Неизвестная категория", zap.String("data", q.Data))
		return
	}

	u, err := b.store.GetUser(ctx, q.From.ID)
	if err != nil || !u.HasPhone() {
		b.reply(chatID, textNeedPhone)
		return
	}
	if u.Enrolled {
		b.edit(chatID, q.Message.MessageID, "Вы уже зарегистрированы в Яндекс Парке.")
		return
	}

	if _, err := b.resolver.SelectCategory(ctx, q.From.ID, category); err != nil {
		zap.L().Error("❌ Не удалось сохранить категорию", zap.Int64("user_id", q.From.ID), zap.Error(err))
		b.reply(chatID, textTryLater)
		return
	}
	if err := b.sessions.Delete(ctx, q.From.ID); err != nil {
		zap.L().Warn("Не удалось удалить сессию", zap.Int64("user_id", q.From.ID), zap.Error(err))
	}

	b.edit(chatID, q.Message.MessageID, "✅ Ваша заявка принята. Менеджер свяжется с вами в ближайшее время.")
}

func (b *Bot) handleInvite(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	if _, err := b.store.GetUser(ctx, userID); err != nil {
		b.reply(chatID, textNeedStart)
		return
	}

	stats, err := b.store.ReferralStats(ctx, userID, b.cfg.Thresholds)
	if err != nil {
		zap.L().Error("Не удалось получить статистику приглашений", zap.Int64("user_id", userID), zap.Error(err))
		stats = &models.ReferralStats{}
	}

	link := b.referralLink(userID)
	// word joiner после схемы, чтобы ссылку было удобно копировать
	copySafe := strings.Replace(link, "https://", "https://\u2060", 1)

	text := fmt.Sprintf("🔗 <b>Ваша реферальная ссылка:</b>\n%s\n\n"+
		"👥 Приглашено: %d\n\n"+
		"💰 Бонусы: 1000 руб вам / 500 руб другу\n"+
		"Условие: %d заказов (экспресс) или %d (грузовой).",
		copySafe, stats.InvitedCount,
		b.cfg.Thresholds[models.PositionExpress], b.cfg.Thresholds[models.PositionCargo])
	b.replyHTML(chatID, text, nil)

	png, err := qrcode.Encode(link, qrcode.Medium, 512)
	if err != nil {
		zap.L().Warn("Не удалось построить QR-код", zap.Error(err))
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "referral.png", Bytes: png})
	photo.Caption = "📷 QR-код с вашей ссылкой"
	b.send(photo)
}

func (b *Bot) handleProfile(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	u, err := b.store.GetUser(ctx, userID)
	if err != nil {
		b.reply(chatID, textNeedStart)
		return
	}

	progress := b.replyHTML(chatID, "🔄 Обновляю данные о заказах...", nil)
	updated, err := b.refresher.RefreshReferrer(ctx, userID)
	if err != nil {
		zap.L().Error("Не удалось обновить заказы приглашённых", zap.Int64("user_id", userID), zap.Error(err))
	}
	if updated > 0 {
		b.edit(chatID, progress.MessageID, fmt.Sprintf("✅ Обновлено данных: %d", updated))
	} else if progress.MessageID != 0 {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, progress.MessageID)); err != nil {
			zap.L().Debug("Не удалось удалить сообщение", zap.Error(err))
		}
	}

	invited, err := b.store.ListReferrals(ctx, userID)
	if err != nil {
		zap.L().Error("Не удалось получить приглашённых", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(chatID, textTryLater)
		return
	}
	b.replyHTML(chatID, profileText(u, invited, b.cfg.Thresholds), nil)
}

func profileText(u *models.User, invited []models.InvitedUser, thresholds models.Thresholds) string {
	var sb strings.Builder
	sb.WriteString("👤 <b>Ваш профиль</b>\n\n")
	fmt.Fprintf(&sb, "📛 Имя: %s\n", html.EscapeString(u.FullName))
	if u.Phone != nil {
		fmt.Fprintf(&sb, "📱 Телефон: %s\n", *u.Phone)
	}

	if u.Enrolled {
		sb.WriteString("✅ <b>Статус:</b> Зарегистрирован в Яндекс Парке\n")
		if u.ExternalDriverName != nil {
			fmt.Fprintf(&sb, "👤 ФИО в парке: %s\n", html.EscapeString(*u.ExternalDriverName))
		}
		if p := u.PositionOrUnknown(); p.Known() {
			fmt.Fprintf(&sb, "🚚 Позиция: %s\n", p.Title())
		}
	} else if u.Category != nil {
		fmt.Fprintf(&sb, "Категория: %s\n", u.Category.Title())
	}
	fmt.Fprintf(&sb, "📅 Регистрация: %s\n\n", u.CreatedAt.Format("2006-01-02"))

	completed := 0
	for _, iu := range invited {
		if iu.Position != nil && thresholds.Reached(*iu.Position, iu.OrderCount) {
			completed++
		}
	}
	fmt.Fprintf(&sb, "👥 <b>Приглашённые:</b> %d\n", len(invited))
	fmt.Fprintf(&sb, "🎯 Выполнили условие: %d\n\n", completed)

	if len(invited) == 0 {
		return sb.String()
	}
	sb.WriteString("<b>📋 Список приглашённых:</b>\n\n")
	for i, iu := range invited {
		if i == profileListLimit {
			fmt.Fprintf(&sb, "…и ещё %d\n", len(invited)-profileListLimit)
			break
		}
		sb.WriteString(html.EscapeString(iu.FullName) + "\n")
		sb.WriteString(usernameText(iu.Username) + "\n")
		if iu.OrderCount > 0 {
			if iu.Position != nil {
				if th, ok := thresholds.For(*iu.Position); ok {
					fmt.Fprintf(&sb, "   📈 <b>Заказов: %d из %d</b>\n", iu.OrderCount, th)
				} else {
					fmt.Fprintf(&sb, "   📈 <b>Заказов: %d</b>\n", iu.OrderCount)
				}
			} else {
				fmt.Fprintf(&sb, "   📈 <b>Заказов: %d</b>\n", iu.OrderCount)
			}
		}
		fmt.Fprintf(&sb, "📅 %s\n\n", iu.CreatedAt.Format("2006-01-02"))
	}
	return sb.String()
}

func (b *Bot) handleAdminPanel(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(ctx, msg.From.ID) {
		b.reply(msg.Chat.ID, textNoAdminRight)
		return
	}
	b.replyHTML(msg.Chat.ID, "⚙️ <b>Админ-панель</b>\n\nВыберите действие:", adminKeyboard())
}

func (b *Bot) handleAdminSearchStart(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(ctx, msg.From.ID) {
		return
	}
	if err := b.sessions.Put(ctx, &session.Session{
		UserID:    msg.From.ID,
		Stage:     session.StageAdminSearch,
		UpdatedAt: time.Now(),
	}); err != nil {
		zap.L().Error("Не удалось сохранить сессию", zap.Int64("user_id", msg.From.ID), zap.Error(err))
	}
	b.replyHTML(msg.Chat.ID, "📱 Введите номер телефона для поиска:", tgbotapi.NewRemoveKeyboard(true))
}

func (b *Bot) handleAdminSearch(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if err := b.sessions.Delete(ctx, msg.From.ID); err != nil {
		zap.L().Warn("Не удалось удалить сессию", zap.Error(err))
	}
	if !b.isAdmin(ctx, msg.From.ID) {
		return
	}

	if !phone.Valid(msg.Text) {
		b.replyHTML(chatID, "❌ Неверный формат номера. Попробуйте еще раз.", adminKeyboard())
		return
	}
	normalized := phone.Normalize(msg.Text)
	b.replyHTML(chatID, fmt.Sprintf("🔍 Идет поиск по номеру: <code>%s</code>", normalized), nil)

	zap.L().Info("[ADMIN_SEARCH] Поиск по номеру", zap.Int64("admin_id", msg.From.ID), zap.String("phone", normalized))
	b.replyHTML(chatID, b.searchReport(ctx, normalized), adminKeyboard())
}

// searchReport собирает отчёт по номеру из базы бота и парка
func (b *Bot) searchReport(ctx context.Context, normalized string) string {
	userInDB, err := b.store.GetUserByPhone(ctx, normalized)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			zap.L().Error("Ошибка при поиске в БД", zap.Error(err))
		}
		userInDB = nil
	}

	lookup := b.fleet.FindDriverByPhone(ctx, normalized)

	if userInDB == nil && !lookup.Found {
		text := fmt.Sprintf("🤷‍♂️ Пользователь с номером <code>%s</code> не найден ни в базе бота, ни в Яндекс Парке.", normalized)
		switch lookup.Cause {
		case fleet.CauseTimeout:
			text += "\n\n⚠️ Поиск в Яндекс Парке занял слишком много времени."
		case fleet.CauseError:
			text += "\n\n⚠️ Ошибка при поиске в парке, попробуйте позже."
		}
		return text
	}

	parts := []string{fmt.Sprintf("📝 <b>Отчет по номеру:</b> <code>%s</code>", normalized)}

	if lookup.Found {
		d := lookup.Driver
		ordersLine := "📈 Выполнено заказов: не удалось получить"
		if orders := b.fleet.OrderCount(ctx, d.ID); orders.Known {
			ordersLine = fmt.Sprintf("📈 Выполнено заказов: %d", orders.Count)
			if userInDB != nil {
				if _, err := b.store.SetOrderCount(ctx, userInDB.ID, orders.Count); err != nil {
					zap.L().Error("[ADMIN_SEARCH] Не удалось записать заказы", zap.Error(err))
				}
			}
		}
		parts = append(parts, strings.Join([]string{
			"👤 ФИО: " + html.EscapeString(d.DisplayName()),
			"📊 Статус: " + workStatusTitle(d.WorkStatus),
			ordersLine,
		}, "\n"))
	} else {
		parts = append(parts, "❔ В Яндекс Парке не найден")
	}

	if userInDB == nil {
		parts = append(parts, "ℹ️ В боте не зарегистрирован (но есть в парке)")
		return strings.Join(parts, "\n\n")
	}

	lines := []string{"👤 Имя в Telegram: " + html.EscapeString(userInDB.FullName)}
	if userInDB.Username != "" {
		lines = append(lines, "📱 Username: @"+html.EscapeString(userInDB.Username))
	}
	if userInDB.Phone != nil {
		lines = append(lines, "📞 Телефон: "+*userInDB.Phone)
	}
	if userInDB.ReferrerID != nil {
		if ref, err := b.store.GetUser(ctx, *userInDB.ReferrerID); err == nil {
			refLink := fmt.Sprintf(`<a href="tg://user?id=%d">профиль</a>`, ref.ID)
			if ref.Username != "" {
				refLink = "@" + html.EscapeString(ref.Username)
			}
			refPhone := "не указан"
			if ref.Phone != nil {
				refPhone = *ref.Phone
			}
			lines = append(lines, "",
				"👥 Пользователя пригласил:",
				"👤 Имя в Telegram: "+html.EscapeString(ref.FullName),
				"📱 Username: "+refLink,
				"📞 Телефон: "+refPhone)
		}
	}
	parts = append(parts, strings.Join(lines, "\n"))

	invited, err := b.store.ListReferrals(ctx, userInDB.ID)
	switch {
	case err != nil:
		zap.L().Error("Ошибка при получении приглашенных пользователей", zap.Error(err))
		parts = append(parts, "Приглашенные им: ошибка получения данных")
	case len(invited) == 0:
		parts = append(parts, "Приглашенные им:\n— нет данных")
	default:
		blocks := make([]string, 0, len(invited))
		for _, iu := range invited {
			phoneDisplay := "не указан"
			if iu.Phone != nil {
				phoneDisplay = *iu.Phone
			}
			blocks = append(blocks, strings.Join([]string{
				"👤 Имя в Telegram: " + html.EscapeString(iu.FullName),
				"📱 Username: " + usernameText(iu.Username),
				"📞 Телефон: " + phoneDisplay,
				fmt.Sprintf("📈 Заказов: %d", iu.OrderCount),
			}, "\n"))
		}
		parts = append(parts, "Приглашенные им:\n\n"+strings.Join(blocks, "\n\n"))
	}

	return strings.Join(parts, "\n\n")
}

func (b *Bot) handleBack(ctx context.Context, msg *tgbotapi.Message) {
	if err := b.sessions.Delete(ctx, msg.From.ID); err != nil {
		zap.L().Warn("Не удалось удалить сессию", zap.Error(err))
	}
	b.replyHTML(msg.Chat.ID, "Главное меню", mainMenuKeyboard(b.isAdmin(ctx, msg.From.ID)))
}

func workStatusTitle(status string) string {
	switch status {
	case "working":
		return "✅ Работает"
	case "not_working":
		return "⏸ Не работает"
	case "fired":
		return "❌ Уволен"
	case "blocked":
		return "🚫 Заблокирован"
	}
	return "-"
}

func usernameText(username string) string {
	if username == "" {
		return "нет username"
	}
	return "@" + html.EscapeString(username)
}
