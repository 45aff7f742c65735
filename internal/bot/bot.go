// Package bot реализует Telegram-бота регистрации водителей: приглашения, проверка
// телефона в парке, выбор категории, профиль с приглашёнными и админский поиск.
package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/enrollment"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/phone"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/session"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/middleware"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// API: методы tgbotapi.BotAPI, которыми пользуется бот
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Resolver: проверка телефона и выбор категории
type Resolver interface {
	Resolve(ctx context.Context, c enrollment.Candidate, rawPhone string) (*enrollment.Outcome, error)
	SelectCategory(ctx context.Context, userID int64, category models.Category) (*models.User, error)
}

// Refresher обновляет счётчики заказов приглашённых перед показом профиля
type Refresher interface {
	RefreshReferrer(ctx context.Context, referrerID int64) (int, error)
}

// Fleet: запросы админского поиска
type Fleet interface {
	FindDriverByPhone(ctx context.Context, rawPhone string) fleet.LookupResult
	OrderCount(ctx context.Context, driverID string) fleet.OrderCountResult
}

type Config struct {
	Username       string // имя бота для реферальной ссылки
	AdminIDs       []int64
	Thresholds     models.Thresholds
	PhoneAttempts  int           // попыток ввода телефона за окно
	AttemptWindow  time.Duration
	UpdateTimeout  time.Duration // на обработку одного обновления
	MaxConcurrency int
}

func DefaultConfig() Config {
	return Config{
		Thresholds:     models.DefaultThresholds(),
		PhoneAttempts:  5,
		AttemptWindow:  10 * time.Minute,
		UpdateTimeout:  2 * time.Minute,
		MaxConcurrency: 8,
	}
}

type Bot struct {
	api       API
	store     database.Store
	resolver  Resolver
	refresher Refresher
	fleet     Fleet
	sessions  session.Store
	limiter   *middleware.RateLimiter
	cfg       Config
}

func New(api API, store database.Store, resolver Resolver, refresher Refresher, fl Fleet, sessions session.Store, cfg Config) *Bot {
	def := DefaultConfig()
	if cfg.Thresholds == nil {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.PhoneAttempts <= 0 {
		cfg.PhoneAttempts = def.PhoneAttempts
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = def.AttemptWindow
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = def.UpdateTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	return &Bot{
		api:       api,
		store:     store,
		resolver:  resolver,
		refresher: refresher,
		fleet:     fl,
		sessions:  sessions,
		limiter:   middleware.NewRateLimiter(cfg.PhoneAttempts, cfg.AttemptWindow),
		cfg:       cfg,
	}
}

// Run читает обновления long polling до отмены ctx и ждёт начатые обработчики
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	zap.L().Info("🤖 Бот запущен", zap.String("username", b.cfg.Username))

	var g errgroup.Group
	g.SetLimit(b.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			err := g.Wait()
			zap.L().Info("Бот остановлен")
			return err
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			// ответ пользователю дописывается даже при остановке процесса
			updCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.UpdateTimeout)
			g.Go(func() error {
				defer cancel()
				b.HandleUpdate(updCtx, update)
				return nil
			})
		}
	}
}

// HandleUpdate обрабатывает одно обновление; паника не роняет бота
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("❌ Паника при обработке обновления", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg)
		default:
			b.reply(msg.Chat.ID, "Неизвестная команда. Отправьте /start")
		}
		return
	}

	if msg.Contact != nil {
		b.handlePhone(ctx, msg, msg.Contact.PhoneNumber)
		return
	}

	switch msg.Text {
	case btnStartWork:
		b.handleStartWork(ctx, msg)
		return
	case btnInvite:
		b.handleInvite(ctx, msg)
		return
	case btnProfile:
		b.handleProfile(ctx, msg)
		return
	case btnAdmin:
		b.handleAdminPanel(ctx, msg)
		return
	case btnAdminSearch:
		b.handleAdminSearchStart(ctx, msg)
		return
	case btnBack:
		b.handleBack(ctx, msg)
		return
	}

	sess, err := b.sessions.Get(ctx, msg.From.ID)
	if err != nil {
		zap.L().Error("Не удалось прочитать сессию", zap.Int64("user_id", msg.From.ID), zap.Error(err))
	}
	if sess != nil && sess.Stage == session.StageAdminSearch {
		b.handleAdminSearch(ctx, msg)
		return
	}
	if sess != nil && sess.Stage == session.StageAwaitingPhone {
		b.handlePhone(ctx, msg, msg.Text)
		return
	}

	// без сессии телефон принимается, пока он не записан; не найденный в парке
	// может отправить номер повторно для новой проверки
	u, err := b.store.GetUser(ctx, msg.From.ID)
	if err != nil || !u.HasPhone() || (!u.Enrolled && phone.Valid(msg.Text)) {
		b.handlePhone(ctx, msg, msg.Text)
		return
	}
	b.reply(msg.Chat.ID, "Воспользуйтесь кнопками меню 👇")
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		zap.L().Warn("Не удалось ответить на callback", zap.Error(err))
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return
	}

	zap.L().Debug("Нажата кнопка", zap.Int64("user_id", q.From.ID), zap.String("data", q.Data))

	if value, ok := strings.CutPrefix(q.Data, callbackCategory); ok {
		b.handleCategory(ctx, q, value)
	}
}

// isAdmin: администратор из конфигурации или с флагом в базе
func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	for _, id := range b.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	u, err := b.store.GetUser(ctx, userID)
	return err == nil && u.IsAdmin
}

// referralLink: ссылка вида https://t.me/<bot>?start=ref_<id>
func (b *Bot) referralLink(userID int64) string {
	return "https://t.me/" + b.cfg.Username + "?start=" + refPrefix + strconv.FormatInt(userID, 10)
}

// parseReferrer разбирает аргумент /start; некорректный и свой id отбрасываются
func parseReferrer(args string, userID int64) *int64 {
	raw, ok := strings.CutPrefix(strings.TrimSpace(args), refPrefix)
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 || id == userID {
		return nil
	}
	return &id
}

func candidateOf(u *tgbotapi.User, referrerID *int64) enrollment.Candidate {
	return enrollment.Candidate{
		UserID:     u.ID,
		Username:   u.UserName,
		FullName:   fullName(u),
		FirstName:  u.FirstName,
		ReferrerID: referrerID,
	}
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyHTML(chatID int64, text string, markup any) tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return b.send(msg)
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		b.replyHTML(chatID, text, nil)
		return
	}
	e := tgbotapi.NewEditMessageText(chatID, messageID, text)
	e.ParseMode = tgbotapi.ModeHTML
	b.send(e)
}

func (b *Bot) send(c tgbotapi.Chattable) tgbotapi.Message {
	m, err := b.api.Send(c)
	if err != nil {
		zap.L().Warn("Не удалось отправить сообщение", zap.Error(err))
	}
	return m
}
