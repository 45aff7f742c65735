package cli

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/config"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/enrollment"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/notify"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/reconcile"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

// app: собранные зависимости процесса
type app struct {
	cfg        *config.Config
	store      database.Store
	fleet      *fleet.Client
	botAPI     *tgbotapi.BotAPI // nil без BOT_TOKEN
	notifier   notify.Dispatcher
	resolver   *enrollment.Resolver
	sweeper    *reconcile.Sweeper
	thresholds models.Thresholds
}

// loadConfig читает окружение; withFleet, нужны ли учётные данные парка
func loadConfig(withFleet bool) (*config.Config, error) {
	cfg := config.Load()
	validate := cfg.ValidateLocal
	if withFleet {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return nil, eris.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openStore подключает хранилище по DB_DRIVER; ошибка подключения фатальна для процесса
func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return database.NewSQLite(cfg.SQLitePath)
	default:
		return database.NewPostgres(ctx, cfg.DSN())
	}
}

func newFleetClient(cfg *config.Config) *fleet.Client {
	return fleet.NewClient(fleet.Config{
		BaseURL:       cfg.YandexBaseURL,
		ParkID:        cfg.YandexParkID,
		ClientID:      cfg.YandexClientID,
		APIKey:        cfg.YandexAPIKey,
		Timeout:       cfg.FleetTimeout,
		MinSpacing:    cfg.FleetMinSpacing,
		ProfileLimit:  cfg.FleetProfileLimit,
		OrderPageSize: cfg.FleetOrderPageSize,
		MaxPages:      cfg.FleetMaxPages,
		OrderLookback: cfg.FleetOrderLookback,
	})
}

// newApp собирает хранилище, клиент парка, уведомления, резолвер и сверку
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	thresholds, err := config.LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "❌ Ошибка подключения к БД")
	}

	a := &app{
		cfg:        cfg,
		store:      store,
		fleet:      newFleetClient(cfg),
		thresholds: thresholds,
	}

	if cfg.BotToken != "" {
		a.botAPI, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			store.Close()
			return nil, eris.Wrap(err, "telegram bot init")
		}
		a.botAPI.Debug = cfg.Env == "debug" && cfg.LogLevel == "debug"
		a.notifier = notify.NewTelegram(a.botAPI, store, cfg.NotificationChannelID)
		zap.L().Info("✅ Telegram подключён", zap.String("bot", a.botAPI.Self.UserName))
	} else {
		zap.L().Warn("⚠️ BOT_TOKEN не задан, уведомления пишутся только в лог")
		a.notifier = notify.Log{}
	}

	a.resolver = enrollment.NewResolver(store, a.fleet, a.notifier)
	a.sweeper = reconcile.NewSweeper(store, a.fleet, a.notifier, reconcile.Config{
		Interval:     cfg.SweepInterval,
		Jitter:       cfg.SweepJitter,
		EntrySpacing: cfg.SweepEntrySpacing,
		Thresholds:   thresholds,
	})
	return a, nil
}

func (a *app) close() {
	a.store.Close()
}
