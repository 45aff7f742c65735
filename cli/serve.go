package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/handlers"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/bot"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/session"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить бота, сверку заказов и ops API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	sessions, closeSessions, err := openSessions(ctx, a)
	if err != nil {
		return err
	}
	defer closeSessions()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(cfg, a.store, a.sweeper, a.thresholds),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("🚀 Ops API запущен", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SweepEnabled {
		g.Go(func() error {
			if err := a.sweeper.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			a.sweeper.Stop()
			return nil
		})
	} else {
		zap.L().Warn("⏸️ Плановая сверка отключена (SWEEP_ENABLED=false)")
	}

	if a.botAPI != nil {
		b := bot.New(a.botAPI, a.store, a.resolver, a.sweeper, a.fleet, sessions, bot.Config{
			Username:   a.botAPI.Self.UserName,
			AdminIDs:   cfg.AdminUserIDs,
			Thresholds: a.thresholds,
		})
		g.Go(func() error { return b.Run(gctx) })
	}

	err = g.Wait()
	zap.L().Info("👋 Процесс остановлен")
	return err
}

// openSessions: Redis при заданном REDIS_ADDR, иначе память процесса
func openSessions(ctx context.Context, a *app) (session.Store, func(), error) {
	if a.cfg.RedisAddr == "" {
		return session.NewMemory(a.cfg.SessionTTL), func() {}, nil
	}
	r, err := session.NewRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.SessionTTL)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("✅ Сессии хранятся в Redis", zap.String("addr", a.cfg.RedisAddr))
	return r, func() { _ = r.Close() }, nil
}
