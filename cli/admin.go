package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/auth"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/database"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/models"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Управление администраторами бота",
}

var adminAddCmd = &cobra.Command{
	Use:   "add USER_ID",
	Short: "Выдать права администратора",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store database.Store) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return setAdmin(ctx, cmd, store, userID, true)
		})
	},
}

var adminRemoveCmd = &cobra.Command{
	Use:   "remove USER_ID",
	Short: "Снять права администратора",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store database.Store) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return setAdmin(ctx, cmd, store, userID, false)
		})
	},
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "Показать администраторов",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store database.Store) error {
			admins, err := store.ListAdmins(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(admins) == 0 {
				fmt.Fprintln(out, "Нет администраторов")
				return nil
			}
			fmt.Fprintf(out, "Администраторы (%d):\n", len(admins))
			for _, a := range admins {
				username := "нет username"
				if a.Username != "" {
					username = "@" + a.Username
				}
				fmt.Fprintf(out, "  - %s (%s, ID: %d)\n", a.FullName, username, a.ID)
			}
			return nil
		})
	},
}

var adminTokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Выпустить JWT для админского API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		if !cfg.IsConfiguredAdmin(userID) {
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			u, err := store.GetUser(cmd.Context(), userID)
			if err != nil || !u.IsAdmin {
				return fmt.Errorf("пользователь %d не администратор", userID)
			}
		}
		token, err := auth.GenerateAdminToken(cfg, userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminAddCmd, adminRemoveCmd, adminListCmd, adminTokenCmd)
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, store database.Store) error) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("USER_ID должен быть положительным числом: %q", s)
	}
	return id, nil
}

// setAdmin меняет флаг; пользователя, который ещё не писал боту, создаёт заготовкой
func setAdmin(ctx context.Context, cmd *cobra.Command, store database.Store, userID int64, admin bool) error {
	out := cmd.OutOrStdout()
	err := store.SetAdmin(ctx, userID, admin)
	if errors.Is(err, database.ErrNotFound) {
		if !admin {
			fmt.Fprintf(out, "Пользователь ID: %d не найден\n", userID)
			return nil
		}
		if _, err := store.UpsertUser(ctx, &models.User{ID: userID, IsAdmin: true}); err != nil {
			return err
		}
		fmt.Fprintf(out, "✅ Пользователь ID: %d добавлен как администратор\n", userID)
		fmt.Fprintln(out, "   (пользователь ещё не зарегистрировался в боте)")
		return nil
	}
	if err != nil {
		return err
	}

	u, err := store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if admin {
		fmt.Fprintf(out, "✅ Пользователь %s (ID: %d) теперь администратор\n", u.FullName, userID)
	} else {
		fmt.Fprintf(out, "✅ У пользователя %s (ID: %d) убран статус администратора\n", u.FullName, userID)
	}
	return nil
}
