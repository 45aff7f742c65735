// Package cli содержит команды процесса: serve, sweep, admin, check-phone
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/logging"
)

var (
	envFile string
	rootCmd *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "referral-bot",
		Short: "Бот регистрации водителей Яндекс Парка с реферальной программой",
		Long: `Telegram-бот, который проверяет кандидатов в Яндекс Парке по телефону,
ведёт реферальные связи и уведомляет о достижении порога заказов.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnv()
			mode := os.Getenv("GIN_MODE")
			return logging.InitLogger(mode == "release", os.Getenv("LOG_LEVEL"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "файл с переменными окружения")
	rootCmd.AddCommand(serveCmd, sweepCmd, adminCmd, checkPhoneCmd)
}

// Execute запускает корневую команду
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌ Ошибка:", err)
		return err
	}
	return nil
}

func loadEnv() {
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "⚠️ .env file not found, using system environment")
		return
	}
	fmt.Fprintln(os.Stderr, "✅ .env file loaded and applied")
}
