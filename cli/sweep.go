package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var sweepOnce bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Сверка заказов приглашённых водителей",
	Long: `Без флагов работает по расписанию SWEEP_INTERVAL до остановки процесса.
С --once выполняет один цикл и печатает итог.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "выполнить один цикл и выйти")
}

func runSweep(cmd *cobra.Command, args []string) error {
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

	if !sweepOnce {
		if err := a.sweeper.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		a.sweeper.Stop()
		return nil
	}

	res, err := a.sweeper.RunNow(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Цикл %s за %s\n", res.ID, res.Finished.Sub(res.Started).Round(time.Millisecond))
	fmt.Fprintf(out, "  записей:     %d (резервный список: %v)\n", res.Entries, res.Fallback)
	fmt.Fprintf(out, "  обновлено:   %d\n", res.Updated)
	fmt.Fprintf(out, "  уведомлено:  %d\n", res.Notified)
	fmt.Fprintf(out, "  неизвестно:  %d\n", res.Unknown)
	fmt.Fprintf(out, "  пропущено:   %d\n", res.Skipped)
	fmt.Fprintf(out, "  ошибок:      %d\n", res.Failed)
	if res.Interrupted {
		fmt.Fprintln(out, "  ⚠️ цикл прерван")
	}
	return nil
}
