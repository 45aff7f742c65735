package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/fleet"
	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/internal/phone"
)

var checkOrders bool

var checkPhoneCmd = &cobra.Command{
	Use:   "check-phone PHONE",
	Short: "Найти водителя в парке по телефону",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !phone.Valid(args[0]) {
			return fmt.Errorf("неверный формат номера: %q", args[0])
		}
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		client := newFleetClient(cfg)
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		normalized := phone.Normalize(args[0])
		fmt.Fprintf(out, "🔍 Поиск по номеру %s\n", normalized)

		lookup := client.FindDriverByPhone(ctx, normalized)
		if !lookup.Found {
			fmt.Fprintf(out, "❔ Не найден (причина: %s)\n", lookup.Cause)
			if lookup.Err != nil {
				fmt.Fprintf(out, "   %v\n", lookup.Err)
			}
			return nil
		}

		d := lookup.Driver
		fmt.Fprintf(out, "✅ Найден: %s\n", d.DisplayName())
		fmt.Fprintf(out, "   driver_id:   %s\n", d.ID)
		fmt.Fprintf(out, "   work_status: %s\n", d.WorkStatus)
		fmt.Fprintf(out, "   машина:      %s %s %s\n", d.Car.Brand, d.Car.Model, d.Car.Number)

		pos := client.ClassifyPosition(ctx, d.ID)
		if pos.Known() {
			fmt.Fprintf(out, "   позиция:     %s (%s)\n", pos.Position.Title(), pos.Source)
		} else {
			carPos, source := fleet.ClassifyCar(d.Car)
			fmt.Fprintf(out, "   позиция:     не определена, по машине: %s (%s)\n", carPos.Title(), source)
		}

		if checkOrders {
			orders := client.OrderCount(ctx, d.ID)
			if orders.Known {
				fmt.Fprintf(out, "   заказов:     %d (поле %s, страниц %d)\n", orders.Count, orders.Field, orders.Pages)
			} else {
				fmt.Fprintf(out, "   заказов:     неизвестно (%v)\n", orders.Err)
			}
		}
		return nil
	},
}

func init() {
	checkPhoneCmd.Flags().BoolVar(&checkOrders, "orders", false, "также посчитать выполненные заказы")
}
