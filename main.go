package main

import (
	"os"

	"github.com/SiteCraftorCPP/telegram-bot-kworkAlexzandr83/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
