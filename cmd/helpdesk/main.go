package main

import (
	"fmt"
	"os"

	"github.com/alhafibarefoot/HelpDesk-sub001/internal/cli"
	"github.com/alhafibarefoot/HelpDesk-sub001/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "helpdesk"}

func main() {
	// .env is optional; flags and config.yaml cover the same settings.
	_ = godotenv.Load()

	defaultConn := ""
	if cfg, err := config.LoadConfig(); err == nil {
		defaultConn = cfg.ConnString()
	}
	rootCmd.PersistentFlags().String("db", defaultConn, "Database connection string")

	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
