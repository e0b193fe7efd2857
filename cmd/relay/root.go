package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/chatrelay/internal/config"
)

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Telegram chat relay backed by a completion model",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("env-file", "", "Env file to load before reading the environment (default ./.env if present).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLambdaCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newEventsCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(envFile)
}
