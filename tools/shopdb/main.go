package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

type configKey struct{}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shopdb",
		Short: "Shop database tool for the Caddy shop module",
		Long: `A CLI tool to manage and inspect the database behind the Caddy shop module.

This tool allows you to:
  - Apply the shop schema migrations (postgres, sqlite)
  - Print the introspected schema of an entity
  - Run list queries with the same parameters the HTTP endpoints accept

Settings are read from shopdb.yaml, SHOPDB_* environment variables and flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := loadConfig(cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cfg := configFrom(cmd); cfg != nil {
				_ = cfg.logger().Sync()
			}
		},
	}

	registerFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(listCmd())

	return rootCmd
}

func configFrom(cmd *cobra.Command) *config {
	if cmd.Context() == nil {
		return nil
	}
	cfg, _ := cmd.Context().Value(configKey{}).(*config)
	return cfg
}
