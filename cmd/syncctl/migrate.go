package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Long: `Open the configured store and bring its schema up to date.

Postgres runs the embedded goose migrations. Badger and SQLite prepare
themselves on open, so for them this only verifies the store is reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, backend, err := g.openStore(cmd)
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.Ping(cmdContext(cmd)); err != nil {
				return fmt.Errorf("ping %s store: %w", cfg.Store.Driver, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", cfg.Store.Driver)
			return nil
		},
	}
}
