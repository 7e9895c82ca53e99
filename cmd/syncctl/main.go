// Command syncctl inspects and administers a FuelUp sync store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuelupapp/fuelup-server/internal/config"
	"github.com/fuelupapp/fuelup-server/internal/di/providers"
	"github.com/fuelupapp/fuelup-server/internal/logger"
	"github.com/fuelupapp/fuelup-server/internal/store"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	envFile  string
	dataPath string
	driver   string
	dsn      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Administer a FuelUp sync store",
		Long: `syncctl works directly against the store the sync server uses.

Connection settings come from the same environment variables and .env file
as the server; flags override them.

Examples:
  syncctl token --user u_123
  syncctl migrate --store-driver postgres --store-dsn postgres://localhost/fuelup
  syncctl devices --user u_123
  syncctl changes --user u_123 --kinds food_entry,daily_log --limit 50`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", ".env", "Path to .env file")
	pf.StringVar(&g.dataPath, "data-path", "", "Base path for local data")
	pf.StringVar(&g.driver, "store-driver", "", "Entity store backend (badger, sqlite, postgres)")
	pf.StringVar(&g.dsn, "store-dsn", "", "Store location or connection string")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newTokenCmd(g),
		newMigrateCmd(g),
		newDevicesCmd(g),
		newChangesCmd(g),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration the way the server does, with the
// persistent flags taking precedence.
func (g *globals) loadConfig() (*config.Config, error) {
	args := []string{"-env-file", g.envFile, "-log-level", g.logLevel}
	if g.dataPath != "" {
		args = append(args, "-data-path", g.dataPath)
	}
	if g.driver != "" {
		args = append(args, "-store-driver", g.driver)
	}
	if g.dsn != "" {
		args = append(args, "-store-dsn", g.dsn)
	}
	return config.Load(flag.NewFlagSet("syncctl", flag.ContinueOnError), args)
}

func (g *globals) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logger.New(logger.Config{
		Writer:      cmd.ErrOrStderr(),
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	}).Logger
}

// openStore opens the configured backend. The caller closes it.
func (g *globals) openStore(cmd *cobra.Command) (*config.Config, store.Backend, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	backend, err := providers.OpenBackend(cmdContext(cmd), cfg.Store, g.logger(cmd, cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return cfg, backend, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
