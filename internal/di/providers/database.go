package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/config"
	"github.com/fuelupapp/fuelup-server/internal/sse"
	"github.com/fuelupapp/fuelup-server/internal/store"
	"github.com/fuelupapp/fuelup-server/internal/store/postgres"
	"github.com/fuelupapp/fuelup-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*LoggerHandle](i)

	manager := sse.NewManager(log.Logger.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the selected storage backend with shutdown capability.
type StoreHandle struct {
	store.Backend
	Driver string
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the backend named by the store driver.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	backend, err := OpenBackend(context.Background(), cfg.Store, log.Logger.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Entity store initialized", "driver", cfg.Store.Driver)

	return &StoreHandle{Backend: backend, Driver: cfg.Store.Driver}, nil
}

// OpenBackend opens a storage backend. Postgres schemas are migrated before use.
func OpenBackend(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Backend, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		s, err := store.New(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
