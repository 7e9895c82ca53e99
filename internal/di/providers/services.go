package providers

import (
	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/config"
	"github.com/fuelupapp/fuelup-server/internal/ratelimit"
	"github.com/fuelupapp/fuelup-server/internal/service"
	"github.com/fuelupapp/fuelup-server/internal/validation"
)

// ProvideCheckpointManager provides the per-device checkpoint manager.
func ProvideCheckpointManager(i do.Injector) (*service.CheckpointManager, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*LoggerHandle](i)

	return service.NewCheckpointManager(storeHandle.Backend, log.Logger.Logger), nil
}

// ProvideSyncService provides the push/pull coordinator.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	checkpoints := do.MustInvoke[*service.CheckpointManager](i)
	log := do.MustInvoke[*LoggerHandle](i)

	opts := service.SyncOptions{
		PageSize:        cfg.Sync.PageSize,
		MaxPageSize:     cfg.Sync.MaxPageSize,
		MaxBatchSize:    cfg.Sync.MaxBatchSize,
		PushConcurrency: cfg.Sync.PushConcurrency,
	}

	return service.NewSyncService(
		storeHandle.Backend,
		checkpoints,
		validation.New(),
		sseHandle.Manager,
		opts,
		log.Logger.Logger,
	), nil
}

// RateLimiterHandle stops the limiter's eviction loop on shutdown.
type RateLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	if h.KeyedRateLimiter != nil {
		h.Stop()
	}
	return nil
}

// ProvideRateLimiter provides the per-user request limiter.
// A non-positive rate disables limiting.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	if cfg.Sync.RateLimitRPS <= 0 {
		log.Info("Rate limiting disabled")
		return &RateLimiterHandle{}, nil
	}

	return &RateLimiterHandle{
		KeyedRateLimiter: ratelimit.New(cfg.Sync.RateLimitRPS, cfg.Sync.RateLimitBurst),
	}, nil
}
