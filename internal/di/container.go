// Package di provides dependency injection configuration for the FuelUp sync server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/auth"
	"github.com/fuelupapp/fuelup-server/internal/config"
	"github.com/fuelupapp/fuelup-server/internal/di/providers"
	"github.com/fuelupapp/fuelup-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()
	Register(injector)
	return injector
}

// Register adds every provider to the injector. Entries can be replaced with
// do.OverrideValue before the first invocation.
func Register(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvidePhotoStorage)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Sync engine
	do.Provide(injector, providers.ProvideCheckpointManager)
	do.Provide(injector, providers.ProvideSyncService)
	do.Provide(injector, providers.ProvideRateLimiter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
}

// Bootstrap initializes all services. Provider errors surface here rather
// than on the first request.
func Bootstrap(injector do.Injector) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.LoggerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*auth.TokenService](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.PhotoStorage](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.SyncService](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
