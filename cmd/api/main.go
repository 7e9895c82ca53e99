// Package main provides the entry point for the FuelUp sync server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/di"
	"github.com/fuelupapp/fuelup-server/internal/di/providers"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	providers.Version = version

	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap server: %v\n", err)
		injector.Shutdown()
		os.Exit(1)
	}

	log := do.MustInvoke[*providers.LoggerHandle](injector)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// Handles implement do.Shutdownable; the container stops them in
	// reverse dependency order, HTTP first and the store last.
	if err := injector.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		os.Exit(1)
	}
}
