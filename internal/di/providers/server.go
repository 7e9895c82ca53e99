package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/fuelupapp/fuelup-server/internal/api"
	"github.com/fuelupapp/fuelup-server/internal/auth"
	"github.com/fuelupapp/fuelup-server/internal/config"
	"github.com/fuelupapp/fuelup-server/internal/service"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	photos := do.MustInvoke[*PhotoStorage](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)

	services := &api.Services{
		Sync:   syncService,
		Tokens: tokens,
		Events: sseHandle.Manager,
		Store:  storeHandle.Backend,
	}
	// A nil *blob.Store must stay a nil interface.
	if photos.Store != nil {
		services.Photos = photos.Store
	}

	handler := api.NewServer(services, api.Options{
		Version:        Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter.KeyedRateLimiter,
	}, log.Logger.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
