package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultHeartbeatInterval keeps idle streams open through proxies.
const DefaultHeartbeatInterval = 30 * time.Second

// UserResolver returns the authenticated user of a request.
type UserResolver func(ctx context.Context) (string, bool)

// Handler serves GET /api/v1/sync/events.
type Handler struct {
	manager   *Manager
	userOf    UserResolver
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, userOf UserResolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:   manager,
		userOf:    userOf,
		logger:    logger,
		heartbeat: DefaultHeartbeatInterval,
	}
}

// ServeHTTP streams events for the caller until it disconnects. The deviceId
// query parameter names the listening device so its own pushes are not echoed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := h.userOf(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"Authentication required"}`))
		return
	}
	deviceID := r.URL.Query().Get("deviceId")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(userID, deviceID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		return
	}
	defer h.manager.Disconnect(client.ID)

	clientLogger := h.logger.With(slog.String("client_id", client.ID))

	if err := h.sendEvent(w, rc, EventConnected, map[string]string{"clientId": client.ID}); err != nil {
		clientLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, event.Type, event.Data); err != nil {
				clientLogger.Info("client disconnected during send")
				return
			}
		case <-ticker.C:
			if err := h.write(w, rc, ": heartbeat\n\n"); err != nil {
				clientLogger.Info("client disconnected during heartbeat")
				return
			}
		case <-client.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	return h.write(w, rc, fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload))
}

func (h *Handler) write(w http.ResponseWriter, rc *http.ResponseController, frame string) error {
	if _, err := fmt.Fprint(w, frame); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	if err := rc.SetWriteDeadline(time.Now().Add(2 * h.heartbeat)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
