package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// writeTimeout bounds a single event write so hung connections are reaped.
const writeTimeout = 60 * time.Second

// OwnerResolver extracts and validates the owner a stream is scoped to.
// An empty owner subscribes to broadcasts only.
type OwnerResolver func(r *http.Request) (string, error)

// Handler handles SSE connections at GET /api/v1/events.
type Handler struct {
	manager *Manager
	owner   OwnerResolver
	logger  *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, owner OwnerResolver, logger *slog.Logger) *Handler {
	if owner == nil {
		owner = func(*http.Request) (string, error) { return "", nil }
	}
	return &Handler{
		manager: manager,
		owner:   owner,
		logger:  logger,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Early client disconnect.
	if r.Context().Err() != nil {
		return
	}

	ownerID, err := h.owner(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(ownerID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	clientLogger := h.logger.With(slog.String("client_id", client.ID))

	if err := h.sendEvent(w, rc, "connected", map[string]string{
		"client_id": client.ID,
		"owner_id":  ownerID,
	}); err != nil {
		clientLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := h.sendEvent(w, rc, string(event.Type), event); err != nil {
				// Client disconnect is normal, not an error condition.
				clientLogger.Debug("client disconnected during send")
				return
			}

		case <-client.Done:
			clientLogger.Debug("client closed by manager")
			return

		case <-ctx.Done():
			return
		}
	}
}

// sendEvent writes one event in SSE framing and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write.
	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		// Not supported by every ResponseWriter.
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
