package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/config"
	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/middleware"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/registry"
	"github.com/jojo-app/realtime-server-go/internal/sse"
)

// IdentityResolver admits a realtime session. It falls back to a guest
// identity rather than rejecting a bad credential.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (model.Identity, error)
}

type EventsHandler struct {
	broker    *sse.Broker
	resolver  IdentityResolver
	heartbeat time.Duration
}

func NewEventsHandler(broker *sse.Broker, resolver IdentityResolver) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		resolver:  resolver,
		heartbeat: config.HeartbeatInterval,
	}
}

// GET /v1/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	ctx := r.Context()
	id, err := h.resolver.Resolve(ctx, middleware.ExtractToken(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve realtime identity")
		writeError(w, apperrors.Internal("Failed to establish session"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := h.broker.Connect(ctx, id)
	// The request context is already done here; presence events still go out.
	defer h.broker.Disconnect(context.WithoutCancel(ctx), client)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("sessionId", client.ID).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Debug().Str("sessionId", client.ID).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := sse.WriteEvent(w, flusher, event); err != nil {
				log.Debug().Err(err).Str("sessionId", client.ID).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if err := sse.WriteHeartbeat(w, flusher); err != nil {
				log.Debug().Str("sessionId", client.ID).Msg("heartbeat failed, closing connection")
				return
			}
		}
	}
}

// POST /v1/events/{sessionId}/rooms/{room}
func (h *EventsHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	room := chi.URLParam(r, "room")

	joined, err := h.broker.JoinRoom(r.Context(), sessionID, room)
	if errors.Is(err, registry.ErrUnknownSession) {
		writeError(w, apperrors.NotFound("Session"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"room": room, "joined": joined})
}

// DELETE /v1/events/{sessionId}/rooms/{room}
func (h *EventsHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	room := chi.URLParam(r, "room")

	if err := h.broker.LeaveRoom(sessionID, room); err != nil {
		if errors.Is(err, registry.ErrUnknownSession) {
			writeError(w, apperrors.NotFound("Session"))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"room": room, "joined": false})
}

// GET /v1/realtime/stats
func (h *EventsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.broker.Stats())
}
