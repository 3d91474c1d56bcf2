package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

// Streamer opens the multiplexed live stream of one owner.
type Streamer interface {
	Stream(ctx context.Context, ownerKey string, types []replication.EntityType) (<-chan replication.MultiplexedEvent, error)
}

type StreamHandler struct {
	streamer  Streamer
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

const defaultHeartbeat = 15 * time.Second

func NewStreamHandler(streamer Streamer, heartbeat time.Duration, logger *slog.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{
		streamer:  streamer,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *StreamHandler) open(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, <-chan replication.MultiplexedEvent, string, bool) {
	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner")
		return nil, nil, nil, "", false
	}

	types, err := replication.ParseEntityTypes(r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, nil, "", false
	}

	ctx, cancel := context.WithCancel(r.Context())
	events, err := h.streamer.Stream(ctx, owner, types)
	if err != nil {
		cancel()
		writeServiceError(w, err)
		return nil, nil, nil, "", false
	}
	return ctx, cancel, events, owner, true
}

// ServeSSE streams multiplexed events as server-sent events. Each event is
// one JSON encoded MultiplexedEvent; comments keep idle connections open.
func (h *StreamHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel, events, owner, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	connID := uuid.New()
	h.logger.Info("sse stream opened", "owner", owner, "conn", connID)
	defer h.logger.Info("sse stream closed", "owner", owner, "conn", connID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode stream event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ServeWS streams multiplexed events over a WebSocket. Client messages are
// ignored; the read loop only detects disconnects.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, events, owner, ok := h.open(w, r)
	if !ok {
		return
	}
	defer cancel()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	connID := uuid.New()
	h.logger.Info("websocket stream opened", "owner", owner, "conn", connID)
	defer h.logger.Info("websocket stream closed", "owner", owner, "conn", connID)

	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.heartbeat)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				h.logger.Warn("websocket write failed", "owner", owner, "conn", connID, "error", err)
				return
			}
		}
	}
}
