// Package ws relays archival run events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/archival"
)

// Subscriber yields raw messages published on a channel until cleanup is
// called or ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by pub/sub.
type Hub struct {
	subscriber Subscriber
}

// NewHub creates a new WebSocket hub.
func NewHub(subscriber Subscriber) *Hub {
	return &Hub{subscriber: subscriber}
}

// ServeArchival streams run events from archival.EventsChannel to the client.
// An optional run_id query parameter restricts the stream to a single run.
func (h *Hub) ServeArchival(w http.ResponseWriter, r *http.Request) {
	var runID uuid.UUID
	if v := r.URL.Query().Get("run_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid run id", http.StatusBadRequest)
			return
		}
		runID = id
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.subscriber.Subscribe(ctx, archival.EventsChannel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if runID != uuid.Nil && !forRun(msg, runID) {
				continue
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

func forRun(msg []byte, runID uuid.UUID) bool {
	var ev struct {
		RunID uuid.UUID `json:"run_id"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil {
		return false
	}
	return ev.RunID == runID
}
