package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/stonksbot/stonks/internal/events"
)

// EventsStreamHandler streams broker events over a WebSocket so chat adapters
// and dashboards can render fill lines for trades that had no HTTP caller,
// such as scheduled queue drains.
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws requests.
// An optional ?types=a,b query restricts the stream to those event types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	var allowedTypes map[events.EventType]bool
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	h.log.Info().Msg("Client connected to event stream")

	ch, cancel := h.eventBus.Subscribe()
	defer cancel()

	ctx := r.Context()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case evt, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bus closed")
				return
			}
			if allowedTypes != nil && !allowedTypes[evt.Type] {
				continue
			}
			if err := h.writeEvent(ctx, conn, evt); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write event, dropping client")
				return
			}

		case <-heartbeat.C:
			ping := events.Event{Type: "heartbeat", Timestamp: time.Now()}
			if err := h.writeEvent(ctx, conn, ping); err != nil {
				h.log.Debug().Err(err).Msg("Heartbeat failed, dropping client")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) writeEvent(ctx context.Context, conn *websocket.Conn, evt events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, evt)
}
