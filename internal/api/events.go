package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/scatterview/server/internal/events"
)

const (
	// Time allowed to write an event to the peer.
	wsWriteWait = 10 * time.Second

	// Send pings to peer with this period.
	wsPingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	wsMaxMsgSize = 64 * 1024

	// Outgoing event buffer per connection.
	wsSendBuffer = 256
)

// eventsHandler upgrades the request to a websocket and streams state-change
// events for the dataset in scope. The socket is one-way; interactions still
// go through the HTTP API.
func eventsHandler(bus *events.Bus, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bus == nil {
			http.Error(w, "event bus not configured", http.StatusNotImplemented)
			return
		}

		datasetID := chi.URLParam(r, "dataset")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		conn.SetReadLimit(wsMaxMsgSize)

		ch, unsubscribe := bus.Subscribe(wsSendBuffer)
		defer unsubscribe()

		ctx := r.Context()
		go eventWritePump(ctx, conn, datasetID, ch)
		eventReadPump(ctx, conn)
	}
}

// eventReadPump drains the connection until the peer goes away. Incoming
// messages are discarded.
func eventReadPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// eventWritePump forwards bus events for one dataset to the peer and keeps
// the connection alive with pings. Unsubscribing closes the event channel,
// which ends the pump.
func eventWritePump(ctx context.Context, conn *websocket.Conn, datasetID string, ch <-chan events.Event) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Dataset != "" && ev.Dataset != datasetID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// wsOriginPatterns converts configured CORS origins (URLs) into the host
// patterns the websocket handshake checks.
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
