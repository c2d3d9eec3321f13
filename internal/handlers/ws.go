// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gamblevs/minesduel/internal/auth"
	"github.com/gamblevs/minesduel/internal/game"
	"github.com/gamblevs/minesduel/internal/middleware"
)

// WSHandler upgrades the HTTP connection to the duel websocket, establishes
// the guest session identity, and runs the read loop until the client goes
// away. All game semantics live in MatchServer; this handler is only
// transport.
func WSHandler(logger *logrus.Logger, ms *MatchServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The session cookie must ride along with the upgrade response, so
		// identity is resolved before Accept writes the 101.
		connID, err := auth.EnsureGuestSession(w, r)
		if err != nil {
			logger.Warnf("session setup failed for %s: %v", r.RemoteAddr, err)
			http.Error(w, "session setup failed", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"duel"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "duel" {
			c.Close(BadSubprotocolError, "client must speak the duel subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := ms.Notifier.Register(connID)
		go writePump(ctx, c, out, logger)

		ms.HandleConnect(connID)
		readPump(ctx, c, ms, connID, logger)

		// ---- Cleanup after readPump exits ----
		ms.Notifier.Unregister(connID, out)
		ms.HandleDisconnect(connID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readPump reads client messages until the connection closes or the context
// is cancelled. Unknown or malformed input is answered with a rejection and
// never tears the connection down.
func readPump(ctx context.Context, c *websocket.Conn, ms *MatchServer, connID uuid.UUID, logger *logrus.Logger) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for %s", connID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("websocket context canceled for %s", connID)
			} else {
				logger.Warnf("websocket read error for %s: %v (status %d)", connID, err, status)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warnf("ignoring non-text message from %s", connID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid json from %s: %v", connID, err)
			ms.Notifier.Send(connID, game.Event{Type: game.EventRejected, Reason: "invalid JSON"})
			continue
		}

		ms.HandleMessage(connID, msg)
	}
}

// writePump drains the connection's out-channel onto the websocket and
// keeps the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, out <-chan game.Event, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-out:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal %s event: %v", ev.Type, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				// Broken socket; readPump sees the closure and cleans up.
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
