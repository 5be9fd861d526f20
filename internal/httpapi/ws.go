package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gamebattle/arena/internal/game"
	"gamebattle/arena/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Rows int    `json:"rows,omitempty"`
	Cols int    `json:"cols,omitempty"`
}

// wsConn serialises writes; the pump and the farewell path both write.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// terminal bridges a game's PTY to the client. The first client frame must
// be the raw token; any failure after the upgrade answers with one bye
// frame and a close, indistinguishable across causes.
func (h *HandlerSet) terminal(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	_, token, err := raw.ReadMessage()
	if err != nil {
		return
	}
	identity, err := h.verifier.Verify(string(token))
	if err != nil {
		_ = conn.writeJSON(wsFrame{Type: "bye"})
		return
	}

	id, err := sessionID(r)
	if err != nil {
		_ = conn.writeJSON(wsFrame{Type: "bye"})
		return
	}
	g, err := h.manager.GetGame(identity.Email, id, gameIndex(r))
	if err != nil {
		_ = conn.writeJSON(wsFrame{Type: "bye"})
		return
	}

	metrics.BridgesOpen.Inc()
	defer metrics.BridgesOpen.Dec()

	// Two directions, first done cancels the other. The reader cannot be
	// interrupted mid-Read, so cancellation closes the socket under it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		raw.Close()
	}()

	done := make(chan struct{}, 2)
	go func() {
		defer cancel()
		h.pumpOutput(ctx, conn, g)
		done <- struct{}{}
	}()
	go func() {
		defer cancel()
		h.pumpInput(ctx, raw, g)
		done <- struct{}{}
	}()
	<-done
	<-done
}

// pumpOutput replays history and live output to the client, then says bye.
func (h *HandlerSet) pumpOutput(ctx context.Context, conn *wsConn, g *game.Game) {
	sub := g.Receive()
	for {
		frame, ok := sub.Next(ctx)
		if !ok {
			break
		}
		encoded := base64.StdEncoding.EncodeToString(frame.Data)
		if err := conn.writeJSON(wsFrame{Type: "stdout", Data: encoded}); err != nil {
			return
		}
	}
	_ = conn.writeJSON(wsFrame{Type: "bye"})
}

// pumpInput forwards client stdin and resize frames to the game. Unparseable
// frames are dropped, matching terminal clients that send noise on close.
func (h *HandlerSet) pumpInput(ctx context.Context, raw *websocket.Conn, g *game.Game) {
	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "stdin":
			data, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				continue
			}
			if err := g.Send(data); err != nil {
				h.log.Debug().Err(err).Msg("stdin after exit")
			}
		case "resize":
			if frame.Rows <= 0 || frame.Cols <= 0 {
				continue
			}
			g.Resize(ctx, uint(frame.Cols), uint(frame.Rows))
		}
	}
}
