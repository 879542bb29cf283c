package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cheildo/duel-relay/internal/lifecycle"
)

// Config tunes the WebSocket transport.
type Config struct {
	SendBuffer int
	ReadLimit  int64
	PongWait   time.Duration
	WriteWait  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	return c
}

// pingPeriod must be shorter than PongWait.
func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// WebsocketHandler upgrades client connections and feeds their events to the
// lifecycle controller.
type WebsocketHandler struct {
	ctx      context.Context
	ctrl     *lifecycle.Controller
	conns    *ConnectionManager
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebsocketHandler builds the handler. ctx bounds profile lookups made during login
// and should be cancelled on shutdown.
func NewWebsocketHandler(ctx context.Context, ctrl *lifecycle.Controller, conns *ConnectionManager, cfg Config, logger *slog.Logger) *WebsocketHandler {
	return &WebsocketHandler{
		ctx:    ctx,
		ctrl:   ctrl,
		conns:  conns,
		cfg:    cfg.withDefaults(),
		logger: logger,
		upgrader: websocket.Upgrader{
			// Browser clients are served from anywhere, as with the HTTP CORS policy.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}

	conn := newConn(uuid.NewString(), ws, h.cfg.SendBuffer)
	h.conns.Add(conn)
	h.ctrl.Connect(conn)

	go conn.writePump(h.cfg.WriteWait, h.cfg.pingPeriod())
	h.readPump(conn)
}

// readPump processes one connection's frames in arrival order. When the socket fails
// for any reason the connection is marked dead before the controller cleans up, so
// pairing never picks it again.
func (h *WebsocketHandler) readPump(conn *Conn) {
	defer func() {
		conn.markClosed()
		h.ctrl.Disconnect(conn)
		h.conns.Remove(conn.ID())
		conn.ws.Close()
	}()

	conn.ws.SetReadLimit(h.cfg.ReadLimit)
	conn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		return nil
	})

	for {
		_, msg, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket connection closed unexpectedly", "conn", conn.ID(), "error", err)
			}
			return
		}
		conn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			h.logger.Debug("Skipping malformed frame", "conn", conn.ID(), "error", err)
			continue
		}
		h.dispatch(conn, env)
	}
}

func (h *WebsocketHandler) dispatch(conn *Conn, env Envelope) {
	switch env.Event {
	case lifecycle.EventLogin:
		h.ctrl.Login(h.ctx, conn, parseDisplayName(env.Data))
	case lifecycle.EventFindMatch:
		h.ctrl.FindMatch(conn, nullToNil(env.Data))
	case lifecycle.EventCancelMatch:
		h.ctrl.CancelMatch(conn)
	case "aim", "endAim", "shoot", "syncTurn":
		h.ctrl.Gameplay(conn, env.Event, env.Data)
	default:
		h.logger.Debug("Ignoring unknown event", "conn", conn.ID(), "event", env.Event)
	}
}

// parseDisplayName accepts a bare JSON string or {"username": "..."}. Anything else
// yields "", which the controller turns into the default name.
func parseDisplayName(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return name
	}
	var obj struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.Username
	}
	return ""
}

func nullToNil(data json.RawMessage) json.RawMessage {
	if string(data) == "null" {
		return nil
	}
	return data
}
