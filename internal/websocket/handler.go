package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"liveclass/internal/gateway"
	"liveclass/internal/hub"
	"liveclass/pkg/types"
)

const (
	readTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
	pingWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deployment policy; tighten behind a proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades signaling connections, registers them on the hub and
// pumps inbound envelopes into the gateway dispatch table.
type Handler struct {
	hub     *hub.Hub
	gateway *gateway.Gateway
	log     *slog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(h *hub.Hub, gw *gateway.Gateway, log *slog.Logger) *Handler {
	return &Handler{hub: h, gateway: gw, log: log}
}

// HandleWebSocket validates identity parameters, upgrades the request and
// starts the connection lifecycle. Validation happens before the upgrade so
// bad requests get proper HTTP status codes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	classID := r.URL.Query().Get("class_id")

	if userID == "" || classID == "" {
		http.Error(w, "Missing required query parameters: user_id, class_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(classID) {
		http.Error(w, "Invalid class_id format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	wsConn := NewConnection(conn)
	wsConn.SetIdentity(userID, classID)

	if err := h.hub.Register(wsConn, classID); err != nil {
		h.log.Warn("failed to register connection", "user_id", userID, "error", err)
		_ = wsConn.Close()
		return
	}

	h.log.Info("connection established",
		"connection_id", wsConn.ID(), "user_id", userID, "class_id", classID)

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat until the peer goes
// away, then cleans up hub state.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.hub.Unregister(conn.ID())
		_ = conn.Close()
		h.log.Info("connection closed",
			"connection_id", conn.ID(), "user_id", conn.UserID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		h.log.Warn("failed to set read deadline", "error", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(pingWriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error",
					"connection_id", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Info("dropping undecodable frame",
				"connection_id", conn.ID(), "error", err)
			continue
		}

		h.gateway.Dispatch(context.Background(), conn.ID(), &env)
	}
}
