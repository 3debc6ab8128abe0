package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/SUNET/ais-data-relay/config"
)

// filterMessage is the one in-band control message structured
// subscribers may send to set or replace their geographic filter
type filterMessage struct {
	Type string `json:"type"`
	BBox struct {
		MinLat float64 `json:"min_lat"`
		MaxLat float64 `json:"max_lat"`
		MinLon float64 `json:"min_lon"`
		MaxLon float64 `json:"max_lon"`
	} `json:"bbox"`
}

// WSHandler upgrades authenticated requests to WebSocket subscriptions
// and feeds filter messages back into the hub's client state.
type WSHandler struct {
	gate     *CredentialGate
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates the structured-subscriber endpoint handler
func NewWSHandler(gate *CredentialGate, hub *Hub, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WSHandler{
		gate: gate,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		logger: logger.With("component", "ws-server"),
	}
}

// ServeHTTP authenticates the handshake, upgrades, and runs the client's
// read loop until it disconnects
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.gate.CheckBasic(r) {
		RequireBasic(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newWSClient(conn)
	h.hub.AddWS(client)
	h.logger.Info("WebSocket client connected", "remote", r.RemoteAddr)

	defer func() {
		h.hub.RemoveWS(client)
		h.logger.Info("WebSocket client disconnected", "remote", r.RemoteAddr)
	}()

	// Read loop: only filter messages are meaningful, everything else
	// is ignored. A read error means the client is gone.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg filterMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed client message", "error", err)
			continue
		}
		if msg.Type != "filter" {
			continue
		}

		client.SetBounds(config.Bounds{
			MinLat: msg.BBox.MinLat,
			MaxLat: msg.BBox.MaxLat,
			MinLon: msg.BBox.MinLon,
			MaxLon: msg.BBox.MaxLon,
		})
		h.logger.Info("WebSocket client filter set", "remote", r.RemoteAddr)
	}
}
