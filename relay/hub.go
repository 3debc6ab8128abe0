// Package relay implements the ingestion-to-fan-out pipeline: the
// upstream connector, the broadcast hub, the downstream TCP and
// WebSocket servers with their auth gates, and the composition that
// ties them to the persistence workers.
package relay

import (
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SUNET/ais-data-relay/config"
	"github.com/SUNET/ais-data-relay/metric"
	"github.com/SUNET/ais-data-relay/normalize"
)

const defaultWriteTimeout = 10 * time.Second

// WSClient is one structured subscriber: a websocket connection plus an
// optional geographic filter set via an in-band filter message.
type WSClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	boundsMu sync.Mutex
	bounds   *config.Bounds

	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{conn: conn}
}

// SetBounds replaces the client's geographic filter
func (c *WSClient) SetBounds(b config.Bounds) {
	c.boundsMu.Lock()
	c.bounds = &b
	c.boundsMu.Unlock()
}

// Bounds returns the current filter, nil when unset
func (c *WSClient) Bounds() *config.Bounds {
	c.boundsMu.Lock()
	defer c.boundsMu.Unlock()
	return c.bounds
}

// send writes one prepared JSON message under the write lock
func (c *WSClient) send(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSClient) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// Hub owns both subscriber registries exclusively. Raw subscribers get
// every upstream line verbatim; structured subscribers get normalized
// reports filtered by their bounds. A failed send prunes that subscriber
// and never affects the others.
type Hub struct {
	mu  sync.Mutex
	raw map[net.Conn]struct{}
	ws  map[*WSClient]struct{}

	writeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metric.Metrics
}

// NewHub creates an empty hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *metric.Metrics) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		raw:          make(map[net.Conn]struct{}),
		ws:           make(map[*WSClient]struct{}),
		writeTimeout: defaultWriteTimeout,
		logger:       logger.With("component", "hub"),
		metrics:      metrics,
	}
}

// AddRaw admits an authenticated TCP relay client
func (h *Hub) AddRaw(conn net.Conn) {
	h.mu.Lock()
	h.raw[conn] = struct{}{}
	count := len(h.raw)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.TCPClients.Set(float64(count))
	}
}

// RemoveRaw drops a TCP relay client and closes its connection
func (h *Hub) RemoveRaw(conn net.Conn) {
	h.mu.Lock()
	_, present := h.raw[conn]
	delete(h.raw, conn)
	count := len(h.raw)
	h.mu.Unlock()

	if present {
		_ = conn.Close()
	}
	if h.metrics != nil {
		h.metrics.TCPClients.Set(float64(count))
	}
}

// AddWS admits an authenticated structured subscriber
func (h *Hub) AddWS(c *WSClient) {
	h.mu.Lock()
	h.ws[c] = struct{}{}
	count := len(h.ws)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
}

// RemoveWS drops a structured subscriber and closes its connection
func (h *Hub) RemoveWS(c *WSClient) {
	h.mu.Lock()
	_, present := h.ws[c]
	delete(h.ws, c)
	count := len(h.ws)
	h.mu.Unlock()

	if present {
		c.close()
	}
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
}

// Counts returns the current raw and structured subscriber counts
func (h *Hub) Counts() (tcp, ws int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.raw), len(h.ws)
}

// BroadcastRaw sends one upstream line plus CRLF to every raw subscriber.
// Subscribers whose write fails are pruned after the loop.
func (h *Hub) BroadcastRaw(line []byte) {
	data := make([]byte, 0, len(line)+2)
	data = append(data, line...)
	data = append(data, '\r', '\n')

	h.mu.Lock()
	conns := make([]net.Conn, 0, len(h.raw))
	for conn := range h.raw {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	var dead []net.Conn
	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if _, err := conn.Write(data); err != nil {
			dead = append(dead, conn)
		}
	}

	for _, conn := range dead {
		h.RemoveRaw(conn)
		h.logger.Info("removed dead TCP client", "remote", conn.RemoteAddr())
	}

	if h.metrics != nil && len(conns) > len(dead) {
		h.metrics.LinesRelayed.Add(float64(len(conns) - len(dead)))
	}
}

// BroadcastReport sends one normalized report to every structured
// subscriber whose filter is unset or contains the report position.
// Positionless reports go only to unfiltered subscribers.
func (h *Hub) BroadcastReport(report normalize.Report) {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.ws))
	for c := range h.ws {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		h.logger.Error("failed to marshal report", "error", err)
		return
	}

	var dead []*WSClient
	for _, c := range clients {
		if bounds := c.Bounds(); bounds != nil {
			if report.Location == nil {
				continue
			}
			lon := report.Location.Coordinates[0]
			lat := report.Location.Coordinates[1]
			if !bounds.Contains(lat, lon) {
				continue
			}
		}

		if err := c.send(data, h.writeTimeout); err != nil {
			dead = append(dead, c)
			continue
		}
		if h.metrics != nil {
			h.metrics.ReportsSent.Inc()
		}
	}

	for _, c := range dead {
		h.RemoveWS(c)
		h.logger.Info("removed dead WebSocket client")
	}
}
