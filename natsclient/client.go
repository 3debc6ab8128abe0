// Package natsclient manages the optional NATS connection used to
// republish normalized reports. The client is inert when no URL is
// configured so the relay runs standalone by default.
package natsclient

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/metric"
)

// Config holds the connection parameters
type Config struct {
	URL           string
	ClientName    string
	ReconnectWait time.Duration
	Timeout       time.Duration
	Logger        *slog.Logger
	Metrics       *metric.Metrics
}

// Client wraps a NATS connection with reconnect handling and metrics.
// A client built from an empty URL never connects and every Publish is
// a no-op error.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu   sync.RWMutex
	conn *nats.Conn
}

// NewClient creates a NATS client. Connect must be called before use.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "natsclient"),
		metrics: cfg.Metrics,
	}
}

// Enabled reports whether a URL was configured
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// Connect establishes the connection. Reconnects are handled by the
// NATS library indefinitely; a server that is down at startup is a
// startup failure, not a silent degradation.
func (c *Client) Connect() error {
	if !c.Enabled() {
		return errors.WrapInvalid(errors.ErrMissingConfig, "natsclient", "Connect", "resolve server URL")
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.Timeout(c.cfg.Timeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}
	if c.cfg.ClientName != "" {
		opts = append(opts, nats.Name(c.cfg.ClientName))
	}

	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Connect", "connect to server")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setConnectedMetric(true)
	c.logger.Info("connected to NATS", "url", c.cfg.URL)
	return nil
}

// Publish sends data on subject
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNotConnected, "natsclient", "Publish", "check connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish message")
	}
	if c.metrics != nil {
		c.metrics.NATSPublished.Inc()
	}
	return nil
}

// IsConnected reports whether the underlying connection is up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains and closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		c.logger.Warn("failed to drain NATS connection", "error", err)
		conn.Close()
	}
	c.setConnectedMetric(false)
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setConnectedMetric(false)
	if err != nil {
		c.logger.Warn("disconnected from NATS", "error", err)
		return
	}
	c.logger.Info("disconnected from NATS")
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setConnectedMetric(true)
	if c.metrics != nil {
		c.metrics.NATSReconnects.Inc()
	}
	c.logger.Info("reconnected to NATS", "url", conn.ConnectedUrl())
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setConnectedMetric(false)
	c.logger.Info("NATS connection closed")
}

func (c *Client) setConnectedMetric(up bool) {
	if c.metrics == nil {
		return
	}
	if up {
		c.metrics.NATSConnected.Set(1)
		return
	}
	c.metrics.NATSConnected.Set(0)
}
