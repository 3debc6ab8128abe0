package relay

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SUNET/ais-data-relay/ais"
	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/metric"
	"github.com/SUNET/ais-data-relay/normalize"
)

// authResponseTimeout bounds the informational read of the upstream's
// login response. The stream proceeds whether or not a response arrives;
// the source does not gate the feed on a positive acknowledgment.
const authResponseTimeout = 10 * time.Second

// UpstreamConfig holds the connector's connection parameters
type UpstreamConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	HashedLogin    bool
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// Connector owns the TCP session to the AIS source. It logs in, reads
// the stream line by line, hands lines to the hub and decoded reports to
// the deliver callback, and reconnects forever on any failure.
type Connector struct {
	cfg     UpstreamConfig
	decoder ais.Decoder
	hub     *Hub
	deliver func(normalize.Report)
	logger  *slog.Logger
	metrics *metric.Metrics

	connMu    sync.Mutex
	conn      net.Conn
	connected atomic.Bool

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewConnector creates an upstream connector. deliver receives every
// successfully decoded and normalized report; metrics may be nil.
func NewConnector(
	cfg UpstreamConfig,
	decoder ais.Decoder,
	hub *Hub,
	deliver func(normalize.Report),
	logger *slog.Logger,
	metrics *metric.Metrics,
) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Connector{
		cfg:     cfg,
		decoder: decoder,
		hub:     hub,
		deliver: deliver,
		logger:  logger.With("component", "upstream"),
		metrics: metrics,
	}
}

// Initialize validates the connector's collaborators
func (c *Connector) Initialize() error {
	if c.cfg.Host == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Connector", "Initialize", "upstream host")
	}
	if c.decoder == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Connector", "Initialize", "sentence decoder")
	}
	if c.hub == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Connector", "Initialize", "broadcast hub")
	}
	return nil
}

// Start launches the connection loop
func (c *Connector) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.started {
		return errors.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Stop cancels the connection loop and waits for it to exit
func (c *Connector) Stop(timeout time.Duration) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false
	c.cancel()
	c.closeConn()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(
			fmt.Errorf("connector did not stop within %s", timeout),
			"Connector", "Stop", "wait for shutdown")
	}
}

// Connected reports whether the upstream session is currently streaming
func (c *Connector) Connected() bool {
	return c.connected.Load()
}

// run is the reconnect loop: one session per iteration, fixed delay
// between attempts
func (c *Connector) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.session(ctx)
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error("upstream session ended", "error", err)
		}

		if c.metrics != nil {
			c.metrics.UpstreamReconnects.Inc()
		}

		timer := time.NewTimer(c.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials, logs in, and streams until the connection fails
func (c *Connector) session(ctx context.Context) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	c.logger.Info("connecting to AIS source", "addr", addr)

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.WrapTransient(err, "Connector", "session", "dial upstream")
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer c.closeConn()

	c.logger.Info("connected to AIS source")
	reader := bufio.NewReader(conn)

	if c.cfg.Username != "" && c.cfg.Password != "" {
		if err := c.login(conn, reader); err != nil {
			return err
		}
	} else {
		c.logger.Info("no credentials configured, streaming without login")
	}

	c.setConnected(true)
	return c.stream(reader)
}

// login sends the configured login frame and logs the response if one
// arrives within the timeout. A missing response is not an error.
func (c *Connector) login(conn net.Conn, reader *bufio.Reader) error {
	frame := logonFrame(c.cfg.Username, c.cfg.Password)
	if c.cfg.HashedLogin {
		frame = logonFrameHashed(c.cfg.Username, c.cfg.Password)
		c.logger.Info("sending hashed login", "user", c.cfg.Username)
	} else {
		c.logger.Info("sending login", "user", c.cfg.Username)
	}

	if _, err := conn.Write(frame); err != nil {
		return errors.WrapTransient(err, "Connector", "login", "send login frame")
	}

	_ = conn.SetReadDeadline(time.Now().Add(authResponseTimeout))
	response, err := reader.ReadBytes('\n')
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		c.logger.Warn("no authentication response received", "error", err)
		return nil
	}
	c.logger.Info("authentication response", "response", string(bytes.TrimSpace(response)))
	return nil
}

// stream reads the feed line by line until it fails
func (c *Connector) stream(reader *bufio.Reader) error {
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.handleLine(line)
		}
		if err != nil {
			return errors.WrapTransient(errors.ErrConnectionLost, "Connector", "stream", "read upstream")
		}
	}
}

// handleLine forwards the raw line and decodes its sentence fragments.
// A decode failure skips that fragment only.
func (c *Connector) handleLine(line []byte) {
	if c.metrics != nil {
		c.metrics.LinesReceived.Inc()
	}

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 0 {
		c.hub.BroadcastRaw(trimmed)
	}

	for _, frag := range ais.FilterSentences(line) {
		fields, err := c.decoder.Decode(frag)
		if err != nil {
			if !errors.Is(err, ais.ErrIncompleteSentence) {
				if c.metrics != nil {
					c.metrics.DecodeErrors.Inc()
				}
				c.logger.Debug("sentence decode failed", "error", err)
			}
			continue
		}

		if c.metrics != nil {
			c.metrics.ReportsParsed.Inc()
		}
		c.deliver(normalize.Normalize(fields))
	}
}

func (c *Connector) setConnected(v bool) {
	c.connected.Store(v)
	if c.metrics != nil {
		if v {
			c.metrics.UpstreamConnected.Set(1)
		} else {
			c.metrics.UpstreamConnected.Set(0)
		}
	}
}

func (c *Connector) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// logonFrame builds the plain login frame:
// [0x01] username [0x00] password [0x00]
func logonFrame(username, password string) []byte {
	frame := make([]byte, 0, len(username)+len(password)+3)
	frame = append(frame, 0x01)
	frame = append(frame, username...)
	frame = append(frame, 0x00)
	frame = append(frame, password...)
	frame = append(frame, 0x00)
	return frame
}

// logonFrameHashed builds the hashed login frame:
// [0x02] username [0x00] base64(MD5(password)) [0x00]
func logonFrameHashed(username, password string) []byte {
	sum := md5.Sum([]byte(password))
	encoded := base64.StdEncoding.EncodeToString(sum[:])

	frame := make([]byte, 0, len(username)+len(encoded)+3)
	frame = append(frame, 0x02)
	frame = append(frame, username...)
	frame = append(frame, 0x00)
	frame = append(frame, encoded...)
	frame = append(frame, 0x00)
	return frame
}
