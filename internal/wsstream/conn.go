// Package wsstream wraps a gorilla/websocket connection with the
// plumbing a duplex streaming session needs: serialized writes, dial
// retry with backoff, heartbeats and idempotent shutdown.
package wsstream

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TsieOmni/AVA-Artificial-Virtual-Agent/logger"
)

// Config holds the dial and keepalive parameters for a connection.
// Zero values take the defaults below.
type Config struct {
	URL     string
	Headers http.Header

	DialTimeout      time.Duration
	WriteWait        time.Duration
	CloseGracePeriod time.Duration
	MaxMessageSize   int64

	// Retry settings for ConnectWithRetry.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

const (
	defaultDialTimeout      = 30 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultCloseGracePeriod = time.Second
	defaultMaxMessageSize   = 10 << 20
	defaultMaxRetries       = 3
	defaultInitialBackoff   = 500 * time.Millisecond
	defaultMaxBackoff       = 10 * time.Second
)

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = defaultCloseGracePeriod
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
}

// Conn is a websocket connection with serialized writes. All methods
// are safe for concurrent use.
type Conn struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	closeCh chan struct{}

	writeMu sync.Mutex
}

// New builds an unconnected Conn. Call Connect or ConnectWithRetry
// before sending.
func New(cfg Config) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:     cfg,
		closeCh: make(chan struct{}),
	}
}

// Connect dials the configured URL once.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("connection already closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, c.cfg.URL, c.cfg.Headers)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("websocket dial failed (status %d): %w", status, err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return fmt.Errorf("connection closed during dial")
	}
	c.conn = conn
	logger.Debug("websocket connected", "url", logger.Redact(c.cfg.URL))
	return nil
}

// ConnectWithRetry dials with exponential backoff and jitter.
func (c *Conn) ConnectWithRetry(ctx context.Context) error {
	var lastErr error
	backoff := c.cfg.InitialBackoff

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff + jitter(backoff/2)
			logger.Debug("websocket retrying",
				"attempt", attempt,
				"wait", wait,
				"url", logger.Redact(c.cfg.URL))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.closeCh:
				return fmt.Errorf("connection closed during retry")
			case <-time.After(wait):
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}

		if lastErr = c.Connect(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("websocket connect failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return max / 2
	}
	return time.Duration(n.Int64())
}

// Send writes a text message. Writes are serialized across goroutines.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("websocket is not connected")
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Receive blocks until a message arrives, the context is canceled or
// the connection drops.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("websocket is not connected")
	}
	conn := c.conn
	c.mu.Unlock()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		msgType, data, err := conn.ReadMessage()
		if err == nil && msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			err = fmt.Errorf("unexpected message type %d", msgType)
		}
		ch <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}

// StartHeartbeat sends ping frames at the given interval until the
// connection or context ends.
func (c *Conn) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			case <-ticker.C:
				if !c.ping() {
					return
				}
			}
		}
	}()
}

func (c *Conn) ping() bool {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		logger.Warn("websocket ping failed", "error", err)
		return false
	}
	return true
}

// Close sends a close frame and tears down the connection. Safe to
// call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.writeMu.Unlock()

	return c.conn.Close()
}

// Done is closed when the connection is shut down.
func (c *Conn) Done() <-chan struct{} { return c.closeCh }

// IsConnected reports whether the connection is established and open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}
