// Package streaming is the WebSocket transport shared by realtime provider
// adapters. It owns dialing, retries, write serialization, heartbeats and
// graceful close, and leaves message encoding to the caller.
package streaming

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection defaults.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024
	DefaultAttempts         = 1
	DefaultBackoffBase      = 1 * time.Second
	DefaultBackoffMax       = 30 * time.Second
	DefaultCloseGracePeriod = 2 * time.Second
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("websocket is closed")

// Logger receives transport diagnostics.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures Dial.
type Config struct {
	URL     string
	Headers http.Header

	DialTimeout    time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Attempts is the number of dial attempts. Backoff between attempts is
	// exponential with jitter, capped at BackoffMax.
	Attempts    int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	CloseGracePeriod time.Duration
	Logger           Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.DialTimeout <= 0 {
		out.DialTimeout = DefaultDialTimeout
	}
	if out.WriteWait <= 0 {
		out.WriteWait = DefaultWriteWait
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = DefaultMaxMessageSize
	}
	if out.Attempts <= 0 {
		out.Attempts = DefaultAttempts
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = DefaultBackoffBase
	}
	if out.BackoffMax <= 0 {
		out.BackoffMax = DefaultBackoffMax
	}
	if out.CloseGracePeriod <= 0 {
		out.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	return out
}

// Conn is an established WebSocket connection. Writes are serialized; a
// single goroutine is expected to call Receive.
type Conn struct {
	cfg  Config
	ws   *websocket.Conn
	done chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to cfg.URL, retrying up to cfg.Attempts times.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	c := cfg.withDefaults()
	dialer := websocket.Dialer{
		HandshakeTimeout: c.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		Proxy:            http.ProxyFromEnvironment,
	}

	var lastErr error
	backoff := c.BackoffBase
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		ws, err := dialOnce(ctx, &dialer, &c)
		if err == nil {
			ws.SetReadLimit(c.MaxMessageSize)
			return &Conn{cfg: c, ws: ws, done: make(chan struct{})}, nil
		}
		lastErr = err
		c.Logger.Warn("websocket dial failed", "attempt", attempt, "max_attempts", c.Attempts, "error", err)

		if attempt == c.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(backoff, c.BackoffMax)):
		}
		backoff = min(backoff*2, c.BackoffMax)
	}
	if c.Attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", c.Attempts, lastErr)
}

func dialOnce(ctx context.Context, d *websocket.Dialer, c *Config) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()

	c.Logger.Debug("dialing websocket", "host", hostOf(c.URL))
	ws, resp, err := d.DialContext(dialCtx, c.URL, c.Headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return ws, nil
}

// HandshakeError is a dial rejected with an HTTP status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed (HTTP %d): %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// SendJSON encodes v and writes it as a text message.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	if c.IsClosed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive blocks until a message arrives, ctx is done or the connection
// fails. A failed read leaves the connection unusable.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if c.IsClosed() {
		return nil, ErrClosed
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if c.IsClosed() {
			return nil, ErrClosed
		}
		return nil, err
	}
	return data, nil
}

// IsNormalClose reports whether err is a clean close from the peer.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// CloseReason extracts the peer's close code and text, if err is a close.
func CloseReason(err error) (int, string, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// StartHeartbeat pings the peer every interval until ctx ends or the
// connection closes.
func (c *Conn) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					c.cfg.Logger.Warn("websocket ping failed", "error", err)
					return
				}
			}
		}
	}()
}

// Done is closed when Close is called.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close sends a normal close frame and closes the socket. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// jitter applies +-25% to base, capped at maxDelay.
func jitter(base, maxDelay time.Duration) time.Duration {
	d := min(base, maxDelay)
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return d
	}
	// n/500-1 is in [-1, 1).
	offset := time.Duration(float64(d) * 0.25 * (float64(n.Int64())/500 - 1))
	return min(max(d+offset, 0), maxDelay)
}

// hostOf keeps credentials passed as query parameters out of logs.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
