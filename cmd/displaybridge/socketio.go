package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	gosocketio "github.com/graarh/golang-socketio"
	"github.com/graarh/golang-socketio/transport"
)

// ============================================================================
// Socket.IO client (v2 server / Engine.IO protocol 3)
// ============================================================================
// Volumio exposes its realtime API through Socket.IO 2.x. Framing, the
// Engine.IO handshake and ping/pong are handled by golang-socketio over its
// websocket transport. This wrapper adds what the bridge needs on top:
//   - URL normalization (http/https base URL -> EIO=3 websocket endpoint)
//   - handlers that survive reconnects
//   - reconnect with exponential backoff, as the stock JS client does
// ============================================================================

var (
	errNotConnected = errors.New("socket.io: not connected")
	errServerClosed = errors.New("socket.io: connection closed")
)

// SocketIOClient keeps one Socket.IO session alive.
//
// Register handlers with On/OnConnect/OnDisconnect before calling Run.
// Emit is safe from any goroutine.
type SocketIOClient struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex // guards conn
	conn *gosocketio.Client

	handlers     map[string]func(payload json.RawMessage)
	onConnect    func()
	onDisconnect func(error)

	minDelay time.Duration
	maxDelay time.Duration
}

// NewSocketIOClient validates rawURL (http, https, ws or wss) and prepares a client.
func NewSocketIOClient(rawURL string, logger *slog.Logger) (*SocketIOClient, error) {
	wsURL, err := socketIOURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &SocketIOClient{
		url:      wsURL,
		logger:   logger,
		handlers: make(map[string]func(json.RawMessage)),
		minDelay: reconnectDelayMin,
		maxDelay: reconnectDelayMax,
	}, nil
}

// socketIOURL maps a server base URL onto its websocket transport endpoint.
func socketIOURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid socket.io url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid socket.io url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid socket.io url %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "3")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// URL returns the websocket endpoint the client dials.
func (c *SocketIOClient) URL() string { return c.url }

// On registers the handler for a server event carrying one JSON argument.
func (c *SocketIOClient) On(event string, fn func(payload json.RawMessage)) {
	c.handlers[event] = fn
}

// OnConnect registers the handler run once per session after the transport is up.
func (c *SocketIOClient) OnConnect(fn func()) { c.onConnect = fn }

// OnDisconnect registers the handler run when a session ends.
func (c *SocketIOClient) OnDisconnect(fn func(error)) { c.onDisconnect = fn }

// Emit sends an event with a single JSON-serializable argument.
func (c *SocketIOClient) Emit(event string, arg any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return errNotConnected
	}
	if err := conn.Emit(event, arg); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *SocketIOClient) setConn(conn *gosocketio.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// Run connects and keeps reconnecting until ctx is canceled.
// It returns nil on cancellation.
func (c *SocketIOClient) Run(ctx context.Context) error {
	delay := c.minDelay
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			delay = c.minDelay
		}
		c.logger.Warn("socket.io connection lost; retrying...", "url", c.url, "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if !established {
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}
}

// session runs one transport connection until it drops or ctx is canceled.
// established reports whether the dial succeeded.
func (c *SocketIOClient) session(ctx context.Context) (established bool, err error) {
	conn, err := gosocketio.Dial(c.url, transport.GetDefaultWebsocketTransport())
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	closed := make(chan struct{})
	var closeOnce sync.Once
	// Called with the library's connection lock held; only signal here.
	if err := conn.On(gosocketio.OnDisconnection, func(*gosocketio.Channel) {
		closeOnce.Do(func() { close(closed) })
	}); err != nil {
		conn.Close()
		return false, fmt.Errorf("register disconnect handler: %w", err)
	}

	for name, fn := range c.handlers {
		fn := fn
		if err := conn.On(name, func(_ *gosocketio.Channel, payload json.RawMessage) {
			fn(payload)
		}); err != nil {
			conn.Close()
			return false, fmt.Errorf("register %s handler: %w", name, err)
		}
	}

	// The transport may have dropped before the disconnect handler was in place.
	if !conn.IsAlive() {
		conn.Close()
		return true, errServerClosed
	}

	c.setConn(conn)
	c.logger.Info("connected to socket.io server", "url", c.url)
	if c.onConnect != nil {
		c.onConnect()
	}

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-closed:
		err = errServerClosed
	}

	c.setConn(nil)
	conn.Close()
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
	return true, err
}
