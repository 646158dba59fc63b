package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a single WebSocket connection to the gateway.
type Conn interface {
	// Open establishes the WebSocket connection.
	Open(ctx context.Context) error

	// Close gracefully closes the connection. Safe to call twice.
	Close() error

	// Send writes one raw frame to the connection.
	Send(data []byte) error

	// Messages returns the channel of inbound raw frames. The channel
	// is not closed on failure; watch Errors instead.
	Messages() <-chan Message

	// Errors returns a channel that yields the error that killed the
	// read loop, if any.
	Errors() <-chan error

	// IsConnected returns the current connection state.
	IsConnected() bool
}

// conn implements the Conn interface over gorilla/websocket.
type conn struct {
	cfg    Config
	logger *slog.Logger

	ws *websocket.Conn

	messages chan Message
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// New creates an unopened Conn.
func New(cfg Config, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}

	return &conn{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Message, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Open establishes the WebSocket connection and starts the read loop.
func (c *conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.ws != nil {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.ws.Close()
	}

	return nil
}

// Send writes one raw frame to the connection.
func (c *conn) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel.
func (c *conn) Messages() <-chan Message {
	return c.messages
}

// Errors returns the error channel.
func (c *conn) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames from the socket into the messages channel.
func (c *conn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors after Close() are expected teardown noise.
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := Message{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame")
		}
	}
}
