package transport

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Message wraps raw frame bytes with a receive timestamp.
type Message struct {
	Data       []byte    // Raw frame bytes from the socket
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Config configures a Conn.
type Config struct {
	URL              string        // WebSocket URL
	HandshakeTimeout time.Duration // Dial/upgrade deadline
	WriteTimeout     time.Duration // Write deadline per send
	BufferSize       int           // Inbound message channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}
