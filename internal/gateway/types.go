package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrRetriesExhausted  = errors.New("reconnect attempts exhausted")
	ErrProtocolViolation = errors.New("protocol violation")
)

// FatalError is a close the connection must not retry: bad
// credentials or a rejected shard configuration.
type FatalError struct {
	Code   int
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal gateway close %d: %s", e.Code, e.Reason)
}

// Close codes the service declares unrecoverable.
const (
	closeAuthenticationFailed = 4004
	closeInvalidShard         = 4010
	closeShardingRequired     = 4011
	closeInvalidIntents       = 4013
	closeDisallowedIntents    = 4014
)

// fatalClose extracts a FatalError from a transport error, if the
// close code is one the client must not retry.
func fatalClose(err error) *FatalError {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return nil
	}

	switch ce.Code {
	case closeAuthenticationFailed, closeInvalidShard,
		closeShardingRequired, closeInvalidIntents, closeDisallowedIntents:
		return &FatalError{Code: ce.Code, Reason: ce.Text}
	}
	return nil
}

// IdentifyThrottle grants admission for fresh Identify handshakes.
// Implemented by shard.Budget; injected so connections in tests can
// run against a permissive stub.
type IdentifyThrottle interface {
	Acquire(ctx context.Context) error
	Release()
}

// NopThrottle is an IdentifyThrottle that always admits immediately.
type NopThrottle struct{}

func (NopThrottle) Acquire(ctx context.Context) error { return nil }
func (NopThrottle) Release()                          {}

// Config configures one Connection.
type Config struct {
	URL   string
	Token string

	ShardIndex int
	ShardCount int

	// Identify extras
	Properties map[string]string
	Intents    int

	// Strict surfaces unknown dispatch event names as decode errors
	// instead of routing them to wildcard handlers.
	Strict bool

	// First-heartbeat jitter bounds, fractions of the advertised
	// interval.
	JitterMin float64
	JitterMax float64

	// HelloTimeout bounds the wait for the server's Hello frame.
	HelloTimeout time.Duration

	// ResumeRetryCeiling is how many consecutive failed resumes are
	// attempted before the session is dropped and a fresh Identify
	// forced.
	ResumeRetryCeiling int

	// MaxReconnectAttempts is how many consecutive connection
	// attempts may fail to reach dispatching before Run gives up
	// with ErrRetriesExhausted.
	MaxReconnectAttempts int

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration

	// Outbound frame budget (the service allows 120 per 60s).
	SendRatePerMinute int

	TransportBufferSize int
	WriteTimeout        time.Duration
	HandshakeTimeout    time.Duration
}

// DefaultConfig returns sensible defaults; URL, Token and shard
// numbers still have to be set.
func DefaultConfig() Config {
	return Config{
		Properties:           map[string]string{"$os": "linux", "$device": "pulsegate"},
		JitterMin:            0,
		JitterMax:            1,
		HelloTimeout:         15 * time.Second,
		ResumeRetryCeiling:   3,
		MaxReconnectAttempts: 10,
		ReconnectBaseWait:    time.Second,
		ReconnectMaxWait:     60 * time.Second,
		SendRatePerMinute:    120,
		TransportBufferSize:  256,
		WriteTimeout:         5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}
