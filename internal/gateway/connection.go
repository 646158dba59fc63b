package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/calebreyn/pulsegate/internal/codec"
	"github.com/calebreyn/pulsegate/internal/dispatch"
	"github.com/calebreyn/pulsegate/internal/heartbeat"
	"github.com/calebreyn/pulsegate/internal/rest"
	"github.com/calebreyn/pulsegate/internal/transport"
)

var (
	errStaleHeartbeat  = errors.New("heartbeat not acknowledged")
	errServerReconnect = errors.New("server requested reconnect")
)

// Connection is one shard's gateway connection. Run drives it until
// the context is cancelled, a fatal close is received, or reconnect
// attempts are exhausted.
type Connection struct {
	cfg        Config
	codec      codec.Codec
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	throttle   IdentifyThrottle
	restClient *rest.Client

	session   *Session
	sendLimit *rate.Limiter

	mu             sync.Mutex
	state          State
	user           codec.User
	pendingRelease bool

	// Test hook, called outside the state lock.
	onTransition func(from, to State)
}

// New creates a connection for one shard. The dispatcher and
// throttle are shared across shards; restClient may be nil.
func New(cfg Config, dispatcher *dispatch.Dispatcher, throttle IdentifyThrottle, restClient *rest.Client, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	if throttle == nil {
		throttle = NopThrottle{}
	}

	if cfg.SendRatePerMinute <= 0 {
		cfg.SendRatePerMinute = 120
	}
	if cfg.TransportBufferSize <= 0 {
		cfg.TransportBufferSize = 256
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = 15 * time.Second
	}
	perSecond := float64(cfg.SendRatePerMinute) / 60

	return &Connection{
		cfg:        cfg,
		codec:      codec.Codec{Strict: cfg.Strict},
		logger:     logger.With("shard", cfg.ShardIndex),
		dispatcher: dispatcher,
		throttle:   throttle,
		restClient: restClient,
		session:    NewSession(cfg.ShardIndex, cfg.ShardCount),
		sendLimit:  rate.NewLimiter(rate.Limit(perSecond), cfg.SendRatePerMinute),
		state:      StateDisconnected,
	}
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the connection's session. Owned by the connection;
// callers may read it but must not mutate it.
func (c *Connection) Session() *Session {
	return c.session
}

// Run drives the connection until ctx is cancelled (returns nil), a
// fatal close arrives (returns *FatalError), or
// cfg.MaxReconnectAttempts consecutive attempts fail to reach
// dispatching (returns ErrRetriesExhausted).
func (c *Connection) Run(ctx context.Context) error {
	attempts := 0
	resumeFailures := 0
	baseWait := c.cfg.ReconnectBaseWait
	if baseWait <= 0 {
		baseWait = time.Second
	}
	wait := baseWait

	for {
		res, err := c.runOnce(ctx)
		c.releaseIdentify()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			c.setState(StateClosed)
			c.logger.Error("fatal gateway close", "code", fatal.Code, "reason", fatal.Reason)
			return fatal
		}

		if res.dispatched {
			attempts = 0
			resumeFailures = 0
			wait = baseWait
		} else {
			attempts++
			if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
				c.setState(StateDisconnected)
				return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, err)
			}
		}

		ceiling := c.cfg.ResumeRetryCeiling
		if ceiling <= 0 {
			ceiling = 3
		}
		if res.attemptedResume && !res.resumed {
			resumeFailures++
			if resumeFailures >= ceiling {
				c.logger.Warn("resume retry ceiling reached, dropping session",
					"failures", resumeFailures,
				)
				c.session.Invalidate()
				resumeFailures = 0
			}
		}

		c.setState(StateReconnecting)
		c.logger.Info("reconnecting",
			"error", err,
			"resumable", c.session.Resumable(),
			"wait_ceiling", wait,
		)

		// Full jitter keeps a fleet of shards from retrying in step.
		sleep := time.Duration(rand.Int64N(int64(wait))) + time.Millisecond
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return nil
		case <-time.After(sleep):
		}

		wait *= 2
		if c.cfg.ReconnectMaxWait > 0 && wait > c.cfg.ReconnectMaxWait {
			wait = c.cfg.ReconnectMaxWait
		}
	}
}

// runResult reports how far one connection attempt got.
type runResult struct {
	dispatched      bool // reached dispatching
	resumed         bool // resume accepted by the server
	attemptedResume bool
}

// runOnce owns one transport connection from dial to death.
func (c *Connection) runOnce(ctx context.Context) (runResult, error) {
	var res runResult

	c.setState(StateConnecting)

	conn := transport.New(transport.Config{
		URL:              c.cfg.URL,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		WriteTimeout:     c.cfg.WriteTimeout,
		BufferSize:       c.cfg.TransportBufferSize,
	}, c.logger)

	if err := conn.Open(ctx); err != nil {
		return res, fmt.Errorf("open transport: %w", err)
	}
	defer conn.Close()

	c.setState(StateAwaitingHello)

	hello, err := c.awaitHello(ctx, conn)
	if err != nil {
		return res, err
	}

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	sched := heartbeat.New(heartbeat.Config{
		Interval:  interval,
		JitterMin: c.cfg.JitterMin,
		JitterMax: c.cfg.JitterMax,
	}, c.logger)
	sched.Start()
	defer sched.Stop()

	if c.session.Resumable() {
		res.attemptedResume = true
		if err := c.resume(ctx, conn); err != nil {
			return res, err
		}
	} else {
		if err := c.identify(ctx, conn, sched); err != nil {
			return res, err
		}
	}

	err = c.eventLoop(ctx, conn, sched, &res)
	return res, err
}

// awaitHello reads frames until the server's Hello arrives. Anything
// else first is a protocol violation that invalidates the session.
func (c *Connection) awaitHello(ctx context.Context, conn transport.Conn) (codec.Hello, error) {
	timer := time.NewTimer(c.cfg.HelloTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return codec.Hello{}, ctx.Err()

	case <-timer.C:
		return codec.Hello{}, fmt.Errorf("%w: no hello within %v", ErrProtocolViolation, c.cfg.HelloTimeout)

	case err := <-conn.Errors():
		if fatal := fatalClose(err); fatal != nil {
			return codec.Hello{}, fatal
		}
		return codec.Hello{}, fmt.Errorf("transport before hello: %w", err)

	case msg := <-conn.Messages():
		ev, err := c.codec.Decode(msg.Data)
		if err != nil {
			c.session.Invalidate()
			return codec.Hello{}, fmt.Errorf("%w: undecodable handshake frame: %v", ErrProtocolViolation, err)
		}
		if ev.Op != codec.OpHello {
			c.session.Invalidate()
			return codec.Hello{}, fmt.Errorf("%w: expected hello, got %s", ErrProtocolViolation, ev.Op)
		}

		var hello codec.Hello
		if err := codec.UnmarshalPayload(ev, &hello); err != nil {
			c.session.Invalidate()
			return codec.Hello{}, fmt.Errorf("%w: bad hello payload: %v", ErrProtocolViolation, err)
		}
		return hello, nil
	}
}

// identify acquires an admission slot and starts a fresh session. A
// slot still held from a rejected handshake is returned first, so
// re-identifying on the same socket cannot wedge on its own slot.
func (c *Connection) identify(ctx context.Context, conn transport.Conn, sched *heartbeat.Scheduler) error {
	c.releaseIdentify()
	c.setState(StateIdentifying)

	if err := c.awaitIdentifySlot(ctx, conn, sched); err != nil {
		return err
	}

	payload := codec.Identify{
		Token:      c.cfg.Token,
		Properties: c.cfg.Properties,
		Shard:      [2]int{c.cfg.ShardIndex, c.cfg.ShardCount},
		Intents:    c.cfg.Intents,
	}

	data, err := c.codec.Encode(codec.OpIdentify, payload)
	if err != nil {
		return err
	}
	if err := c.send(ctx, conn, data); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}

	c.logger.Info("identify sent", "shard_count", c.cfg.ShardCount)
	return nil
}

// awaitIdentifySlot blocks until the identify budget admits this
// shard, servicing heartbeats, acks, and transport errors while it
// waits. The budget spacing can exceed several heartbeat intervals
// with many shards queued, and going silent for that long would get
// the connection declared stale mid-queue.
func (c *Connection) awaitIdentifySlot(ctx context.Context, conn transport.Conn, sched *heartbeat.Scheduler) error {
	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	acquired := make(chan error, 1)
	go func() {
		acquired <- c.throttle.Acquire(acqCtx)
	}()

	// reap cancels an in-flight acquire and returns the slot if it
	// won the race anyway.
	reap := func() {
		cancel()
		if err := <-acquired; err == nil {
			c.throttle.Release()
		}
	}

	for {
		select {
		case err := <-acquired:
			if err != nil {
				return fmt.Errorf("identify budget: %w", err)
			}
			c.mu.Lock()
			c.pendingRelease = true
			c.mu.Unlock()
			return nil

		case <-sched.Beats():
			if err := c.sendHeartbeat(ctx, conn); err != nil {
				reap()
				return fmt.Errorf("send heartbeat: %w", err)
			}

		case <-sched.Stale():
			reap()
			c.session.Invalidate()
			return errStaleHeartbeat

		case err := <-conn.Errors():
			reap()
			if fatal := fatalClose(err); fatal != nil {
				return fatal
			}
			return fmt.Errorf("transport: %w", err)

		case msg := <-conn.Messages():
			ev, err := c.codec.Decode(msg.Data)
			if err != nil {
				c.logger.Warn("dropping undecodable frame", "error", err)
				continue
			}
			switch ev.Op {
			case codec.OpHeartbeatAck:
				sched.Ack()
			case codec.OpHeartbeat:
				if err := c.sendHeartbeat(ctx, conn); err != nil {
					reap()
					return fmt.Errorf("send heartbeat: %w", err)
				}
			case codec.OpReconnect:
				reap()
				return errServerReconnect
			default:
				c.logger.Warn("unexpected frame while awaiting identify slot", "op", ev.Op)
			}

		case <-ctx.Done():
			reap()
			return ctx.Err()
		}
	}
}

// resume reattaches to the existing session at its last sequence.
// Resume is exempt from the identify budget.
func (c *Connection) resume(ctx context.Context, conn transport.Conn) error {
	c.setState(StateResuming)

	seq, _ := c.session.Seq()
	payload := codec.Resume{
		Token:     c.cfg.Token,
		SessionID: c.session.ID(),
		Seq:       seq,
	}

	data, err := c.codec.Encode(codec.OpResume, payload)
	if err != nil {
		return err
	}
	if err := c.send(ctx, conn, data); err != nil {
		return fmt.Errorf("send resume: %w", err)
	}

	c.logger.Info("resume requested", "session_id", payload.SessionID, "seq", seq)
	return nil
}

// eventLoop is the steady-state frame pump. It returns when the
// connection dies, the heartbeat goes stale, or the server asks for
// a reconnect.
func (c *Connection) eventLoop(ctx context.Context, conn transport.Conn, sched *heartbeat.Scheduler, res *runResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-conn.Errors():
			if fatal := fatalClose(err); fatal != nil {
				return fatal
			}
			return fmt.Errorf("transport: %w", err)

		case <-sched.Stale():
			// The server may already consider the session dead, so a
			// resume could hang on a ghost; start over cleanly.
			c.session.Invalidate()
			return errStaleHeartbeat

		case <-sched.Beats():
			if err := c.sendHeartbeat(ctx, conn); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}

		case msg := <-conn.Messages():
			ev, err := c.codec.Decode(msg.Data)
			if err != nil {
				// Reportable, never connection-fatal. A strict-mode
				// unknown event still carries its sequence number,
				// which must not be lost to a later resume.
				if ev.HasSeq {
					c.session.ObserveSeq(ev.Seq)
				}
				c.logger.Warn("dropping undecodable frame", "error", err)
				continue
			}
			if err := c.handleEvent(ctx, conn, sched, ev, res); err != nil {
				return err
			}
		}
	}
}

// handleEvent processes one decoded frame in the steady state.
func (c *Connection) handleEvent(ctx context.Context, conn transport.Conn, sched *heartbeat.Scheduler, ev codec.Event, res *runResult) error {
	switch ev.Op {
	case codec.OpHeartbeatAck:
		sched.Ack()
		return nil

	case codec.OpHeartbeat:
		// A liveness probe from the server, answered immediately and
		// independently of our own cadence.
		return c.sendHeartbeat(ctx, conn)

	case codec.OpReconnect:
		return errServerReconnect

	case codec.OpInvalidSession:
		var resumable codec.InvalidSession
		if err := codec.UnmarshalPayload(ev, &resumable); err != nil {
			resumable = false
		}
		if !resumable {
			c.session.Invalidate()
			c.logger.Warn("session invalidated, starting fresh")
			res.attemptedResume = false
			// Fresh handshake on the same socket.
			return c.identify(ctx, conn, sched)
		}
		// Still resumable: reconnect and resume from the last
		// sequence.
		return errServerReconnect

	case codec.OpDispatch:
		return c.handleDispatch(ctx, ev, res)

	default:
		c.logger.Warn("unexpected opcode in steady state", "op", ev.Op)
		return nil
	}
}

// handleDispatch updates sequence tracking and forwards the event.
func (c *Connection) handleDispatch(ctx context.Context, ev codec.Event, res *runResult) error {
	if ev.HasSeq {
		c.session.ObserveSeq(ev.Seq)
	}

	switch ev.Name {
	case codec.EventReady:
		var ready codec.Ready
		if err := codec.UnmarshalPayload(ev, &ready); err != nil {
			c.session.Invalidate()
			return fmt.Errorf("%w: bad ready payload: %v", ErrProtocolViolation, err)
		}

		c.session.SetID(ready.SessionID)
		c.mu.Lock()
		c.user = ready.User
		c.mu.Unlock()
		c.releaseIdentify()

		c.setState(StateReady)
		c.setState(StateDispatching)
		res.dispatched = true

		c.logger.Info("session established",
			"session_id", ready.SessionID,
			"user", ready.User.Username,
		)

	case codec.EventResumed:
		c.setState(StateDispatching)
		res.dispatched = true
		res.resumed = true

		c.logger.Info("session resumed", "session_id", c.session.ID())
	}

	c.dispatchToHandlers(ctx, ev)
	return nil
}

// dispatchToHandlers hands an event to the shared dispatcher. The
// call is synchronous, which serializes event processing per
// connection.
func (c *Connection) dispatchToHandlers(ctx context.Context, ev codec.Event) {
	c.mu.Lock()
	user := c.user
	c.mu.Unlock()

	sc := &dispatch.SessionContext{
		SessionID:  c.session.ID(),
		ShardIndex: c.cfg.ShardIndex,
		ShardCount: c.cfg.ShardCount,
		User:       user,
		Rest:       c.restClient,
	}
	c.dispatcher.Dispatch(ctx, sc, ev)
}

// sendHeartbeat sends one heartbeat carrying the last-seen sequence.
func (c *Connection) sendHeartbeat(ctx context.Context, conn transport.Conn) error {
	seq, has := c.session.Seq()
	data, err := c.codec.EncodeHeartbeat(seq, has)
	if err != nil {
		return err
	}
	return c.send(ctx, conn, data)
}

// send writes one frame through the outbound rate budget.
func (c *Connection) send(ctx context.Context, conn transport.Conn, data []byte) error {
	if err := c.sendLimit.Wait(ctx); err != nil {
		return err
	}
	return conn.Send(data)
}

// releaseIdentify returns a held identify slot, if any. Idempotent.
func (c *Connection) releaseIdentify() {
	c.mu.Lock()
	pending := c.pendingRelease
	c.pendingRelease = false
	c.mu.Unlock()

	if pending {
		c.throttle.Release()
	}
}

// setState records a transition and logs it. No-op when the state is
// unchanged, which keeps repeated failures from double-reporting.
func (c *Connection) setState(s State) {
	c.mu.Lock()
	prev := c.state
	if prev == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	hook := c.onTransition
	c.mu.Unlock()

	c.logger.Debug("state transition", "from", prev, "to", s)
	if hook != nil {
		hook(prev, s)
	}
}
