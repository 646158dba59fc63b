package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calebreyn/pulsegate/internal/dispatch"
	"github.com/calebreyn/pulsegate/internal/gateway"
	"github.com/calebreyn/pulsegate/internal/rest"
	"github.com/calebreyn/pulsegate/internal/snowflake"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator already running")
	ErrNotRunning     = errors.New("orchestrator not running")
)

// Config controls the shard fleet.
type Config struct {
	// Gateway is the per-connection template. ShardIndex and
	// ShardCount are filled in per shard.
	Gateway gateway.Config

	// ShardCount is the number of shards to run. Zero asks the
	// gateway's recommended count via the REST API.
	ShardCount int

	// IdentifySpacing is the minimum gap between any two identifies
	// across the whole fleet.
	IdentifySpacing time.Duration

	// MaxConcurrentIdentifies caps shards in the identify phase at
	// once. Zero means the spacing interval is the only limit.
	MaxConcurrentIdentifies int

	// RestartWait is the pause before rebuilding a shard whose
	// reconnect attempts were exhausted.
	RestartWait time.Duration
}

// DefaultConfig returns fleet defaults around a gateway template.
func DefaultConfig(gw gateway.Config) Config {
	return Config{
		Gateway:         gw,
		IdentifySpacing: 5 * time.Second,
		RestartWait:     10 * time.Second,
	}
}

// Orchestrator runs one gateway connection per shard, all sharing a
// dispatcher and an identify budget. Shards that exhaust their
// reconnect attempts are rebuilt with a fresh session; fatal closes
// stop the shard and surface on Errors.
type Orchestrator struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	restClient *rest.Client
	budget     *Budget

	mu      sync.Mutex
	conns   []*gateway.Connection
	cancel  context.CancelFunc
	running bool

	wg   sync.WaitGroup
	errs chan error
}

// NewOrchestrator creates a fleet manager. registry holds the shared
// event handlers; restClient is used for shard-count discovery and is
// handed to handlers, it may be nil when ShardCount is explicit.
func NewOrchestrator(cfg Config, registry *dispatch.Registry, restClient *rest.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdentifySpacing <= 0 {
		cfg.IdentifySpacing = 5 * time.Second
	}
	if cfg.RestartWait <= 0 {
		cfg.RestartWait = 10 * time.Second
	}

	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatch.NewDispatcher(registry, logger),
		restClient: restClient,
		errs:       make(chan error, 16),
	}
}

// Start resolves the shard count, builds the identify budget and
// launches every shard. The passed context bounds startup only; Stop
// ends the fleet.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()

	count, url, err := o.resolveTopology(ctx)
	if err != nil {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return err
	}

	o.budget = NewBudget(o.cfg.IdentifySpacing, o.cfg.MaxConcurrentIdentifies)

	runCtx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.cancel = cancel
	o.conns = make([]*gateway.Connection, count)
	o.mu.Unlock()

	o.logger.Info("starting shard fleet",
		"shards", count,
		"identify_spacing", o.cfg.IdentifySpacing,
	)

	for i := 0; i < count; i++ {
		gwCfg := o.cfg.Gateway
		gwCfg.ShardIndex = i
		gwCfg.ShardCount = count
		if gwCfg.URL == "" {
			gwCfg.URL = url
		}

		o.wg.Add(1)
		go o.runShard(runCtx, i, gwCfg)
	}

	return nil
}

// resolveTopology picks the shard count and gateway URL, consulting
// the REST API when the count is not configured.
func (o *Orchestrator) resolveTopology(ctx context.Context) (int, string, error) {
	count := o.cfg.ShardCount
	url := o.cfg.Gateway.URL

	if count > 0 && url != "" {
		return count, url, nil
	}
	if o.restClient == nil {
		if count <= 0 {
			count = 1
		}
		if url == "" {
			return 0, "", errors.New("no gateway url configured and no rest client to discover one")
		}
		return count, url, nil
	}

	info, err := o.restClient.GatewayBot(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("discover gateway topology: %w", err)
	}
	if count <= 0 {
		count = info.Shards
	}
	if count <= 0 {
		count = 1
	}
	if url == "" {
		url = info.URL
	}
	return count, url, nil
}

// runShard owns shard i for the orchestrator's lifetime, rebuilding
// the connection with a fresh session when retries run out.
func (o *Orchestrator) runShard(ctx context.Context, i int, cfg gateway.Config) {
	defer o.wg.Done()

	for {
		conn := gateway.New(cfg, o.dispatcher, o.budget, o.restClient, o.logger)

		o.mu.Lock()
		o.conns[i] = conn
		o.mu.Unlock()

		err := conn.Run(ctx)
		if err == nil {
			return
		}

		var fatal *gateway.FatalError
		if errors.As(err, &fatal) {
			o.report(fmt.Errorf("shard %d: %w", i, fatal))
			o.logger.Error("shard stopped on fatal close",
				"shard", i,
				"code", fatal.Code,
			)
			return
		}

		// Retries exhausted: a fresh connection means a fresh
		// session, which often clears whatever the old one tripped
		// over.
		o.report(fmt.Errorf("shard %d: %w", i, err))
		o.logger.Warn("rebuilding shard",
			"shard", i,
			"error", err,
			"wait", o.cfg.RestartWait,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.RestartWait):
		}
	}
}

// report surfaces a shard error without ever blocking a shard.
func (o *Orchestrator) report(err error) {
	select {
	case o.errs <- err:
	default:
		o.logger.Warn("error buffer full, dropping", "error", err)
	}
}

// Errors reports shard failures: every exhausted-retries rebuild and
// every fatal close.
func (o *Orchestrator) Errors() <-chan error {
	return o.errs
}

// Shard returns the connection currently serving shard i, or nil.
func (o *Orchestrator) Shard(i int) *gateway.Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i < 0 || i >= len(o.conns) {
		return nil
	}
	return o.conns[i]
}

// ShardFor routes an entity id to the connection serving its shard,
// nil before Start. Events for a guild always arrive on this shard's
// connection.
func (o *Orchestrator) ShardFor(id snowflake.ID) *gateway.Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.conns) == 0 {
		return nil
	}
	return o.conns[snowflake.ShardIndex(id, len(o.conns))]
}

// ShardCount returns the resolved fleet size, zero before Start.
func (o *Orchestrator) ShardCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conns)
}

// Stats returns the shared dispatcher's counters.
func (o *Orchestrator) Stats() dispatch.Stats {
	return o.dispatcher.Stats()
}

// Stop shuts the fleet down, waiting up to ctx for shards to exit.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("shard fleet stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for shards to stop: %w", ctx.Err())
	}
}
