package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/calebreyn/pulsegate/internal/codec"
	"github.com/calebreyn/pulsegate/internal/config"
	"github.com/calebreyn/pulsegate/internal/dispatch"
	"github.com/calebreyn/pulsegate/internal/gateway"
	"github.com/calebreyn/pulsegate/internal/rest"
	"github.com/calebreyn/pulsegate/internal/shard"
	"github.com/calebreyn/pulsegate/internal/store"
	"github.com/calebreyn/pulsegate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pulsegate.local.yaml", "path to config file")
	healthAddr := flag.String("health-addr", ":8080", "health endpoint listen address")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pulsegate",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.RestURL,
		"shards", cfg.Shards.Count,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create API client
	apiClient := rest.NewClient(
		cfg.API.RestURL,
		cfg.Gateway.Token,
		rest.WithLogger(logger),
		rest.WithTimeout(cfg.API.Timeout),
		rest.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Register event handlers
	registry := dispatch.NewRegistry()
	registerHandlers(registry, logger)

	orch := shard.NewOrchestrator(shardConfig(cfg), registry, apiClient, logger)

	// Surface shard failures in the log
	go func() {
		for err := range orch.Errors() {
			logger.Error("shard failure", "error", err)
		}
	}()

	// Start health server early so startup can be observed
	healthServer := &http.Server{
		Addr:    *healthAddr,
		Handler: createHealthHandler(orch),
	}

	go func() {
		logger.Info("starting health server", "addr", *healthAddr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start the shard fleet
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start shard fleet", "error", err)
		os.Exit(1)
	}

	logger.Info("pulsegate running",
		"instance_id", cfg.Instance.ID,
		"shards", orch.ShardCount(),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Error("shard fleet shutdown", "error", err)
	}

	logger.Info("pulsegate stopped")
}

// shardConfig maps the file configuration onto the fleet settings.
func shardConfig(cfg *config.Config) shard.Config {
	gw := gateway.DefaultConfig()
	gw.URL = cfg.Gateway.URL
	gw.Token = cfg.Gateway.Token
	gw.Intents = cfg.Gateway.Intents
	gw.Strict = cfg.Gateway.Strict
	gw.HelloTimeout = cfg.Gateway.HelloTimeout
	gw.ResumeRetryCeiling = cfg.Gateway.ResumeRetryCeiling
	gw.MaxReconnectAttempts = cfg.Gateway.MaxReconnectAttempts
	gw.ReconnectBaseWait = cfg.Gateway.ReconnectBaseDelay
	gw.ReconnectMaxWait = cfg.Gateway.ReconnectMaxDelay
	gw.SendRatePerMinute = cfg.Gateway.SendRatePerMinute
	gw.TransportBufferSize = cfg.Gateway.BufferSize
	gw.WriteTimeout = cfg.Gateway.WriteTimeout
	gw.HandshakeTimeout = cfg.Gateway.HandshakeTimeout
	gw.JitterMin = cfg.Gateway.JitterMin
	gw.JitterMax = cfg.Gateway.JitterMax

	sh := shard.DefaultConfig(gw)
	sh.ShardCount = cfg.Shards.Count
	sh.IdentifySpacing = cfg.Shards.IdentifySpacing
	sh.MaxConcurrentIdentifies = cfg.Shards.MaxConcurrentIdentifies
	sh.RestartWait = cfg.Shards.RestartWait
	return sh
}

// guildActivity is per-guild handler state.
type guildActivity struct {
	messages atomic.Int64
}

// registerHandlers wires the built-in handlers: an event logger and a
// per-guild message counter.
func registerHandlers(registry *dispatch.Registry, logger *slog.Logger) {
	registry.RegisterFunc(dispatch.Wildcard, func(ctx context.Context, sc *dispatch.SessionContext, ev codec.Event) error {
		logger.Debug("event",
			"name", ev.Name,
			"seq", ev.Seq,
			"shard", sc.ShardIndex,
			"unknown", ev.Unknown,
		)
		return nil
	})

	activity := store.NewContainer()
	registry.Register(codec.EventMessageCreate, &dispatch.StatefulHandler{
		Store: activity,
		New:   func() any { return &guildActivity{} },
		Fn: func(ctx context.Context, sc *dispatch.SessionContext, ev codec.Event, state any) error {
			var msg codec.Message
			if err := codec.UnmarshalPayload(ev, &msg); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}

			count := state.(*guildActivity).messages.Add(1)
			logger.Info("message",
				"guild_id", msg.GuildID,
				"channel_id", msg.ChannelID,
				"author", msg.Author.Username,
				"guild_messages", count,
			)

			if msg.Content == "!ping" && sc.Rest != nil {
				if _, err := sc.Rest.CreateMessage(ctx, msg.ChannelID, "pong"); err != nil {
					return fmt.Errorf("send pong: %w", err)
				}
			}
			return nil
		},
	})
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(orch *shard.Orchestrator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status string         `json:"status"`
			Shards map[int]string `json:"shards"`
			Stats  dispatch.Stats `json:"stats"`
		}{
			Status: "healthy",
			Shards: make(map[int]string),
		}

		count := orch.ShardCount()
		if count == 0 {
			health.Status = "starting"
		}

		dispatching := 0
		for i := 0; i < count; i++ {
			conn := orch.Shard(i)
			if conn == nil {
				health.Shards[i] = "pending"
				continue
			}
			state := conn.State()
			health.Shards[i] = state.String()
			if state == gateway.StateDispatching {
				dispatching++
			}
		}

		if count > 0 && dispatching < count {
			health.Status = "degraded"
		}
		health.Stats = orch.Stats()

		w.Header().Set("Content-Type", "application/json")
		if dispatching == 0 && count > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
