package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebreyn/pulsegate/internal/dispatch"
	"github.com/calebreyn/pulsegate/internal/gateway"
	"github.com/calebreyn/pulsegate/internal/rest"
	"github.com/calebreyn/pulsegate/internal/snowflake"
)

// identifyRecorder collects identify arrival times keyed by shard.
type identifyRecorder struct {
	mu    sync.Mutex
	times map[int]time.Time
}

func newIdentifyRecorder() *identifyRecorder {
	return &identifyRecorder{times: make(map[int]time.Time)}
}

func (r *identifyRecorder) record(shard int) {
	r.mu.Lock()
	r.times[shard] = time.Now()
	r.mu.Unlock()
}

func (r *identifyRecorder) gap(a, b int) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ta, oka := r.times[a]
	tb, okb := r.times[b]
	if !oka || !okb {
		return 0, false
	}
	if tb.Before(ta) {
		ta, tb = tb, ta
	}
	return tb.Sub(ta), true
}

// mockFleetGateway runs a hello/identify/ready handshake per
// connection and reports each identify's shard index.
func mockFleetGateway(t *testing.T, rec *identifyRecorder) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		hello := map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": 60_000}}
		if err := ws.WriteJSON(hello); err != nil {
			return
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var f struct {
			Op int `json:"op"`
			D  struct {
				Shard [2]int `json:"shard"`
			} `json:"d"`
		}
		if err := json.Unmarshal(data, &f); err != nil || f.Op != 2 {
			t.Logf("unexpected first frame: %s", data)
			return
		}
		rec.record(f.D.Shard[0])

		ready := map[string]any{
			"op": 0,
			"t":  "READY",
			"s":  1,
			"d": map[string]any{
				"v":          10,
				"session_id": fmt.Sprintf("sess-%d", f.D.Shard[0]),
				"user":       map[string]any{"id": "1", "username": "fleet"},
				"shard":      []int{f.D.Shard[0], f.D.Shard[1]},
			},
		}
		if err := ws.WriteJSON(ready); err != nil {
			return
		}

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func fastGatewayConfig(url string) gateway.Config {
	cfg := gateway.DefaultConfig()
	cfg.URL = url
	cfg.Token = "test-token"
	cfg.HelloTimeout = 2 * time.Second
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond
	cfg.JitterMin = 0.5
	cfg.JitterMax = 0.5
	cfg.SendRatePerMinute = 6000
	return cfg
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitDispatching(t *testing.T, o *Orchestrator, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for i := 0; i < count; i++ {
			conn := o.Shard(i)
			if conn == nil || conn.State() != gateway.StateDispatching {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond, "fleet never reached dispatching")
}

func TestOrchestrator_IdentifySpacing(t *testing.T) {
	rec := newIdentifyRecorder()
	server := mockFleetGateway(t, rec)
	defer server.Close()

	spacing := 150 * time.Millisecond
	cfg := DefaultConfig(fastGatewayConfig(wsURL(server)))
	cfg.ShardCount = 2
	cfg.IdentifySpacing = spacing
	cfg.MaxConcurrentIdentifies = 1

	o := NewOrchestrator(cfg, dispatch.NewRegistry(), nil, nil)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	waitDispatching(t, o, 2)

	gap, ok := rec.gap(0, 1)
	require.True(t, ok, "both shards must have identified")
	assert.GreaterOrEqual(t, gap, spacing-10*time.Millisecond,
		"identifies across shards must honor the spacing interval")
}

func TestOrchestrator_AutoShardCount(t *testing.T) {
	rec := newIdentifyRecorder()
	gwServer := mockFleetGateway(t, rec)
	defer gwServer.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gateway/bot" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"url":    wsURL(gwServer),
			"shards": 2,
			"session_start_limit": map[string]any{
				"total":           1000,
				"remaining":       999,
				"reset_after":     0,
				"max_concurrency": 1,
			},
		})
	}))
	defer api.Close()

	gwCfg := fastGatewayConfig("")
	cfg := DefaultConfig(gwCfg)
	cfg.ShardCount = 0
	cfg.IdentifySpacing = 20 * time.Millisecond

	client := rest.NewClient(api.URL, "test-token")
	o := NewOrchestrator(cfg, dispatch.NewRegistry(), client, nil)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	assert.Equal(t, 2, o.ShardCount(), "shard count should come from discovery")
	waitDispatching(t, o, 2)
}

func TestOrchestrator_ShardFor(t *testing.T) {
	rec := newIdentifyRecorder()
	server := mockFleetGateway(t, rec)
	defer server.Close()

	cfg := DefaultConfig(fastGatewayConfig(wsURL(server)))
	cfg.ShardCount = 2
	cfg.IdentifySpacing = 10 * time.Millisecond

	o := NewOrchestrator(cfg, dispatch.NewRegistry(), nil, nil)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	waitDispatching(t, o, 2)

	// Routing is by the timestamp bits of the id, modulo the fleet.
	even := snowflake.ID(2 << 22)
	odd := snowflake.ID(3 << 22)

	require.Same(t, o.Shard(0), o.ShardFor(even))
	require.Same(t, o.Shard(1), o.ShardFor(odd))

	index, _ := o.ShardFor(odd).Session().Shard()
	assert.Equal(t, 1, index)
}

func TestOrchestrator_StartStop(t *testing.T) {
	rec := newIdentifyRecorder()
	server := mockFleetGateway(t, rec)
	defer server.Close()

	cfg := DefaultConfig(fastGatewayConfig(wsURL(server)))
	cfg.ShardCount = 1
	cfg.IdentifySpacing = 10 * time.Millisecond

	o := NewOrchestrator(cfg, dispatch.NewRegistry(), nil, nil)
	require.NoError(t, o.Start(context.Background()))
	require.ErrorIs(t, o.Start(context.Background()), ErrAlreadyRunning)

	waitDispatching(t, o, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Stop(ctx))
	require.ErrorIs(t, o.Stop(ctx), ErrNotRunning)
}
