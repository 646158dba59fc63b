package dispatch

import (
	"context"
	"encoding/json"

	"github.com/calebreyn/pulsegate/internal/codec"
	"github.com/calebreyn/pulsegate/internal/rest"
	"github.com/calebreyn/pulsegate/internal/snowflake"
	"github.com/calebreyn/pulsegate/internal/store"
)

// SessionContext is what a handler knows about the connection that
// delivered its event.
type SessionContext struct {
	SessionID  string
	ShardIndex int
	ShardCount int
	User       codec.User // The connected account, from READY

	// Rest lets handlers make outbound calls. May be nil in tests.
	Rest *rest.Client
}

// Handler is one registered event handler. The set of
// implementations is closed: HandlerFunc and *StatefulHandler.
type Handler interface {
	invoke(ctx context.Context, sc *SessionContext, ev codec.Event) error
}

// HandlerFunc is the stateless handler variant: a pure function of
// the event and session context.
type HandlerFunc func(ctx context.Context, sc *SessionContext, ev codec.Event) error

func (f HandlerFunc) invoke(ctx context.Context, sc *SessionContext, ev codec.Event) error {
	return f(ctx, sc, ev)
}

// StatefulHandler is the stateful handler variant: bound to an
// externally-owned storage container. Before each invocation the
// dispatcher resolves a scope key from the event and hands the
// handler its per-scope state.
type StatefulHandler struct {
	// Store holds the per-scope state. Owned by the caller, shared
	// across connections.
	Store *store.Container

	// Scope extracts the storage scope from an event. Nil means
	// ScopeFromEvent.
	Scope func(ev codec.Event) store.Scope

	// New creates the initial state for a scope seen for the first
	// time.
	New func() any

	// Fn is the handler body.
	Fn func(ctx context.Context, sc *SessionContext, ev codec.Event, state any) error
}

func (h *StatefulHandler) invoke(ctx context.Context, sc *SessionContext, ev codec.Event) error {
	scopeFn := h.Scope
	if scopeFn == nil {
		scopeFn = ScopeFromEvent
	}

	state := h.Store.GetOrCreate(scopeFn(ev), h.New)
	return h.Fn(ctx, sc, ev, state)
}

// ScopeFromEvent derives the default storage scope for an event:
// guild scope when the payload names a guild, user scope when it only
// names a user, global otherwise.
func ScopeFromEvent(ev codec.Event) store.Scope {
	var ids struct {
		GuildID snowflake.ID `json:"guild_id"`
		UserID  snowflake.ID `json:"user_id"`
	}
	if err := json.Unmarshal(ev.Payload, &ids); err != nil {
		return store.Global
	}

	switch {
	case ids.GuildID != 0:
		return store.GuildScope(ids.GuildID)
	case ids.UserID != 0:
		return store.UserScope(ids.UserID)
	default:
		return store.Global
	}
}
