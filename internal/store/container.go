package store

import (
	"sync"

	"github.com/calebreyn/pulsegate/internal/snowflake"
)

// ScopeKind selects the partitioning of a storage handle.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeGuild
	ScopeUser
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeGuild:
		return "guild"
	case ScopeUser:
		return "user"
	default:
		return "scope(?)"
	}
}

// Scope identifies one storage handle. ID is zero for ScopeGlobal.
type Scope struct {
	Kind ScopeKind
	ID   snowflake.ID
}

// Global is the process-wide scope.
var Global = Scope{Kind: ScopeGlobal}

// GuildScope returns the scope for a guild.
func GuildScope(id snowflake.ID) Scope {
	return Scope{Kind: ScopeGuild, ID: id}
}

// UserScope returns the scope for a user.
func UserScope(id snowflake.ID) Scope {
	return Scope{Kind: ScopeUser, ID: id}
}

// Container holds per-scope values, created on first access.
// Mutation is serialized; reads take a shared lock, so read-mostly
// access after startup stays cheap.
type Container struct {
	mu     sync.RWMutex
	values map[Scope]any
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{
		values: make(map[Scope]any),
	}
}

// Get returns the value for the scope, or nil if none exists.
func (c *Container) Get(scope Scope) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[scope]
}

// GetOrCreate returns the value for the scope, calling factory to
// create it if absent. Creation is atomic: two concurrent callers
// for the same scope observe the same value, and factory runs at
// most once per scope.
func (c *Container) GetOrCreate(scope Scope, factory func() any) any {
	c.mu.RLock()
	v, ok := c.values[scope]
	c.mu.RUnlock()
	if ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[scope]; ok {
		return v
	}
	v = factory()
	c.values[scope] = v
	return v
}

// Delete removes the value for the scope.
func (c *Container) Delete(scope Scope) {
	c.mu.Lock()
	delete(c.values, scope)
	c.mu.Unlock()
}

// Len returns the number of live scopes.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}
