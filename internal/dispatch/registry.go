package dispatch

import "sync"

// Wildcard matches every Dispatch event, including names this client
// does not recognize.
const Wildcard = "*"

// Registry holds the handler table. Registration normally finishes
// before dispatch begins, so the table is read-mostly; late
// registration is allowed and takes the write lock.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]Handler),
	}
}

// Register adds a handler for an event name. Registration order is
// preserved for deterministic iteration.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = append(r.handlers[name], h)
	r.mu.Unlock()
}

// RegisterFunc registers a stateless handler function.
func (r *Registry) RegisterFunc(name string, f HandlerFunc) {
	r.Register(name, f)
}

// handlersFor returns the handlers matching an event name. Unknown
// events match only the wildcard.
func (r *Registry) handlersFor(name string, unknown bool) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wild := r.handlers[Wildcard]
	if unknown {
		return append([]Handler(nil), wild...)
	}

	named := r.handlers[name]
	out := make([]Handler, 0, len(named)+len(wild))
	out = append(out, named...)
	out = append(out, wild...)
	return out
}

// Len returns the total number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, hs := range r.handlers {
		n += len(hs)
	}
	return n
}
