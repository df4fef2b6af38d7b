// Package hooks is the lifecycle-hook middleware registry. Handlers are
// chained per event in registration order; each handler decides whether
// the chain continues by calling next.
package hooks

import (
	"net/http"
	"sync"
)

// Event names the six CRUD lifecycle points.
type Event string

const (
	EventBeforeCreate Event = "beforeCreate"
	EventAfterCreate  Event = "afterCreate"
	EventBeforeUpdate Event = "beforeUpdate"
	EventAfterUpdate  Event = "afterUpdate"
	EventBeforeDelete Event = "beforeDelete"
	EventAfterDelete  Event = "afterDelete"
)

// Context is the mutable payload passed down a hook chain. Before-create
// and before-update handlers may rewrite Data; the record service
// persists whatever survives the chain.
type Context struct {
	Collection string
	ID         string
	Data       map[string]any // incoming payload (before* events)
	Record     map[string]any // persisted record (after* events)
	Existing   map[string]any // pre-mutation record (update/delete)
	Request    *http.Request  // originating HTTP request, when any
}

// Handler is one link of a chain. Returning an error aborts the chain
// and, for before* events, cancels the operation. Not calling next stops
// the chain without error.
type Handler func(ctx *Context, next func() error) error

type registration struct {
	seq        int
	collection string // empty matches every collection
	handler    Handler
}

// Registry holds the ordered handler chains keyed by event. Mutations
// are rare (startup wiring, tests); a single mutex guards the maps.
type Registry struct {
	mu      sync.Mutex
	nextSeq int
	chains  map[Event][]registration
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[Event][]registration)}
}

// On registers handler for event, optionally scoped to one collection.
// The returned thunk unregisters the handler.
func (r *Registry) On(event Event, handler Handler, collection ...string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope := ""
	if len(collection) > 0 {
		scope = collection[0]
	}
	r.nextSeq++
	seq := r.nextSeq
	r.chains[event] = append(r.chains[event], registration{seq: seq, collection: scope, handler: handler})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		chain := r.chains[event]
		for i, reg := range chain {
			if reg.seq == seq {
				r.chains[event] = append(chain[:i:i], chain[i+1:]...)
				return
			}
		}
	}
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains = make(map[Event][]registration)
}

// Trigger runs the chain for event against ctx. Handlers scoped to a
// different collection are skipped. Execution is sequential FIFO on the
// calling goroutine; handlers may block on I/O. There is no re-entrancy
// guard: a handler that triggers the same event recurses.
func (r *Registry) Trigger(event Event, ctx *Context) error {
	r.mu.Lock()
	var matched []Handler
	for _, reg := range r.chains[event] {
		if reg.collection == "" || reg.collection == ctx.Collection {
			matched = append(matched, reg.handler)
		}
	}
	r.mu.Unlock()

	var run func(i int) error
	run = func(i int) error {
		if i >= len(matched) {
			return nil
		}
		return matched[i](ctx, func() error { return run(i + 1) })
	}
	return run(0)
}
