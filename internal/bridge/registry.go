package bridge

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Handler answers one inbound request. The returned value is JSON encoded
// into the response payload.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Listener observes one inbound notification.
type Listener func(ctx context.Context, payload json.RawMessage) error

type handlerEntry struct {
	operation string
	fn        Handler
}

type listenerEntry struct {
	name string
	fn   Listener
}

// registry maps operations to their single active handler and notification
// names to listeners in registration order.
type registry struct {
	mu        sync.RWMutex
	handlers  map[string]*handlerEntry
	listeners map[string][]*listenerEntry
}

func newRegistry() *registry {
	return &registry{
		handlers:  make(map[string]*handlerEntry),
		listeners: make(map[string][]*listenerEntry),
	}
}

// setHandler replaces any prior handler for operation. The returned func
// clears the handler only while this registration is still the active one.
func (r *registry) setHandler(operation string, fn Handler) func() {
	entry := &handlerEntry{operation: operation, fn: fn}
	r.mu.Lock()
	r.handlers[operation] = entry
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.handlers[operation] == entry {
			delete(r.handlers, operation)
		}
	}
}

func (r *registry) handler(operation string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.handlers[operation]
	if !ok {
		return nil, false
	}
	return entry.fn, true
}

// addListener appends fn for name. The returned func removes exactly this
// registration and drops the name once no listeners remain.
func (r *registry) addListener(name string, fn Listener) func() {
	entry := &listenerEntry{name: name, fn: fn}
	r.mu.Lock()
	r.listeners[name] = append(r.listeners[name], entry)
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.listeners[name]
		for i, e := range list {
			if e != entry {
				continue
			}
			next := make([]*listenerEntry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.listeners, name)
			} else {
				r.listeners[name] = next
			}
			return
		}
	}
}

// listenersFor returns a snapshot so listeners may unregister while running.
func (r *registry) listenersFor(name string) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.listeners[name]
	out := make([]Listener, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

func (r *registry) operations() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		out = append(out, op)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *registry) names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.listeners))
	for name := range r.listeners {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
