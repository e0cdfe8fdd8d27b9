package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Handler is an in-process replacement for an upstream. A handler owns the
// response it writes; a returned error is only reported.
type Handler interface {
	ServeLocal(w http.ResponseWriter, r *http.Request) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFunc) ServeLocal(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Resolver maps a logical handler name to every handler registered under it.
type Resolver interface {
	Resolve(name string) []Handler
}

// Registry is a concurrency-safe Resolver. Several handlers may share a
// name; they are resolved in registration order.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string][]Handler{}}
}

func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], h)
}

// Remove drops every handler registered under name and reports whether any
// existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; !ok {
		return false
	}
	delete(r.handlers, name)
	return true
}

func (r *Registry) Resolve(name string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.handlers[name]
	if len(hs) == 0 {
		return nil
	}
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs h and turns a panic into an error.
func Invoke(h Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return h.ServeLocal(w, r)
}
