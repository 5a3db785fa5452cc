// internal/delivery/registry.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/user/deskhand/internal/types"
)

// Handler delivers a message to the address of a forward target.
type Handler func(ctx context.Context, target types.ForwardTarget, message string) error

// Registry routes messages to the appropriate delivery handler based on the
// forward target scheme (e.g. "telegram", "whatsapp", "email").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for targets with the given scheme.
func (r *Registry) Register(scheme string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[scheme] = handler
}

// Schemes lists the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for s := range r.handlers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Deliver finds the handler for the target's scheme and calls it.
// Returns an error if no handler is registered for the scheme.
func (r *Registry) Deliver(ctx context.Context, target types.ForwardTarget, message string) error {
	r.mu.RLock()
	handler, ok := r.handlers[target.Scheme()]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no delivery handler for target: %s", target)
	}
	if target.Address() == "" {
		return fmt.Errorf("empty address in target: %s", target)
	}
	return handler(ctx, target, message)
}

// Broadcast delivers message to every target and joins the failures.
// One failing target does not stop the others.
func (r *Registry) Broadcast(ctx context.Context, targets []types.ForwardTarget, message string) error {
	var errs []error
	for _, t := range targets {
		if err := r.Deliver(ctx, t, message); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", t, err))
		}
	}
	return errors.Join(errs...)
}
