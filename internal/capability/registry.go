// Package capability provides the role-to-implementation lookup for task
// execution. Capabilities are supplied by the host; the engine never knows
// how one is implemented.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dcastillo/docrelay/internal/domain"
)

// Result is the outcome of one capability invocation.
type Result struct {
	Output     map[string]string
	Confidence float64
}

// Invoker performs the actual content/analysis work for a task role.
// Implementations may wrap remote LLM calls, deterministic tools, or
// test doubles.
type Invoker interface {
	Invoke(ctx context.Context, input map[string]string) (Result, error)
}

// Func adapts a plain function to the Invoker interface.
type Func func(ctx context.Context, input map[string]string) (Result, error)

func (f Func) Invoke(ctx context.Context, input map[string]string) (Result, error) {
	return f(ctx, input)
}

// Registry maps logical role names to invokers. New roles are added by
// registering an implementation, never by extending the engine.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]Invoker)}
}

// Register binds a role name to an invoker. Re-registering replaces the
// previous binding.
func (r *Registry) Register(role string, inv Invoker) {
	r.mu.Lock()
	r.roles[role] = inv
	r.mu.Unlock()
}

// Lookup returns the invoker for a role.
func (r *Registry) Lookup(role string) (Invoker, error) {
	r.mu.RLock()
	inv, ok := r.roles[role]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	return inv, nil
}

// Invoke dispatches one call to the capability registered for role.
func (r *Registry) Invoke(ctx context.Context, role string, input map[string]string) (Result, error) {
	inv, err := r.Lookup(role)
	if err != nil {
		return Result{}, err
	}
	return inv.Invoke(ctx, input)
}

// Roles returns all registered role names, sorted.
func (r *Registry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.roles))
	for role := range r.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
