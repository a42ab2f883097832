// Package publish fans approved change sets out to destination platforms,
// one concurrent job per destination, each behind its own circuit breaker
// and retry policy.
package publish

import "context"

// ChangeSet is the approved output of a run, keyed by task id.
type ChangeSet map[string]map[string]string

// Adapter applies a change set to one destination platform. Implementations
// must be idempotent under retry: applying the same change set twice must
// not corrupt destination state.
type Adapter interface {
	Apply(ctx context.Context, dest string, changeSet ChangeSet) error
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, dest string, changeSet ChangeSet) error

func (f AdapterFunc) Apply(ctx context.Context, dest string, changeSet ChangeSet) error {
	return f(ctx, dest, changeSet)
}
