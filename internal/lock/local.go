package lock

import (
	"context"
	"fmt"
	"sync"
)

// Registry tracks LocalLock names held in this process.
type Registry struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{held: make(map[string]bool)}
}

var defaultRegistry = NewRegistry()

// LocalLock is a non-blocking in-process lock, used when no history database is
// configured.
type LocalLock struct {
	registry *Registry
	name     string

	mu   sync.Mutex
	held bool
}

// NewLocalLock creates a lock in the process-wide registry.
func NewLocalLock(name string) *LocalLock {
	return defaultRegistry.Lock(name)
}

// Lock creates a lock scoped to this registry.
func (r *Registry) Lock(name string) *LocalLock {
	return &LocalLock{registry: r, name: name}
}

func (l *LocalLock) Name() string {
	return l.name
}

// Acquire fails with ErrLockTimeout if the name is held, by this or any other LocalLock.
func (l *LocalLock) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil
	}

	l.registry.mu.Lock()
	defer l.registry.mu.Unlock()
	if l.registry.held[l.name] {
		return fmt.Errorf("%w: lock %q is held by another run", ErrLockTimeout, l.name)
	}
	l.registry.held[l.name] = true
	l.held = true
	return nil
}

func (l *LocalLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}

	l.registry.mu.Lock()
	delete(l.registry.held, l.name)
	l.registry.mu.Unlock()
	l.held = false
	return nil
}
