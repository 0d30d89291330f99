package session

import (
	"context"
	"sync"
)

// vaultLocks serializes unlock, commit, lock and delete per vault id.
// Each vault gets a one-slot semaphore so waiting can be cancelled.
type vaultLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newVaultLocks() *vaultLocks {
	return &vaultLocks{slots: make(map[string]chan struct{})}
}

func (l *vaultLocks) slot(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.slots[id]
	if !ok {
		sem = make(chan struct{}, 1)
		l.slots[id] = sem
	}
	return sem
}

// acquire blocks until the vault is free or ctx ends.
func (l *vaultLocks) acquire(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sem := l.slot(id)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryAcquire takes the vault only if nobody holds it.
func (l *vaultLocks) tryAcquire(id string) (func(), bool) {
	sem := l.slot(id)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	default:
		return nil, false
	}
}
