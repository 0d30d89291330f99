package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// Op names a store operation for failure injection.
type Op string

const (
	OpCreate        Op = "create"
	OpList          Op = "list"
	OpLoad          Op = "load"
	OpReplaceSealed Op = "replace_sealed"
	OpRename        Op = "rename"
	OpDelete        Op = "delete"
)

// MemoryStore keeps records in process memory. It backs tests and embedders
// that bring their own persistence.
type MemoryStore struct {
	mu       sync.RWMutex
	vaults   map[string]*models.Vault
	failures map[Op]error
	now      Clock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults:   make(map[string]*models.Vault),
		failures: make(map[Op]error),
		now:      defaultClock,
	}
}

// SetClock overrides the time source.
func (m *MemoryStore) SetClock(now Clock) {
	m.now = now
}

// InjectFailure makes every call of op fail with a persistence error wrapping
// err, leaving the stored data untouched. A nil err clears the failure.
func (m *MemoryStore) InjectFailure(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *MemoryStore) fail(op Op) error {
	if err, ok := m.failures[op]; ok {
		return persistence(string(op), err)
	}
	return nil
}

func (m *MemoryStore) Create(ctx context.Context, v *models.Vault) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecord(v); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail(OpCreate); err != nil {
		return err
	}
	if _, exists := m.vaults[v.ID]; exists {
		return fmt.Errorf("%w: vault %s already exists", models.ErrDuplicate, v.ID)
	}

	m.vaults[v.ID] = v.Clone()
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]models.VaultMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(OpList); err != nil {
		return nil, err
	}

	list := make([]models.VaultMetadata, 0, len(m.vaults))
	for _, v := range m.vaults {
		list = append(list, v.Metadata())
	}
	sortMetadata(list)
	return list, nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*models.Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(OpLoad); err != nil {
		return nil, err
	}

	v, ok := m.vaults[id]
	if !ok {
		return nil, notFound(id)
	}
	return v.Clone(), nil
}

func (m *MemoryStore) LoadSealed(ctx context.Context, id string) (models.SealedPayload, error) {
	v, err := m.Load(ctx, id)
	if err != nil {
		return models.SealedPayload{}, err
	}
	return v.Sealed, nil
}

func (m *MemoryStore) ReplaceSealed(ctx context.Context, id string, sealed models.SealedPayload) error {
	return m.update(ctx, OpReplaceSealed, id, func(v *models.Vault) {
		v.Sealed = sealed.Clone()
	})
}

func (m *MemoryStore) Rename(ctx context.Context, id, name string) error {
	name, err := models.NormalizeVaultName(name)
	if err != nil {
		return err
	}
	return m.update(ctx, OpRename, id, func(v *models.Vault) {
		v.Name = name
	})
}

func (m *MemoryStore) update(ctx context.Context, op Op, id string, mutate func(*models.Vault)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail(op); err != nil {
		return err
	}

	v, ok := m.vaults[id]
	if !ok {
		return notFound(id)
	}

	next := v.Clone()
	mutate(next)
	if now := m.now(); now.After(next.UpdatedAt) {
		next.UpdatedAt = now
	}
	m.vaults[id] = next
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail(OpDelete); err != nil {
		return err
	}
	if _, ok := m.vaults[id]; !ok {
		return notFound(id)
	}

	delete(m.vaults, id)
	return nil
}

func (m *MemoryStore) Migrate(ctx context.Context, target Store) error {
	return migrate(ctx, m, target, events.Nop())
}

// Close closes the store (no-op for memory).
func (m *MemoryStore) Close() error {
	return nil
}

// Helper methods for testing

// Put stores a record directly, bypassing validation and failure injection.
func (m *MemoryStore) Put(v *models.Vault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vaults[v.ID] = v.Clone()
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vaults)
}
