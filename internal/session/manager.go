// Package session owns the Locked and Unlocked states of vaults. An unlocked
// vault is a Session holding the derived key and the decoded account list;
// everything else stays sealed in the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/payload"
	"github.com/mhmdtwsm/GradProject-sub000/internal/store"
)

// Manager creates, unlocks and locks vaults.
type Manager struct {
	store  store.Store
	crypto crypto.Provider
	logger *events.Logger
	locks  *vaultLocks
	broker *broker
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager over an owned store.
func NewManager(st store.Store, provider crypto.Provider, logger *events.Logger) *Manager {
	return &Manager{
		store:    st,
		crypto:   provider,
		logger:   logger.WithField("service", "session"),
		locks:    newVaultLocks(),
		broker:   newBroker(),
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*Session),
	}
}

// SetClock overrides the time source used for idle tracking.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// List returns the metadata of every vault. No password is needed.
func (m *Manager) List(ctx context.Context) ([]models.VaultMetadata, error) {
	list, err := m.store.List(ctx)
	if err != nil {
		return nil, models.Wrap("list", "", nil, err)
	}
	return list, nil
}

// Create seals an empty account list under a key derived from password and
// persists the new vault. The vault is left locked.
func (m *Manager) Create(ctx context.Context, name string, icon models.Icon, password []byte) (*models.VaultMetadata, error) {
	name, err := models.NormalizeVaultName(name)
	if err != nil {
		return nil, models.Wrap("create", "", nil, err)
	}
	if !icon.Valid() {
		return nil, models.Wrap("create", "", models.ErrInvalidInput, fmt.Errorf("unknown icon %q", icon))
	}
	if len(password) == 0 {
		return nil, models.Wrap("create", "", models.ErrInvalidInput, errors.New("master password is required"))
	}

	start := time.Now()
	id := store.NewVaultID()
	logger := m.logger.WithField("vault_id", id)

	params, err := m.crypto.NewKDFParams()
	if err != nil {
		return nil, models.Wrap("create", id, nil, err)
	}

	key, err := m.crypto.DeriveKey(ctx, password, params)
	if err != nil {
		return nil, models.Wrap("create", id, nil, err)
	}
	defer crypto.Wipe(key)

	plaintext, err := payload.Encode(nil)
	if err != nil {
		return nil, models.Wrap("create", id, nil, err)
	}

	cipher := m.crypto.Cipher()
	sealed, err := m.crypto.Seal(plaintext, key, cipher, crypto.AssociatedData(id, params, cipher))
	if err != nil {
		return nil, models.Wrap("create", id, nil, fmt.Errorf("seal payload: %w", err))
	}

	now := m.now().Truncate(time.Millisecond)
	v := &models.Vault{
		ID:            id,
		Name:          name,
		Icon:          icon,
		KDF:           params,
		Sealed:        sealed,
		SchemaVersion: models.CurrentSchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Create(ctx, v); err != nil {
		return nil, models.Wrap("create", id, nil, err)
	}

	logger.WithFields(map[string]interface{}{
		"kdf":      params.Algorithm,
		"cipher":   cipher,
		"duration": time.Since(start),
	}).Info("Vault created")

	m.broker.publish(Event{Type: EventVaultCreated, VaultID: id})

	meta := v.Metadata()
	return &meta, nil
}

// Unlock derives the vault key from password and decrypts the account list.
// A successful decryption is the password check. On any failure the vault
// stays locked and every intermediate buffer is wiped. If the vault is
// already unlocked the password is still verified and the existing session
// is returned.
func (m *Manager) Unlock(ctx context.Context, id string, password []byte) (*Session, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, models.Wrap("unlock", id, nil, err)
	}

	release, err := m.locks.acquire(ctx, id)
	if err != nil {
		return nil, models.Wrap("unlock", id, nil, err)
	}
	defer release()

	start := time.Now()
	logger := m.logger.WithField("vault_id", id)

	v, err := m.store.Load(ctx, id)
	if errors.Is(err, store.ErrRecordCorrupt) {
		// Undecodable record bytes are tampering, same as a bad tag.
		logger.Warn("Vault unlock failed")
		return nil, models.Wrap("unlock", id, models.ErrAuthenticationFailed, nil)
	}
	if err != nil {
		return nil, models.Wrap("unlock", id, nil, err)
	}

	key, accounts, err := m.open(ctx, v, password)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("Vault unlock failed")
		}
		return nil, models.Wrap("unlock", id, nil, err)
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		crypto.Wipe(key)
		existing.touch()
		return existing, nil
	}
	s := newSession(m, v, key, accounts)
	m.sessions[id] = s
	m.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"accounts": len(accounts),
		"duration": time.Since(start),
	}).Info("Vault unlocked")

	m.broker.publish(Event{Type: EventVaultUnlocked, VaultID: id})
	return s, nil
}

// open derives the key and decrypts the record. Errors are
// ErrAuthenticationFailed, ErrPayloadMalformed or ctx.Err().
func (m *Manager) open(ctx context.Context, v *models.Vault, password []byte) ([]byte, []models.Account, error) {
	// Parameters come from the record; bad ones mean it was tampered with.
	if err := crypto.ValidateKDFParams(v.KDF); err != nil {
		return nil, nil, models.ErrAuthenticationFailed
	}

	key, err := m.crypto.DeriveKey(ctx, password, v.KDF)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, models.ErrAuthenticationFailed
	}

	plaintext, err := m.crypto.Open(v.Sealed, key, crypto.AssociatedData(v.ID, v.KDF, v.Sealed.Cipher))
	if err != nil {
		crypto.Wipe(key)
		return nil, nil, models.ErrAuthenticationFailed
	}

	accounts, err := payload.Decode(plaintext)
	crypto.Wipe(plaintext)
	if err != nil {
		crypto.Wipe(key)
		return nil, nil, err
	}

	return key, accounts, nil
}

// Lock wipes the session of id. Locking a locked or unknown vault is a no-op.
// It waits for an in-flight commit on the same vault to finish.
func (m *Manager) Lock(id string) error {
	release, err := m.locks.acquire(context.Background(), id)
	if err != nil {
		return err
	}
	defer release()

	m.lockHeld(id, EventVaultLocked)
	return nil
}

// lockHeld removes and wipes the session. The caller holds the vault lock.
func (m *Manager) lockHeld(id string, reason EventType) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.wipe()
	m.logger.WithFields(map[string]interface{}{
		"vault_id": id,
		"reason":   reason,
	}).Info("Vault locked")
	m.broker.publish(Event{Type: reason, VaultID: id})
	return true
}

// LockAll locks every unlocked vault. Call it on process teardown.
func (m *Manager) LockAll() error {
	ids := m.unlockedIDs()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			return m.Lock(id)
		})
	}
	return g.Wait()
}

// LockIdle locks sessions unused for longer than maxIdle and returns their
// ids. A vault busy with another operation is not idle and is skipped.
func (m *Manager) LockIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}

	cutoff := m.now().Add(-maxIdle)
	var locked []string

	for _, id := range m.unlockedIDs() {
		s, ok := m.Session(id)
		if !ok || s.LastUsed().After(cutoff) {
			continue
		}

		release, ok := m.locks.tryAcquire(id)
		if !ok {
			continue
		}
		// Re-check under the vault lock; a commit may have just finished.
		if cur, ok := m.Session(id); ok && cur == s && !s.LastUsed().After(cutoff) {
			if m.lockHeld(id, EventVaultLocked) {
				locked = append(locked, id)
			}
		}
		release()
	}

	return locked
}

// Session returns the live session of id.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// IsUnlocked reports whether id has a live session.
func (m *Manager) IsUnlocked(id string) bool {
	_, ok := m.Session(id)
	return ok
}

func (m *Manager) unlockedIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Rename changes the display name of a vault. The name is not bound into the
// sealed payload, so an unlocked session stays valid.
func (m *Manager) Rename(ctx context.Context, id, name string) error {
	name, err := models.NormalizeVaultName(name)
	if err != nil {
		return models.Wrap("rename", id, nil, err)
	}
	if err := store.ValidateID(id); err != nil {
		return models.Wrap("rename", id, nil, err)
	}

	release, err := m.locks.acquire(ctx, id)
	if err != nil {
		return models.Wrap("rename", id, nil, err)
	}
	defer release()

	if err := m.store.Rename(ctx, id, name); err != nil {
		return models.Wrap("rename", id, nil, err)
	}

	m.logger.WithField("vault_id", id).Info("Vault renamed")
	m.broker.publish(Event{Type: EventVaultRenamed, VaultID: id})
	return nil
}

// Delete removes the vault record irreversibly, then locks its session. If
// the store delete fails the vault and its session are left as they were.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := store.ValidateID(id); err != nil {
		return models.Wrap("delete", id, nil, err)
	}

	release, err := m.locks.acquire(ctx, id)
	if err != nil {
		return models.Wrap("delete", id, nil, err)
	}
	defer release()

	if err := m.store.Delete(ctx, id); err != nil {
		return models.Wrap("delete", id, nil, err)
	}

	m.lockHeld(id, EventVaultLocked)

	m.logger.WithField("vault_id", id).Info("Vault deleted")
	m.broker.publish(Event{Type: EventVaultDeleted, VaultID: id})
	return nil
}

// Subscribe returns change events for vaultID, or for every vault when
// vaultID is empty. Call the returned func to unsubscribe.
func (m *Manager) Subscribe(vaultID string) (<-chan Event, func()) {
	return m.broker.subscribe(vaultID)
}

// HandleChange reacts to a change of a vault record made outside this
// manager, as reported by store.Watcher. An unlocked session whose payload
// no longer matches the record is locked, since its cache is stale.
func (m *Manager) HandleChange(kind store.ChangeKind, id string) {
	if !m.IsUnlocked(id) {
		return
	}

	release, err := m.locks.acquire(context.Background(), id)
	if err != nil {
		return
	}
	defer release()

	s, ok := m.Session(id)
	if !ok {
		return
	}

	if kind == store.ChangeWritten {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sealed, err := m.store.LoadSealed(ctx, id)
		cancel()
		if err == nil && s.holds(sealed) {
			// Our own commit.
			return
		}
	}

	m.logger.WithFields(map[string]interface{}{
		"vault_id": id,
		"change":   kind,
	}).Warn("Vault record changed outside this process")
	m.lockHeld(id, EventVaultChangedExternally)
}

// Close locks every vault and stops event delivery.
func (m *Manager) Close() error {
	err := m.LockAll()
	m.broker.close()
	return err
}
