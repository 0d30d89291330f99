package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/payload"
)

// MutateFunc receives a private copy of the account list and returns the
// list to persist. Returning an error aborts the commit.
type MutateFunc func(accounts []models.Account) ([]models.Account, error)

// Session is the in-memory state of one unlocked vault: its derived key and
// the decoded account list. The list is a cache of the sealed record and is
// only replaced after the record has been persisted.
type Session struct {
	m       *Manager
	vaultID string
	kdf     models.KDFParams
	cipher  models.Cipher

	mu       sync.RWMutex
	key      []byte
	accounts []models.Account
	sealed   models.SealedPayload
	locked   bool

	lastUsed atomic.Int64
}

func newSession(m *Manager, v *models.Vault, key []byte, accounts []models.Account) *Session {
	s := &Session{
		m:        m,
		vaultID:  v.ID,
		kdf:      v.KDF,
		cipher:   v.Sealed.Cipher,
		key:      key,
		accounts: accounts,
		sealed:   v.Sealed.Clone(),
	}
	s.touch()
	return s
}

// VaultID returns the id of the vault this session belongs to.
func (s *Session) VaultID() string {
	return s.vaultID
}

// Locked reports whether the session has been locked. A locked session
// never becomes usable again; unlock the vault for a new one.
func (s *Session) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}

// LastUsed returns when the session was last read or committed.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load()).UTC()
}

// Accounts returns a copy of the decoded account list.
func (s *Session) Accounts() ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.locked {
		return nil, models.ErrVaultLocked
	}
	s.touch()
	return models.CloneAccounts(s.accounts), nil
}

// Commit runs one decode, mutate, re-seal and persist transaction. The
// session's list changes only if the store accepted the new payload, so the
// in-memory view and the record never diverge.
func (s *Session) Commit(ctx context.Context, mutate MutateFunc) error {
	release, err := s.m.locks.acquire(ctx, s.vaultID)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	if s.locked {
		s.mu.RUnlock()
		return models.ErrVaultLocked
	}
	current := models.CloneAccounts(s.accounts)
	// The key is only wiped while holding the vault lock, which we hold.
	key := s.key
	s.mu.RUnlock()

	next, err := mutate(current)
	if err != nil {
		return err
	}

	plaintext, err := payload.Encode(next)
	if err != nil {
		return err
	}
	sealed, err := s.m.crypto.Seal(plaintext, key, s.cipher, crypto.AssociatedData(s.vaultID, s.kdf, s.cipher))
	crypto.Wipe(plaintext)
	if err != nil {
		return fmt.Errorf("seal payload: %w", err)
	}

	if err := s.m.store.ReplaceSealed(ctx, s.vaultID, sealed); err != nil {
		if !s.reconcile(sealed) {
			return err
		}
		s.m.logger.WithField("vault_id", s.vaultID).WithError(err).
			Warn("Store reported a failure but holds the new payload")
	}

	s.mu.Lock()
	s.accounts = models.CloneAccounts(next)
	s.sealed = sealed
	s.mu.Unlock()
	s.touch()

	return nil
}

// reconcile checks whether a write the store reported as failed landed anyway,
// for example when only the directory sync failed after the rename.
func (s *Session) reconcile(sealed models.SealedPayload) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	onDisk, err := s.m.store.LoadSealed(ctx, s.vaultID)
	if err != nil {
		return false
	}
	return samePayload(onDisk, sealed)
}

// Notify publishes an account change for this vault.
func (s *Session) Notify(t EventType, accountID string) {
	s.m.broker.publish(Event{Type: t, VaultID: s.vaultID, AccountID: accountID})
}

func (s *Session) holds(sealed models.SealedPayload) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return samePayload(s.sealed, sealed)
}

func (s *Session) touch() {
	s.lastUsed.Store(s.m.now().UnixNano())
}

// wipe overwrites the key and drops every decoded account. Go strings can't be
// overwritten in place; clearing the slots releases the last references.
func (s *Session) wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	crypto.Wipe(s.key)
	s.key = nil
	for i := range s.accounts {
		s.accounts[i] = models.Account{}
	}
	s.accounts = nil
	s.sealed = models.SealedPayload{}
	s.locked = true
}

func samePayload(a, b models.SealedPayload) bool {
	return a.Cipher == b.Cipher &&
		bytes.Equal(a.Nonce, b.Nonce) &&
		bytes.Equal(a.Ciphertext, b.Ciphertext) &&
		bytes.Equal(a.AuthTag, b.AuthTag)
}
