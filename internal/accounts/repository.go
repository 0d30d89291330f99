// Package accounts implements account CRUD on an unlocked vault session.
// Every mutation is one session commit: the account list is re-sealed and
// persisted before the session's view changes.
package accounts

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/session"
)

// Field limits.
const (
	MaxTitleLength    = 256
	MaxURLLength      = 2048
	MaxEmailLength    = 320
	MaxPasswordLength = 4096
	MaxNotesLength    = 64 * 1024
)

// Repository manages the accounts of unlocked vaults.
type Repository struct {
	logger *events.Logger
	newID  func() string
}

// NewRepository creates an account repository.
func NewRepository(logger *events.Logger) *Repository {
	return &Repository{
		logger: logger.WithField("service", "accounts"),
		newID:  uuid.NewString,
	}
}

// Add assigns a fresh id to a new account and persists it.
func (r *Repository) Add(ctx context.Context, s *session.Session, fields models.AccountFields) (string, error) {
	if s == nil {
		return "", wrap("add", "", "", models.ErrVaultLocked)
	}

	if err := Validate(fields); err != nil {
		return "", wrap("add", s.VaultID(), "", err)
	}

	id := r.newID()
	err := s.Commit(ctx, func(accounts []models.Account) ([]models.Account, error) {
		if indexOf(accounts, id) >= 0 {
			return nil, fmt.Errorf("%w: account id %s", models.ErrDuplicate, id)
		}
		return append(accounts, models.NewAccount(id, fields)), nil
	})
	if err != nil {
		return "", wrap("add", s.VaultID(), "", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"vault_id":   s.VaultID(),
		"account_id": id,
	}).Debug("Account added")
	s.Notify(session.EventAccountAdded, id)

	return id, nil
}

// Update applies the non-nil fields of u to account id.
func (r *Repository) Update(ctx context.Context, s *session.Session, id string, u models.AccountUpdate) error {
	if s == nil {
		return wrap("update", "", id, models.ErrVaultLocked)
	}

	if u.Empty() {
		_, err := r.Get(s, id)
		return err
	}

	err := s.Commit(ctx, func(accounts []models.Account) ([]models.Account, error) {
		i := indexOf(accounts, id)
		if i < 0 {
			return nil, models.ErrAccountNotFound
		}

		updated := u.Apply(accounts[i])
		if err := Validate(updated.Fields()); err != nil {
			return nil, err
		}
		accounts[i] = updated
		return accounts, nil
	})
	if err != nil {
		return wrap("update", s.VaultID(), id, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"vault_id":   s.VaultID(),
		"account_id": id,
	}).Debug("Account updated")
	s.Notify(session.EventAccountUpdated, id)

	return nil
}

// Delete removes account id.
func (r *Repository) Delete(ctx context.Context, s *session.Session, id string) error {
	if s == nil {
		return wrap("delete", "", id, models.ErrVaultLocked)
	}

	err := s.Commit(ctx, func(accounts []models.Account) ([]models.Account, error) {
		i := indexOf(accounts, id)
		if i < 0 {
			return nil, models.ErrAccountNotFound
		}
		return append(accounts[:i], accounts[i+1:]...), nil
	})
	if err != nil {
		return wrap("delete", s.VaultID(), id, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"vault_id":   s.VaultID(),
		"account_id": id,
	}).Debug("Account deleted")
	s.Notify(session.EventAccountDeleted, id)

	return nil
}

// Get returns a copy of account id. No decryption happens here.
func (r *Repository) Get(s *session.Session, id string) (models.Account, error) {
	if s == nil {
		return models.Account{}, wrap("get", "", id, models.ErrVaultLocked)
	}

	accounts, err := s.Accounts()
	if err != nil {
		return models.Account{}, wrap("get", s.VaultID(), id, err)
	}

	i := indexOf(accounts, id)
	if i < 0 {
		return models.Account{}, wrap("get", s.VaultID(), id, models.ErrAccountNotFound)
	}
	return accounts[i], nil
}

// List returns a copy of every account in stored order.
func (r *Repository) List(s *session.Session) ([]models.Account, error) {
	if s == nil {
		return nil, wrap("list", "", "", models.ErrVaultLocked)
	}

	accounts, err := s.Accounts()
	if err != nil {
		return nil, wrap("list", s.VaultID(), "", err)
	}
	return accounts, nil
}

// Validate checks account fields against the field limits. Fields are opaque
// strings: any of them may be empty and none is parsed. Violations wrap
// models.ErrInvalidInput and name the offending field, never its value.
func Validate(f models.AccountFields) error {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Title, validation.RuneLength(0, MaxTitleLength)),
		validation.Field(&f.URL, validation.RuneLength(0, MaxURLLength)),
		validation.Field(&f.Email, validation.RuneLength(0, MaxEmailLength)),
		validation.Field(&f.Password, validation.RuneLength(0, MaxPasswordLength)),
		validation.Field(&f.Notes, validation.RuneLength(0, MaxNotesLength)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return nil
}

func indexOf(accounts []models.Account, id string) int {
	for i := range accounts {
		if accounts[i].ID == id {
			return i
		}
	}
	return -1
}

func wrap(op, vaultID, accountID string, err error) error {
	kind := models.Kind(err)
	if kind == err {
		err = nil
	}
	return &models.VaultError{Op: op, VaultID: vaultID, AccountID: accountID, Kind: kind, Err: err}
}
