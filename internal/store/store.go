// Package store persists vault records. A store never sees a password, a key
// or a decrypted account; it moves sealed payloads and metadata only.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// ErrRecordCorrupt marks a record that was read but could not be decoded.
// It is a persistence failure for listing and editing; unlock reports it as
// an authentication failure.
var ErrRecordCorrupt = errors.New("vault record corrupt")

// Store manages vault record persistence.
type Store interface {
	// Create persists a new record. ErrDuplicate if the id exists.
	Create(ctx context.Context, v *models.Vault) error

	// List returns metadata of every vault, sorted by name then id.
	List(ctx context.Context) ([]models.VaultMetadata, error)

	// Load retrieves a full record.
	Load(ctx context.Context, id string) (*models.Vault, error)

	// LoadSealed retrieves only the sealed payload of a record.
	LoadSealed(ctx context.Context, id string) (models.SealedPayload, error)

	// ReplaceSealed swaps the sealed payload atomically and bumps UpdatedAt.
	ReplaceSealed(ctx context.Context, id string, sealed models.SealedPayload) error

	// Rename changes the display name atomically.
	Rename(ctx context.Context, id, name string) error

	// Delete removes a record irreversibly.
	Delete(ctx context.Context, id string) error

	// Migrate copies every record into target.
	Migrate(ctx context.Context, target Store) error

	// Close releases resources.
	Close() error
}

// Clock returns the current time. Stores call it for UpdatedAt.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewVaultID returns a fresh random vault id.
func NewVaultID() string {
	return uuid.NewString()
}

// ValidateID accepts canonical UUID strings only, so an id is always safe to
// use as a file name or primary key.
func ValidateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: malformed vault id", models.ErrInvalidInput)
	}
	return nil
}

// checkRecord validates a record handed to Create.
func checkRecord(v *models.Vault) error {
	if v == nil {
		return fmt.Errorf("%w: nil vault", models.ErrInvalidInput)
	}
	if err := ValidateID(v.ID); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if v.SchemaVersion != models.CurrentSchemaVersion {
		return fmt.Errorf("%w: schema version %d", models.ErrInvalidInput, v.SchemaVersion)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", models.ErrVaultNotFound, id)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistenceFailed, op, err)
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w: %w", models.ErrPersistenceFailed, ErrRecordCorrupt, err)
}

func sortMetadata(list []models.VaultMetadata) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}
