package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/storage"
)

const recordExt = ".json"

// JSONStore keeps one JSON file per vault, named <vault_id>.json.
type JSONStore struct {
	blobs  storage.BlobStore
	logger *events.Logger
	now    Clock

	locks recordLocks
}

// recordLocks serializes read-modify-write cycles per record. Readers take no
// lock: every write is an atomic rename, so a read sees a whole record.
type recordLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *recordLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// NewJSONStore creates a JSON-based vault store in dir and removes temp files
// left behind by an interrupted write.
func NewJSONStore(dir string, logger *events.Logger) (*JSONStore, error) {
	local, err := storage.NewLocalStore(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	if _, err := local.CleanTemp(); err != nil {
		logger.WithError(err).Warn("Failed to remove stale temp files")
	}

	return NewJSONStoreWithBlobs(local, logger), nil
}

// NewJSONStoreWithBlobs creates a JSON store on top of any BlobStore.
func NewJSONStoreWithBlobs(blobs storage.BlobStore, logger *events.Logger) *JSONStore {
	return &JSONStore{
		blobs:  blobs,
		logger: logger.WithField("component", "json_vault_store"),
		now:    defaultClock,
	}
}

// SetClock overrides the time source.
func (s *JSONStore) SetClock(now Clock) {
	s.now = now
}

func (s *JSONStore) Create(ctx context.Context, v *models.Vault) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecord(v); err != nil {
		return err
	}

	data, err := encodeRecord(v)
	if err != nil {
		return persistence("encode record", err)
	}

	defer s.locks.lock(v.ID)()

	s.logger.WithFields(map[string]interface{}{
		"vault_id": v.ID,
		"size":     len(data),
	}).Debug("Creating vault record")

	if err := s.blobs.Create(recordName(v.ID), data); err != nil {
		if errors.Is(err, storage.ErrFileExists) {
			return fmt.Errorf("%w: vault %s already exists", models.ErrDuplicate, v.ID)
		}
		return persistence("write record", err)
	}

	return nil
}

func (s *JSONStore) List(ctx context.Context) ([]models.VaultMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := s.blobs.ListDir()
	if err != nil {
		return nil, persistence("list records", err)
	}

	list := make([]models.VaultMetadata, 0, len(files))
	for _, f := range files {
		id, ok := idFromName(f.Name)
		if !ok {
			continue
		}

		v, err := s.read(id)
		if err != nil {
			// One unreadable file must not hide every other vault.
			s.logger.WithError(err).WithField("vault_id", id).Warn("Skipping unreadable vault record")
			continue
		}
		list = append(list, v.Metadata())
	}

	sortMetadata(list)
	return list, nil
}

func (s *JSONStore) Load(ctx context.Context, id string) (*models.Vault, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.read(id)
}

func (s *JSONStore) LoadSealed(ctx context.Context, id string) (models.SealedPayload, error) {
	v, err := s.Load(ctx, id)
	if err != nil {
		return models.SealedPayload{}, err
	}
	return v.Sealed, nil
}

func (s *JSONStore) ReplaceSealed(ctx context.Context, id string, sealed models.SealedPayload) error {
	return s.update(ctx, id, func(v *models.Vault) {
		v.Sealed = sealed.Clone()
	})
}

func (s *JSONStore) Rename(ctx context.Context, id, name string) error {
	name, err := models.NormalizeVaultName(name)
	if err != nil {
		return err
	}
	return s.update(ctx, id, func(v *models.Vault) {
		v.Name = name
	})
}

// update is a read-modify-write of one record under its record lock.
func (s *JSONStore) update(ctx context.Context, id string, mutate func(*models.Vault)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	defer s.locks.lock(id)()

	v, err := s.read(id)
	if err != nil {
		return err
	}

	mutate(v)
	if now := s.now(); now.After(v.UpdatedAt) {
		v.UpdatedAt = now
	}

	data, err := encodeRecord(v)
	if err != nil {
		return persistence("encode record", err)
	}

	if err := s.blobs.Write(recordName(id), data); err != nil {
		return persistence("write record", err)
	}

	s.logger.WithField("vault_id", id).Debug("Vault record updated")
	return nil
}

func (s *JSONStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ValidateID(id) != nil {
		return notFound(id)
	}

	defer s.locks.lock(id)()

	if err := s.blobs.Delete(recordName(id)); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return notFound(id)
		}
		return persistence("delete record", err)
	}

	s.logger.WithField("vault_id", id).Info("Vault record deleted")
	return nil
}

func (s *JSONStore) Migrate(ctx context.Context, target Store) error {
	return migrate(ctx, s, target, s.logger)
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) read(id string) (*models.Vault, error) {
	if ValidateID(id) != nil {
		return nil, notFound(id)
	}

	data, err := s.blobs.Read(recordName(id))
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, notFound(id)
		}
		return nil, persistence("read record", err)
	}

	v, err := decodeRecord(data)
	if err != nil {
		return nil, corrupt(err)
	}
	if v.ID != id {
		return nil, corrupt(fmt.Errorf("record id %s does not match file name", v.ID))
	}

	return v, nil
}

// Helper methods

func recordName(id string) string {
	return id + recordExt
}

func idFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, recordExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, recordExt)
	return id, ValidateID(id) == nil
}

func encodeRecord(v *models.Vault) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeRecord(data []byte) (*models.Vault, error) {
	var v models.Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v.SchemaVersion != models.CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", v.SchemaVersion)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}
