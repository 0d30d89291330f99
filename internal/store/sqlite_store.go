package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// SQLiteStore keeps one row per vault in a single database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
	now    Clock
}

// NewSQLiteStore opens (or creates) a SQLite vault store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_sync=FULL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_vault_store"),
		now:    defaultClock,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// SetClock overrides the time source.
func (s *SQLiteStore) SetClock(now Clock) {
	s.now = now
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS vaults (
        vault_id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        icon TEXT NOT NULL,
        kdf_algorithm TEXT NOT NULL,
        kdf_iterations INTEGER NOT NULL,
        kdf_memory_kib INTEGER NOT NULL,
        kdf_parallelism INTEGER NOT NULL,
        kdf_salt BLOB NOT NULL,
        cipher TEXT NOT NULL,
        nonce BLOB NOT NULL,
        ciphertext BLOB NOT NULL,
        auth_tag BLOB NOT NULL,
        schema_version INTEGER NOT NULL,
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_vaults_name ON vaults(name, vault_id);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, models.CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, v *models.Vault) error {
	if err := checkRecord(v); err != nil {
		return err
	}

	s.logger.WithField("vault_id", v.ID).Debug("Inserting vault row")

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO vaults (
            vault_id, name, icon,
            kdf_algorithm, kdf_iterations, kdf_memory_kib, kdf_parallelism, kdf_salt,
            cipher, nonce, ciphertext, auth_tag,
            schema_version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		v.ID, v.Name, string(v.Icon),
		string(v.KDF.Algorithm), v.KDF.Iterations, v.KDF.MemoryKiB, v.KDF.Parallelism, v.KDF.Salt,
		string(v.Sealed.Cipher), v.Sealed.Nonce, nonNil(v.Sealed.Ciphertext), v.Sealed.AuthTag,
		v.SchemaVersion, v.CreatedAt.UTC(), v.UpdatedAt.UTC(),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: vault %s already exists", models.ErrDuplicate, v.ID)
		}
		return s.wrapErr(ctx, "insert vault", err)
	}

	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.VaultMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT vault_id, name, icon, created_at, updated_at
        FROM vaults
        ORDER BY name, vault_id
    `)
	if err != nil {
		return nil, s.wrapErr(ctx, "query vaults", err)
	}
	defer rows.Close()

	list := []models.VaultMetadata{}
	for rows.Next() {
		var m models.VaultMetadata
		var icon string
		if err := rows.Scan(&m.ID, &m.Name, &icon, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, persistence("scan vault row", err)
		}
		m.Icon = models.Icon(icon)
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, s.wrapErr(ctx, "iterate vaults", err)
	}

	return list, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Vault, error) {
	var (
		v                     models.Vault
		icon, algo, cipherStr string
	)

	err := s.db.QueryRowContext(ctx, `
        SELECT vault_id, name, icon,
               kdf_algorithm, kdf_iterations, kdf_memory_kib, kdf_parallelism, kdf_salt,
               cipher, nonce, ciphertext, auth_tag,
               schema_version, created_at, updated_at
        FROM vaults
        WHERE vault_id = ?
    `, id).Scan(
		&v.ID, &v.Name, &icon,
		&algo, &v.KDF.Iterations, &v.KDF.MemoryKiB, &v.KDF.Parallelism, &v.KDF.Salt,
		&cipherStr, &v.Sealed.Nonce, &v.Sealed.Ciphertext, &v.Sealed.AuthTag,
		&v.SchemaVersion, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, s.wrapErr(ctx, "query vault", err)
	}

	v.Icon = models.Icon(icon)
	v.KDF.Algorithm = models.KDFAlgorithm(algo)
	v.Sealed.Cipher = models.Cipher(cipherStr)

	return &v, nil
}

func (s *SQLiteStore) LoadSealed(ctx context.Context, id string) (models.SealedPayload, error) {
	var sealed models.SealedPayload
	var cipherStr string

	err := s.db.QueryRowContext(ctx, `
        SELECT cipher, nonce, ciphertext, auth_tag FROM vaults WHERE vault_id = ?
    `, id).Scan(&cipherStr, &sealed.Nonce, &sealed.Ciphertext, &sealed.AuthTag)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SealedPayload{}, notFound(id)
	}
	if err != nil {
		return models.SealedPayload{}, s.wrapErr(ctx, "query sealed payload", err)
	}

	sealed.Cipher = models.Cipher(cipherStr)
	return sealed, nil
}

// ReplaceSealed is a single UPDATE, so SQLite's journal makes it all or nothing.
func (s *SQLiteStore) ReplaceSealed(ctx context.Context, id string, sealed models.SealedPayload) error {
	return s.updateRow(ctx, id, "replace sealed payload", `
        UPDATE vaults
        SET cipher = ?, nonce = ?, ciphertext = ?, auth_tag = ?, updated_at = ?
        WHERE vault_id = ?
    `, string(sealed.Cipher), sealed.Nonce, nonNil(sealed.Ciphertext), sealed.AuthTag, s.now().UTC(), id)
}

func (s *SQLiteStore) Rename(ctx context.Context, id, name string) error {
	name, err := models.NormalizeVaultName(name)
	if err != nil {
		return err
	}
	return s.updateRow(ctx, id, "rename vault", `
        UPDATE vaults SET name = ?, updated_at = ? WHERE vault_id = ?
    `, name, s.now().UTC(), id)
}

func (s *SQLiteStore) updateRow(ctx context.Context, id, op, query string, args ...interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrapErr(ctx, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return s.wrapErr(ctx, op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return s.wrapErr(ctx, op, err)
	}
	if n == 0 {
		return notFound(id)
	}

	if err := tx.Commit(); err != nil {
		return s.wrapErr(ctx, "commit", err)
	}

	s.logger.WithField("vault_id", id).Debug("Vault row updated")
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM vaults WHERE vault_id = ?", id)
	if err != nil {
		return s.wrapErr(ctx, "delete vault", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return s.wrapErr(ctx, "delete vault", err)
	}
	if n == 0 {
		return notFound(id)
	}

	s.logger.WithField("vault_id", id).Info("Vault row deleted")
	return nil
}

func (s *SQLiteStore) Migrate(ctx context.Context, target Store) error {
	return migrate(ctx, s, target, s.logger)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// wrapErr reports cancellation as such and everything else as a persistence failure.
func (s *SQLiteStore) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return persistence(op, err)
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// nonNil keeps NOT NULL blob columns satisfied for empty ciphertexts.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
