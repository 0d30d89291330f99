package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mhmdtwsm/GradProject-sub000/internal/accounts"
	"github.com/mhmdtwsm/GradProject-sub000/internal/config"
	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/session"
	"github.com/mhmdtwsm/GradProject-sub000/internal/store"
)

// Client provides the high-level API a UI or CLI drives.
type Client struct {
	Sessions *session.Manager
	Accounts *accounts.Repository

	config *config.Config
	logger *events.Logger
	store  store.Store

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// New creates a client from configuration: it opens the configured store,
// builds the crypto provider and, if enabled, watches the vault directory.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(cfg, cfg.Storage.Backend, logger)
	if err != nil {
		return nil, err
	}

	c := NewWithStore(cfg, st, provider, logger)

	if cfg.Storage.Watch && cfg.Storage.Backend == config.BackendJSON {
		if err := c.watch(cfg.Storage.VaultDir); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

// NewWithStore wires a client around an existing store and provider.
func NewWithStore(cfg *config.Config, st store.Store, provider crypto.Provider, logger *events.Logger) *Client {
	return &Client{
		Sessions: session.NewManager(st, provider, logger),
		Accounts: accounts.NewRepository(logger),
		config:   cfg,
		logger:   logger,
		store:    st,
	}
}

// NewProvider builds the crypto provider for new vaults from cfg.
func NewProvider(cfg *config.Config) (*crypto.CryptoProvider, error) {
	algo, err := crypto.ParseKDFAlgorithm(cfg.KDF.Algorithm)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.ParseCipher(cfg.Cipher)
	if err != nil {
		return nil, err
	}

	provider, err := crypto.NewProvider(crypto.Options{
		KDF: models.KDFParams{
			Algorithm:   algo,
			Iterations:  cfg.KDF.Iterations,
			MemoryKiB:   cfg.KDF.MemoryKiB,
			Parallelism: cfg.KDF.Parallelism,
		},
		Cipher: cipher,
	})
	if err != nil {
		return nil, fmt.Errorf("create crypto provider: %w", err)
	}
	return provider, nil
}

// OpenStore opens the store of the given backend at the paths in cfg.
func OpenStore(cfg *config.Config, backend string, logger *events.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch backend {
	case config.BackendJSON:
		st, err = store.NewJSONStore(cfg.Storage.VaultDir, logger)
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		st, err = store.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", models.ErrInvalidInput, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	return st, nil
}

func (c *Client) watch(dir string) error {
	w, err := store.NewWatcher(dir, c.logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel
	c.watchDone = make(chan struct{})

	go func() {
		defer close(c.watchDone)
		if err := w.Run(ctx, c.Sessions.HandleChange); err != nil {
			c.logger.WithError(err).Error("Vault watcher failed")
		}
	}()
	return nil
}

// ListVaults returns every vault without needing a password.
func (c *Client) ListVaults(ctx context.Context) ([]models.VaultMetadata, error) {
	return c.Sessions.List(ctx)
}

// ResolveVault finds a vault by id, or by name when exactly one vault has it.
func (c *Client) ResolveVault(ctx context.Context, ref string) (models.VaultMetadata, error) {
	list, err := c.Sessions.List(ctx)
	if err != nil {
		return models.VaultMetadata{}, err
	}

	ref = strings.TrimSpace(ref)
	var matches []models.VaultMetadata
	for _, v := range list {
		if v.ID == ref {
			return v, nil
		}
		if strings.EqualFold(v.Name, ref) {
			matches = append(matches, v)
		}
	}

	switch len(matches) {
	case 0:
		return models.VaultMetadata{}, fmt.Errorf("%w: %s", models.ErrVaultNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return models.VaultMetadata{}, fmt.Errorf("%w: %d vaults are named %q, use the id", models.ErrInvalidInput, len(matches), ref)
	}
}

// CreateVault creates an empty vault sealed under password.
func (c *Client) CreateVault(ctx context.Context, name string, icon models.Icon, password []byte) (*models.VaultMetadata, error) {
	return c.Sessions.Create(ctx, name, icon, password)
}

// UnlockVault verifies password and returns the vault's session.
func (c *Client) UnlockVault(ctx context.Context, id string, password []byte) (*session.Session, error) {
	return c.Sessions.Unlock(ctx, id, password)
}

// LockVault wipes the session of id.
func (c *Client) LockVault(id string) error {
	return c.Sessions.Lock(id)
}

// RenameVault changes a vault's display name.
func (c *Client) RenameVault(ctx context.Context, id, name string) error {
	return c.Sessions.Rename(ctx, id, name)
}

// DeleteVault removes a vault and everything in it.
func (c *Client) DeleteVault(ctx context.Context, id string) error {
	return c.Sessions.Delete(ctx, id)
}

func (c *Client) AddAccount(ctx context.Context, s *session.Session, fields models.AccountFields) (string, error) {
	return c.Accounts.Add(ctx, s, fields)
}

func (c *Client) UpdateAccount(ctx context.Context, s *session.Session, id string, u models.AccountUpdate) error {
	return c.Accounts.Update(ctx, s, id, u)
}

func (c *Client) DeleteAccount(ctx context.Context, s *session.Session, id string) error {
	return c.Accounts.Delete(ctx, s, id)
}

func (c *Client) GetAccount(s *session.Session, id string) (models.Account, error) {
	return c.Accounts.Get(s, id)
}

func (c *Client) ListAccounts(s *session.Session) ([]models.Account, error) {
	return c.Accounts.List(s)
}

// Subscribe returns change events for vaultID, or all vaults when empty.
func (c *Client) Subscribe(vaultID string) (<-chan session.Event, func()) {
	return c.Sessions.Subscribe(vaultID)
}

// LockIdle locks sessions idle longer than session.idle_timeout.
func (c *Client) LockIdle() []string {
	return c.Sessions.LockIdle(c.config.Session.IdleTimeout)
}

// MigrateTo copies every vault into the store of backend. Records are moved
// sealed; no password is needed.
func (c *Client) MigrateTo(ctx context.Context, backend string) (int, error) {
	if backend == c.config.Storage.Backend {
		return 0, fmt.Errorf("%w: vaults already use the %s backend", models.ErrInvalidInput, backend)
	}

	target, err := OpenStore(c.config, backend, c.logger)
	if err != nil {
		return 0, err
	}
	defer target.Close()

	start := time.Now()
	if err := c.store.Migrate(ctx, target); err != nil {
		return 0, fmt.Errorf("migrate vaults: %w", err)
	}

	list, err := target.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list migrated vaults: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"backend":  backend,
		"vaults":   len(list),
		"duration": time.Since(start),
	}).Info("Vaults migrated")

	return len(list), nil
}

// Close locks every vault, stops the watcher and closes the store.
func (c *Client) Close() error {
	err := c.Sessions.Close()

	if c.stopWatch != nil {
		c.stopWatch()
		<-c.watchDone
	}

	if cerr := c.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
