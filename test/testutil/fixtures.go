package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/events"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/payload"
	"github.com/mhmdtwsm/GradProject-sub000/internal/store"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// FastKDF returns Argon2id parameters cheap enough for unit tests. Never use
// them outside tests.
func FastKDF() models.KDFParams {
	return models.KDFParams{
		Algorithm:   models.KDFArgon2id,
		Iterations:  1,
		MemoryKiB:   64,
		Parallelism: 1,
	}
}

// FastProvider returns a crypto provider using FastKDF.
func FastProvider(t testing.TB) *crypto.CryptoProvider {
	t.Helper()
	p, err := crypto.NewProvider(crypto.Options{KDF: FastKDF(), Cipher: models.CipherAES256GCM})
	require.NoError(t, err)
	return p
}

// Fixture is a sealed vault record together with the secrets that open it.
type Fixture struct {
	Vault    *models.Vault
	Password string
	Key      []byte
	Accounts []models.Account
}

// NewFixture builds a valid record whose payload holds accounts, sealed under
// password with FastKDF.
func NewFixture(t testing.TB, name, password string, accounts []models.Account) *Fixture {
	t.Helper()

	provider := FastProvider(t)

	params, err := provider.NewKDFParams()
	require.NoError(t, err)

	key, err := provider.DeriveKey(context.Background(), []byte(password), params)
	require.NoError(t, err)

	plaintext, err := payload.Encode(accounts)
	require.NoError(t, err)

	id := store.NewVaultID()
	sealed, err := provider.Seal(plaintext, key, provider.Cipher(), crypto.AssociatedData(id, params, provider.Cipher()))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)

	return &Fixture{
		Vault: &models.Vault{
			ID:            id,
			Name:          name,
			Icon:          models.IconMisc,
			KDF:           params,
			Sealed:        sealed,
			SchemaVersion: models.CurrentSchemaVersion,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Password: password,
		Key:      key,
		Accounts: models.CloneAccounts(accounts),
	}
}

// Reseal seals accounts for the fixture's vault, as a commit would.
func (f *Fixture) Reseal(t testing.TB, accounts []models.Account) models.SealedPayload {
	t.Helper()

	plaintext, err := payload.Encode(accounts)
	require.NoError(t, err)

	sealed, err := crypto.Seal(plaintext, f.Key, f.Vault.Sealed.Cipher,
		crypto.AssociatedData(f.Vault.ID, f.Vault.KDF, f.Vault.Sealed.Cipher))
	require.NoError(t, err)
	return sealed
}

// Open decrypts a sealed payload of the fixture's vault.
func (f *Fixture) Open(t testing.TB, sealed models.SealedPayload) []models.Account {
	t.Helper()

	plaintext, err := crypto.Open(sealed, f.Key,
		crypto.AssociatedData(f.Vault.ID, f.Vault.KDF, sealed.Cipher))
	require.NoError(t, err)

	accounts, err := payload.Decode(plaintext)
	require.NoError(t, err)
	return accounts
}

// SampleAccounts returns a small account list.
func SampleAccounts() []models.Account {
	return []models.Account{
		{ID: "acc-1", Title: "GitHub", URL: "github.com", Email: "a@b.com", Password: "x"},
		{ID: "acc-2", Title: "Bank", URL: "https://bank.example", Email: "me@example.com", Password: "s3cr3t", Notes: "PIN in safe"},
	}
}
