package session_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/session"
	"github.com/mhmdtwsm/GradProject-sub000/internal/store"
	"github.com/mhmdtwsm/GradProject-sub000/test/testutil"
)

func newManager(t *testing.T) (*session.Manager, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	m := session.NewManager(st, testutil.FastProvider(t), testutil.NewTestLogger())
	t.Cleanup(func() { _ = m.Close() })
	return m, st
}

func createVault(t *testing.T, m *session.Manager, name, password string) string {
	t.Helper()

	meta, err := m.Create(context.Background(), name, models.IconWork, []byte(password))
	require.NoError(t, err)
	return meta.ID
}

func appendAccount(a models.Account) session.MutateFunc {
	return func(accounts []models.Account) ([]models.Account, error) {
		return append(accounts, a), nil
	}
}

func TestConcreteScenario(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	meta, err := m.Create(ctx, "Work", models.IconWork, []byte("correct-horse"))
	require.NoError(t, err)
	assert.Equal(t, "Work", meta.Name)
	assert.Equal(t, models.IconWork, meta.Icon)
	assert.False(t, m.IsUnlocked(meta.ID))

	s, err := m.Unlock(ctx, meta.ID, []byte("correct-horse"))
	require.NoError(t, err)
	accounts, err := s.Accounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	github := models.Account{ID: "acc-1", Title: "GitHub", URL: "github.com", Email: "a@b.com", Password: "x"}
	require.NoError(t, s.Commit(ctx, appendAccount(github)))

	require.NoError(t, m.Lock(meta.ID))
	assert.False(t, m.IsUnlocked(meta.ID))

	s, err = m.Unlock(ctx, meta.ID, []byte("correct-horse"))
	require.NoError(t, err)
	accounts, err = s.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []models.Account{github}, accounts)

	require.NoError(t, m.Lock(meta.ID))
	_, err = m.Unlock(ctx, meta.ID, []byte("wrong"))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
	assert.False(t, m.IsUnlocked(meta.ID))
}

func TestCreateValidation(t *testing.T) {
	m, st := newManager(t)

	tests := []struct {
		name     string
		vault    string
		icon     models.Icon
		password string
	}{
		{"empty name", "  ", models.IconWork, "pw"},
		{"long name", string(make([]rune, models.MaxVaultNameLength+1)), models.IconWork, "pw"},
		{"unknown icon", "Work", models.Icon("HOME"), "pw"},
		{"empty password", "Work", models.IconWork, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(context.Background(), tt.vault, tt.icon, []byte(tt.password))
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}

	assert.Zero(t, st.Len())
}

func TestCreateTrimsName(t *testing.T) {
	m, _ := newManager(t)

	meta, err := m.Create(context.Background(), "  Personal  ", models.IconSocial, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "Personal", meta.Name)
	require.NoError(t, store.ValidateID(meta.ID))
}

func TestCreatePersistenceFailure(t *testing.T) {
	m, st := newManager(t)
	st.InjectFailure(store.OpCreate, errors.New("disk full"))

	_, err := m.Create(context.Background(), "Work", models.IconWork, []byte("pw"))
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)
	assert.Equal(t, models.ErrCodePersistence, models.Code(err))
}

func TestListNeedsNoPassword(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	a := createVault(t, m, "Alpha", "pw-a")
	b := createVault(t, m, "Beta", "pw-b")
	_, err := m.Unlock(ctx, b, []byte("pw-b"))
	require.NoError(t, err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a, list[0].ID)
	assert.Equal(t, b, list[1].ID)

	require.NoError(t, m.Delete(ctx, a))
	list, err = m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b, list[0].ID)
}

func TestUnlockWrongPasswordStaysLocked(t *testing.T) {
	m, _ := newManager(t)
	id := createVault(t, m, "Work", "correct-horse")

	for _, pw := range []string{"wrong", "", "correct-horse ", "Correct-horse"} {
		s, err := m.Unlock(context.Background(), id, []byte(pw))
		assert.Nil(t, s)
		assert.ErrorIs(t, err, models.ErrAuthenticationFailed, "password %q", pw)
		assert.False(t, m.IsUnlocked(id))
	}
}

func TestUnlockTamperedRecord(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(v *models.Vault)
	}{
		{"ciphertext first byte", func(v *models.Vault) { v.Sealed.Ciphertext[0] ^= 0x01 }},
		{"ciphertext last byte", func(v *models.Vault) { v.Sealed.Ciphertext[len(v.Sealed.Ciphertext)-1] ^= 0x80 }},
		{"auth tag", func(v *models.Vault) { v.Sealed.AuthTag[3] ^= 0x01 }},
		{"nonce", func(v *models.Vault) { v.Sealed.Nonce[0] ^= 0x01 }},
		{"salt", func(v *models.Vault) { v.KDF.Salt[0] ^= 0x01 }},
		{"kdf cost", func(v *models.Vault) { v.KDF.Iterations++ }},
		{"kdf cost out of bounds", func(v *models.Vault) { v.KDF.MemoryKiB = 1 << 30 }},
		{"cipher swapped", func(v *models.Vault) { v.Sealed.Cipher = models.CipherXChaCha20Poly1305 }},
		{"unknown cipher", func(v *models.Vault) { v.Sealed.Cipher = "ROT13" }},
		{"truncated tag", func(v *models.Vault) { v.Sealed.AuthTag = v.Sealed.AuthTag[:8] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, st := newManager(t)
			id := createVault(t, m, "Work", "correct-horse")

			v, err := st.Load(ctx, id)
			require.NoError(t, err)
			tt.tamper(v)
			st.Put(v)

			_, err = m.Unlock(ctx, id, []byte("correct-horse"))
			assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
			assert.False(t, m.IsUnlocked(id))
		})
	}
}

func TestUnlockCorruptRecordFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.NewJSONStore(dir, testutil.NewTestLogger())
	require.NoError(t, err)
	m := session.NewManager(st, testutil.FastProvider(t), testutil.NewTestLogger())
	defer m.Close()

	id := createVault(t, m, "Work", "correct-horse")
	path := filepath.Join(dir, id+".json")
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	v, err := st.Load(ctx, id)
	require.NoError(t, err)

	fields := map[string][]byte{
		"auth_tag":   v.Sealed.AuthTag,
		"ciphertext": v.Sealed.Ciphertext,
		"nonce":      v.Sealed.Nonce,
		"salt":       v.KDF.Salt,
	}

	for name, raw := range fields {
		t.Run(name, func(t *testing.T) {
			text := []byte(`"` + base64.StdEncoding.EncodeToString(raw) + `"`)
			start := bytes.Index(original, text)
			require.Positive(t, start)

			// Every character of the encoded value, quotes excluded.
			for i := start + 1; i < start+len(text)-1; i++ {
				data := bytes.Clone(original)
				data[i] ^= 0x01

				// A flip in the unused low bits of the last sextet decodes to the same bytes.
				if same, err := base64.StdEncoding.DecodeString(string(data[start+1 : start+len(text)-1])); err == nil && bytes.Equal(same, raw) {
					continue
				}
				require.NoError(t, os.WriteFile(path, data, 0600))

				_, err := m.Unlock(ctx, id, []byte("correct-horse"))
				require.Error(t, err, "offset %d", i)
				assert.Equal(t, models.ErrCodeAuth, models.Code(err), "offset %d: %v", i, err)
				assert.False(t, m.IsUnlocked(id))
			}
		})
	}

	require.NoError(t, os.WriteFile(path, original, 0600))
	_, err = m.Unlock(ctx, id, []byte("correct-horse"))
	assert.NoError(t, err)
}

func TestUnlockUndecodableRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.NewJSONStore(dir, testutil.NewTestLogger())
	require.NoError(t, err)
	m := session.NewManager(st, testutil.FastProvider(t), testutil.NewTestLogger())
	defer m.Close()

	id := createVault(t, m, "Work", "pw")
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte("{not json"), 0600))

	_, err = m.Unlock(ctx, id, []byte("pw"))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)

	_, err = st.Load(ctx, id)
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)
	assert.ErrorIs(t, err, store.ErrRecordCorrupt)
}

func TestAuthFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	id := createVault(t, m, "Work", "correct-horse")

	_, wrongPw := m.Unlock(ctx, id, []byte("wrong"))

	v, err := st.Load(ctx, id)
	require.NoError(t, err)
	v.Sealed.Ciphertext[0] ^= 0xff
	st.Put(v)
	_, tampered := m.Unlock(ctx, id, []byte("correct-horse"))

	require.Error(t, wrongPw)
	require.Error(t, tampered)
	assert.Equal(t, wrongPw.Error(), tampered.Error())
	assert.Equal(t, models.Code(wrongPw), models.Code(tampered))
}

func TestUnlockUnknownVault(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Unlock(context.Background(), store.NewVaultID(), []byte("pw"))
	assert.ErrorIs(t, err, models.ErrVaultNotFound)

	_, err = m.Unlock(context.Background(), "../etc/passwd", []byte("pw"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUnlockAlreadyUnlockedVerifiesPassword(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	id := createVault(t, m, "Work", "pw")

	first, err := m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)

	second, err := m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = m.Unlock(ctx, id, []byte("nope"))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
	assert.True(t, m.IsUnlocked(id), "failed unlock must not lock a live session")
	assert.False(t, first.Locked())
}

func TestUnlockCancelled(t *testing.T) {
	m, _ := newManager(t)
	id := createVault(t, m, "Work", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Unlock(ctx, id, []byte("pw"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ErrCodeCanceled, models.Code(err))
	assert.False(t, m.IsUnlocked(id))
}

func TestUnlockDeadlineDuringDerivation(t *testing.T) {
	testutil.SkipIfShort(t, "runs an expensive key derivation")

	ctx := context.Background()
	m, st := newManager(t)
	id := createVault(t, m, "Work", "pw")

	// Expensive but valid parameters; the derivation outlives the deadline.
	v, err := st.Load(ctx, id)
	require.NoError(t, err)
	v.KDF.Iterations = 64
	v.KDF.MemoryKiB = 64 * 1024
	st.Put(v)

	deadline, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = m.Unlock(deadline, id, []byte("pw"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, m.IsUnlocked(id))
}

func TestLockWipesSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	id := createVault(t, m, "Work", "pw")

	s, err := m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, appendAccount(models.Account{ID: "a", Title: "t"})))

	require.NoError(t, m.Lock(id))

	assert.True(t, s.Locked())
	_, err = s.Accounts()
	assert.ErrorIs(t, err, models.ErrVaultLocked)
	err = s.Commit(ctx, appendAccount(models.Account{ID: "b", Title: "t"}))
	assert.ErrorIs(t, err, models.ErrVaultLocked)

	_, ok := m.Session(id)
	assert.False(t, ok)

	// No-op on locked and unknown vaults.
	assert.NoError(t, m.Lock(id))
	assert.NoError(t, m.Lock(store.NewVaultID()))
}

func TestLockAll(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	var sessions []*session.Session
	for i := 0; i < 3; i++ {
		id := createVault(t, m, fmt.Sprintf("Vault %d", i), "pw")
		s, err := m.Unlock(ctx, id, []byte("pw"))
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	require.NoError(t, m.LockAll())

	for _, s := range sessions {
		assert.True(t, s.Locked())
		assert.False(t, m.IsUnlocked(s.VaultID()))
	}
}

func TestLockIdle(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	m.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	idle := createVault(t, m, "Idle", "pw")
	busy := createVault(t, m, "Busy", "pw")

	_, err := m.Unlock(ctx, idle, []byte("pw"))
	require.NoError(t, err)
	busySession, err := m.Unlock(ctx, busy, []byte("pw"))
	require.NoError(t, err)

	advance(4 * time.Minute)
	_, err = busySession.Accounts()
	require.NoError(t, err)
	advance(2 * time.Minute)

	locked := m.LockIdle(5 * time.Minute)
	assert.Equal(t, []string{idle}, locked)
	assert.False(t, m.IsUnlocked(idle))
	assert.True(t, m.IsUnlocked(busy))

	assert.Empty(t, m.LockIdle(0))
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	id := createVault(t, m, "Work", "pw")

	s, err := m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)

	require.NoError(t, m.Rename(ctx, id, "Office"))

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Office", list[0].Name)

	// Renaming does not invalidate the sealed payload.
	require.NoError(t, s.Commit(ctx, appendAccount(models.Account{ID: "a", Title: "t"})))
	require.NoError(t, m.Lock(id))
	_, err = m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)

	assert.ErrorIs(t, m.Rename(ctx, id, ""), models.ErrInvalidInput)
	assert.ErrorIs(t, m.Rename(ctx, store.NewVaultID(), "x"), models.ErrNotFound)
}

func TestDeleteLocksAndRemoves(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	id := createVault(t, m, "Work", "pw")

	s, err := m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, id))
	assert.True(t, s.Locked())
	assert.Zero(t, st.Len())

	_, err = m.Unlock(ctx, id, []byte("pw"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, id), models.ErrNotFound)
}

func TestDeleteFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	m, st := newManager(t)
	id := createVault(t, m, "Work", "pw")

	s, err := m.Unlock(ctx, id, []byte("pw"))
	require.NoError(t, err)

	st.InjectFailure(store.OpDelete, errors.New("read-only filesystem"))
	err = m.Delete(ctx, id)
	assert.ErrorIs(t, err, models.ErrPersistenceFailed)

	assert.True(t, m.IsUnlocked(id))
	assert.False(t, s.Locked())
	require.NoError(t, s.Commit(ctx, appendAccount(models.Account{ID: "a", Title: "still usable"})))

	st.InjectFailure(store.OpDelete, nil)
	require.NoError(t, m.Delete(ctx, id))
	assert.True(t, s.Locked())
}

func TestDifferentVaultsAreIndependent(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	a := createVault(t, m, "A", "pw-a")
	b := createVault(t, m, "B", "pw-b")

	_, err := m.Unlock(ctx, a, []byte("pw-b"))
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)

	sa, err := m.Unlock(ctx, a, []byte("pw-a"))
	require.NoError(t, err)
	sb, err := m.Unlock(ctx, b, []byte("pw-b"))
	require.NoError(t, err)

	require.NoError(t, sa.Commit(ctx, appendAccount(models.Account{ID: "a1", Title: "A"})))
	require.NoError(t, m.Lock(a))

	accounts, err := sb.Accounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestConcurrentUnlockDifferentVaults(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = createVault(t, m, fmt.Sprintf("V%d", i), fmt.Sprintf("pw-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Unlock(ctx, id, []byte(fmt.Sprintf("pw-%d", i)))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "vault %d", i)
		assert.True(t, m.IsUnlocked(ids[i]))
	}
}
