package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/crypto"
	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

var ciphers = []models.Cipher{models.CipherAES256GCM, models.CipherXChaCha20Poly1305}

func randomKey(t testing.TB) []byte {
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	aad := crypto.AssociatedData("vault-1", fastArgon2(testSalt), models.CipherAES256GCM)

	for _, c := range ciphers {
		t.Run(string(c), func(t *testing.T) {
			key := randomKey(t)
			plaintext := []byte(`{"version":1,"accounts":[]}`)

			sealed, err := crypto.Seal(plaintext, key, c, aad)
			require.NoError(t, err)

			assert.Equal(t, c, sealed.Cipher)
			assert.Len(t, sealed.AuthTag, crypto.TagSize)
			assert.Len(t, sealed.Ciphertext, len(plaintext))
			if c == models.CipherAES256GCM {
				assert.Len(t, sealed.Nonce, crypto.NonceSize)
			} else {
				assert.Len(t, sealed.Nonce, crypto.XNonceSize)
			}

			opened, err := crypto.Open(sealed, key, aad)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)
		})
	}
}

func TestSealEmptyPlaintext(t *testing.T) {
	key := randomKey(t)

	sealed, err := crypto.Seal(nil, key, models.CipherAES256GCM, nil)
	require.NoError(t, err)
	assert.Empty(t, sealed.Ciphertext)

	opened, err := crypto.Open(sealed, key, nil)
	require.NoError(t, err)
	assert.Empty(t, opened)
}

func TestSealRejectsBadInput(t *testing.T) {
	_, err := crypto.Seal([]byte("x"), make([]byte, 16), models.CipherAES256GCM, nil)
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)

	_, err = crypto.Seal([]byte("x"), randomKey(t), "ROT13", nil)
	assert.Error(t, err)
}

func TestOpenFailuresAreIndistinguishable(t *testing.T) {
	key := randomKey(t)
	aad := []byte("aad")

	sealed, err := crypto.Seal([]byte("secret"), key, models.CipherAES256GCM, aad)
	require.NoError(t, err)

	tests := []struct {
		name   string
		sealed func() models.SealedPayload
		key    []byte
		aad    []byte
	}{
		{"wrong key", sealed.Clone, randomKey(t), aad},
		{"short key", sealed.Clone, key[:16], aad},
		{"wrong aad", sealed.Clone, key, []byte("other")},
		{"missing aad", sealed.Clone, key, nil},
		{"short nonce", func() models.SealedPayload { s := sealed.Clone(); s.Nonce = s.Nonce[:8]; return s }, key, aad},
		{"short tag", func() models.SealedPayload { s := sealed.Clone(); s.AuthTag = s.AuthTag[:8]; return s }, key, aad},
		{"unknown cipher", func() models.SealedPayload { s := sealed.Clone(); s.Cipher = "NONE"; return s }, key, aad},
		{"swapped cipher", func() models.SealedPayload {
			s := sealed.Clone()
			s.Cipher = models.CipherXChaCha20Poly1305
			return s
		}, key, aad},
		{"truncated ciphertext", func() models.SealedPayload {
			s := sealed.Clone()
			s.Ciphertext = s.Ciphertext[:len(s.Ciphertext)-1]
			return s
		}, key, aad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext, err := crypto.Open(tt.sealed(), tt.key, tt.aad)
			assert.Nil(t, plaintext)
			assert.Equal(t, models.ErrAuthenticationFailed, err)
		})
	}
}

func TestAssociatedDataBindsRecord(t *testing.T) {
	base := fastArgon2(testSalt)
	want := crypto.AssociatedData("vault-1", base, models.CipherAES256GCM)

	assert.Equal(t,
		"safevault/v1|vault-1|ARGON2ID|1,64,1|"+
			"73616c7473616c7473616c7473616c7473616c7473616c7473616c7473616c74|AES-256-GCM",
		string(want))

	changed := []struct {
		name string
		aad  []byte
	}{
		{"vault id", crypto.AssociatedData("vault-2", base, models.CipherAES256GCM)},
		{"cipher", crypto.AssociatedData("vault-1", base, models.CipherXChaCha20Poly1305)},
		{"iterations", crypto.AssociatedData("vault-1", func() models.KDFParams { p := base; p.Iterations = 2; return p }(), models.CipherAES256GCM)},
		{"memory", crypto.AssociatedData("vault-1", func() models.KDFParams { p := base; p.MemoryKiB = 128; return p }(), models.CipherAES256GCM)},
		{"salt", crypto.AssociatedData("vault-1", fastArgon2([]byte("pepperpepperpepperpepperpepperpe")), models.CipherAES256GCM)},
		{"algorithm", crypto.AssociatedData("vault-1", func() models.KDFParams { p := base; p.Algorithm = models.KDFScrypt; return p }(), models.CipherAES256GCM)},
	}

	for _, tt := range changed {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, want, tt.aad)
		})
	}
}

func TestParseCipher(t *testing.T) {
	c, err := crypto.ParseCipher("xchacha20-poly1305")
	require.NoError(t, err)
	assert.Equal(t, models.CipherXChaCha20Poly1305, c)

	_, err = crypto.ParseCipher("des")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
