package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

const (
	// NonceSize of AES-256-GCM.
	NonceSize = 12

	// XNonceSize of XChaCha20-Poly1305.
	XNonceSize = chacha20poly1305.NonceSizeX

	// TagSize shared by both AEADs.
	TagSize = 16

	aadPrefix = "safevault/v1"
)

// ErrInvalidKey is returned when sealing with a key of the wrong size.
var ErrInvalidKey = fmt.Errorf("invalid key size: expected %d bytes", KeySize)

// AssociatedData binds a sealed payload to its vault record: id, KDF parameters,
// salt and cipher. Changing any of them makes Open fail.
func AssociatedData(vaultID string, kdf models.KDFParams, c models.Cipher) []byte {
	parts := []string{
		aadPrefix,
		vaultID,
		string(kdf.Algorithm),
		strconv.FormatUint(uint64(kdf.Iterations), 10) + "," +
			strconv.FormatUint(uint64(kdf.MemoryKiB), 10) + "," +
			strconv.FormatUint(uint64(kdf.Parallelism), 10),
		hex.EncodeToString(kdf.Salt),
		string(c),
	}
	return []byte(strings.Join(parts, "|"))
}

// Seal encrypts plaintext under key with a fresh random nonce.
// The tag is split off the end of the AEAD output and stored separately.
func Seal(plaintext, key []byte, c models.Cipher, aad []byte) (models.SealedPayload, error) {
	if len(key) != KeySize {
		return models.SealedPayload{}, ErrInvalidKey
	}

	aead, err := newAEAD(c, key)
	if err != nil {
		return models.SealedPayload{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return models.SealedPayload{}, fmt.Errorf("generate nonce: %w", err)
	}

	out := aead.Seal(nil, nonce, plaintext, aad)
	split := len(out) - TagSize

	return models.SealedPayload{
		Cipher:     c,
		Nonce:      nonce,
		Ciphertext: out[:split:split],
		AuthTag:    append([]byte(nil), out[split:]...),
	}, nil
}

// Open authenticates and decrypts sealed. Every failure, including malformed
// fields and unknown ciphers, returns models.ErrAuthenticationFailed and nothing else.
func Open(sealed models.SealedPayload, key, aad []byte) ([]byte, error) {
	if len(key) != KeySize || len(sealed.AuthTag) != TagSize {
		return nil, models.ErrAuthenticationFailed
	}

	aead, err := newAEAD(sealed.Cipher, key)
	if err != nil {
		return nil, models.ErrAuthenticationFailed
	}
	if len(sealed.Nonce) != aead.NonceSize() {
		return nil, models.ErrAuthenticationFailed
	}

	buf := make([]byte, 0, len(sealed.Ciphertext)+TagSize)
	buf = append(buf, sealed.Ciphertext...)
	buf = append(buf, sealed.AuthTag...)

	plaintext, err := aead.Open(buf[:0], sealed.Nonce, buf, aad)
	if err != nil {
		Wipe(buf)
		return nil, models.ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newAEAD(c models.Cipher, key []byte) (cipher.AEAD, error) {
	switch c {
	case models.CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create GCM: %w", err)
		}
		return aead, nil
	case models.CipherXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create xchacha20-poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unsupported cipher %q", c)
	}
}

// ParseCipher accepts a cipher name in any case.
func ParseCipher(s string) (models.Cipher, error) {
	c := models.Cipher(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case models.CipherAES256GCM, models.CipherXChaCha20Poly1305:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown cipher %q", models.ErrInvalidInput, s)
}
