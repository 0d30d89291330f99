package crypto

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// Provider defines the cryptographic operations the vault core needs.
type Provider interface {
	// NewKDFParams returns the configured cost parameters with a fresh salt.
	NewKDFParams() (models.KDFParams, error)

	// DeriveKey derives a vault key. It returns ctx.Err() if ctx ends first.
	DeriveKey(ctx context.Context, password []byte, params models.KDFParams) ([]byte, error)

	// Cipher is the AEAD used for new vaults.
	Cipher() models.Cipher

	// Seal encrypts plaintext with cipher c under a fresh nonce.
	Seal(plaintext, key []byte, c models.Cipher, aad []byte) (models.SealedPayload, error)

	// Open decrypts a sealed payload. Failures are models.ErrAuthenticationFailed.
	Open(sealed models.SealedPayload, key, aad []byte) ([]byte, error)
}

// Options select the algorithms used for new vaults. Existing vaults always
// use the parameters stored in their record.
type Options struct {
	KDF    models.KDFParams
	Cipher models.Cipher
}

// DefaultOptions returns Argon2id with AES-256-GCM.
func DefaultOptions() Options {
	kdf, _ := DefaultKDFParams(models.KDFArgon2id)
	return Options{KDF: kdf, Cipher: models.CipherAES256GCM}
}

// CryptoProvider handles all cryptographic operations.
type CryptoProvider struct {
	kdf    models.KDFParams
	cipher models.Cipher
}

// NewProvider creates a crypto provider after checking opts.
func NewProvider(opts Options) (*CryptoProvider, error) {
	probe := opts.KDF
	probe.Salt = make([]byte, SaltSize)
	if err := ValidateKDFParams(probe); err != nil {
		return nil, err
	}
	if _, err := ParseCipher(string(opts.Cipher)); err != nil {
		return nil, err
	}

	kdf := opts.KDF
	kdf.Salt = nil

	return &CryptoProvider{kdf: kdf, cipher: opts.Cipher}, nil
}

// Cipher returns the cipher used for new payloads.
func (p *CryptoProvider) Cipher() models.Cipher {
	return p.cipher
}

func (p *CryptoProvider) NewKDFParams() (models.KDFParams, error) {
	return WithFreshSalt(p.kdf)
}

// DeriveKey runs the KDF on its own goroutine so a cancelled ctx returns
// immediately. A key finished after cancellation is wiped, never returned.
func (p *CryptoProvider) DeriveKey(ctx context.Context, password []byte, params models.KDFParams) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The caller may wipe password as soon as we return.
	pw := append([]byte(nil), password...)

	type result struct {
		key []byte
		err error
	}
	done := make(chan result, 1)

	go func() {
		key, err := DeriveKey(pw, params)
		Wipe(pw)
		done <- result{key: key, err: err}
	}()

	select {
	case r := <-done:
		return r.key, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			Wipe(r.key)
		}()
		return nil, ctx.Err()
	}
}

func (p *CryptoProvider) Seal(plaintext, key []byte, c models.Cipher, aad []byte) (models.SealedPayload, error) {
	return Seal(plaintext, key, c, aad)
}

func (p *CryptoProvider) Open(sealed models.SealedPayload, key, aad []byte) ([]byte, error) {
	return Open(sealed, key, aad)
}

// ParseKDFAlgorithm accepts an algorithm name in any case.
func ParseKDFAlgorithm(s string) (models.KDFAlgorithm, error) {
	algo := models.KDFAlgorithm(strings.ToUpper(strings.TrimSpace(s)))
	switch algo {
	case models.KDFArgon2id, models.KDFScrypt, models.KDFPBKDF2SHA256:
		return algo, nil
	}
	return "", fmt.Errorf("%w: unknown kdf algorithm %q", models.ErrInvalidInput, s)
}
