package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

const (
	// KeySize of every derived vault key (AES-256 / XChaCha20).
	KeySize = 32

	// SaltSize of freshly generated KDF salts.
	SaltSize = 32

	// Argon2id defaults for new vaults.
	DefaultArgon2Time        = 3
	DefaultArgon2MemoryKiB   = 64 * 1024
	DefaultArgon2Parallelism = 4

	// Scrypt parameters. Iterations holds N; r is fixed.
	DefaultScryptN = 32768
	ScryptR        = 8
	DefaultScryptP = 1

	// PBKDF2-SHA256 rounds, OWASP 2023 guidance.
	DefaultPBKDF2Iterations = 600000
)

// Bounds applied to parameters read back from storage, so a crafted record
// can't make an unlock attempt allocate unbounded memory.
const (
	minSaltSize         = 16
	maxSaltSize         = 64
	maxArgon2Time       = 64
	maxArgon2MemoryKiB  = 4 * 1024 * 1024
	minScryptN          = 1024
	maxScryptN          = 1 << 22
	minPBKDF2Iterations = 1000
	maxPBKDF2Iterations = 50000000
)

// ErrInvalidKDFParams is returned for parameters outside the supported bounds.
var ErrInvalidKDFParams = errors.New("invalid kdf parameters")

// DefaultKDFParams returns the cost parameters for algo with an empty salt.
func DefaultKDFParams(algo models.KDFAlgorithm) (models.KDFParams, error) {
	switch algo {
	case models.KDFArgon2id:
		return models.KDFParams{
			Algorithm:   algo,
			Iterations:  DefaultArgon2Time,
			MemoryKiB:   DefaultArgon2MemoryKiB,
			Parallelism: DefaultArgon2Parallelism,
		}, nil
	case models.KDFScrypt:
		return models.KDFParams{
			Algorithm:   algo,
			Iterations:  DefaultScryptN,
			Parallelism: DefaultScryptP,
		}, nil
	case models.KDFPBKDF2SHA256:
		return models.KDFParams{
			Algorithm:  algo,
			Iterations: DefaultPBKDF2Iterations,
		}, nil
	default:
		return models.KDFParams{}, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidKDFParams, algo)
	}
}

// NewSalt returns SaltSize bytes from crypto/rand.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// WithFreshSalt copies template and attaches a new random salt.
func WithFreshSalt(template models.KDFParams) (models.KDFParams, error) {
	salt, err := NewSalt()
	if err != nil {
		return models.KDFParams{}, err
	}
	params := template
	params.Salt = salt
	if err := ValidateKDFParams(params); err != nil {
		return models.KDFParams{}, err
	}
	return params, nil
}

// ValidateKDFParams checks algorithm, cost bounds and salt length.
func ValidateKDFParams(p models.KDFParams) error {
	if len(p.Salt) < minSaltSize || len(p.Salt) > maxSaltSize {
		return fmt.Errorf("%w: salt length %d", ErrInvalidKDFParams, len(p.Salt))
	}

	switch p.Algorithm {
	case models.KDFArgon2id:
		if p.Iterations < 1 || p.Iterations > maxArgon2Time {
			return fmt.Errorf("%w: argon2id time %d", ErrInvalidKDFParams, p.Iterations)
		}
		if p.Parallelism < 1 {
			return fmt.Errorf("%w: argon2id parallelism %d", ErrInvalidKDFParams, p.Parallelism)
		}
		if p.MemoryKiB < 8*uint32(p.Parallelism) || p.MemoryKiB > maxArgon2MemoryKiB {
			return fmt.Errorf("%w: argon2id memory %d KiB", ErrInvalidKDFParams, p.MemoryKiB)
		}
	case models.KDFScrypt:
		n := p.Iterations
		if n < minScryptN || n > maxScryptN || n&(n-1) != 0 {
			return fmt.Errorf("%w: scrypt N %d", ErrInvalidKDFParams, n)
		}
		if p.Parallelism < 1 {
			return fmt.Errorf("%w: scrypt p %d", ErrInvalidKDFParams, p.Parallelism)
		}
	case models.KDFPBKDF2SHA256:
		if p.Iterations < minPBKDF2Iterations || p.Iterations > maxPBKDF2Iterations {
			return fmt.Errorf("%w: pbkdf2 iterations %d", ErrInvalidKDFParams, p.Iterations)
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidKDFParams, p.Algorithm)
	}

	return nil
}

// DeriveKey turns a master password and the vault's KDF parameters into a KeySize key.
// The result is deterministic for the same inputs. The caller owns password and
// must Wipe the returned key when done with it.
func DeriveKey(password []byte, p models.KDFParams) ([]byte, error) {
	if err := ValidateKDFParams(p); err != nil {
		return nil, err
	}

	normalized := normalizePassword(password)
	defer Wipe(normalized)

	switch p.Algorithm {
	case models.KDFArgon2id:
		return argon2.IDKey(normalized, p.Salt, p.Iterations, p.MemoryKiB, p.Parallelism, KeySize), nil

	case models.KDFScrypt:
		key, err := scrypt.Key(normalized, p.Salt, int(p.Iterations), ScryptR, int(p.Parallelism), KeySize)
		if err != nil {
			return nil, fmt.Errorf("scrypt key derivation: %w", err)
		}
		return key, nil

	default:
		return pbkdf2.Key(normalized, p.Salt, int(p.Iterations), KeySize, sha256.New), nil
	}
}

// normalizePassword applies NFKC so the same password typed on different
// keyboards or input methods derives the same key. The result is a fresh
// buffer the caller may wipe without touching password.
func normalizePassword(password []byte) []byte {
	return norm.NFKC.Append(nil, password...)
}
