package models

import (
	"fmt"
	"strings"
	"time"
)

// Icon is the display category of a vault.
type Icon string

const (
	IconWork    Icon = "WORK"
	IconSocial  Icon = "SOCIAL"
	IconWarning Icon = "WARNING"
	IconMisc    Icon = "MISC"
)

// Icons lists every supported icon in display order.
var Icons = []Icon{IconWork, IconSocial, IconWarning, IconMisc}

// ParseIcon accepts an icon name in any case.
func ParseIcon(s string) (Icon, error) {
	icon := Icon(strings.ToUpper(strings.TrimSpace(s)))
	if !icon.Valid() {
		return "", fmt.Errorf("%w: unknown icon %q", ErrInvalidInput, s)
	}
	return icon, nil
}

// Valid reports whether the icon is one of the closed set.
func (i Icon) Valid() bool {
	switch i {
	case IconWork, IconSocial, IconWarning, IconMisc:
		return true
	}
	return false
}

// KDFAlgorithm identifies the password-based key derivation function of a vault.
type KDFAlgorithm string

const (
	KDFArgon2id     KDFAlgorithm = "ARGON2ID"
	KDFScrypt       KDFAlgorithm = "SCRYPT"
	KDFPBKDF2SHA256 KDFAlgorithm = "PBKDF2-SHA256"
)

// KDFParams are fixed at vault creation and never change for that vault.
//
// Field meaning depends on Algorithm:
//   - ARGON2ID: Iterations = time cost, MemoryKiB = memory, Parallelism = lanes.
//   - SCRYPT: Iterations = N, MemoryKiB unused (r is fixed to 8), Parallelism = p.
//   - PBKDF2-SHA256: Iterations = rounds, others unused.
type KDFParams struct {
	Algorithm   KDFAlgorithm `json:"algorithm"`
	Iterations  uint32       `json:"iterations"`
	MemoryKiB   uint32       `json:"memory_kib,omitempty"`
	Parallelism uint8        `json:"parallelism,omitempty"`
	Salt        []byte       `json:"salt"`
}

// Cipher identifies the AEAD construction of a sealed payload.
type Cipher string

const (
	CipherAES256GCM         Cipher = "AES-256-GCM"
	CipherXChaCha20Poly1305 Cipher = "XCHACHA20-POLY1305"
)

// SealedPayload is the encrypted, tag-protected account list of one vault.
type SealedPayload struct {
	Cipher     Cipher `json:"cipher"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
}

// Clone returns a deep copy so callers can't alias stored buffers.
func (p SealedPayload) Clone() SealedPayload {
	return SealedPayload{
		Cipher:     p.Cipher,
		Nonce:      append([]byte(nil), p.Nonce...),
		Ciphertext: append([]byte(nil), p.Ciphertext...),
		AuthTag:    append([]byte(nil), p.AuthTag...),
	}
}

// CurrentSchemaVersion of persisted vault records.
const CurrentSchemaVersion = 1

// Vault is the persisted record of one vault.
type Vault struct {
	ID            string        `json:"vault_id"`
	Name          string        `json:"name"`
	Icon          Icon          `json:"icon"`
	KDF           KDFParams     `json:"kdf"`
	Sealed        SealedPayload `json:"sealed"`
	SchemaVersion int           `json:"schema_version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// VaultMetadata is what a vault list shows without any password.
type VaultMetadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      Icon      `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata strips the key material and ciphertext from the record.
func (v *Vault) Metadata() VaultMetadata {
	return VaultMetadata{
		ID:        v.ID,
		Name:      v.Name,
		Icon:      v.Icon,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

// Clone returns a deep copy of the record.
func (v *Vault) Clone() *Vault {
	c := *v
	c.KDF.Salt = append([]byte(nil), v.KDF.Salt...)
	c.Sealed = v.Sealed.Clone()
	return &c
}

// MaxVaultNameLength bounds display names.
const MaxVaultNameLength = 128

// NormalizeVaultName trims a display name and checks its bounds.
func NormalizeVaultName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: vault name is required", ErrInvalidInput)
	}
	if len([]rune(name)) > MaxVaultNameLength {
		return "", fmt.Errorf("%w: vault name longer than %d characters", ErrInvalidInput, MaxVaultNameLength)
	}
	return name, nil
}

// Validate validates the record structure. It does not touch the ciphertext.
func (v *Vault) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("vault ID is required")
	}

	if _, err := NormalizeVaultName(v.Name); err != nil {
		return err
	}

	if !v.Icon.Valid() {
		return fmt.Errorf("unknown icon: %q", v.Icon)
	}

	if v.KDF.Algorithm == "" {
		return fmt.Errorf("kdf algorithm is required")
	}

	if len(v.KDF.Salt) == 0 {
		return fmt.Errorf("kdf salt is required")
	}

	if v.Sealed.Cipher == "" {
		return fmt.Errorf("sealed payload cipher is required")
	}

	if v.CreatedAt.IsZero() {
		return fmt.Errorf("created_at timestamp is required")
	}

	if v.UpdatedAt.Before(v.CreatedAt) {
		return fmt.Errorf("updated_at cannot be before created_at")
	}

	return nil
}
