// Package payload converts the account list of a vault to and from the
// plaintext byte form that gets sealed.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
)

// Version of the plaintext envelope.
const Version = 1

type envelope struct {
	Version  int              `json:"version"`
	Accounts []models.Account `json:"accounts"`
}

// Encode returns the canonical form of accounts. Field order follows the struct
// layout and account order is preserved, so equal lists encode to equal bytes.
func Encode(accounts []models.Account) ([]byte, error) {
	if err := checkIDs(accounts); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if accounts == nil {
		accounts = []models.Account{}
	}

	data, err := json.Marshal(envelope{Version: Version, Accounts: accounts})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// Decode parses a plaintext produced by Encode. Anything else, including unknown
// fields, another version, duplicate ids or trailing bytes, is ErrPayloadMalformed.
func Decode(data []byte) ([]models.Account, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env struct {
		Version  *int             `json:"version"`
		Accounts []models.Account `json:"accounts"`
	}
	if err := dec.Decode(&env); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("trailing data after envelope")
	}

	if env.Version == nil {
		return nil, malformed("missing version")
	}
	if *env.Version != Version {
		return nil, malformed("unsupported version %d", *env.Version)
	}
	if env.Accounts == nil {
		return nil, malformed("missing accounts")
	}
	if err := checkIDs(env.Accounts); err != nil {
		return nil, malformed("%v", err)
	}

	return env.Accounts, nil
}

func checkIDs(accounts []models.Account) error {
	seen := make(map[string]struct{}, len(accounts))
	for i, a := range accounts {
		if a.ID == "" {
			return fmt.Errorf("account %d has no id", i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// malformed never includes plaintext in the message, only structure.
func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrPayloadMalformed, fmt.Sprintf(format, args...))
}
