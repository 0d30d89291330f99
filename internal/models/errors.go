package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error handling.
const (
	ErrCodeAuth        = "AUTH_FAILED"
	ErrCodeMalformed   = "PAYLOAD_MALFORMED"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodePersistence = "PERSISTENCE_FAILED"
	ErrCodeDuplicate   = "DUPLICATE"
	ErrCodeLocked      = "VAULT_LOCKED"
	ErrCodeInvalid     = "INVALID_INPUT"
	ErrCodeCanceled    = "CANCELED"
	ErrCodeInternal    = "INTERNAL"
)

// Sentinel errors
var (
	// ErrAuthenticationFailed covers both a wrong password and a tampered payload.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPayloadMalformed     = errors.New("payload malformed")
	ErrNotFound             = errors.New("not found")
	ErrPersistenceFailed    = errors.New("persistence failed")
	ErrDuplicate            = errors.New("duplicate operation")
	ErrVaultLocked          = errors.New("vault is locked")
	ErrInvalidInput         = errors.New("invalid input")

	ErrVaultNotFound   = fmt.Errorf("vault %w", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
)

// VaultError ties a failure to the operation and vault it happened in.
type VaultError struct {
	Op        string
	VaultID   string
	AccountID string
	Kind      error
	Err       error
}

func (e *VaultError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.VaultID != "" {
		sb.WriteString(" vault ")
		sb.WriteString(e.VaultID)
	}
	if e.AccountID != "" {
		sb.WriteString(" account ")
		sb.WriteString(e.AccountID)
	}
	if e.Kind != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Kind.Error())
	}
	// Authentication failures never carry a cause, so wrong password and tamper read the same.
	if e.Err != nil && !errors.Is(e.Kind, ErrAuthenticationFailed) {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *VaultError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Wrap builds a VaultError, classifying err when kind is nil.
func Wrap(op, vaultID string, kind, err error) error {
	if err == nil && kind == nil {
		return nil
	}
	if kind == nil {
		kind = Kind(err)
	}
	if kind == ErrAuthenticationFailed {
		err = nil
	}
	return &VaultError{Op: op, VaultID: vaultID, Kind: kind, Err: err}
}

// Kind returns the taxonomy sentinel err belongs to, or nil for unclassified errors.
func Kind(err error) error {
	for _, kind := range []error{
		ErrAuthenticationFailed,
		ErrPayloadMalformed,
		ErrNotFound,
		ErrPersistenceFailed,
		ErrDuplicate,
		ErrVaultLocked,
		ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Code maps an error to a stable code a UI can switch on.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return ErrCodeAuth
	case errors.Is(err, ErrPayloadMalformed):
		return ErrCodeMalformed
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrPersistenceFailed):
		return ErrCodePersistence
	case errors.Is(err, ErrDuplicate):
		return ErrCodeDuplicate
	case errors.Is(err, ErrVaultLocked):
		return ErrCodeLocked
	case errors.Is(err, ErrInvalidInput):
		return ErrCodeInvalid
	case isContextErr(err):
		return ErrCodeCanceled
	default:
		return ErrCodeInternal
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
