// Package keys manages the per-patient key material: the PIN verifier and
// the wrapped data-encryption key. The raw PIN and the unwrapped DEK exist
// only in memory inside this package's operations; neither is ever persisted
// or logged.
package keys

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidPIN is returned when a PIN is not exactly six ASCII digits.
	ErrInvalidPIN = errors.New("PIN must be exactly 6 digits")
	// ErrWrongPIN is returned when verification fails.
	ErrWrongPIN = errors.New("wrong PIN")
	// ErrNoPIN is returned when a patient has not set a PIN yet.
	ErrNoPIN = errors.New("patient has no PIN set")
	// ErrRateLimited is returned when a patient id has exhausted its failed
	// attempts for the current window. Verification is refused before any
	// key derivation runs.
	ErrRateLimited = errors.New("too many PIN attempts")
)

// PatientKey is the stored key material for one patient. Verifier is a
// self-describing argon2id string (salt and parameters embedded); WrappedDEK
// is the DEK sealed under the PIN-derived wrapping key as a nonce-prefixed
// AES-GCM blob.
type PatientKey struct {
	PatientID  uuid.UUID `db:"patient_id"`
	Verifier   string    `db:"verifier"`
	WrappedDEK []byte    `db:"wrapped_dek"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// ValidPIN reports whether pin is exactly six ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
