package keys

import (
	"context"

	"github.com/google/uuid"
)

type KeyRepository interface {
	// Upsert replaces the patient's key material; re-setting a PIN
	// overwrites the previous verifier and wrapped DEK.
	Upsert(ctx context.Context, k *PatientKey) error
	// Get returns ErrNoPIN when the patient has no key material.
	Get(ctx context.Context, patientID uuid.UUID) (*PatientKey, error)
}
