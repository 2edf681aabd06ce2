package records

import (
	"context"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error

	// GetByID returns the record only if it is not soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)

	// SoftDelete stamps deleted_at; reports false if the record was
	// already deleted or never existed.
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
}
