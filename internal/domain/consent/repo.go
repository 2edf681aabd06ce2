package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type GrantRepository interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)

	// HasActive reports whether a pending, or approved-and-unexpired-at-now,
	// grant exists for the (patient, grantee, kind) tuple.
	HasActive(ctx context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (bool, error)

	// FindActive returns the approved-and-unexpired-at-now grant for the
	// tuple, or ErrNotFound.
	FindActive(ctx context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (*Grant, error)

	// FindActiveDelegations returns the active delegated grants naming the
	// doctor as grantee for the patient, one per delegating hospital.
	FindActiveDelegations(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) ([]*Grant, error)

	// ApproveIfPending performs the conditional transition to approved; it
	// reports false when the grant was not pending, so exactly one of two
	// concurrent approvers wins.
	ApproveIfPending(ctx context.Context, id uuid.UUID, approvedAt, expiresAt time.Time) (bool, error)

	// RejectIfPending performs the conditional transition to rejected.
	RejectIfPending(ctx context.Context, id uuid.UUID) (bool, error)

	// SweepExpired moves approved grants whose expiry has passed to expired
	// and returns how many rows changed. Idempotent.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Grant, int, error)
	ListByGrantee(ctx context.Context, granteeID uuid.UUID, limit, offset int) ([]*Grant, int, error)
}
