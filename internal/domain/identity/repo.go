package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUHID(ctx context.Context, uhid string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	List(ctx context.Context, limit, offset int) ([]*Hospital, int, error)
}

type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	GetByID(ctx context.Context, id uuid.UUID) (*Membership, error)
	// HasActive reports whether a pending or approved membership exists for
	// the pair.
	HasActive(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error)
	// IsApproved reports whether an approved membership exists for the pair.
	IsApproved(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error)
	// Decide moves a pending membership to the given status; it reports
	// false when the membership was not pending.
	Decide(ctx context.Context, id uuid.UUID, status string) (bool, error)
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Membership, int, error)
}
