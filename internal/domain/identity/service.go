package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/myhealthchain/api/internal/audit"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/internal/platform/db"
)

// uniqueViolation is the postgres SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

type Service struct {
	patients    PatientRepository
	doctors     DoctorRepository
	hospitals   HospitalRepository
	memberships MembershipRepository
	auditor     audit.Recorder
	tx          db.TxRunner
}

func NewService(
	patients PatientRepository,
	doctors DoctorRepository,
	hospitals HospitalRepository,
	memberships MembershipRepository,
	auditor audit.Recorder,
	tx db.TxRunner,
) *Service {
	return &Service{
		patients:    patients,
		doctors:     doctors,
		hospitals:   hospitals,
		memberships: memberships,
		auditor:     auditor,
		tx:          tx,
	}
}

// RegisterPatient creates a patient with a freshly generated UHID, retrying
// on the (vanishingly rare) collision with an existing handle.
func (s *Service) RegisterPatient(ctx context.Context, id uuid.UUID, fullName string) (*Patient, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}

	const maxAttempts = 3
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		uhid, err := GenerateUHID()
		if err != nil {
			return nil, err
		}
		p := &Patient{ID: id, UHID: uhid, FullName: fullName}
		if err := s.patients.Create(ctx, p); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				lastErr = err
				continue
			}
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("generating unique UHID: %w", lastErr)
}

// ResolveUHID validates the untrusted lookup handle and resolves it to a
// patient. Format failures surface as ErrInvalidUHID; well-formed handles
// that match no patient surface as ErrUnknownPatient.
func (s *Service) ResolveUHID(ctx context.Context, uhid string) (*Patient, error) {
	if err := ValidateUHID(uhid); err != nil {
		return nil, err
	}
	return s.patients.GetByUHID(ctx, uhid)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) RegisterDoctor(ctx context.Context, id uuid.UUID, fullName, specialty string) (*Doctor, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}
	d := &Doctor{ID: id, FullName: fullName, Specialty: specialty}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

func (s *Service) RegisterHospital(ctx context.Context, id uuid.UUID, name string) (*Hospital, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("hospital name is required")
	}
	h := &Hospital{ID: id, Name: name}
	if err := s.hospitals.Create(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context, limit, offset int) ([]*Hospital, int, error) {
	return s.hospitals.List(ctx, limit, offset)
}

// RequestMembership creates a pending membership from the doctor to the
// hospital. The membership row and its audit entry commit atomically.
func (s *Service) RequestMembership(ctx context.Context, actor auth.Actor, hospitalID uuid.UUID) (*Membership, error) {
	if _, err := s.hospitals.GetByID(ctx, hospitalID); err != nil {
		return nil, err
	}

	active, err := s.memberships.HasActive(ctx, actor.ID, hospitalID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrDuplicateMembership
	}

	m := &Membership{DoctorID: actor.ID, HospitalID: hospitalID}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.memberships.Create(ctx, m); err != nil {
			return err
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       audit.ActionMembershipRequested,
			ResourceType: "membership",
			ResourceID:   m.ID,
			Metadata:     map[string]string{"hospital_id": hospitalID.String()},
			Origin:       audit.OriginFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DecideMembership approves or rejects a pending membership. Only the
// hospital the membership targets may decide it. Exactly one concurrent
// decision wins; the loser receives ErrNotPending.
func (s *Service) DecideMembership(ctx context.Context, actor auth.Actor, membershipID uuid.UUID, approve bool) (*Membership, error) {
	m, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if actor.Role != auth.RoleAdmin && m.HospitalID != actor.ID {
		return nil, fmt.Errorf("membership %s does not belong to hospital %s: %w",
			membershipID, actor.ID, ErrNotFound)
	}

	status := MembershipRejected
	action := audit.ActionMembershipRejected
	if approve {
		status = MembershipApproved
		action = audit.ActionMembershipApproved
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		won, err := s.memberships.Decide(ctx, membershipID, status)
		if err != nil {
			return err
		}
		if !won {
			return ErrNotPending
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       action,
			ResourceType: "membership",
			ResourceID:   membershipID,
			Metadata:     map[string]string{"doctor_id": m.DoctorID.String()},
			Origin:       audit.OriginFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.memberships.GetByID(ctx, membershipID)
}

func (s *Service) ListMemberships(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Membership, int, error) {
	return s.memberships.ListByHospital(ctx, hospitalID, status, limit, offset)
}
