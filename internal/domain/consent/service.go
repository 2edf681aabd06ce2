package consent

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/myhealthchain/api/internal/audit"
	"github.com/myhealthchain/api/internal/domain/identity"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/internal/platform/db"
)

// PatientResolver resolves an untrusted lookup handle to a patient.
type PatientResolver interface {
	ResolveUHID(ctx context.Context, uhid string) (*identity.Patient, error)
}

// PINVerifier proves patient authority over a grant decision with the same
// secret that protects the data.
type PINVerifier interface {
	VerifyAndUnwrap(ctx context.Context, patientID uuid.UUID, pin string) ([]byte, error)
}

// MembershipChecker answers whether a doctor has an approved membership with
// a hospital.
type MembershipChecker interface {
	IsApproved(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error)
}

type Service struct {
	grants      GrantRepository
	patients    PatientResolver
	pins        PINVerifier
	memberships MembershipChecker
	auditor     audit.Recorder
	tx          db.TxRunner

	// now is injectable for expiry-boundary tests.
	now func() time.Time
}

func NewService(
	grants GrantRepository,
	patients PatientResolver,
	pins PINVerifier,
	memberships MembershipChecker,
	auditor audit.Recorder,
	tx db.TxRunner,
) *Service {
	return &Service{
		grants:      grants,
		patients:    patients,
		pins:        pins,
		memberships: memberships,
		auditor:     auditor,
		tx:          tx,
		now:         time.Now,
	}
}

// RequestGrantInput is the collaborator contract for a grant request: the
// patient arrives as an untrusted lookup handle, never an internal id.
type RequestGrantInput struct {
	Kind        string `json:"kind"`
	PatientUHID string `json:"patient_uhid"`
	AccessType  string `json:"access_type"`
	Reason      string `json:"reason"`
	TTLHours    int    `json:"ttl_hours"`
	// HospitalID names the delegating hospital; required for delegated
	// grants, ignored otherwise.
	HospitalID uuid.UUID `json:"hospital_id,omitempty"`
}

func (in *RequestGrantInput) validate() error {
	switch in.Kind {
	case KindDirect, KindHospital, KindDelegated:
	default:
		return ErrInvalidKind
	}
	switch in.AccessType {
	case AccessRead, AccessReadWrite:
	default:
		return fmt.Errorf("access_type must be %q or %q", AccessRead, AccessReadWrite)
	}
	if n := utf8.RuneCountInString(in.Reason); n < MinReasonLen || n > MaxReasonLen {
		return ErrInvalidReason
	}
	if !TTLChoices[in.TTLHours] {
		return ErrInvalidTTL
	}
	return nil
}

// RequestGrant inserts a pending grant. Kinds map to requesters: a doctor
// requests direct grants, a hospital requests hospital grants, and a doctor
// with an approved membership requests delegation from that hospital. The
// grant row and its audit entry commit atomically.
func (s *Service) RequestGrant(ctx context.Context, actor auth.Actor, in RequestGrantInput) (*Grant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	switch in.Kind {
	case KindDirect, KindDelegated:
		if actor.Role != auth.RoleDoctor {
			return nil, ErrNotAuthorized
		}
	case KindHospital:
		if actor.Role != auth.RoleHospital {
			return nil, ErrNotAuthorized
		}
	}

	patient, err := s.patients.ResolveUHID(ctx, in.PatientUHID)
	if err != nil {
		return nil, err
	}

	g := &Grant{
		Kind:       in.Kind,
		PatientID:  patient.ID,
		GranteeID:  actor.ID,
		AccessType: in.AccessType,
		Reason:     in.Reason,
		TTLHours:   in.TTLHours,
	}

	if in.Kind == KindDelegated {
		if in.HospitalID == uuid.Nil {
			return nil, fmt.Errorf("hospital_id is required for delegated grants")
		}
		member, err := s.memberships.IsApproved(ctx, actor.ID, in.HospitalID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotAuthorized
		}
		hid := in.HospitalID
		g.HospitalID = &hid
	}

	dup, err := s.grants.HasActive(ctx, g.PatientID, g.GranteeID, g.Kind, s.now())
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateActiveGrant
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.grants.Create(ctx, g); err != nil {
			return err
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       audit.ActionGrantRequested,
			ResourceType: "grant",
			ResourceID:   g.ID,
			Metadata: map[string]string{
				"kind":        g.Kind,
				"patient_id":  g.PatientID.String(),
				"access_type": g.AccessType,
			},
			Origin: audit.OriginFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Approve transitions a pending grant to approved. Direct and hospital
// grants are approved by the patient and require a freshly verified PIN,
// binding the decision to the secret that protects the data. Delegated
// grants are approved by the delegating hospital; no PIN is involved.
// ExpiresAt is computed here, from the TTL fixed at request time. Exactly
// one of two concurrent approvals wins; the loser gets ErrNotPending.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, grantID uuid.UUID, pin string) (*Grant, error) {
	g, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeDecision(g, actor); err != nil {
		return nil, err
	}

	if g.Kind == KindDirect || g.Kind == KindHospital {
		dek, err := s.pins.VerifyAndUnwrap(ctx, g.PatientID, pin)
		if err != nil {
			return nil, err
		}
		// Approval only proves authority; the key itself is not needed.
		for i := range dek {
			dek[i] = 0
		}
	}

	approvedAt := s.now()
	expiresAt := approvedAt.Add(time.Duration(g.TTLHours) * time.Hour)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		won, err := s.grants.ApproveIfPending(ctx, grantID, approvedAt, expiresAt)
		if err != nil {
			return err
		}
		if !won {
			return ErrNotPending
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       audit.ActionGrantApproved,
			ResourceType: "grant",
			ResourceID:   grantID,
			Metadata: map[string]string{
				"kind":       g.Kind,
				"expires_at": expiresAt.UTC().Format(time.RFC3339),
			},
			Origin: audit.OriginFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.grants.GetByID(ctx, grantID)
}

// Reject transitions a pending grant to rejected. Denial requires only
// session identity, not the PIN.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, grantID uuid.UUID) (*Grant, error) {
	g, err := s.grants.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeDecision(g, actor); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		won, err := s.grants.RejectIfPending(ctx, grantID)
		if err != nil {
			return err
		}
		if !won {
			return ErrNotPending
		}
		return s.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       audit.ActionGrantRejected,
			ResourceType: "grant",
			ResourceID:   grantID,
			Metadata:     map[string]string{"kind": g.Kind},
			Origin:       audit.OriginFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.grants.GetByID(ctx, grantID)
}

// authorizeDecision enforces who may decide a grant: the subject patient for
// direct and hospital grants, the delegating hospital for delegated grants.
// Failures surface as ErrNotFound so callers cannot probe foreign grants.
func (s *Service) authorizeDecision(g *Grant, actor auth.Actor) error {
	if actor.Role == auth.RoleAdmin {
		return nil
	}
	switch g.Kind {
	case KindDirect, KindHospital:
		if actor.Role == auth.RolePatient && actor.ID == g.PatientID {
			return nil
		}
	case KindDelegated:
		if actor.Role == auth.RoleHospital && g.HospitalID != nil && actor.ID == *g.HospitalID {
			return nil
		}
	}
	return ErrNotFound
}

// SweepExpired transitions approved grants past their expiry to expired.
// Idempotent, and intentionally unaudited: expiry is elapsed time, not an
// actor action. Correctness does not depend on the sweep having run; the
// evaluator compares timestamps at read time.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.grants.SweepExpired(ctx, s.now())
}

func (s *Service) GetGrant(ctx context.Context, id uuid.UUID) (*Grant, error) {
	return s.grants.GetByID(ctx, id)
}

// ListGrants returns the grants visible to the actor: a patient sees grants
// over their data, a doctor or hospital sees grants naming them as grantee.
func (s *Service) ListGrants(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Grant, int, error) {
	if actor.Role == auth.RolePatient {
		return s.grants.ListByPatient(ctx, actor.ID, limit, offset)
	}
	return s.grants.ListByGrantee(ctx, actor.ID, limit, offset)
}
