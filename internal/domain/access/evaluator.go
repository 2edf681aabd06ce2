// Package access decides whether an actor may touch a patient's records by
// composing the current grant ledger state. It is strictly read-only over
// the ledger and never mutates grant status, even when it observes an
// unswept-but-expired grant.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/myhealthchain/api/internal/domain/consent"
	"github.com/myhealthchain/api/internal/platform/auth"
)

// Access modes carried on an allow decision.
const (
	ModeSelf     = "self"
	ModeDirect   = "direct"
	ModeHospital = "hospital"
)

// Decision is the evaluator's verdict. A deny is just Allowed=false: the
// struct deliberately carries nothing that distinguishes "no grant", "grant
// expired", or "patient unknown".
type Decision struct {
	Allowed    bool
	Mode       string
	AccessType string
	// ExpiresAt is nil for self access; for the hospital path it is the
	// earlier expiry of the two links.
	ExpiresAt *time.Time
}

// GrantSource is the read-only slice of the grant ledger the evaluator
// needs.
type GrantSource interface {
	FindActive(ctx context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (*consent.Grant, error)
	FindActiveDelegations(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) ([]*consent.Grant, error)
}

// MembershipSource answers whether a doctor holds an approved membership at
// a hospital.
type MembershipSource interface {
	IsApproved(ctx context.Context, doctorID, hospitalID uuid.UUID) (bool, error)
}

type Evaluator struct {
	grants      GrantSource
	memberships MembershipSource

	now func() time.Time
}

func NewEvaluator(grants GrantSource, memberships MembershipSource) *Evaluator {
	return &Evaluator{grants: grants, memberships: memberships, now: time.Now}
}

// Evaluate answers whether the actor may perform required access on the
// patient's records. Paths are tried in order: the patient over their own
// data, then a direct grant from the patient to the actor, then the
// hospital chain for doctors. The hospital chain needs the patient->hospital
// grant, an approved membership, and the hospital->doctor delegation all
// simultaneously active; either grant expiring revokes effective access
// without touching the other. Expiry is compared against the clock here,
// never read from stored status.
func (e *Evaluator) Evaluate(ctx context.Context, actor auth.Actor, patientID uuid.UUID, required string) (Decision, error) {
	if actor.Role == auth.RolePatient {
		if actor.ID == patientID {
			return Decision{Allowed: true, Mode: ModeSelf, AccessType: consent.AccessReadWrite}, nil
		}
		return Decision{}, nil
	}

	now := e.now()

	kind := consent.KindDirect
	if actor.Role == auth.RoleHospital {
		kind = consent.KindHospital
	}
	g, err := e.grants.FindActive(ctx, patientID, actor.ID, kind, now)
	switch {
	case err == nil:
		if consent.AccessCovers(g.AccessType, required) {
			return Decision{Allowed: true, Mode: ModeDirect, AccessType: g.AccessType, ExpiresAt: g.ExpiresAt}, nil
		}
	case !errors.Is(err, consent.ErrNotFound):
		return Decision{}, err
	}

	if actor.Role != auth.RoleDoctor {
		return Decision{}, nil
	}
	return e.evaluateHospitalPath(ctx, actor.ID, patientID, required, now)
}

func (e *Evaluator) evaluateHospitalPath(ctx context.Context, doctorID, patientID uuid.UUID, required string, now time.Time) (Decision, error) {
	delegations, err := e.grants.FindActiveDelegations(ctx, patientID, doctorID, now)
	if err != nil {
		return Decision{}, err
	}

	for _, d := range delegations {
		if d.HospitalID == nil || !consent.AccessCovers(d.AccessType, required) {
			continue
		}
		hg, err := e.grants.FindActive(ctx, patientID, *d.HospitalID, consent.KindHospital, now)
		if errors.Is(err, consent.ErrNotFound) {
			continue
		}
		if err != nil {
			return Decision{}, err
		}
		if !consent.AccessCovers(hg.AccessType, required) {
			continue
		}
		member, err := e.memberships.IsApproved(ctx, doctorID, *d.HospitalID)
		if err != nil {
			return Decision{}, err
		}
		if !member {
			continue
		}
		return Decision{
			Allowed:    true,
			Mode:       ModeHospital,
			AccessType: narrower(d.AccessType, hg.AccessType),
			ExpiresAt:  earlier(d.ExpiresAt, hg.ExpiresAt),
		}, nil
	}
	return Decision{}, nil
}

// narrower returns the less permissive of two access types.
func narrower(a, b string) string {
	if consent.AccessCovers(a, b) {
		return b
	}
	return a
}

// earlier returns the sooner of two expiries; nil means no expiry.
func earlier(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Before(*b) {
		return a
	}
	return b
}
