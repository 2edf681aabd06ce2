// Package consent implements the grant ledger: the single state machine
// behind direct doctor grants, hospital grants, and hospital-to-doctor
// delegations.
package consent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Grant kinds. All three shapes share one lifecycle; shape-specific parties
// live in the grantee and hospital columns.
const (
	KindDirect    = "direct"    // patient -> doctor
	KindHospital  = "hospital"  // patient -> hospital
	KindDelegated = "delegated" // hospital -> doctor, scoped to a patient
)

// Grant statuses. pending moves exactly once to approved or rejected;
// approved moves to expired by the sweep. rejected and expired are terminal;
// re-granting creates a new row.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

// Access types.
const (
	AccessRead      = "read"
	AccessReadWrite = "read_write"
)

// AccessCovers reports whether a granted access type satisfies the required
// one: read_write covers read, read never covers read_write.
func AccessCovers(granted, required string) bool {
	if granted == required {
		return true
	}
	return granted == AccessReadWrite && required == AccessRead
}

// Reason length bounds (characters).
const (
	MinReasonLen = 10
	MaxReasonLen = 500
)

// TTLChoices are the permitted grant lifetimes in hours: 1h, 1d, 1w, 30d.
var TTLChoices = map[int]bool{1: true, 24: true, 168: true, 720: true}

var (
	ErrNotFound             = errors.New("grant not found")
	ErrNotPending           = errors.New("grant is not pending")
	ErrDuplicateActiveGrant = errors.New("an active grant already exists")
	ErrInvalidReason        = errors.New("reason must be 10-500 characters")
	ErrInvalidTTL           = errors.New("ttl_hours must be one of 1, 24, 168, 720")
	ErrInvalidKind          = errors.New("unknown grant kind")
	ErrNotAuthorized        = errors.New("actor may not perform this grant operation")
)

// Grant is one consent relationship. GranteeID is the doctor (direct,
// delegated) or hospital (hospital kind); HospitalID is set only on
// delegated grants and names the delegating hospital. TTLHours is fixed at
// request time but ExpiresAt is computed at approval, so a request sitting
// pending does not burn its own access window.
type Grant struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Kind       string     `db:"kind" json:"kind"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	GranteeID  uuid.UUID  `db:"grantee_id" json:"grantee_id"`
	HospitalID *uuid.UUID `db:"hospital_id" json:"hospital_id,omitempty"`
	AccessType string     `db:"access_type" json:"access_type"`
	Reason     string     `db:"reason" json:"reason"`
	TTLHours   int        `db:"ttl_hours" json:"ttl_hours"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// ActiveAt reports whether the grant confers access at the given instant.
// Expiry is evaluated against the timestamp, never trusted from the stored
// status, so an unswept-but-expired grant is already inactive.
func (g *Grant) ActiveAt(now time.Time) bool {
	if g.Status != StatusApproved {
		return false
	}
	if g.ExpiresAt == nil {
		return true
	}
	return now.Before(*g.ExpiresAt)
}
