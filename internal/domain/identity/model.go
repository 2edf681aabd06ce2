// Package identity holds the long-lived actor entities: patients, doctors,
// hospitals, and the hospital membership relation between doctors and
// hospitals.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownPatient is returned when a patient lookup handle does not
	// resolve. Callers surface it without distinguishing malformed from
	// nonexistent handles beyond input validation.
	ErrUnknownPatient = errors.New("unknown patient")
	// ErrInvalidUHID is returned when a lookup handle fails format validation.
	ErrInvalidUHID = errors.New("invalid UHID format")
	// ErrNotFound is returned when an entity id does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrNotPending is returned when deciding a membership that has already
	// been decided.
	ErrNotPending = errors.New("membership is not pending")
	// ErrDuplicateMembership is returned when a doctor already has a pending
	// or approved membership with the hospital.
	ErrDuplicateMembership = errors.New("membership already exists")
)

// Membership statuses.
const (
	MembershipPending  = "pending"
	MembershipApproved = "approved"
	MembershipRejected = "rejected"
)

// uhidPattern is the lookup handle format: MHC- followed by ten digits.
// UHIDs arrive as untrusted input (typed or scanned from a QR code) and are
// validated before any database lookup.
var uhidPattern = regexp.MustCompile(`^MHC-[0-9]{10}$`)

// ValidateUHID reports whether s is a well-formed lookup handle.
func ValidateUHID(s string) error {
	if !uhidPattern.MatchString(s) {
		return ErrInvalidUHID
	}
	return nil
}

// GenerateUHID produces a fresh lookup handle with ten random digits.
// Uniqueness is enforced by the database; callers retry on collision.
func GenerateUHID() (string, error) {
	max := big.NewInt(10_000_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating UHID: %w", err)
	}
	return fmt.Sprintf("MHC-%010d", n), nil
}

// Patient is the identity anchor records and grants hang off. The PIN
// verifier and wrapped DEK live in the keys domain, not here.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UHID      string    `db:"uhid" json:"uhid"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Doctor struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Specialty string    `db:"specialty" json:"specialty,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Hospital struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Membership links a doctor to a hospital. It is itself a grant the hospital
// decides: pending until approved or rejected, and only approved memberships
// count toward hospital-path access.
type Membership struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	HospitalID uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DecidedAt  *time.Time `db:"decided_at" json:"decided_at,omitempty"`
}
