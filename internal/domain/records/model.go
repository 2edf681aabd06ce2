// Package records is the gateway between authenticated actors and encrypted
// patient records. Every read and write passes through the access evaluator
// and a fresh PIN verification; plaintext exists only inside the request
// that proved authority to see it.
package records

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrAccessDenied is the only thing a caller learns on a failed gate:
	// not whether the patient exists, nor whether a grant expired or never
	// was.
	ErrAccessDenied = errors.New("access denied")

	// ErrRateLimited is returned when a patient's PIN has been guessed
	// wrong too often in the window.
	ErrRateLimited = errors.New("too many pin attempts, try again later")

	ErrEmptyContent = errors.New("record content is empty")
	ErrTitleTooLong = errors.New("title exceeds 200 characters")
)

const maxTitleLen = 200

// Record is the metadata row for one encrypted document. The ciphertext
// itself lives in the blob store under ContentAddr; ContentHash is the
// sha256 of the ciphertext and is re-checked on every read. Rows are
// immutable except for the soft-delete timestamp.
type Record struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Title       string     `db:"title" json:"title"`
	ContentAddr string     `db:"content_addr" json:"-"`
	ContentHash string     `db:"content_hash" json:"content_hash"`
	Nonce       []byte     `db:"nonce" json:"-"`
	CreatedBy   uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
}
