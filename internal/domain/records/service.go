package records

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/myhealthchain/api/internal/audit"
	"github.com/myhealthchain/api/internal/domain/access"
	"github.com/myhealthchain/api/internal/domain/consent"
	"github.com/myhealthchain/api/internal/domain/keys"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/internal/platform/blobstore"
	"github.com/myhealthchain/api/internal/platform/crypto"
	"github.com/myhealthchain/api/internal/platform/db"
)

// Evaluator is the access decision the gateway gates on.
type Evaluator interface {
	Evaluate(ctx context.Context, actor auth.Actor, patientID uuid.UUID, required string) (access.Decision, error)
}

// KeyManager unwraps the patient's data key from a freshly presented PIN.
type KeyManager interface {
	VerifyAndUnwrap(ctx context.Context, patientID uuid.UUID, pin string) ([]byte, error)
}

// Gateway is the single path to record plaintext. The DEK it unwraps lives
// only on the stack of the request that proved authority, and is zeroed
// before return.
type Gateway struct {
	records RecordRepository
	blobs   blobstore.Store
	eval    Evaluator
	keys    KeyManager
	auditor audit.Recorder
	tx      db.TxRunner
}

func NewGateway(
	records RecordRepository,
	blobs blobstore.Store,
	eval Evaluator,
	keys KeyManager,
	auditor audit.Recorder,
	tx db.TxRunner,
) *Gateway {
	return &Gateway{
		records: records,
		blobs:   blobs,
		eval:    eval,
		keys:    keys,
		auditor: auditor,
		tx:      tx,
	}
}

// ReadRecord returns the decrypted content of one record. An unknown record
// id and a missing grant produce the same ErrAccessDenied; the denial is
// itself audited. The key manager enforces the per-patient attempt window
// before any key derivation runs.
func (g *Gateway) ReadRecord(ctx context.Context, actor auth.Actor, recordID uuid.UUID, pin string) ([]byte, *Record, error) {
	rec, err := g.records.GetByID(ctx, recordID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, g.deny(ctx, actor, recordID)
	}
	if err != nil {
		return nil, nil, err
	}

	d, err := g.eval.Evaluate(ctx, actor, rec.PatientID, consent.AccessRead)
	if err != nil {
		return nil, nil, err
	}
	if !d.Allowed {
		return nil, nil, g.deny(ctx, actor, recordID)
	}

	plaintext, err := g.unwrapAndOpen(ctx, rec, pin)
	if err != nil {
		return nil, nil, err
	}

	err = g.auditor.Record(ctx, &audit.Entry{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		Action:       audit.ActionRecordRead,
		ResourceType: "record",
		ResourceID:   rec.ID,
		Metadata: map[string]string{
			"patient_id": rec.PatientID.String(),
			"mode":       d.Mode,
		},
		Origin: audit.OriginFromContext(ctx),
	})
	if err != nil {
		return nil, nil, err
	}
	return plaintext, rec, nil
}

func (g *Gateway) unwrapAndOpen(ctx context.Context, rec *Record, pin string) ([]byte, error) {
	dek, err := g.verifyPIN(ctx, rec.PatientID, pin)
	if err != nil {
		return nil, err
	}
	defer zero(dek)

	ciphertext, err := g.blobs.Get(ctx, rec.ContentAddr)
	if err != nil {
		return nil, err
	}
	// The store is content-addressed, but the hash in the record row is the
	// authority: a swapped blob fails here before decryption is attempted.
	if blobstore.Address(ciphertext) != rec.ContentHash {
		return nil, crypto.ErrCiphertextTampered
	}

	cipher, err := crypto.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	return cipher.Open(ciphertext, rec.Nonce)
}

// WriteRecord encrypts content under the patient's DEK with a fresh nonce
// and stores ciphertext, metadata, and the audit entry atomically.
func (g *Gateway) WriteRecord(ctx context.Context, actor auth.Actor, patientID uuid.UUID, title string, content []byte, pin string) (*Record, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, ErrTitleTooLong
	}

	d, err := g.eval.Evaluate(ctx, actor, patientID, consent.AccessReadWrite)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, g.deny(ctx, actor, patientID)
	}

	dek, err := g.verifyPIN(ctx, patientID, pin)
	if err != nil {
		return nil, err
	}
	defer zero(dek)

	cipher, err := crypto.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := cipher.Seal(content)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		PatientID:   patientID,
		Title:       title,
		ContentHash: blobstore.Address(ciphertext),
		Nonce:       nonce,
		CreatedBy:   actor.ID,
	}

	err = g.tx.RunInTx(ctx, func(ctx context.Context) error {
		addr, err := g.blobs.Put(ctx, ciphertext)
		if err != nil {
			return err
		}
		rec.ContentAddr = addr
		if err := g.records.Create(ctx, rec); err != nil {
			return err
		}
		return g.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       audit.ActionRecordCreated,
			ResourceType: "record",
			ResourceID:   rec.ID,
			Metadata: map[string]string{
				"patient_id": patientID.String(),
				"mode":       d.Mode,
			},
			Origin: audit.OriginFromContext(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords returns record metadata only; no ciphertext is touched and no
// PIN is required.
func (g *Gateway) ListRecords(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	d, err := g.eval.Evaluate(ctx, actor, patientID, consent.AccessRead)
	if err != nil {
		return nil, 0, err
	}
	if !d.Allowed {
		return nil, 0, g.deny(ctx, actor, patientID)
	}
	return g.records.ListByPatient(ctx, patientID, limit, offset)
}

// DeleteRecord soft-deletes. Only the subject patient may delete their own
// record; the ciphertext blob stays in place for the audit trail.
func (g *Gateway) DeleteRecord(ctx context.Context, actor auth.Actor, recordID uuid.UUID) error {
	rec, err := g.records.GetByID(ctx, recordID)
	if errors.Is(err, ErrNotFound) {
		return g.deny(ctx, actor, recordID)
	}
	if err != nil {
		return err
	}
	if actor.Role != auth.RolePatient || actor.ID != rec.PatientID {
		return g.deny(ctx, actor, recordID)
	}

	return g.tx.RunInTx(ctx, func(ctx context.Context) error {
		deleted, err := g.records.SoftDelete(ctx, recordID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return g.auditor.Record(ctx, &audit.Entry{
			ActorID:      actor.ID,
			ActorRole:    actor.Role,
			Action:       audit.ActionRecordDeleted,
			ResourceType: "record",
			ResourceID:   recordID,
			Origin:       audit.OriginFromContext(ctx),
		})
	})
}

// verifyPIN delegates to the key manager, which owns the per-patient
// attempt window shared by every verification path.
func (g *Gateway) verifyPIN(ctx context.Context, patientID uuid.UUID, pin string) ([]byte, error) {
	dek, err := g.keys.VerifyAndUnwrap(ctx, patientID, pin)
	if errors.Is(err, keys.ErrRateLimited) {
		return nil, ErrRateLimited
	}
	if err != nil {
		return nil, err
	}
	return dek, nil
}

// deny audits the denied attempt and returns the uniform error. The audit
// entry names the resource the actor asked for; the caller learns nothing.
func (g *Gateway) deny(ctx context.Context, actor auth.Actor, resourceID uuid.UUID) error {
	_ = g.auditor.Record(ctx, &audit.Entry{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		Action:       audit.ActionAccessDenied,
		ResourceType: "record",
		ResourceID:   resourceID,
		Origin:       audit.OriginFromContext(ctx),
	})
	return ErrAccessDenied
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
