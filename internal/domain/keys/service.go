package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/myhealthchain/api/internal/audit"
	"github.com/myhealthchain/api/internal/platform/crypto"
	"github.com/myhealthchain/api/internal/platform/db"
)

// Manager implements the PIN lifecycle: NoPin -> PinSet -> PinSet. There is
// deliberately no clear-PIN operation; without the PIN the wrapped DEK is
// unrecoverable, so clearing would silently destroy every record.
type Manager struct {
	repo    KeyRepository
	auditor audit.Recorder
	tx      db.TxRunner
	params  crypto.Argon2Params
	limiter *attemptLimiter

	// sem bounds concurrent argon2 derivations; each one pins p.Memory KiB
	// for its duration.
	sem chan struct{}
}

func NewManager(repo KeyRepository, auditor audit.Recorder, tx db.TxRunner, params crypto.Argon2Params, maxConcurrent, attemptLimit int, attemptWindow time.Duration) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		repo:    repo,
		auditor: auditor,
		tx:      tx,
		params:  params,
		limiter: newAttemptLimiter(attemptLimit, attemptWindow),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// acquire blocks until a derivation slot is free or ctx is done.
func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.sem }

// SetPIN derives fresh key material for the patient: a new salt, a new
// argon2id verifier, a new random DEK, and the DEK wrapped under the
// PIN-derived key. Re-setting overwrites; records encrypted under the old
// DEK remain decryptable only if the DEK is re-wrapped by a higher-level
// flow, which is out of scope here — callers set the PIN before uploading.
func (m *Manager) SetPIN(ctx context.Context, actorRole string, patientID uuid.UUID, pin string) error {
	if !ValidPIN(pin) {
		return ErrInvalidPIN
	}

	if err := m.acquire(ctx); err != nil {
		return err
	}
	salt, err := crypto.GenerateSalt(m.params.SaltLength)
	if err != nil {
		m.release()
		return err
	}
	verifier := crypto.HashSecret(pin, salt, m.params)
	wrapKey := crypto.DeriveKey(pin, salt, m.params)
	m.release()

	dek, err := crypto.GenerateDEK()
	if err != nil {
		return err
	}
	cipher, err := crypto.NewCipher(wrapKey)
	if err != nil {
		return err
	}
	wrapped, err := cipher.SealCompact(dek)
	if err != nil {
		return err
	}

	k := &PatientKey{PatientID: patientID, Verifier: verifier, WrappedDEK: wrapped}
	return m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := m.repo.Upsert(ctx, k); err != nil {
			return fmt.Errorf("storing key material: %w", err)
		}
		return m.auditor.Record(ctx, &audit.Entry{
			ActorID:      patientID,
			ActorRole:    actorRole,
			Action:       audit.ActionPinSet,
			ResourceType: "patient_key",
			ResourceID:   patientID,
			Origin:       audit.OriginFromContext(ctx),
		})
	})
}

// VerifyAndUnwrap checks the PIN against the stored verifier in constant
// time and, on success, unwraps and returns the DEK. The DEK lives only in
// the caller's memory for the duration of the request. Failed attempts feed
// a per-patient sliding window; once it fills, verification returns
// ErrRateLimited until the window slides, regardless of which caller asks.
func (m *Manager) VerifyAndUnwrap(ctx context.Context, patientID uuid.UUID, pin string) ([]byte, error) {
	if !ValidPIN(pin) {
		return nil, ErrInvalidPIN
	}
	if m.limiter.blocked(patientID) {
		return nil, ErrRateLimited
	}

	k, err := m.repo.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	ok, err := crypto.VerifySecret(pin, k.Verifier)
	if err != nil {
		return nil, fmt.Errorf("verifying PIN: %w", err)
	}
	if !ok {
		m.limiter.recordFailure(patientID)
		return nil, ErrWrongPIN
	}
	m.limiter.reset(patientID)

	params, salt, err := crypto.DecodeVerifier(k.Verifier)
	if err != nil {
		return nil, fmt.Errorf("decoding verifier: %w", err)
	}
	wrapKey := crypto.DeriveKey(pin, salt, params)

	cipher, err := crypto.NewCipher(wrapKey)
	if err != nil {
		return nil, err
	}
	dek, err := cipher.OpenCompact(k.WrappedDEK)
	if err != nil {
		return nil, fmt.Errorf("unwrapping DEK: %w", err)
	}
	return dek, nil
}

// HasPIN reports whether the patient has key material.
func (m *Manager) HasPIN(ctx context.Context, patientID uuid.UUID) (bool, error) {
	_, err := m.repo.Get(ctx, patientID)
	if errors.Is(err, ErrNoPIN) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
