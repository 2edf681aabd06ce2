package keys

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhealthchain/api/internal/platform/db"
)

type keyRepoPG struct{ pool *pgxpool.Pool }

func NewKeyRepoPG(pool *pgxpool.Pool) KeyRepository {
	return &keyRepoPG{pool: pool}
}

func (r *keyRepoPG) Upsert(ctx context.Context, k *PatientKey) error {
	_, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient_key (patient_id, verifier, wrapped_dek, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (patient_id)
		DO UPDATE SET verifier = EXCLUDED.verifier,
			wrapped_dek = EXCLUDED.wrapped_dek,
			updated_at = NOW()`,
		k.PatientID, k.Verifier, k.WrappedDEK)
	return err
}

func (r *keyRepoPG) Get(ctx context.Context, patientID uuid.UUID) (*PatientKey, error) {
	var k PatientKey
	err := db.QuerierFor(ctx, r.pool).QueryRow(ctx, `
		SELECT patient_id, verifier, wrapped_dek, updated_at
		FROM patient_key WHERE patient_id = $1`, patientID).
		Scan(&k.PatientID, &k.Verifier, &k.WrappedDEK, &k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPIN
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}
