package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhealthchain/api/internal/platform/db"
)

type grantRepoPG struct{ pool *pgxpool.Pool }

func NewGrantRepoPG(pool *pgxpool.Pool) GrantRepository {
	return &grantRepoPG{pool: pool}
}

const grantCols = `id, kind, patient_id, grantee_id, hospital_id, access_type,
	reason, ttl_hours, status, created_at, approved_at, expires_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.Kind, &g.PatientID, &g.GranteeID, &g.HospitalID,
		&g.AccessType, &g.Reason, &g.TTLHours, &g.Status,
		&g.CreatedAt, &g.ApprovedAt, &g.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &g, err
}

func (r *grantRepoPG) Create(ctx context.Context, g *Grant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.Status = StatusPending
	_, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO grant_ledger (id, kind, patient_id, grantee_id, hospital_id,
			access_type, reason, ttl_hours, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.Kind, g.PatientID, g.GranteeID, g.HospitalID,
		g.AccessType, g.Reason, g.TTLHours, g.Status)
	return err
}

func (r *grantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	return scanGrant(db.QuerierFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+grantCols+` FROM grant_ledger WHERE id = $1`, id))
}

func (r *grantRepoPG) HasActive(ctx context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (bool, error) {
	var exists bool
	err := db.QuerierFor(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM grant_ledger
			WHERE patient_id = $1 AND grantee_id = $2 AND kind = $3
			  AND (status = 'pending'
			       OR (status = 'approved' AND (expires_at IS NULL OR expires_at > $4)))
		)`, patientID, granteeID, kind, now).Scan(&exists)
	return exists, err
}

func (r *grantRepoPG) FindActive(ctx context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (*Grant, error) {
	return scanGrant(db.QuerierFor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+grantCols+` FROM grant_ledger
		WHERE patient_id = $1 AND grantee_id = $2 AND kind = $3
		  AND status = 'approved'
		  AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY approved_at DESC
		LIMIT 1`, patientID, granteeID, kind, now))
}

func (r *grantRepoPG) FindActiveDelegations(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) ([]*Grant, error) {
	rows, err := db.QuerierFor(ctx, r.pool).Query(ctx, `
		SELECT `+grantCols+` FROM grant_ledger
		WHERE patient_id = $1 AND grantee_id = $2 AND kind = 'delegated'
		  AND status = 'approved'
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY approved_at DESC`, patientID, doctorID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

func (r *grantRepoPG) ApproveIfPending(ctx context.Context, id uuid.UUID, approvedAt, expiresAt time.Time) (bool, error) {
	tag, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		UPDATE grant_ledger
		SET status = 'approved', approved_at = $2, expires_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, approvedAt, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *grantRepoPG) RejectIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		UPDATE grant_ledger
		SET status = 'rejected'
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *grantRepoPG) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		UPDATE grant_ledger
		SET status = 'expired'
		WHERE status = 'approved' AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *grantRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Grant, int, error) {
	return r.list(ctx, `patient_id`, patientID, limit, offset)
}

func (r *grantRepoPG) ListByGrantee(ctx context.Context, granteeID uuid.UUID, limit, offset int) ([]*Grant, int, error) {
	return r.list(ctx, `grantee_id`, granteeID, limit, offset)
}

func (r *grantRepoPG) list(ctx context.Context, col string, id uuid.UUID, limit, offset int) ([]*Grant, int, error) {
	q := db.QuerierFor(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM grant_ledger WHERE `+col+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx,
		`SELECT `+grantCols+` FROM grant_ledger WHERE `+col+` = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, g)
	}
	return items, total, rows.Err()
}
