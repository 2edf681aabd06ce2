package records

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhealthchain/api/internal/platform/db"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, patient_id, title, content_addr, content_hash, nonce,
	created_by, created_at, deleted_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.PatientID, &r.Title, &r.ContentAddr,
		&r.ContentHash, &r.Nonce, &r.CreatedBy, &r.CreatedAt, &r.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO record (id, patient_id, title, content_addr, content_hash,
			nonce, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.PatientID, rec.Title, rec.ContentAddr, rec.ContentHash,
		rec.Nonce, rec.CreatedBy)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(db.QuerierFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM record WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	q := db.QuerierFor(ctx, r.pool)
	var total int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM record WHERE patient_id = $1 AND deleted_at IS NULL`,
		patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx,
		`SELECT `+recordCols+` FROM record
		 WHERE patient_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *recordRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.QuerierFor(ctx, r.pool).Exec(ctx, `
		UPDATE record SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
