package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

type StageRepository struct {
	db *sql.DB
}

func NewStageRepository(db *sql.DB) *StageRepository {
	return &StageRepository{db: db}
}

const stageColumns = `id, vin, make, model, regno, dereg_date, status, last_error, external_id, source_file, staged_at, updated_at`

// FindByVIN ambil satu staged record by VIN, nil kalau belum pernah di-stage
func (r *StageRepository) FindByVIN(ctx context.Context, vin string) (*domain.StagedRecord, error) {
	const q = `
SELECT ` + stageColumns + `
FROM staged_vins
WHERE vin = ? LIMIT 1;`

	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, vin))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Insert staged record baru
func (r *StageRepository) Insert(ctx context.Context, rec *domain.StagedRecord) error {
	const q = `
INSERT INTO staged_vins
(` + stageColumns + `)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.VIN, rec.Make, rec.Model, rec.Regno, rec.DeregDate,
		rec.Status, nullIfEmpty(rec.LastError), nullIfEmpty(rec.ExternalID),
		rec.SourceFile, rec.StagedAt, rec.UpdatedAt,
	)
	return err
}

// Update mutable columns of an existing staged record, keyed by id.
func (r *StageRepository) Update(ctx context.Context, rec *domain.StagedRecord) error {
	const q = `
UPDATE staged_vins
SET model = ?,
    regno = ?,
    dereg_date = ?,
    status = ?,
    last_error = ?,
    external_id = ?,
    source_file = ?,
    updated_at = ?
WHERE id = ?;`

	_, err := r.db.ExecContext(ctx, q,
		rec.Model, rec.Regno, rec.DeregDate,
		rec.Status, nullIfEmpty(rec.LastError), nullIfEmpty(rec.ExternalID),
		rec.SourceFile, rec.UpdatedAt, rec.ID,
	)
	return err
}

// SelectPending returns pending records staged at or before cutoff,
// oldest first so repeated runs over a backlog converge.
func (r *StageRepository) SelectPending(ctx context.Context, cutoff time.Time) ([]*domain.StagedRecord, error) {
	const q = `
SELECT ` + stageColumns + `
FROM staged_vins
WHERE status = ? AND staged_at <= ?
ORDER BY staged_at ASC, id ASC;`

	rows, err := r.db.QueryContext(ctx, q, domain.StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StagedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.StagedRecord, error) {
	var rec domain.StagedRecord
	var lastErr, externalID sql.NullString
	if err := row.Scan(
		&rec.ID, &rec.VIN, &rec.Make, &rec.Model, &rec.Regno, &rec.DeregDate,
		&rec.Status, &lastErr, &externalID, &rec.SourceFile,
		&rec.StagedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.LastError = lastErr.String
	rec.ExternalID = externalID.String
	return &rec, nil
}
