package eligibility

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed check repository.
func NewRepoPG(pool *pgxpool.Pool) CheckRepository { return &repoPG{pool: pool} }

const checkCols = `id, payer_id, payer_name, patient_first, patient_last,
	member_id_sent, control_number, payload_id, outcome, plan_type,
	raw_270, raw_271, warnings, checked_at`

func scanCheck(row pgx.Row) (*CheckRecord, error) {
	var rec CheckRecord
	err := row.Scan(&rec.ID, &rec.PayerID, &rec.PayerName, &rec.PatientFirst, &rec.PatientLast,
		&rec.MemberIDSent, &rec.ControlNumber, &rec.PayloadID, &rec.Outcome, &rec.PlanType,
		&rec.Raw270, &rec.Raw271, &rec.WarningsJSON, &rec.CheckedAt)
	return &rec, err
}

func (r *repoPG) Create(ctx context.Context, rec *CheckRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO eligibility_checks (`+checkCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.PayerID, rec.PayerName, rec.PatientFirst, rec.PatientLast,
		rec.MemberIDSent, rec.ControlNumber, rec.PayloadID, rec.Outcome, rec.PlanType,
		rec.Raw270, rec.Raw271, rec.WarningsJSON, rec.CheckedAt)
	if err != nil {
		return fmt.Errorf("eligibility: insert check: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CheckRecord, error) {
	rec, err := scanCheck(r.pool.QueryRow(ctx,
		`SELECT `+checkCols+` FROM eligibility_checks WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("eligibility: get check: %w", err)
	}
	return rec, nil
}

func (r *repoPG) List(ctx context.Context, payerID string, limit, offset int) ([]*CheckRecord, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM eligibility_checks
		WHERE ($1 = '' OR payer_id = $1)`, payerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("eligibility: count checks: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+checkCols+` FROM eligibility_checks
		WHERE ($1 = '' OR payer_id = $1)
		ORDER BY checked_at DESC
		LIMIT $2 OFFSET $3`, payerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("eligibility: list checks: %w", err)
	}
	defer rows.Close()

	var out []*CheckRecord
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("eligibility: scan check: %w", err)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
