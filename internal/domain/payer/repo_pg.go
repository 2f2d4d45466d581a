package payer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StorePG is a Postgres-backed ProfileLookup for deployments that
// manage payer profiles outside the built-in registry.
type StorePG struct{ pool *pgxpool.Pool }

// NewStorePG creates a pg-backed profile store.
func NewStorePG(pool *pgxpool.Pool) *StorePG { return &StorePG{pool: pool} }

const profileCols = `id, name, category, allows_name_only, supports_member_id,
	requires_gender, rejects_service_date, service_date_range, service_type_codes`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var category string
	err := row.Scan(&p.ID, &p.Name, &category, &p.AllowsNameOnly, &p.SupportsMemberID,
		&p.RequiresGender, &p.RejectsServiceDate, &p.ServiceDateRange, &p.ServiceTypeCodes)
	if err != nil {
		return nil, err
	}
	p.Category = Category(category)
	return &p, nil
}

// Profile implements ProfileLookup.
func (s *StorePG) Profile(ctx context.Context, id string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileCols+` FROM payer_profiles WHERE upper(id) = $1`,
		strings.ToUpper(strings.TrimSpace(id)))
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("payer: get profile: %w", err)
	}
	return p, nil
}

// List implements ProfileLookup.
func (s *StorePG) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileCols+` FROM payer_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("payer: list profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("payer: scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert inserts or updates one profile.
func (s *StorePG) Upsert(ctx context.Context, p *Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payer_profiles (`+profileCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			allows_name_only = EXCLUDED.allows_name_only,
			supports_member_id = EXCLUDED.supports_member_id,
			requires_gender = EXCLUDED.requires_gender,
			rejects_service_date = EXCLUDED.rejects_service_date,
			service_date_range = EXCLUDED.service_date_range,
			service_type_codes = EXCLUDED.service_type_codes`,
		p.ID, p.Name, string(p.Category), p.AllowsNameOnly, p.SupportsMemberID,
		p.RequiresGender, p.RejectsServiceDate, p.ServiceDateRange, p.ServiceTypeCodes)
	if err != nil {
		return fmt.Errorf("payer: upsert profile: %w", err)
	}
	return nil
}
