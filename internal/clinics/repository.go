package clinics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no clinic matches the lookup.
var ErrNotFound = errors.New("clinic not found")

// PgxPool is the subset of pgxpool.Pool the repository needs; satisfied by
// pgxmock in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository abstracts clinic persistence for the handler and the booking
// service.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Clinic, error)
	GetBySlug(ctx context.Context, slug string) (*Clinic, error)
	List(ctx context.Context, city, state string) ([]Clinic, error)
	Create(ctx context.Context, c *Clinic) error
	Update(ctx context.Context, c *Clinic) error
	SetIntegration(ctx context.Context, clinicID, subscriberID, onlineSlug string, enabled bool) error
}

// PgRepository is the pgx-backed Repository.
type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const clinicColumns = `id, owner_id, name, slug, city, state, phone, specialties,
       COALESCE(clinicorp_enabled, FALSE), COALESCE(clinicorp_subscriber_id, ''),
       COALESCE(online_slug, ''), created_at, updated_at`

func (r *PgRepository) GetByID(ctx context.Context, id string) (*Clinic, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
	return scanClinic(row)
}

func (r *PgRepository) GetBySlug(ctx context.Context, slug string) (*Clinic, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE slug = $1`, slug)
	return scanClinic(row)
}

func (r *PgRepository) List(ctx context.Context, city, state string) ([]Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics`
	var (
		conds []string
		args  []any
	)
	if city != "" {
		args = append(args, city)
		conds = append(conds, fmt.Sprintf("LOWER(city) = LOWER($%d)", len(args)))
	}
	if state != "" {
		args = append(args, state)
		conds = append(conds, fmt.Sprintf("LOWER(state) = LOWER($%d)", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	defer rows.Close()

	var out []Clinic
	for rows.Next() {
		c, err := scanClinicRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PgRepository) Create(ctx context.Context, c *Clinic) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO clinics (id, owner_id, name, slug, city, state, phone, specialties, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		c.ID, c.OwnerID, c.Name, c.Slug, c.City, c.State, c.Phone, c.Specialties)
	if err != nil {
		return fmt.Errorf("create clinic: %w", err)
	}
	return nil
}

func (r *PgRepository) Update(ctx context.Context, c *Clinic) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clinics
		 SET name = $2, city = $3, state = $4, phone = $5, specialties = $6, updated_at = NOW()
		 WHERE id = $1`,
		c.ID, c.Name, c.City, c.State, c.Phone, c.Specialties)
	if err != nil {
		return fmt.Errorf("update clinic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) SetIntegration(ctx context.Context, clinicID, subscriberID, onlineSlug string, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clinics
		 SET clinicorp_enabled = $2, clinicorp_subscriber_id = $3, online_slug = $4, updated_at = NOW()
		 WHERE id = $1`,
		clinicID, enabled, subscriberID, onlineSlug)
	if err != nil {
		return fmt.Errorf("set clinic integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	c, err := scanClinicRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanClinicRow(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Slug, &c.City, &c.State, &c.Phone,
		&c.Specialties, &c.ClinicorpEnabled, &c.ClinicorpSubscriberID, &c.OnlineSlug,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
