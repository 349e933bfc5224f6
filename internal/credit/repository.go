package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no credit request matches the lookup.
var ErrNotFound = errors.New("credit request not found")

// PgxPool is the subset of pgxpool.Pool the repository needs; satisfied by
// pgxmock in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository abstracts credit request persistence.
type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	ListByPatient(ctx context.Context, patientID string) ([]Request, error)
	ListByClinic(ctx context.Context, clinicID string) ([]Request, error)
	UpdateStatus(ctx context.Context, id string, status Status, note string) error
}

// PgRepository is the pgx-backed Repository.
type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const requestColumns = `id, patient_id, clinic_id, amount_cents, installments,
       patient_name, COALESCE(patient_cpf, ''), status, COALESCE(decision_note, ''),
       created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = StatusDraft
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO credit_requests
		 (id, patient_id, clinic_id, amount_cents, installments, patient_name,
		  patient_cpf, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		req.ID, req.PatientID, req.ClinicID, req.AmountCents, req.Installments,
		req.PatientName, req.PatientCPF, req.Status)
	if err != nil {
		return fmt.Errorf("create credit request: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM credit_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID string) ([]Request, error) {
	return r.list(ctx,
		`SELECT `+requestColumns+` FROM credit_requests WHERE patient_id = $1 ORDER BY created_at DESC`,
		patientID)
}

func (r *PgRepository) ListByClinic(ctx context.Context, clinicID string) ([]Request, error) {
	return r.list(ctx,
		`SELECT `+requestColumns+` FROM credit_requests WHERE clinic_id = $1 ORDER BY created_at DESC`,
		clinicID)
}

func (r *PgRepository) list(ctx context.Context, query string, arg any) ([]Request, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list credit requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id string, status Status, note string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE credit_requests SET status = $2, decision_note = $3, updated_at = NOW() WHERE id = $1`,
		id, status, note)
	if err != nil {
		return fmt.Errorf("update credit request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.PatientID, &req.ClinicID, &req.AmountCents,
		&req.Installments, &req.PatientName, &req.PatientCPF, &req.Status,
		&req.DecisionNote, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
