package clinicorp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs; satisfied by pgxmock
// in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ClinicCredentialRow mirrors the clinicorp columns embedded on a clinics row.
type ClinicCredentialRow struct {
	ClinicID     string
	APIUser      string
	APIToken     string
	SubscriberID string
	BaseURL      string
	Enabled      bool
}

// StoredCredentials is a row of the dedicated clinicorp_credentials table.
type StoredCredentials struct {
	APIUser      string
	APIToken     string
	SubscriberID string
	BaseURL      string
}

// IntegrationRow is a row of the legacy clinic_integrations table; values may
// be encrypted at rest.
type IntegrationRow struct {
	APIUser    string
	APIToken   string
	OnlineSlug string
}

// IntegrationRecord is the payload for the save-credentials upsert. Values
// must already be encrypted by the caller.
type IntegrationRecord struct {
	UserID     string
	ClinicID   string
	Provider   string
	APIUser    string
	APIToken   string
	OnlineSlug string
}

// CredentialStore abstracts credential storage for the resolver and the
// save-credentials action.
type CredentialStore interface {
	EnabledClinicByID(ctx context.Context, clinicID string) (*ClinicCredentialRow, error)
	EnabledClinicByOwner(ctx context.Context, userID string) (*ClinicCredentialRow, error)
	ActiveCredentialsByUser(ctx context.Context, userID string) (*StoredCredentials, error)
	IntegrationByClinic(ctx context.Context, provider, clinicID string) (*IntegrationRow, error)
	IntegrationByUser(ctx context.Context, provider, userID string) (*IntegrationRow, error)
	ClinicSlug(ctx context.Context, clinicID string) (string, error)
	ClinicIDByOwner(ctx context.Context, userID string) (string, error)
	UpsertIntegration(ctx context.Context, rec IntegrationRecord) error
}

// Store is the pgx-backed CredentialStore.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const clinicCredentialColumns = `id, clinicorp_api_user, clinicorp_api_token, clinicorp_subscriber_id, clinicorp_base_url, clinicorp_enabled`

func (s *Store) EnabledClinicByID(ctx context.Context, clinicID string) (*ClinicCredentialRow, error) {
	query := `SELECT ` + clinicCredentialColumns + `
		FROM clinics
		WHERE id = $1 AND clinicorp_enabled = true`
	return s.scanClinicCredential(s.pool.QueryRow(ctx, query, clinicID))
}

func (s *Store) EnabledClinicByOwner(ctx context.Context, userID string) (*ClinicCredentialRow, error) {
	query := `SELECT ` + clinicCredentialColumns + `
		FROM clinics
		WHERE owner_id = $1 AND clinicorp_enabled = true
		LIMIT 1`
	return s.scanClinicCredential(s.pool.QueryRow(ctx, query, userID))
}

func (s *Store) scanClinicCredential(row pgx.Row) (*ClinicCredentialRow, error) {
	var rec ClinicCredentialRow
	var apiUser, apiToken, subscriberID, baseURL *string
	err := row.Scan(&rec.ClinicID, &apiUser, &apiToken, &subscriberID, &baseURL, &rec.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinicorp: load clinic credentials: %w", err)
	}
	rec.APIUser = deref(apiUser)
	rec.APIToken = deref(apiToken)
	rec.SubscriberID = deref(subscriberID)
	rec.BaseURL = deref(baseURL)
	return &rec, nil
}

func (s *Store) ActiveCredentialsByUser(ctx context.Context, userID string) (*StoredCredentials, error) {
	query := `SELECT api_user, api_token, subscriber_id, base_url
		FROM clinicorp_credentials
		WHERE user_id = $1 AND is_active = true
		LIMIT 1`
	var rec StoredCredentials
	var apiUser, apiToken, subscriberID, baseURL *string
	err := s.pool.QueryRow(ctx, query, userID).Scan(&apiUser, &apiToken, &subscriberID, &baseURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinicorp: load active credentials: %w", err)
	}
	rec.APIUser = deref(apiUser)
	rec.APIToken = deref(apiToken)
	rec.SubscriberID = deref(subscriberID)
	rec.BaseURL = deref(baseURL)
	return &rec, nil
}

func (s *Store) IntegrationByClinic(ctx context.Context, provider, clinicID string) (*IntegrationRow, error) {
	query := `SELECT api_user, api_token, online_slug
		FROM clinic_integrations
		WHERE provider = $1 AND clinic_id = $2
		LIMIT 1`
	return s.scanIntegration(s.pool.QueryRow(ctx, query, provider, clinicID))
}

func (s *Store) IntegrationByUser(ctx context.Context, provider, userID string) (*IntegrationRow, error) {
	query := `SELECT api_user, api_token, online_slug
		FROM clinic_integrations
		WHERE provider = $1 AND user_id = $2
		LIMIT 1`
	return s.scanIntegration(s.pool.QueryRow(ctx, query, provider, userID))
}

func (s *Store) scanIntegration(row pgx.Row) (*IntegrationRow, error) {
	var rec IntegrationRow
	var apiUser, apiToken, onlineSlug *string
	err := row.Scan(&apiUser, &apiToken, &onlineSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinicorp: load integration: %w", err)
	}
	rec.APIUser = deref(apiUser)
	rec.APIToken = deref(apiToken)
	rec.OnlineSlug = deref(onlineSlug)
	return &rec, nil
}

// ClinicSlug returns the clinic's API user column, which doubles as the
// online booking slug for legacy rows.
func (s *Store) ClinicSlug(ctx context.Context, clinicID string) (string, error) {
	query := `SELECT clinicorp_api_user FROM clinics WHERE id = $1`
	var slug *string
	err := s.pool.QueryRow(ctx, query, clinicID).Scan(&slug)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("clinicorp: load clinic slug: %w", err)
	}
	return deref(slug), nil
}

func (s *Store) ClinicIDByOwner(ctx context.Context, userID string) (string, error) {
	query := `SELECT id FROM clinics WHERE owner_id = $1 LIMIT 1`
	var id string
	err := s.pool.QueryRow(ctx, query, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("clinicorp: lookup clinic by owner: %w", err)
	}
	return id, nil
}

func (s *Store) UpsertIntegration(ctx context.Context, rec IntegrationRecord) error {
	query := `
		INSERT INTO clinic_integrations (id, user_id, clinic_id, provider, api_user, api_token, online_slug)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (user_id, provider)
		DO UPDATE SET clinic_id = EXCLUDED.clinic_id,
			api_user = EXCLUDED.api_user,
			api_token = EXCLUDED.api_token,
			online_slug = EXCLUDED.online_slug,
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query, uuid.NewString(), rec.UserID, rec.ClinicID, rec.Provider, rec.APIUser, rec.APIToken, rec.OnlineSlug)
	if err != nil {
		return fmt.Errorf("clinicorp: upsert integration: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
