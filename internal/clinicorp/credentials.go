package clinicorp

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// ProviderName keys stored integrations.
const ProviderName = "clinicorp"

// Resolver produces upstream credentials for a caller. Resolution order,
// first match wins: inline credentials, the clinics row (integration
// enabled), the dedicated credentials table, the legacy integrations table.
type Resolver struct {
	store          CredentialStore
	box            *SecretBox
	defaultBaseURL string
	logger         *logging.Logger
}

func NewResolver(store CredentialStore, box *SecretBox, defaultBaseURL string, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, box: box, defaultBaseURL: defaultBaseURL, logger: logger}
}

// Resolve determines the upstream identity for req on behalf of userID. The
// second return names the source that yielded the credentials, for metrics.
func (r *Resolver) Resolve(ctx context.Context, req Request, userID string) (Credentials, string, *Error) {
	creds := Credentials{BaseURL: r.defaultBaseURL}

	// 1. Inline credentials bypass storage entirely.
	if ic := req.Credentials; ic != nil && ic.APIUser != "" && ic.APIToken != "" {
		creds.APIUser = ic.APIUser
		creds.APIToken = ic.APIToken
		creds.SubscriberID = ic.SubscriberID
		if ic.BaseURL != "" {
			creds.BaseURL = ic.BaseURL
		}
		return creds, "inline", nil
	}

	var source string
	if r.store != nil {
		source = r.resolveFromStorage(ctx, req, userID, &creds)
	}

	if creds.APIUser == "" || creds.APIToken == "" {
		return Credentials{}, "", NewError(CodeCredentialsMissing, 400,
			"Clinicorp credentials not found. Please provide credentials in request body or configure them first.")
	}

	// The online slug can live on the clinic row even when credentials came
	// from elsewhere. Its absence is not fatal here; endpoint rules that need
	// it fail with their own validation errors.
	if creds.OnlineSlug == "" && req.ClinicID != "" && r.store != nil {
		if slug, err := r.store.ClinicSlug(ctx, req.ClinicID); err != nil {
			r.logger.Warn("online slug fallback lookup failed", "clinic_id", req.ClinicID, "error", err)
		} else {
			creds.OnlineSlug = slug
		}
	}

	return creds, source, nil
}

func (r *Resolver) resolveFromStorage(ctx context.Context, req Request, userID string, creds *Credentials) string {
	// 2. Clinic row, by clinic id when given, else by the caller's ownership.
	var clinic *ClinicCredentialRow
	var err error
	if req.ClinicID != "" {
		clinic, err = r.store.EnabledClinicByID(ctx, req.ClinicID)
	} else if userID != "" {
		clinic, err = r.store.EnabledClinicByOwner(ctx, userID)
	}
	if err != nil {
		r.logger.Warn("clinics credential lookup failed", "error", err)
	}
	if clinic != nil && clinic.Enabled && clinic.APIUser != "" && clinic.APIToken != "" {
		creds.APIUser = clinic.APIUser
		creds.APIToken = decodeHexToken(clinic.APIToken, r.logger)
		creds.SubscriberID = clinic.SubscriberID
		if clinic.BaseURL != "" {
			creds.BaseURL = clinic.BaseURL
		}
		return "clinics"
	}

	// 3. Dedicated credentials table, active rows only.
	if userID != "" {
		stored, err := r.store.ActiveCredentialsByUser(ctx, userID)
		if err != nil {
			r.logger.Warn("clinicorp_credentials lookup failed", "error", err)
		}
		if stored != nil && stored.APIToken != "" && stored.SubscriberID != "" {
			creds.APIUser = stored.APIUser
			if creds.APIUser == "" {
				creds.APIUser = stored.SubscriberID
			}
			creds.APIToken = stored.APIToken
			creds.SubscriberID = stored.SubscriberID
			if stored.BaseURL != "" {
				creds.BaseURL = stored.BaseURL
			}
			return "clinicorp_credentials"
		}
	}

	// 4. Legacy integrations table: by clinic first, then by caller. Values
	// may be encrypted at rest.
	if req.ClinicID != "" {
		if r.adoptIntegration(ctx, creds, func() (*IntegrationRow, error) {
			return r.store.IntegrationByClinic(ctx, ProviderName, req.ClinicID)
		}) {
			return "clinic_integrations"
		}
	}
	if userID != "" {
		if r.adoptIntegration(ctx, creds, func() (*IntegrationRow, error) {
			return r.store.IntegrationByUser(ctx, ProviderName, userID)
		}) {
			return "clinic_integrations"
		}
	}
	return ""
}

func (r *Resolver) adoptIntegration(_ context.Context, creds *Credentials, load func() (*IntegrationRow, error)) bool {
	row, err := load()
	if err != nil {
		r.logger.Warn("clinic_integrations lookup failed", "error", err)
		return false
	}
	if row == nil || row.APIUser == "" || row.APIToken == "" {
		return false
	}
	creds.APIUser = r.decryptStored(row.APIUser, "api_user")
	creds.APIToken = r.decryptStored(row.APIToken, "api_token")
	if row.OnlineSlug != "" {
		creds.OnlineSlug = r.decryptStored(row.OnlineSlug, "online_slug")
	}
	return true
}

// decryptStored opens an at-rest value, logging degraded outcomes instead of
// failing the request pipeline.
func (r *Resolver) decryptStored(stored, field string) string {
	outcome := r.box.Decrypt(stored)
	if outcome.Degraded {
		r.logger.Warn("using credential value as-is after failed decrypt", "field", field, "reason", outcome.Reason)
	}
	return outcome.Value
}

// decodeHexToken unwraps the legacy \x-prefixed hex encoding some clinics
// rows carry. Decoding failures fall back to the raw value.
func decodeHexToken(raw string, logger *logging.Logger) string {
	if !strings.HasPrefix(raw, `\x`) {
		return raw
	}
	decoded, err := hex.DecodeString(raw[2:])
	if err != nil {
		if logger != nil {
			logger.Warn("failed to decode hex token, using raw value", "error", err)
		}
		return raw
	}
	return string(decoded)
}
