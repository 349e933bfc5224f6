package clinicorp

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory CredentialStore that records which lookups ran.
type fakeStore struct {
	clinicByID    *ClinicCredentialRow
	clinicByOwner *ClinicCredentialRow
	active        *StoredCredentials
	intByClinic   *IntegrationRow
	intByUser     *IntegrationRow
	slug          string
	clinicIDOwner string
	upserted      []IntegrationRecord

	lookups []string
}

func (f *fakeStore) EnabledClinicByID(_ context.Context, _ string) (*ClinicCredentialRow, error) {
	f.lookups = append(f.lookups, "clinic_by_id")
	return f.clinicByID, nil
}

func (f *fakeStore) EnabledClinicByOwner(_ context.Context, _ string) (*ClinicCredentialRow, error) {
	f.lookups = append(f.lookups, "clinic_by_owner")
	return f.clinicByOwner, nil
}

func (f *fakeStore) ActiveCredentialsByUser(_ context.Context, _ string) (*StoredCredentials, error) {
	f.lookups = append(f.lookups, "active_credentials")
	return f.active, nil
}

func (f *fakeStore) IntegrationByClinic(_ context.Context, _, _ string) (*IntegrationRow, error) {
	f.lookups = append(f.lookups, "integration_by_clinic")
	return f.intByClinic, nil
}

func (f *fakeStore) IntegrationByUser(_ context.Context, _, _ string) (*IntegrationRow, error) {
	f.lookups = append(f.lookups, "integration_by_user")
	return f.intByUser, nil
}

func (f *fakeStore) ClinicSlug(_ context.Context, _ string) (string, error) {
	f.lookups = append(f.lookups, "clinic_slug")
	return f.slug, nil
}

func (f *fakeStore) ClinicIDByOwner(_ context.Context, _ string) (string, error) {
	f.lookups = append(f.lookups, "clinic_id_by_owner")
	return f.clinicIDOwner, nil
}

func (f *fakeStore) UpsertIntegration(_ context.Context, rec IntegrationRecord) error {
	f.upserted = append(f.upserted, rec)
	return nil
}

const defaultBase = "https://api.clinicorp.com/rest/v1"

func TestResolveInlineBypassesStorage(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, nil, defaultBase, nil)

	creds, source, perr := r.Resolve(context.Background(), Request{
		Credentials: &InlineCredentials{APIUser: "u", APIToken: "t", SubscriberID: "s"},
	}, "user-1")

	require.Nil(t, perr)
	assert.Equal(t, "inline", source)
	assert.Equal(t, "u", creds.APIUser)
	assert.Equal(t, "t", creds.APIToken)
	assert.Equal(t, "s", creds.SubscriberID)
	assert.Equal(t, defaultBase, creds.BaseURL)
	assert.Empty(t, store.lookups, "inline credentials must not touch storage")
}

func TestResolveInlineBaseURLOverride(t *testing.T) {
	r := NewResolver(nil, nil, defaultBase, nil)
	creds, _, perr := r.Resolve(context.Background(), Request{
		Credentials: &InlineCredentials{APIUser: "u", APIToken: "t", BaseURL: "https://staging.example/v1"},
	}, "")
	require.Nil(t, perr)
	assert.Equal(t, "https://staging.example/v1", creds.BaseURL)
}

func TestResolvePartialInlineFallsThrough(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, nil, defaultBase, nil)

	_, _, perr := r.Resolve(context.Background(), Request{
		Credentials: &InlineCredentials{APIUser: "u"}, // token missing
	}, "user-1")

	require.NotNil(t, perr)
	assert.Equal(t, CodeCredentialsMissing, perr.Code)
	assert.NotEmpty(t, store.lookups, "partial inline credentials fall back to storage")
}

func TestResolveFromClinicRowDecodesHexToken(t *testing.T) {
	token := `\x` + hex.EncodeToString([]byte("decoded-token"))
	store := &fakeStore{clinicByID: &ClinicCredentialRow{
		ClinicID: "c1", APIUser: "u", APIToken: token, SubscriberID: "sub-1", Enabled: true,
	}}
	r := NewResolver(store, nil, defaultBase, nil)

	creds, source, perr := r.Resolve(context.Background(), Request{ClinicID: "c1"}, "user-1")
	require.Nil(t, perr)
	assert.Equal(t, "clinics", source)
	assert.Equal(t, "decoded-token", creds.APIToken)
	assert.Equal(t, "sub-1", creds.SubscriberID)
}

func TestResolveActiveCredentialsAPIUserDefault(t *testing.T) {
	store := &fakeStore{active: &StoredCredentials{APIToken: "t", SubscriberID: "sub-2"}}
	r := NewResolver(store, nil, defaultBase, nil)

	creds, source, perr := r.Resolve(context.Background(), Request{}, "user-1")
	require.Nil(t, perr)
	assert.Equal(t, "clinicorp_credentials", source)
	assert.Equal(t, "sub-2", creds.APIUser, "missing api_user defaults to subscriber id")
}

func TestResolveIntegrationDecryptsValues(t *testing.T) {
	box, err := NewSecretBox("passphrase")
	require.NoError(t, err)
	encUser, err := box.Encrypt("api-user")
	require.NoError(t, err)
	encToken, err := box.Encrypt("api-token")
	require.NoError(t, err)
	encSlug, err := box.Encrypt("sorriso")
	require.NoError(t, err)

	store := &fakeStore{intByUser: &IntegrationRow{APIUser: encUser, APIToken: encToken, OnlineSlug: encSlug}}
	r := NewResolver(store, box, defaultBase, nil)

	creds, source, perr := r.Resolve(context.Background(), Request{}, "user-1")
	require.Nil(t, perr)
	assert.Equal(t, "clinic_integrations", source)
	assert.Equal(t, "api-user", creds.APIUser)
	assert.Equal(t, "api-token", creds.APIToken)
	assert.Equal(t, "sorriso", creds.OnlineSlug)
}

func TestResolveIntegrationDegradedDecryptKeepsValue(t *testing.T) {
	box, err := NewSecretBox("passphrase")
	require.NoError(t, err)
	encToken, err := box.Encrypt("api-token")
	require.NoError(t, err)

	// Resolver configured without a key: tagged values pass through degraded.
	noKey, err := NewSecretBox("")
	require.NoError(t, err)
	store := &fakeStore{intByUser: &IntegrationRow{APIUser: "plain-user", APIToken: encToken}}
	r := NewResolver(store, noKey, defaultBase, nil)

	creds, _, perr := r.Resolve(context.Background(), Request{}, "user-1")
	require.Nil(t, perr)
	assert.Equal(t, "plain-user", creds.APIUser)
	assert.Equal(t, encToken, creds.APIToken, "undecryptable value is passed through as stored")
}

func TestResolveMissingEverywhere(t *testing.T) {
	store := &fakeStore{}
	r := NewResolver(store, nil, defaultBase, nil)

	_, _, perr := r.Resolve(context.Background(), Request{ClinicID: "c1"}, "user-1")
	require.NotNil(t, perr)
	assert.Equal(t, CodeCredentialsMissing, perr.Code)
	assert.Equal(t, 400, perr.Status)
	assert.Equal(t, "Clinicorp credentials not found. Please provide credentials in request body or configure them first.", perr.Message)
}

func TestResolveSlugFallbackFromClinicRow(t *testing.T) {
	store := &fakeStore{
		active: &StoredCredentials{APIUser: "u", APIToken: "t", SubscriberID: "sub-1"},
		slug:   "sorriso",
	}
	r := NewResolver(store, nil, defaultBase, nil)

	creds, _, perr := r.Resolve(context.Background(), Request{ClinicID: "c1"}, "user-1")
	require.Nil(t, perr)
	assert.Equal(t, "sorriso", creds.OnlineSlug)
	assert.Contains(t, store.lookups, "clinic_slug")
}

func TestDecodeHexTokenFallsBackOnBadHex(t *testing.T) {
	assert.Equal(t, `\xZZZZ`, decodeHexToken(`\xZZZZ`, nil))
	assert.Equal(t, "plain", decodeHexToken("plain", nil))
}
