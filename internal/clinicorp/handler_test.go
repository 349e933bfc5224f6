package clinicorp

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
)

func newTestHandler(store CredentialStore, box *SecretBox, upstreamURL string) *Handler {
	proxy := NewProxy(ProxyOptions{
		Resolver: NewResolver(store, box, upstreamURL, nil),
		Invoker:  NewInvoker(time.Second, nil),
	})
	return NewHandler(proxy, store, box, nil)
}

func proxyRequest(body, userID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(http.MethodPost, "/api/integrations/clinicorp", nil)
	} else {
		r = httptest.NewRequest(http.MethodPost, "/api/integrations/clinicorp", strings.NewReader(body))
	}
	if userID != "" {
		r = r.WithContext(httpmiddleware.WithUserID(r.Context(), userID))
	}
	return r
}

func TestHandleOptionsPreflight(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodOptions, "/api/integrations/clinicorp", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Body.String())
}

func TestHandleWithoutUser(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(`{"path": "/patient/get"}`, ""))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AUTH_REQUIRED", body["code"])
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), "errors still carry CORS headers")
}

func TestHandleMissingPath(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(`{"method": "GET", "clinic_id": "c1"}`, "user-1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MISSING_PATH", body["code"])
	assert.Equal(t, "Parâmetro 'path' é obrigatório", body["error"])
	details := body["details"].(map[string]any)
	assert.ElementsMatch(t, []any{"method", "clinic_id"}, details["provided"])
}

func TestHandleMalformedBodyStillValidated(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(`{not json`, "user-1"))

	// A broken body decays to an empty request, which fails path validation.
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MISSING_PATH", body["code"])
}

func TestHandleProxiesSuccessfully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7})
	}))
	defer srv.Close()

	h := newTestHandler(&fakeStore{}, nil, srv.URL)

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(
		`{"path": "/patient/get", "query": {"Name": "Ana"}, "credentials": {"api_user": "u", "api_token": "t"}}`,
		"user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(200), body["status"])
}

func TestSaveCredentialsDiscretePair(t *testing.T) {
	store := &fakeStore{clinicIDOwner: "clinic-9"}
	box, err := NewSecretBox("passphrase")
	require.NoError(t, err)
	h := newTestHandler(store, box, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(
		`{"__action": "save_credentials", "subscriber_id": "sub-1", "api_token": "tok", "online_slug": "sorriso"}`,
		"user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true}`, rec.Body.String())

	require.Len(t, store.upserted, 1)
	rec2 := store.upserted[0]
	assert.Equal(t, "user-1", rec2.UserID)
	assert.Equal(t, "clinic-9", rec2.ClinicID)
	assert.Equal(t, ProviderName, rec2.Provider)

	// Values are stored encrypted and round-trip through the box.
	assert.True(t, strings.HasPrefix(rec2.APIToken, "enc:"))
	assert.Equal(t, "sub-1", box.Decrypt(rec2.APIUser).Value)
	assert.Equal(t, "tok", box.Decrypt(rec2.APIToken).Value)
	assert.Equal(t, "sorriso", box.Decrypt(rec2.OnlineSlug).Value)
}

func TestSaveCredentialsBasicToken(t *testing.T) {
	store := &fakeStore{}
	box, err := NewSecretBox("")
	require.NoError(t, err)
	h := newTestHandler(store, box, "http://unused.example")

	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte("sub-2:token:with:colons"))
	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(
		`{"__action": "save_credentials", "authorization_basic": "`+basic+`"}`,
		"user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "sub-2", store.upserted[0].APIUser)
	assert.Equal(t, "token:with:colons", store.upserted[0].APIToken, "only the first colon splits the pair")
}

func TestSaveCredentialsAgendaURLSlug(t *testing.T) {
	store := &fakeStore{}
	box, _ := NewSecretBox("")
	h := newTestHandler(store, box, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(
		`{"__action": "save_credentials", "subscriber_id": "s", "api_token": "t", "agenda_url": "https://agenda.clinicorp.com/app/sorriso-paulista"}`,
		"user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "sorriso-paulista", store.upserted[0].OnlineSlug)
}

func TestSaveCredentialsMissingPair(t *testing.T) {
	h := newTestHandler(&fakeStore{}, nil, "http://unused.example")

	rec := httptest.NewRecorder()
	h.Handle(rec, proxyRequest(`{"__action": "save_credentials", "subscriber_id": "only-half"}`, "user-1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Missing subscriber_id or api_token (or invalid Basic token)", body["error"])
	assert.Equal(t, false, body["success"])
}

func TestDecodeBasicPair(t *testing.T) {
	u, tok, ok := decodeBasicPair("basic " + base64.StdEncoding.EncodeToString([]byte("a:b")))
	require.True(t, ok, "prefix match is case-insensitive")
	assert.Equal(t, "a", u)
	assert.Equal(t, "b", tok)

	_, _, ok = decodeBasicPair(base64.StdEncoding.EncodeToString([]byte("no-colon")))
	assert.False(t, ok)

	_, _, ok = decodeBasicPair("Basic !!!not-base64!!!")
	assert.False(t, ok)
}

func TestExtractOnlineSlug(t *testing.T) {
	cases := []struct {
		agendaURL, slug, want string
	}{
		{"https://agenda.clinicorp.com/app/sorriso", "", "sorriso"},
		{"https://agenda.clinicorp.com/app/sorriso/", "", "sorriso"},
		{"https://agenda.clinicorp.com", "", ""},
		{"just-a-slug", "", "just-a-slug"},
		{"http://%zz-unparseable", "", ""},
		{"", "fallback-slug", "fallback-slug"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractOnlineSlug(tc.agendaURL, tc.slug), "agenda_url=%q", tc.agendaURL)
	}
}
