package appointments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odontomarket/dental-marketplace-platform/internal/clinicorp"
	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
)

func authedRequest(method, target, body, userID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if userID != "" {
		r = r.WithContext(httpmiddleware.WithUserID(r.Context(), userID))
	}
	return r
}

func TestBookHandlerValidatesBody(t *testing.T) {
	h := NewHandler(NewService(newMemRepo(), &fakeProxy{}, nil), newMemRepo(), nil)

	rec := httptest.NewRecorder()
	h.Book(rec, authedRequest(http.MethodPost, "/api/appointments", `{"clinic_id": "c1"}`, "patient-1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "patient_name")
	assert.Contains(t, body["error"], "time")
}

func TestBookHandlerSuccess(t *testing.T) {
	proxy := &fakeProxy{responses: []*clinicorp.Response{
		availability("10:00"),
		{Status: http.StatusOK, Success: true},
	}}
	repo := newMemRepo()
	h := NewHandler(NewService(repo, proxy, nil), repo, nil)

	rec := httptest.NewRecorder()
	h.Book(rec, authedRequest(http.MethodPost, "/api/appointments",
		`{"clinic_id": "c1", "patient_name": "Ana Souza", "date": "2026-09-10", "time": "10:00"}`,
		"patient-1"))

	require.Equal(t, http.StatusCreated, rec.Code)
	var got Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestBookHandlerSurfacesProxyErrorEnvelope(t *testing.T) {
	proxy := &fakeProxy{errs: []*clinicorp.Error{
		clinicorp.NewError(clinicorp.CodeRequestTimeout, http.StatusGatewayTimeout, "Timeout na conexão com Clinicorp. Tente novamente."),
	}}
	h := NewHandler(NewService(newMemRepo(), proxy, nil), newMemRepo(), nil)

	rec := httptest.NewRecorder()
	h.Book(rec, authedRequest(http.MethodPost, "/api/appointments",
		`{"clinic_id": "c1", "patient_name": "Ana Souza", "date": "2026-09-10", "time": "10:00"}`,
		"patient-1"))

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "REQUEST_TIMEOUT", body["code"])
	assert.Equal(t, false, body["success"])
}

func TestListReturnsOwnAppointmentsOnly(t *testing.T) {
	repo := newMemRepo()
	repo.byID["a1"] = &Appointment{ID: "a1", PatientID: "patient-1"}
	repo.byID["a2"] = &Appointment{ID: "a2", PatientID: "patient-2"}
	h := NewHandler(NewService(repo, &fakeProxy{}, nil), repo, nil)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(http.MethodGet, "/api/appointments", "", "patient-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}

func TestListRequiresAuth(t *testing.T) {
	h := NewHandler(NewService(newMemRepo(), &fakeProxy{}, nil), newMemRepo(), nil)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(http.MethodGet, "/api/appointments", "", ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCancelHandler(t *testing.T) {
	repo := newMemRepo()
	repo.byID["a1"] = &Appointment{ID: "a1", PatientID: "patient-1", Status: StatusPending}
	h := NewHandler(NewService(repo, &fakeProxy{}, nil), repo, nil)

	r := chi.NewRouter()
	r.Post("/api/appointments/{appointmentID}/cancel", h.Cancel)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments/a1/cancel", "", "patient-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusCancelled, repo.byID["a1"].Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/appointments/missing/cancel", "", "patient-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
