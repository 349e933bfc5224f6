package credit

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Handler provides HTTP endpoints for credit requests.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a credit request HTTP handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

var nonDigitRe = regexp.MustCompile(`\D`)

// CreateRequest is the request body for opening a credit request.
type CreateRequest struct {
	ClinicID     string `json:"clinic_id"`
	AmountCents  int64  `json:"amount_cents"`
	Installments int    `json:"installments"`
	PatientName  string `json:"patient_name"`
	PatientCPF   string `json:"patient_cpf,omitempty"`
	Submit       bool   `json:"submit,omitempty"`
}

// Create opens a credit request for the authenticated patient. With
// "submit": true the request skips draft and lands in submitted.
// POST /api/credit/requests
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var body CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ClinicID == "" || body.PatientName == "" {
		writeError(w, http.StatusBadRequest, "clinic_id and patient_name required")
		return
	}
	if body.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, "amount_cents must be positive")
		return
	}
	if body.Installments <= 0 {
		body.Installments = 1
	}

	req := &Request{
		PatientID:    userID,
		ClinicID:     body.ClinicID,
		AmountCents:  body.AmountCents,
		Installments: body.Installments,
		PatientName:  body.PatientName,
		PatientCPF:   nonDigitRe.ReplaceAllString(body.PatientCPF, ""),
		Status:       StatusDraft,
	}
	if body.Submit {
		req.Status = StatusSubmitted
	}

	if err := h.repo.Create(r.Context(), req); err != nil {
		h.logger.Error("failed to create credit request", "patient_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// List returns credit requests for the caller, or for a clinic when
// ?clinic_id= is given.
// GET /api/credit/requests
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var (
		out []Request
		err error
	)
	if clinicID := r.URL.Query().Get("clinic_id"); clinicID != "" {
		out, err = h.repo.ListByClinic(r.Context(), clinicID)
	} else {
		out, err = h.repo.ListByPatient(r.Context(), userID)
	}
	if err != nil {
		h.logger.Error("failed to list credit requests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if out == nil {
		out = []Request{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one credit request; only the requesting patient may read it.
// GET /api/credit/requests/{requestID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	requestID := chi.URLParam(r, "requestID")

	req, err := h.repo.GetByID(r.Context(), requestID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "credit request not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get credit request", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if req.PatientID != userID {
		writeError(w, http.StatusForbidden, "credit request belongs to another patient")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DecideRequest is the request body for a status transition.
type DecideRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
}

// Decide moves a credit request along its lifecycle. Transitions outside the
// allowed table are rejected with 409.
// POST /api/credit/requests/{requestID}/decision
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	if _, ok := httpmiddleware.UserIDFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	requestID := chi.URLParam(r, "requestID")

	var body DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := h.repo.GetByID(r.Context(), requestID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "credit request not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get credit request", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !CanTransition(req.Status, body.Status) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "invalid status transition",
			"from":    req.Status,
			"to":      body.Status,
			"success": false,
		})
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), requestID, body.Status, body.Note); err != nil {
		h.logger.Error("failed to update credit request", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	req.Status = body.Status
	req.DecisionNote = body.Note
	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "success": false})
}
