package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Handler provides HTTP endpoints for booking management.
type Handler struct {
	service *Service
	repo    Repository
	logger  *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(service *Service, repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, repo: repo, logger: logger}
}

// BookRequest is the request body for booking an appointment.
type BookRequest struct {
	ClinicID     string `json:"clinic_id"`
	PatientName  string `json:"patient_name"`
	PatientCPF   string `json:"patient_cpf,omitempty"`
	PatientPhone string `json:"patient_phone,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Professional string `json:"professional,omitempty"`
}

// Book creates an appointment through the Clinicorp integration.
// POST /api/appointments
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if missing := requiredFields(req); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "missing required fields: " + strings.Join(missing, ", "),
			"success": false,
		})
		return
	}

	a, perr := h.service.Book(r.Context(), userID, BookingInput{
		ClinicID:     req.ClinicID,
		PatientName:  req.PatientName,
		PatientCPF:   req.PatientCPF,
		PatientPhone: req.PatientPhone,
		Date:         req.Date,
		Time:         req.Time,
		Professional: req.Professional,
	})
	if perr != nil {
		writeJSON(w, perr.Status, map[string]any{
			"error":   perr.Message,
			"code":    string(perr.Code),
			"success": false,
		})
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// List returns the caller's appointments.
// GET /api/appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	out, err := h.repo.ListByPatient(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list appointments", "patient_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if out == nil {
		out = []Appointment{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Cancel cancels the caller's appointment.
// POST /api/appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	appointmentID := chi.URLParam(r, "appointmentID")

	a, err := h.service.Cancel(r.Context(), userID, appointmentID)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrNotOwner):
		writeError(w, http.StatusForbidden, "appointment belongs to another patient")
	case err != nil:
		h.logger.Error("failed to cancel appointment", "appointment_id", appointmentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusOK, a)
	}
}

func requiredFields(req BookRequest) []string {
	var missing []string
	if req.ClinicID == "" {
		missing = append(missing, "clinic_id")
	}
	if req.PatientName == "" {
		missing = append(missing, "patient_name")
	}
	if req.Date == "" {
		missing = append(missing, "date")
	}
	if req.Time == "" {
		missing = append(missing, "time")
	}
	return missing
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "success": false})
}
