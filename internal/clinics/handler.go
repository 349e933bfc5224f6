package clinics

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Handler provides HTTP endpoints for clinic profiles.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a clinic profile HTTP handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// List returns clinic profiles, optionally filtered by city and state.
// GET /api/clinics?city=...&state=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	state := r.URL.Query().Get("state")

	out, err := h.repo.List(r.Context(), city, state)
	if err != nil {
		h.logger.Error("failed to list clinics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if out == nil {
		out = []Clinic{}
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one clinic profile by id or slug.
// GET /api/clinics/{clinicID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "clinicID")
	if key == "" {
		writeError(w, http.StatusBadRequest, "clinic id required")
		return
	}

	c, err := h.repo.GetByID(r.Context(), key)
	if errors.Is(err, ErrNotFound) {
		c, err = h.repo.GetBySlug(r.Context(), key)
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "clinic not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get clinic", "clinic_id", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateRequest is the request body for creating a clinic profile.
type CreateRequest struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Specialties []string `json:"specialties,omitempty"`
}

// Create registers a clinic profile owned by the authenticated user.
// POST /api/clinics
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	c := &Clinic{
		OwnerID:     userID,
		Name:        strings.TrimSpace(req.Name),
		Slug:        req.Slug,
		City:        req.City,
		State:       req.State,
		Phone:       req.Phone,
		Specialties: req.Specialties,
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}

	if err := h.repo.Create(r.Context(), c); err != nil {
		h.logger.Error("failed to create clinic", "owner_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateRequest is the request body for updating a clinic profile. Empty
// fields keep their current value.
type UpdateRequest struct {
	Name        string   `json:"name,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Specialties []string `json:"specialties,omitempty"`
}

// Update modifies a clinic profile; only the owner may update it.
// PUT /api/clinics/{clinicID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	clinicID := chi.URLParam(r, "clinicID")
	if clinicID == "" {
		writeError(w, http.StatusBadRequest, "clinic id required")
		return
	}

	c, err := h.repo.GetByID(r.Context(), clinicID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "clinic not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get clinic", "clinic_id", clinicID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if c.OwnerID != userID {
		writeError(w, http.StatusForbidden, "not the clinic owner")
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != "" {
		c.Name = req.Name
	}
	if req.City != "" {
		c.City = req.City
	}
	if req.State != "" {
		c.State = req.State
	}
	if req.Phone != "" {
		c.Phone = req.Phone
	}
	if req.Specialties != nil {
		c.Specialties = req.Specialties
	}

	if err := h.repo.Update(r.Context(), c); err != nil {
		h.logger.Error("failed to update clinic", "clinic_id", clinicID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a clinic name.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message, "success": false})
}
