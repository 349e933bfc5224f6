package clinicorp

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	httpmiddleware "github.com/odontomarket/dental-marketplace-platform/internal/http/middleware"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// Handler exposes the proxy over HTTP: one POST endpoint accepting the
// uniform request description, plus the save_credentials action.
type Handler struct {
	proxy  *Proxy
	store  CredentialStore
	box    *SecretBox
	logger *logging.Logger
}

func NewHandler(proxy *Proxy, store CredentialStore, box *SecretBox, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{proxy: proxy, store: store, box: box, logger: logger}
}

// requestBody is the inbound JSON contract. The save_credentials fields are
// only read when __action selects that mode.
type requestBody struct {
	Path     string             `json:"path"`
	Method   string             `json:"method"`
	Query    map[string]any     `json:"query"`
	Body     any                `json:"body"`
	ClinicID string             `json:"clinic_id"`
	Creds    *InlineCredentials `json:"credentials"`

	Action             string `json:"__action"`
	SubscriberID       string `json:"subscriber_id"`
	APIToken           string `json:"api_token"`
	AuthorizationBasic string `json:"authorization_basic"`
	AgendaURL          string `json:"agenda_url"`
	OnlineSlug         string `json:"online_slug"`
	UserID             string `json:"user_id"`
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
}

// Handle serves the proxy endpoint. Every response, error or not, carries
// permissive CORS headers; preflights get an empty 200.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	// The pipeline must never crash without a structured response.
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("proxy panic", "panic", rec)
			h.writeError(w, NewError(CodeInternal, 500, "Internal server error"))
		}
	}()

	userID, ok := httpmiddleware.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		h.writeError(w, NewError(CodeAuthRequired, 401, "Unauthorized"))
		return
	}

	var body requestBody
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.logger.Warn("failed to parse JSON body", "error", err)
		}
	}

	if body.Action == "save_credentials" {
		h.saveCredentials(w, r, userID, body)
		return
	}

	if strings.TrimSpace(body.Path) == "" {
		h.writeError(w, NewError(CodeMissingPath, 400, "Parâmetro 'path' é obrigatório").
			WithDetails(map[string]any{"provided": bodyKeys(body)}))
		return
	}

	query := body.Query
	if query == nil {
		query = map[string]any{}
	}
	resp, perr := h.proxy.Execute(r.Context(), userID, Request{
		Path:        body.Path,
		Method:      body.Method,
		Query:       query,
		Body:        body.Body,
		ClinicID:    body.ClinicID,
		Credentials: body.Creds,
	})
	if perr != nil {
		h.writeError(w, perr)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// saveCredentials encrypts and upserts upstream credentials keyed by
// (user, provider). Accepts a discrete subscriber/token pair, an HTTP Basic
// string, or an agenda URL whose last path segment is the online slug.
func (h *Handler) saveCredentials(w http.ResponseWriter, r *http.Request, userID string, body requestBody) {
	ctx := r.Context()

	targetClinicID := body.ClinicID
	if targetClinicID == "" && userID != "" {
		id, err := h.store.ClinicIDByOwner(ctx, userID)
		if err != nil {
			h.logger.Warn("clinic lookup for save_credentials failed", "error", err)
		} else {
			targetClinicID = id
		}
	}

	subscriberID := strings.TrimSpace(body.SubscriberID)
	apiToken := strings.TrimSpace(body.APIToken)
	onlineSlug := extractOnlineSlug(strings.TrimSpace(body.AgendaURL), strings.TrimSpace(body.OnlineSlug))

	if basic := strings.TrimSpace(body.AuthorizationBasic); basic != "" {
		if u, t, ok := decodeBasicPair(basic); ok {
			if subscriberID == "" {
				subscriberID = u
			}
			if apiToken == "" {
				apiToken = t
			}
		} else {
			h.logger.Warn("failed to decode Basic token")
		}
	}

	if subscriberID == "" || apiToken == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Missing subscriber_id or api_token (or invalid Basic token)",
		})
		return
	}

	if userID == "" {
		userID = body.UserID
	}
	if userID == "" {
		h.writeError(w, NewError(CodeUserIDRequired, 400, "User ID required for saving credentials"))
		return
	}

	encUser, err := h.box.Encrypt(subscriberID)
	if err == nil {
		var encToken, encSlug string
		if encToken, err = h.box.Encrypt(apiToken); err == nil {
			encSlug, err = h.box.Encrypt(onlineSlug)
			if err == nil {
				err = h.store.UpsertIntegration(ctx, IntegrationRecord{
					UserID:     userID,
					ClinicID:   targetClinicID,
					Provider:   ProviderName,
					APIUser:    encUser,
					APIToken:   encToken,
					OnlineSlug: encSlug,
				})
			}
		}
	}
	if err != nil {
		h.logger.Error("save_credentials failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to save credentials",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

var basicPrefixRe = regexp.MustCompile(`(?i)^Basic\s+`)

// decodeBasicPair splits a Basic authorization string into user and token.
func decodeBasicPair(basic string) (string, string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(basicPrefixRe.ReplaceAllString(basic, ""))
	if err != nil {
		return "", "", false
	}
	idx := strings.Index(string(decoded), ":")
	if idx < 0 {
		return "", "", false
	}
	return string(decoded)[:idx], string(decoded)[idx+1:], true
}

// extractOnlineSlug prefers the last path segment of an agenda URL and falls
// back to a literal slug. An unparseable URL-looking value yields nothing.
func extractOnlineSlug(agendaURL, providedSlug string) string {
	if agendaURL != "" {
		if u, err := url.Parse(agendaURL); err == nil && u.Host != "" {
			parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
			if len(parts) > 0 {
				return parts[len(parts)-1]
			}
			return ""
		}
		if !strings.HasPrefix(agendaURL, "http") {
			return agendaURL
		}
		return ""
	}
	return providedSlug
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, perr *Error) {
	body := map[string]any{
		"error":   perr.Message,
		"success": false,
		"code":    string(perr.Code),
	}
	if perr.Details != nil {
		body["details"] = perr.Details
	}
	h.writeJSON(w, perr.Status, body)
}

func bodyKeys(body requestBody) []string {
	keys := []string{}
	if body.Method != "" {
		keys = append(keys, "method")
	}
	if body.Query != nil {
		keys = append(keys, "query")
	}
	if body.Body != nil {
		keys = append(keys, "body")
	}
	if body.ClinicID != "" {
		keys = append(keys, "clinic_id")
	}
	return keys
}
