// Package clinicorp implements the adaptation layer between the marketplace's
// uniform internal request contract and the Clinicorp practice-management API:
// credential resolution (including encrypted storage), per-endpoint request
// normalization, the authenticated upstream call, and response classification.
package clinicorp

// Credentials is a fully resolved upstream identity. SubscriberID, APIUser,
// APIToken and BaseURL must all be non-empty before an upstream call is made;
// OnlineSlug is optional and only required by specific endpoint families.
type Credentials struct {
	SubscriberID string
	APIUser      string
	APIToken     string
	BaseURL      string
	OnlineSlug   string
}

// InlineCredentials is the caller-supplied credential block. Callers that
// manage their own credential lifecycle use this to bypass storage entirely.
type InlineCredentials struct {
	APIUser      string `json:"api_user"`
	APIToken     string `json:"api_token"`
	SubscriberID string `json:"subscriber_id"`
	BaseURL      string `json:"base_url"`
}

// Request is the uniform inbound request description.
type Request struct {
	Path        string
	Method      string
	Query       map[string]any
	Body        any
	ClinicID    string
	Credentials *InlineCredentials
}

// NormalizedRequest is a Request after path correction and parameter
// coercion: endpoint-specific required fields are guaranteed present.
type NormalizedRequest struct {
	Path   string
	Method string
	Query  map[string]any
	Body   any
}

// Response is the envelope returned to callers on the success path.
type Response struct {
	Status  int  `json:"status"`
	Data    any  `json:"data"`
	Success bool `json:"success"`
}
