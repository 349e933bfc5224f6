package clinicorp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// DefaultTimeout bounds every upstream call. There is no automatic retry: one
// attempt, hard deadline.
const DefaultTimeout = 20 * time.Second

// Invoker performs the single authenticated HTTP call to the upstream API.
type Invoker struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *logging.Logger
}

// NewInvoker creates an Invoker. A non-positive timeout selects DefaultTimeout.
func NewInvoker(timeout time.Duration, logger *logging.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Invoker{
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger,
	}
}

// BuildURL serializes query values onto base+path: arrays become repeated
// keys, objects are JSON-stringified into a single value, nils are dropped.
func BuildURL(baseURL, path string, query map[string]any) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("clinicorp: parse url: %w", err)
	}
	values := u.Query()
	for key, value := range query {
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if item == nil {
					continue
				}
				values.Add(key, fmt.Sprint(item))
			}
		case []string:
			for _, item := range v {
				values.Add(key, item)
			}
		case map[string]any:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			values.Add(key, string(encoded))
		default:
			values.Add(key, fmt.Sprint(v))
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Do executes the normalized request against the upstream with HTTP Basic
// auth. Returns the raw status and decoded body; non-JSON bodies are wrapped
// as {raw: text}. Transport failures come back as typed errors.
func (iv *Invoker) Do(ctx context.Context, creds Credentials, nreq *NormalizedRequest) (int, any, *Error) {
	endpoint, err := BuildURL(creds.BaseURL, nreq.Path, nreq.Query)
	if err != nil {
		return 0, nil, NewError(CodeRequestFailed, 502, "Failed to build upstream URL").WithDetails(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()

	var bodyReader io.Reader
	if nreq.Body != nil && nreq.Method != http.MethodGet && nreq.Method != http.MethodHead {
		payload, err := json.Marshal(nreq.Body)
		if err != nil {
			return 0, nil, NewError(CodeRequestFailed, 502, "Failed to encode request body").WithDetails(err.Error())
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, nreq.Method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, NewError(CodeRequestFailed, 502, "Failed to build upstream request").WithDetails(err.Error())
	}
	req.SetBasicAuth(creds.APIUser, creds.APIToken)
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := iv.httpClient.Do(req)
	if err != nil {
		return 0, nil, iv.classifyTransportError(err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, iv.classifyTransportError(err)
	}

	iv.logger.Debug("upstream response",
		"method", nreq.Method,
		"path", nreq.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	var data any
	if len(text) > 0 {
		if jsonErr := json.Unmarshal(text, &data); jsonErr != nil {
			data = map[string]any{"raw": string(text)}
		}
	}
	return resp.StatusCode, data, nil
}

// classifyTransportError maps a transport failure to the closest typed code.
// Unclassifiable failures fall back to REQUEST_FAILED with the raw error
// attached for diagnostics.
func (iv *Invoker) classifyTransportError(err error) *Error {
	msg := err.Error()

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeRequestTimeout, 504, "Timeout na conexão com Clinicorp. Tente novamente.")
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return NewError(CodeConnectionRefused, 502, "Erro de conectividade com o servidor Clinicorp. Verifique sua conexão.")
	}
	// Connect-phase timeouts ("dial tcp: i/o timeout") also satisfy
	// urlErr.Timeout(), so this check must come first.
	if strings.Contains(msg, "i/o timeout") || strings.Contains(msg, "ETIMEDOUT") {
		return NewError(CodeConnectionTimeout, 504, "Timeout na conexão com Clinicorp. O servidor pode estar sobrecarregado.")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return NewError(CodeRequestTimeout, 504, "Timeout na conexão com Clinicorp. Tente novamente.")
	}
	iv.logger.Error("unclassified upstream transport failure", "error", msg)
	return NewError(CodeRequestFailed, 502, "An invalid response was received from the upstream server").WithDetails(msg)
}
