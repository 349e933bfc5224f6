package clinicorp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURLSerialization(t *testing.T) {
	got, err := BuildURL("https://api.example.com/rest/v1", "/patient/get", map[string]any{
		"subscriber_id": "sub-1",
		"ids":           []any{1, 2, nil, 3},
		"tags":          []string{"a", "b"},
		"filter":        map[string]any{"status": "active"},
		"skip":          nil,
	})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/rest/v1/patient/get", u.Path)

	q := u.Query()
	assert.Equal(t, "sub-1", q.Get("subscriber_id"))
	assert.Equal(t, []string{"1", "2", "3"}, q["ids"], "arrays become repeated keys, nils dropped")
	assert.Equal(t, []string{"a", "b"}, q["tags"])
	assert.JSONEq(t, `{"status":"active"}`, q.Get("filter"), "objects are JSON-stringified")
	_, present := q["skip"]
	assert.False(t, present, "nil values are dropped")
}

func TestBuildURLNormalizesSlashes(t *testing.T) {
	got, err := BuildURL("https://api.example.com/rest/v1/", "patient/get", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/rest/v1/patient/get", got)
}

func TestDoSendsBasicAuthAndJSON(t *testing.T) {
	var gotAuth, gotAccept, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	iv := NewInvoker(time.Second, nil)
	status, data, perr := iv.Do(context.Background(),
		Credentials{BaseURL: srv.URL, APIUser: "user", APIToken: "token"},
		&NormalizedRequest{Path: "/patient/create", Method: http.MethodPost, Body: map[string]any{"name": "Ana"}})

	require.Nil(t, perr)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"ok": true}, data)

	user, token, ok := parseBasicAuth(t, gotAuth)
	require.True(t, ok)
	assert.Equal(t, "user", user)
	assert.Equal(t, "token", token)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"name":"Ana"}`, string(gotBody))
}

func parseBasicAuth(t *testing.T, header string) (string, string, bool) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", header)
	return r.BasicAuth()
}

func TestDoGetOmitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Equal(t, int64(0), r.ContentLength)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	iv := NewInvoker(time.Second, nil)
	status, data, perr := iv.Do(context.Background(),
		Credentials{BaseURL: srv.URL},
		&NormalizedRequest{Path: "/appointment/list", Method: http.MethodGet, Body: map[string]any{"ignored": true}})

	require.Nil(t, perr)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, data)
}

func TestDoWrapsNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>Bad Gateway</html>"))
	}))
	defer srv.Close()

	iv := NewInvoker(time.Second, nil)
	status, data, perr := iv.Do(context.Background(),
		Credentials{BaseURL: srv.URL},
		&NormalizedRequest{Path: "/patient/get", Method: http.MethodGet})

	require.Nil(t, perr)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, map[string]any{"raw": "<html>Bad Gateway</html>"}, data)
}

func TestDoTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	iv := NewInvoker(50*time.Millisecond, nil)
	_, _, perr := iv.Do(context.Background(),
		Credentials{BaseURL: srv.URL},
		&NormalizedRequest{Path: "/patient/get", Method: http.MethodGet})

	require.NotNil(t, perr)
	assert.Equal(t, CodeRequestTimeout, perr.Code)
	assert.Equal(t, 504, perr.Status)
	assert.Equal(t, "Timeout na conexão com Clinicorp. Tente novamente.", perr.Message)
}

func TestDoConnectionRefusedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	iv := NewInvoker(time.Second, nil)
	_, _, perr := iv.Do(context.Background(),
		Credentials{BaseURL: srv.URL},
		&NormalizedRequest{Path: "/patient/get", Method: http.MethodGet})

	require.NotNil(t, perr)
	assert.Equal(t, CodeConnectionRefused, perr.Code)
	assert.Equal(t, 502, perr.Status)
}

func TestDoSingleAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	iv := NewInvoker(time.Second, nil)
	status, _, perr := iv.Do(context.Background(),
		Credentials{BaseURL: srv.URL},
		&NormalizedRequest{Path: "/patient/get", Method: http.MethodGet})

	require.Nil(t, perr, "5xx statuses are data, not transport errors")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, 1, calls)
}

// timeoutErr mimics the net.Error a dial timeout produces: Timeout() reports
// true and the message carries "i/o timeout".
type timeoutErr struct{ msg string }

func (e timeoutErr) Error() string   { return e.msg }
func (e timeoutErr) Timeout() bool   { return true }
func (e timeoutErr) Temporary() bool { return true }

func TestClassifyDialTimeoutAsConnectionTimeout(t *testing.T) {
	iv := NewInvoker(time.Second, nil)
	err := &url.Error{
		Op:  "Get",
		URL: "https://api.example.com/rest/v1/patient/get",
		Err: timeoutErr{msg: "dial tcp 10.0.0.1:443: i/o timeout"},
	}
	require.True(t, err.Timeout())

	perr := iv.classifyTransportError(err)
	assert.Equal(t, CodeConnectionTimeout, perr.Code)
	assert.Equal(t, 504, perr.Status)
	assert.Equal(t, "Timeout na conexão com Clinicorp. O servidor pode estar sobrecarregado.", perr.Message)
}

func TestClassifyTransportErrorFallback(t *testing.T) {
	iv := NewInvoker(time.Second, nil)
	perr := iv.classifyTransportError(assert.AnError)
	assert.Equal(t, CodeRequestFailed, perr.Code)
	assert.Equal(t, "An invalid response was received from the upstream server", perr.Message)
}
