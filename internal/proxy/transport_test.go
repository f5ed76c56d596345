package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/arisumika/dormlock-core/internal/infrastructure/config"
)

func newTransport(t *testing.T, proxyURL, variant string) Transport {
	t.Helper()
	tr, err := New(config.ProxyConfig{URL: proxyURL, Variant: variant, Timeout: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ProxyConfig
		wantErr bool
	}{
		{name: "missing url", cfg: config.ProxyConfig{}, wantErr: true},
		{name: "unknown variant", cfg: config.ProxyConfig{URL: "https://p", Variant: "nope"}, wantErr: true},
		{name: "query variant", cfg: config.ProxyConfig{URL: "https://p", Variant: "query"}},
		{name: "default variant", cfg: config.ProxyConfig{URL: "https://p"}},
		{name: "envelope variant", cfg: config.ProxyConfig{URL: "https://p", Variant: "envelope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				if !errors.Is(err, ErrNotConfigured) {
					t.Fatalf("New() error = %v, want ErrNotConfigured", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
		})
	}
}

func TestQueryTransportRequest(t *testing.T) {
	var gotQuery url.Values
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, "query")
	raw, err := tr.Request(context.Background(), "https://api.example.com/login", Options{
		Body:    map[string]string{"userName": "alice"},
		Headers: map[string]string{"token_data": "tok"},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if got := gotQuery.Get("targetUrl"); got != "https://api.example.com/login" {
		t.Errorf("targetUrl = %q", got)
	}
	if got := gotQuery.Get("method"); got != "POST" {
		t.Errorf("method = %q, want POST (default)", got)
	}
	if got := gotHeaders.Get("token_data"); got != "tok" {
		t.Errorf("token_data header = %q, want %q", got, "tok")
	}
	if !strings.Contains(string(gotBody), `"userName":"alice"`) {
		t.Errorf("body = %s, want JSON payload", gotBody)
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["success"] != true {
		t.Errorf("response = %v", resp)
	}
}

func TestEnvelopeTransportJSON(t *testing.T) {
	var gotContentType string
	var gotEnv map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotEnv) //nolint:errcheck // test fixture
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, "envelope")
	_, err := tr.Request(context.Background(), "https://api.example.com/x", Options{
		Method: "GET",
		Headers: map[string]string{
			"token_userId": "u1",
			"token_data":   "tok",
		},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotEnv["method"] != "get" {
		t.Errorf("envelope method = %v, want lowercase get", gotEnv["method"])
	}
	if gotEnv["url"] != "https://api.example.com/x" {
		t.Errorf("envelope url = %v", gotEnv["url"])
	}

	headers, _ := gotEnv["header"].([]any)
	if len(headers) != 2 {
		t.Fatalf("envelope header = %v, want 2 lines", gotEnv["header"])
	}
	// Sorted: token_data before token_userId.
	if headers[0] != "token_data: tok" || headers[1] != "token_userId: u1" {
		t.Errorf("header lines = %v, want sorted name: value strings", headers)
	}
}

func TestEnvelopeTransportLegacyForm(t *testing.T) {
	var gotContentType string
	var gotForm url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// The php marker in the path switches the wire format to form encoding.
	tr := newTransport(t, srv.URL+"/proxyHTTP.php", "envelope")
	_, err := tr.Request(context.Background(), "https://api.example.com/x", Options{
		Body:    map[string]string{"a": "1"},
		Headers: map[string]string{"token_data": "tok"},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q, want form encoding", gotContentType)
	}
	if got := gotForm.Get("method"); got != "post" {
		t.Errorf("form method = %q, want post", got)
	}
	if got := gotForm.Get("url"); got != "https://api.example.com/x" {
		t.Errorf("form url = %q", got)
	}

	// data and header are JSON strings inside the form.
	var data map[string]string
	if err := json.Unmarshal([]byte(gotForm.Get("data")), &data); err != nil || data["a"] != "1" {
		t.Errorf("form data = %q, want JSON-encoded payload", gotForm.Get("data"))
	}
	var headerLines []string
	if err := json.Unmarshal([]byte(gotForm.Get("header")), &headerLines); err != nil || len(headerLines) != 1 {
		t.Errorf("form header = %q, want JSON-encoded line array", gotForm.Get("header"))
	}
}

func TestRoundTripStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "404 endpoint missing", status: http.StatusNotFound, wantErr: ErrEndpointNotFound},
		{name: "500 upstream failure", status: http.StatusInternalServerError, wantErr: ErrRequestFailed},
		{name: "401 upstream rejection", status: http.StatusUnauthorized, wantErr: ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("upstream said no"))
			}))
			defer srv.Close()

			tr := newTransport(t, srv.URL, "query")
			_, err := tr.Request(context.Background(), "https://api.example.com/x", Options{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Request() error = %v, want %v", err, tt.wantErr)
			}

			var httpErr *Error
			if !errors.As(err, &httpErr) {
				t.Fatalf("Request() error = %v, want *Error", err)
			}
			if httpErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", httpErr.Status, tt.status)
			}
		})
	}
}

func TestRoundTripTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, "query")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Request(ctx, "https://api.example.com/x", Options{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request() error = %v, want ErrTimeout", err)
	}
}

func TestRoundTripRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, "query")
	_, err := tr.Request(context.Background(), "https://api.example.com/x", Options{})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("Request() error = %v, want ErrRequestFailed", err)
	}
}
