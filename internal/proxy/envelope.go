package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// legacyFormMarker identifies the PHP deployment of the envelope
// proxy, which only accepts form-urlencoded bodies. Every other
// envelope proxy speaks JSON.
const legacyFormMarker = "proxyHTTP.php"

// envelope is the single-body wire format of the legacy proxy.
// Headers travel as an ordered sequence of raw "name: value" strings,
// not a map.
type envelope struct {
	Method string   `json:"method"`
	URL    string   `json:"url"`
	Data   any      `json:"data,omitempty"`
	Header []string `json:"header,omitempty"`
	Cookie string   `json:"cookie,omitempty"`
}

// envelopeTransport implements the enveloped proxy wire format.
type envelopeTransport struct {
	proxyURL string
	client   *http.Client
}

// Request implements Transport.
func (t *envelopeTransport) Request(ctx context.Context, targetURL string, opts Options) (json.RawMessage, error) {
	env := envelope{
		Method: strings.ToLower(normalizeMethod(opts.Method)),
		URL:    targetURL,
		Data:   opts.Body,
		Header: headerLines(opts.Headers),
	}

	var req *http.Request
	var err error
	if strings.Contains(t.proxyURL, legacyFormMarker) {
		req, err = t.buildFormRequest(ctx, env)
	} else {
		req, err = t.buildJSONRequest(ctx, env)
	}
	if err != nil {
		return nil, err
	}

	return roundTrip(t.client, req, t.proxyURL)
}

// buildJSONRequest packs the envelope as an application/json body.
func (t *envelopeTransport) buildJSONRequest(ctx context.Context, env envelope) (*http.Request, error) {
	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding envelope: %w", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.proxyURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// buildFormRequest packs the envelope as an
// application/x-www-form-urlencoded body for the PHP proxy. Data and
// header fields are JSON-encoded strings within the form, matching
// what that proxy json_decodes on its side.
func (t *envelopeTransport) buildFormRequest(ctx context.Context, env envelope) (*http.Request, error) {
	form := url.Values{}
	form.Set("method", env.Method)
	form.Set("url", env.URL)

	if env.Data != nil {
		encoded, err := json.Marshal(env.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding payload: %w", ErrRequestFailed, err)
		}
		form.Set("data", string(encoded))
	}

	if len(env.Header) > 0 {
		encoded, err := json.Marshal(env.Header)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding headers: %w", ErrRequestFailed, err)
		}
		form.Set("header", string(encoded))
	}

	if env.Cookie != "" {
		form.Set("cookie", env.Cookie)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.proxyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// headerLines converts a header map to the envelope's "name: value"
// line sequence. Lines are sorted by name so the same request always
// produces the same envelope.
func headerLines(headers map[string]string) []string {
	if len(headers) == 0 {
		return nil
	}
	lines := make([]string, 0, len(headers))
	for name, value := range headers {
		lines = append(lines, name+": "+value)
	}
	sort.Strings(lines)
	return lines
}
