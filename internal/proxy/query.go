package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// queryTransport implements the query-addressed proxy wire format.
//
// The target URL and method ride as query parameters on the proxy
// endpoint; the payload is sent as a JSON body and caller headers are
// merged into the outbound request headers.
type queryTransport struct {
	proxyURL string
	client   *http.Client
}

// Request implements Transport.
func (t *queryTransport) Request(ctx context.Context, targetURL string, opts Options) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("targetUrl", targetURL)
	params.Set("method", normalizeMethod(opts.Method))

	var body *bytes.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding payload: %w", ErrRequestFailed, err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.proxyURL+"?"+params.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}

	req.Header.Set("Content-Type", "application/json")
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}

	return roundTrip(t.client, req, t.proxyURL)
}
