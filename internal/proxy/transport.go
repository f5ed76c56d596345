package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/arisumika/dormlock-core/internal/infrastructure/config"
)

// Options describes one relayed request.
type Options struct {
	// Method is the HTTP method the proxy should use against the
	// target. Defaults to POST when empty; only GET and POST are used
	// by the vendor API.
	Method string

	// Body is the JSON-encodable payload forwarded to the target.
	// May be nil for bodyless requests.
	Body any

	// Headers are forwarded to the target (the three vendor auth
	// headers in practice). How they travel depends on the variant.
	Headers map[string]string
}

// Transport relays a request to a target URL through the proxy and
// returns the JSON-decoded response body verbatim.
//
// Schema validation is the caller's responsibility; the transport
// guarantees only that the bytes were valid JSON.
type Transport interface {
	Request(ctx context.Context, targetURL string, opts Options) (json.RawMessage, error)
}

// New creates the Transport selected by configuration.
//
// Returns ErrNotConfigured (with setup instructions) when no proxy URL
// is resolvable from configuration, and rejects unknown variants.
func New(cfg config.ProxyConfig) (Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: set proxy.url or DORMLOCK_PROXY_URL "+
			"(e.g. https://yunmei.arisumika.top/proxy)", ErrNotConfigured)
	}

	client := &http.Client{Timeout: cfg.GetProxyTimeout()}

	switch cfg.Variant {
	case "", "query":
		return &queryTransport{proxyURL: cfg.URL, client: client}, nil
	case "envelope":
		return &envelopeTransport{proxyURL: cfg.URL, client: client}, nil
	default:
		return nil, fmt.Errorf("%w: unknown proxy variant %q", ErrNotConfigured, cfg.Variant)
	}
}

// roundTrip executes the prepared request and applies the shared
// response policy: classify non-2xx, bound diagnostics, decode JSON.
func roundTrip(client *http.Client, req *http.Request, proxyURL string) (json.RawMessage, error) {
	resp, err := client.Do(req)
	if err != nil {
		var timeoutErr interface{ Timeout() bool }
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		case errors.As(err, &timeoutErr) && timeoutErr.Timeout():
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, body, proxyURL)
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}
	return raw, nil
}

// normalizeMethod applies the POST default shared by both variants.
func normalizeMethod(method string) string {
	if method == "" {
		return http.MethodPost
	}
	return method
}
