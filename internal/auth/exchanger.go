package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/d2c-launcher/coordinator/internal/errors"
)

const (
	// DefaultTimeout bounds one exchange request.
	DefaultTimeout = 10 * time.Second

	maxBody = 64 << 10
)

// Exchanger swaps a session credential for a backend access token.
type Exchanger interface {
	Exchange(ctx context.Context, credential string) (string, error)
}

// HTTPExchanger calls the backend's credential exchange endpoint.
type HTTPExchanger struct {
	endpoint   *url.URL
	httpClient *http.Client
}

// ExchangerOption configures an HTTPExchanger.
type ExchangerOption func(*HTTPExchanger)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ExchangerOption {
	return func(e *HTTPExchanger) {
		if timeout > 0 {
			e.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ExchangerOption {
	return func(e *HTTPExchanger) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// NewHTTPExchanger creates an exchanger for baseURL joined with path.
func NewHTTPExchanger(baseURL, path string, opts ...ExchangerOption) (*HTTPExchanger, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse exchange path: %w", err)
	}

	e := &HTTPExchanger{
		endpoint:   base.ResolveReference(ref),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Endpoint returns the exchange URL without a credential.
func (e *HTTPExchanger) Endpoint() string { return e.endpoint.String() }

// Exchange posts credential as the ticket query parameter. A 2xx response
// whose body is a JSON string or bare text is the token; anything else
// fails.
func (e *HTTPExchanger) Exchange(ctx context.Context, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", errors.NewExchangeError("empty credential", 0, errors.ErrInvalidInput)
	}

	u := *e.endpoint
	q := u.Query()
	q.Set("ticket", credential)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.ErrCanceled, "exchange")
		}
		return "", errors.NewExchangeError("send request", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.ErrCanceled, "exchange")
		}
		return "", errors.NewExchangeError("read response", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.NewExchangeError(
			fmt.Sprintf("unexpected status %s", resp.Status),
			resp.StatusCode,
			errors.ErrExchangeRejected,
		)
	}

	token, err := ParseTokenBody(body)
	if err != nil {
		return "", errors.NewExchangeError("bad token body", resp.StatusCode, err)
	}
	return token, nil
}

// ParseTokenBody extracts a token from a JSON string or bare, possibly
// quoted, text.
func ParseTokenBody(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "", errors.ErrEmptyToken
	}

	var token string
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		token = strings.Trim(raw, `"`)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.ErrEmptyToken
	}
	return token, nil
}
