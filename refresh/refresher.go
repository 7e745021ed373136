package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrRefreshRejected is returned for a non-2xx refresh response.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrRefreshMalformed is returned when a 2xx response carries no token.
	ErrRefreshMalformed = errors.New("refresh response malformed")
	// ErrRefreshUnavailable wraps transport failures.
	ErrRefreshUnavailable = errors.New("refresh endpoint unavailable")
)

const maxResponseBytes = 64 << 10

// Refresher obtains a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Func adapts a function to Refresher.
type Func func(ctx context.Context) (string, error)

// Refresh implements Refresher.
func (f Func) Refresh(ctx context.Context) (string, error) {
	return f(ctx)
}

// StatusError carries the status of a rejected refresh.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrRefreshRejected, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrRefreshRejected
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// HTTPRefresher calls the refresh endpoint over HTTP.
type HTTPRefresher struct {
	client *http.Client
	url    string
}

// NewHTTPRefresher creates a refresher posting to url with client. The
// client's cookie jar supplies the ambient credential. A nil client uses
// http.DefaultClient.
func NewHTTPRefresher(client *http.Client, url string) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRefresher{
		client: client,
		url:    url,
	}
}

// URL returns the refresh endpoint.
func (r *HTTPRefresher) URL() string {
	return r.url
}

// Refresh implements Refresher.
func (r *HTTPRefresher) Refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshMalformed, err)
	}
	token := strings.TrimSpace(body.AccessToken)
	if token == "" {
		return "", ErrRefreshMalformed
	}
	return token, nil
}
