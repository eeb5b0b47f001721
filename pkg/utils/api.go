package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"
)

// API is a small JSON client bound to a base URL. Every request waits on the
// limiter first.
type API struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewAPI returns a client for baseURL. rps <= 0 disables rate limiting.
func NewAPI(baseURL string, rps float64) *API {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &API{
		client:  http.DefaultClient,
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (a *API) BaseURL() string {
	return a.baseURL
}

// Get decodes the JSON body of baseURL+path into v.
func (a *API) Get(ctx context.Context, path string, params url.Values, v any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	resp, err := a.do(ctx, a.baseURL+path, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetBytes downloads an absolute URL and returns the body with its content type.
func (a *API) GetBytes(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := a.do(ctx, rawURL, "*/*")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (a *API) do(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "mangaqueue")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}
