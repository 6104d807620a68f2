// Package facts fetches agents' self-hosted capability documents. Documents
// are fetched on demand and never cached beyond their TTL by this service.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentnet/discovery/domain"
)

// Client fetches capability documents over HTTP.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a facts client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves and parses the capability document at url. The raw body
// is returned alongside the parsed subset so callers can relay the full
// document without re-fetching.
func (c *Client) Fetch(ctx context.Context, url string) (*domain.CapabilityDoc, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: capability document at %s returned status %d",
			domain.ErrUpstreamUnavailable, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	var doc domain.CapabilityDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed capability document: %v",
			domain.ErrUpstreamUnavailable, err)
	}
	return &doc, body, nil
}
