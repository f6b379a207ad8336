// Package oag is a client for the open access grabber licence lookup API.
package oag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/sources"
)

const (
	// DefaultBaseURL is the base URL of the lookup service.
	DefaultBaseURL = "https://howopenisit.org"

	// DefaultRateLimit is the default requests per second.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is generous because the API resolves licences inline
	// for identifiers it has cached.
	DefaultTimeout = 2 * time.Minute

	sourceName = "OAG"

	maxBodySize = 20 << 20
)

// Config holds the configuration for the lookup client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// Timeout defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxRetries is the retry budget for 429 and 5xx responses.
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// Client posts identifier batches to the lookup API. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// New creates a new lookup client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := sources.HTTPClientConfig{
		Name:         "oag",
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		MaxRetries:   cfg.MaxRetries,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "X-API-Key",
	}

	return &Client{
		config:     cfg,
		httpClient: sources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new lookup client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Lookup submits one batch of identifiers. Identifiers the service is still
// working on come back in Response.Processing and should be asked for again.
func (c *Client) Lookup(ctx context.Context, items []domain.LookupItem) (*Response, error) {
	if len(items) == 0 {
		return &Response{}, nil
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/lookup", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req, "lookup")
	if err != nil {
		return nil, fmt.Errorf("oag lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := sources.ReadBody(resp, maxBodySize)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse lookup response: %w", err)
	}
	return &out, nil
}
