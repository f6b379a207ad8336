// Package doaj is a client for the Directory of Open Access Journals search API.
package doaj

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/sources"
)

const (
	// DefaultBaseURL is the base URL of the DOAJ public API.
	DefaultBaseURL = "https://doaj.org/api"

	// DefaultRateLimit is the default requests per second. DOAJ throttles
	// anonymous clients to a couple of requests per second.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL is how long lookups stay cached when a cache is attached.
	DefaultCacheTTL = 24 * time.Hour

	sourceName = "DOAJ"

	maxBodySize = 5 << 20

	cacheKeyPrefix = "doaj:issn:"
)

// Journal is one DOAJ journal record.
type Journal struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PISSN     string `json:"pissn,omitempty"`
	EISSN     string `json:"eissn,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

// Cache stores raw lookup results. Get reports a miss with found=false.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config holds the configuration for the DOAJ client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is optional; DOAJ search does not require one.
	APIKey string

	// Timeout defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxRetries is the retry budget for 429 and 5xx responses.
	MaxRetries int

	// CacheTTL defaults to DefaultCacheTTL if zero.
	CacheTTL time.Duration
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
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// Client queries DOAJ. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	cache      Cache
	logger     zerolog.Logger
}

// New creates a new DOAJ client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := sources.HTTPClientConfig{
		Name:         "doaj",
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
		logger:     zerolog.Nop(),
	}
}

// NewWithHTTPClient creates a new DOAJ client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     zerolog.Nop(),
	}
}

// WithCache attaches a lookup cache. Cache failures are logged and treated as misses.
func (c *Client) WithCache(cache Cache, logger zerolog.Logger) *Client {
	c.cache = cache
	c.logger = observability.WithSourceContext(logger, "doaj", "journals")
	return c
}

// JournalsByISSNs returns every DOAJ journal whose print or electronic ISSN
// is one of issns. An empty slice means none of them is listed.
func (c *Client) JournalsByISSNs(ctx context.Context, issns []string) ([]Journal, error) {
	keys := normaliseISSNs(issns)
	if len(keys) == 0 {
		return nil, nil
	}

	cacheKey := cacheKeyPrefix + strings.Join(keys, ",")
	if journals, ok := c.fromCache(ctx, cacheKey); ok {
		return journals, nil
	}

	terms := make([]string, len(keys))
	for i, issn := range keys {
		terms[i] = "issn:" + strconv.Quote(issn)
	}

	journals, err := c.search(ctx, strings.Join(terms, " OR "), len(keys)*2)
	if err != nil {
		return nil, err
	}

	c.toCache(ctx, cacheKey, journals)
	return journals, nil
}

func (c *Client) search(ctx context.Context, query string, pageSize int) ([]Journal, error) {
	u, err := url.Parse(c.config.BaseURL + "/search/journals/" + url.PathEscape(query))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("pageSize", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req, "search_journals")
	if err != nil {
		return nil, fmt.Errorf("doaj search: %w", err)
	}
	defer resp.Body.Close()

	body, err := sources.ReadBody(resp, maxBodySize)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	journals := make([]Journal, 0, len(result.Results))
	for _, r := range result.Results {
		journals = append(journals, Journal{
			ID:        r.ID,
			Title:     r.Bibjson.Title,
			PISSN:     r.Bibjson.PISSN,
			EISSN:     r.Bibjson.EISSN,
			Publisher: r.Bibjson.Publisher.Name,
		})
	}
	return journals, nil
}

func (c *Client) fromCache(ctx context.Context, key string) ([]Journal, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("doaj cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	var journals []Journal
	if err := json.Unmarshal(data, &journals); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt doaj cache entry")
		return nil, false
	}
	return journals, true
}

func (c *Client) toCache(ctx context.Context, key string, journals []Journal) {
	if c.cache == nil {
		return
	}
	if journals == nil {
		journals = []Journal{}
	}
	data, err := json.Marshal(journals)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.config.CacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("doaj cache write failed")
	}
}

// normaliseISSNs upper-cases, de-duplicates and sorts the non-empty ISSNs so
// the same set always yields the same query and cache key.
func normaliseISSNs(issns []string) []string {
	seen := make(map[string]struct{}, len(issns))
	out := make([]string, 0, len(issns))
	for _, issn := range issns {
		issn = strings.ToUpper(strings.TrimSpace(issn))
		if issn == "" {
			continue
		}
		if _, ok := seen[issn]; ok {
			continue
		}
		seen[issn] = struct{}{}
		out = append(out, issn)
	}
	sort.Strings(out)
	return out
}

type searchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		ID      string `json:"id"`
		Bibjson struct {
			Title     string `json:"title"`
			PISSN     string `json:"pissn"`
			EISSN     string `json:"eissn"`
			Publisher struct {
				Name string `json:"name"`
			} `json:"publisher"`
		} `json:"bibjson"`
	} `json:"results"`
}
