// Package epmc is a client for the Europe PMC REST API: metadata search and
// fulltext XML retrieval.
package epmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/sources"
)

const (
	// DefaultBaseURL is the base URL for the Europe PMC REST service.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize caps the hits returned per search. Anything above one
	// hit is ambiguous to the pipeline, so a small page is enough.
	DefaultPageSize = 25

	sourceName = "EPMC"

	maxBodySize = 10 << 20
)

// Config holds the configuration for the EPMC client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// Timeout defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxRetries is the retry budget for 429 and 5xx responses.
	MaxRetries int

	// PageSize defaults to DefaultPageSize if zero.
	PageSize int
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
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
}

// Client queries Europe PMC. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// New creates a new EPMC client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := sources.HTTPClientConfig{
		Name:       "epmc",
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
	}

	return &Client{
		config:     cfg,
		httpClient: sources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new EPMC client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// GetByPMCID returns the records EPMC holds for a PMCID.
func (c *Client) GetByPMCID(ctx context.Context, pmcid string) ([]Metadata, error) {
	return c.Search(ctx, "PMCID:"+pmcid)
}

// GetByPMID returns the MEDLINE records EPMC holds for a PMID.
func (c *Client) GetByPMID(ctx context.Context, pmid string) ([]Metadata, error) {
	return c.Search(ctx, "EXT_ID:"+pmid+" AND SRC:MED")
}

// GetByDOI returns the records EPMC holds for a DOI.
func (c *Client) GetByDOI(ctx context.Context, doi string) ([]Metadata, error) {
	return c.Search(ctx, `DOI:"`+quote(doi)+`"`)
}

// TitleExact returns records whose title matches the phrase exactly.
func (c *Client) TitleExact(ctx context.Context, title string) ([]Metadata, error) {
	return c.Search(ctx, `TITLE:"`+quote(title)+`"`)
}

// TitleApproximate returns records whose title contains all the words of title.
func (c *Client) TitleApproximate(ctx context.Context, title string) ([]Metadata, error) {
	words := strings.FieldsFunc(title, func(r rune) bool {
		return !(r == '-' || r == '\'' || isAlnum(r))
	})
	if len(words) == 0 {
		return nil, nil
	}
	return c.Search(ctx, "TITLE:("+strings.Join(words, " ")+")")
}

// Search runs a raw EPMC query and returns every hit on the first page.
func (c *Client) Search(ctx context.Context, query string) ([]Metadata, error) {
	u, err := url.Parse(c.config.BaseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("query", query)
	q.Set("format", "json")
	q.Set("resultType", "core")
	q.Set("pageSize", strconv.Itoa(c.config.PageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req, "search")
	if err != nil {
		return nil, fmt.Errorf("epmc search: %w", err)
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

	mds := make([]Metadata, 0, len(result.ResultList.Result))
	for _, r := range result.ResultList.Result {
		mds = append(mds, r.toMetadata())
	}
	return mds, nil
}

// Fulltext fetches and parses the JATS fulltext XML for a PMCID. A 404
// means EPMC holds no fulltext and is reported as a NotFoundError.
func (c *Client) Fulltext(ctx context.Context, pmcid string) (*Fulltext, error) {
	endpoint := c.config.BaseURL + "/" + url.PathEscape(pmcid) + "/fullTextXML"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req, "fulltext")
	if err != nil {
		return nil, fmt.Errorf("epmc fulltext: %w", err)
	}
	defer resp.Body.Close()

	body, err := sources.ReadBody(resp, maxBodySize)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewNotFoundError("fulltext", pmcid)
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	return ParseFulltext(body)
}

func quote(s string) string {
	return strings.ReplaceAll(s, `"`, ` `)
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127
}
