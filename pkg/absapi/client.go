// Package absapi is a client for the ABS statistics query API: dataset
// concept discovery, code list retrieval, and filtered data queries returning
// delimited text.
package absapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://stat.abs.gov.au/itt/query.jsp"

// CodeEntry is one selectable value of a concept's code list. ParentCode
// links entries into a tree; root entries carry an empty parent.
type CodeEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	ParentCode  string `json:"parentCode"`
}

// Client queries the ABS statistics API.
type Client interface {
	// GetDatasetConcepts lists the filterable concept codes of a dataset.
	GetDatasetConcepts(ctx context.Context, datasetID string) ([]string, error)

	// GetCodeListValue returns the code list for one concept of a dataset.
	GetCodeListValue(ctx context.Context, datasetID, concept string) ([]CodeEntry, error)

	// DataURL builds the deterministic query URL for one combination of
	// concept.code filters. Callers key their result caches by this URL.
	DataURL(datasetID string, and []string) string

	// GetGenericData fetches a data query URL and returns the delimited text
	// payload (region id and Value columns).
	GetGenericData(ctx context.Context, dataURL string) (string, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an ABS API client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type conceptsResponse struct {
	Concepts []string `json:"concepts"`
}

func (c *client) GetDatasetConcepts(ctx context.Context, datasetID string) ([]string, error) {
	params := url.Values{
		"method":    {"GetDatasetConcepts"},
		"datasetid": {datasetID},
		"format":    {"json"},
	}

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "absapi: concepts for %s", datasetID)
	}

	var resp conceptsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "absapi: parse concepts for %s", datasetID)
	}
	if len(resp.Concepts) == 0 {
		return nil, eris.Errorf("absapi: dataset %s has no concepts", datasetID)
	}
	return resp.Concepts, nil
}

type codeListResponse struct {
	Codes []CodeEntry `json:"codes"`
}

func (c *client) GetCodeListValue(ctx context.Context, datasetID, concept string) ([]CodeEntry, error) {
	params := url.Values{
		"method":    {"GetCodeListValue"},
		"datasetid": {datasetID},
		"concept":   {concept},
		"format":    {"json"},
	}

	body, err := c.get(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "absapi: code list %s/%s", datasetID, concept)
	}

	var resp codeListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "absapi: parse code list %s/%s", datasetID, concept)
	}
	return resp.Codes, nil
}

// DataURL builds the GetGenericData URL for one cross-product combination.
// The and clauses are joined in caller order, which is deterministic per
// concept tree walk, so equal selections always produce equal URLs.
func (c *client) DataURL(datasetID string, and []string) string {
	params := url.Values{
		"method":    {"GetGenericData"},
		"datasetid": {datasetID},
		"and":       {strings.Join(and, ",")},
		"or":        {"REGION"},
		"format":    {"csv"},
	}
	return c.baseURL + "?" + params.Encode()
}

func (c *client) GetGenericData(ctx context.Context, dataURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "absapi: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dataURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "absapi: build data request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "absapi: data request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("absapi: data query returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "absapi: read data response")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", eris.New("absapi: empty data response")
	}
	return string(body), nil
}

func (c *client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit")
	}

	reqURL := c.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	return body, nil
}
