// Package regionprov enumerates canonical region identifiers from a WFS-style
// region map server.
package regionprov

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://geoserver.ausmap.io/region_map/ows"

// Client fetches the ordered identifier list for a region boundary dataset.
type Client interface {
	// EnumerateIDs returns every value of the given property across the
	// dataset, in server order.
	EnumerateIDs(ctx context.Context, dataset, property string) ([]int, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the region map server endpoint.
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

// WithRateLimit sets the requests-per-second limit for server calls.
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

// NewClient creates a region map client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnumerateIDs issues a GetPropertyValue request and parses the returned
// value collection.
func (c *client) EnumerateIDs(ctx context.Context, dataset, property string) ([]int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "regionprov: rate limit")
	}

	params := url.Values{
		"service":        {"wfs"},
		"version":        {"2.0"},
		"request":        {"GetPropertyValue"},
		"typenames":      {dataset},
		"valueReference": {property},
	}
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "regionprov: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "regionprov: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("regionprov: server returned status %d for %s", resp.StatusCode, dataset)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "regionprov: read body")
	}

	ids, err := parseValueCollection(body)
	if err != nil {
		return nil, eris.Wrapf(err, "regionprov: parse response for %s", dataset)
	}
	return ids, nil
}

// parseValueCollection extracts member values from a WFS ValueCollection
// document. Member element names are namespaced per dataset, so the parser
// walks tokens and collects the character data of each member's child.
func parseValueCollection(body []byte) ([]int, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(body)))

	var ids []int
	depth := 0
	memberDepth := -1
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "decode xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Local == "member" && memberDepth < 0 {
				memberDepth = depth
			}
		case xml.EndElement:
			if depth == memberDepth {
				memberDepth = -1
			}
			depth--
		case xml.CharData:
			if memberDepth < 0 {
				continue
			}
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			id, convErr := strconv.Atoi(text)
			if convErr != nil {
				// Non-numeric identifiers are skipped; the registry only
				// declares numerically keyed region types.
				continue
			}
			ids = append(ids, id)
		}
	}

	return ids, nil
}
