// Package search discovers source URLs and images through Google Custom Search.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"livecast/internal/logging"
)

// DefaultEndpoint is the Custom Search JSON API endpoint.
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// ErrQuotaExceeded is returned when the API answers 429.
var ErrQuotaExceeded = errors.New("custom search quota exceeded")

// Config configures the client.
type Config struct {
	Endpoint     string
	APIKey       string
	EngineID     string
	DateRestrict string
	Timeout      time.Duration
}

// Client calls the Custom Search API and counts calls across the process.
type Client struct {
	cfg        Config
	httpClient *http.Client
	calls      atomic.Int64
}

// NewClient creates a search client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type searchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

// Search returns up to n result links for query. With images set it runs an
// image search. A non-200 answer or an empty result yields an empty list.
func (c *Client) Search(ctx context.Context, query string, n int, images bool) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("num", strconv.Itoa(n))
	if c.cfg.DateRestrict != "" {
		params.Set("dateRestrict", c.cfg.DateRestrict)
	}
	if images {
		params.Set("searchType", "image")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	count := c.calls.Add(1)
	logging.SearchDebug("CSE call #%d: q=%q num=%d images=%v", count, query, n, images)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		logging.SearchWarn("CSE returned %d for %q", resp.StatusCode, query)
		return []string{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	links := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	if len(links) == 0 {
		logging.Search("no results for %q", query)
	}
	return links, nil
}

// Count returns the number of API calls since the last reset.
func (c *Client) Count() int64 {
	return c.calls.Load()
}

// ResetCount zeroes the call counter.
func (c *Client) ResetCount() {
	c.calls.Store(0)
}
