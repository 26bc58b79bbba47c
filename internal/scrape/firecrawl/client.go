// Package firecrawl implements a single scrape attempt against the Firecrawl
// scraping API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/scrape"
)

// DefaultBaseURL is the public Firecrawl v1 endpoint.
const DefaultBaseURL = "https://api.firecrawl.dev/v1"

const maxResponseBytes = 16 << 20

// Config controls the Firecrawl client.
type Config struct {
	APIKey  string
	BaseURL string
	// HTTPClient defaults to a client without a global timeout; per-attempt
	// deadlines come from the caller's context.
	HTTPClient *http.Client
}

// Client implements scrape.Attempter.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ scrape.Attempter = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("firecrawl api key is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  client,
	}, nil
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeData struct {
	Markdown string `json:"markdown"`
	Content  string `json:"content"`
	HTML     string `json:"html"`
}

type scrapeResponse struct {
	Success bool        `json:"success"`
	Data    *scrapeData `json:"data"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
	scrapeData
}

// Attempt performs one POST /scrape call.
func (c *Client) Attempt(ctx context.Context, url string) (monitor.ScrapeResult, error) {
	payload, err := json.Marshal(scrapeRequest{URL: url, Formats: []string{"markdown", "html"}})
	if err != nil {
		return monitor.ScrapeResult{}, scrape.NewPermanent(url, 0, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(payload))
	if err != nil {
		return monitor.ScrapeResult{}, scrape.NewPermanent(url, 0, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return monitor.ScrapeResult{}, scrape.NewTransient(url, 0,
			fmt.Sprintf("firecrawl request failed after %s", time.Since(start).Round(time.Millisecond)), err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return monitor.ScrapeResult{}, scrape.NewTransient(url, resp.StatusCode, "read firecrawl response", err)
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return monitor.ScrapeResult{}, scrape.NewTransient(url, resp.StatusCode, "firecrawl returned invalid JSON response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return monitor.ScrapeResult{}, scrape.FromStatus(url, resp.StatusCode, errorMessage(resp.StatusCode, parsed))
	}

	content := extractContent(parsed)
	if content == "" {
		return monitor.ScrapeResult{}, scrape.NewPermanent(url, resp.StatusCode, "firecrawl returned empty content", nil)
	}
	return monitor.ScrapeResult{RawContent: content, ContentType: "text/markdown"}, nil
}

// extractContent prefers markdown, then plain content, then HTML. Payloads
// without a data envelope are read from the top level.
func extractContent(r scrapeResponse) string {
	data := r.scrapeData
	if r.Data != nil {
		data = *r.Data
	}
	for _, candidate := range []string{data.Markdown, data.Content, data.HTML} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

func errorMessage(status int, r scrapeResponse) string {
	if strings.TrimSpace(r.Error) != "" {
		return r.Error
	}
	if strings.TrimSpace(r.Message) != "" {
		return r.Message
	}
	return fmt.Sprintf("firecrawl request failed with status %d", status)
}
