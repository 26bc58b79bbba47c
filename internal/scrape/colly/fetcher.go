// Package collyscrape implements a direct page fetch attempt using gocolly,
// reducing HTML pages to their visible text with goquery.
package collyscrape

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/scrape"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodySize   int
	// OnRobotsFallback is called when robots.txt timed out repeatedly and
	// the page was fetched as if robots allowed it.
	OnRobotsFallback func(host string)
}

// Fetcher implements scrape.Attempter using the Colly collector.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

var _ scrape.Attempter = (*Fetcher)(nil)

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newRobotsTransport(newHTTPTransport(), cfg.OnRobotsFallback))
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	return &Fetcher{cfg: cfg, base: c}
}

type visitResult struct {
	mu          sync.Mutex
	status      int
	contentType string
	body        []byte
	err         error
}

// Attempt performs a single GET of url and returns its visible text.
func (f *Fetcher) Attempt(ctx context.Context, url string) (monitor.ScrapeResult, error) {
	collector := f.buildCollector()
	collector.Context = ctx
	res := &visitResult{}
	collector.OnResponse(func(r *colly.Response) {
		res.mu.Lock()
		defer res.mu.Unlock()
		res.status = r.StatusCode
		res.contentType = r.Headers.Get("Content-Type")
		res.body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		res.mu.Lock()
		defer res.mu.Unlock()
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The request carries ctx, so Visit returns promptly once it is
		// canceled; waiting keeps at most one fetch in flight per attempt.
		<-done
		return monitor.ScrapeResult{}, scrape.NewTransient(url, 0, "fetch canceled", ctx.Err())
	case visitErr := <-done:
		res.mu.Lock()
		defer res.mu.Unlock()
		return f.classify(url, visitErr, res)
	}
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) classify(url string, visitErr error, res *visitResult) (monitor.ScrapeResult, error) {
	if res.status >= http.StatusBadRequest {
		return monitor.ScrapeResult{}, scrape.FromStatus(url, res.status, "")
	}
	if visitErr != nil || res.err != nil {
		cause := visitErr
		if cause == nil {
			cause = res.err
		}
		if errors.Is(cause, colly.ErrRobotsTxtBlocked) ||
			errors.Is(cause, colly.ErrForbiddenURL) ||
			errors.Is(cause, colly.ErrMissingURL) {
			return monitor.ScrapeResult{}, scrape.NewPermanent(url, res.status, "fetch rejected", cause)
		}
		return monitor.ScrapeResult{}, scrape.NewTransient(url, res.status, "fetch failed", cause)
	}

	text, contentType, err := ExtractText(res.body, res.contentType)
	if err != nil {
		return monitor.ScrapeResult{}, scrape.NewTransient(url, res.status, "malformed response body", err)
	}
	if strings.TrimSpace(text) == "" {
		return monitor.ScrapeResult{}, scrape.NewPermanent(url, res.status, "empty extracted content", nil)
	}
	return monitor.ScrapeResult{RawContent: text, ContentType: contentType}, nil
}

// ExtractText reduces an HTML body to its visible text. Non-HTML bodies are
// returned unchanged.
func ExtractText(body []byte, contentType string) (string, string, error) {
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return string(body), contentType, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err //nolint:wrapcheck // classified by caller
	}
	doc.Find("script, style, noscript, template").Remove()
	selection := doc.Find("body")
	if selection.Length() == 0 {
		selection = doc.Selection
	}
	return selection.Text(), "text/plain", nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
