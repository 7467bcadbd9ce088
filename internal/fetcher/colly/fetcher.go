// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// DefaultTimeout bounds a single page fetch. Walks cover many pages, so a
// stalled page must fail fast.
const DefaultTimeout = 8 * time.Second

// DefaultUserAgents is the rotation pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// Config controls collector behavior.
type Config struct {
	// UserAgents is the pool one agent is drawn from per request. An empty
	// pool falls back to colly's random agent generator.
	UserAgents     []string
	AcceptLanguage string
	Timeout        time.Duration
	// Transport overrides the HTTP transport (tests use httpmock).
	Transport http.RoundTripper
	// Limiter, when set, is waited on before every request.
	Limiter Limiter
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements crawler.Fetcher using the Colly collector. It never
// retries; the caller decides what a failed page means.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	pick          func(n int) int
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.9,ja;q=0.8"
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		pick:          rand.IntN,
		logger:        logger,
	}
}

type fetchState struct {
	page       crawler.Page
	statusCode int
	err        error
}

// Fetch executes a single HTTP GET and returns the page or a classified
// *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
			if ctx.Err() != nil {
				return crawler.Page{}, fmt.Errorf("colly fetch canceled: %w", err)
			}
			return crawler.Page{}, crawler.NewFetchError(url, 0, err)
		}
	}
	state := &fetchState{}
	start := time.Now()
	collector := f.buildCollector(start, state)

	canceled, err := f.runCollector(ctx, collector, url)
	if canceled != nil {
		return crawler.Page{}, fmt.Errorf("colly fetch canceled: %w", canceled)
	}
	if err != nil {
		fe := crawler.NewFetchError(url, state.statusCode, err)
		f.logger.Debug("fetch failed",
			zap.String("url", url),
			zap.String("kind", string(fe.Kind)),
			zap.Int("status_code", fe.StatusCode),
			zap.Duration("elapsed", time.Since(start)))
		return crawler.Page{}, fe
	}
	return state.page, nil
}

func (f *Fetcher) buildCollector(start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	if len(f.cfg.UserAgents) == 0 {
		extensions.RandomUserAgent(collector)
	}

	collector.OnRequest(func(r *colly.Request) {
		if ua := f.userAgent(); ua != "" {
			r.Headers.Set("User-Agent", ua)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		r.Headers.Set("Accept-Encoding", "gzip")
		r.Headers.Set("Connection", "keep-alive")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	collector.OnResponse(func(r *colly.Response) {
		state.statusCode = r.StatusCode
		state.page = crawler.Page{
			URL:        r.Request.URL.String(),
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.statusCode = r.StatusCode
		}
		state.err = err
	})
	return collector
}

func (f *Fetcher) userAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return ""
	}
	return f.cfg.UserAgents[f.pick(len(f.cfg.UserAgents))]
}

// runCollector visits url in the background so ctx can abandon a slow
// request. The first return is non-nil only when ctx ended first; fetch state
// must not be read in that case.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (error, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err(), nil
	case err := <-done:
		return nil, err
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	}
}
