// Package pagination walks multi-page catalogs one page at a time.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
)

// Defaults applied when Options fields are zero.
const (
	DefaultPageDelay  = 1500 * time.Millisecond
	DefaultDedupeSize = 4096
	DefaultPageParam  = "page"
)

// Options tune a Walker.
type Options struct {
	// PageDelay is enforced between consecutive fetches of one walk. A
	// negative value disables it.
	PageDelay  time.Duration
	DedupeSize int
}

// PageEvent describes one successfully fetched page.
type PageEvent struct {
	Number   int
	URL      string
	Page     crawler.Page
	Strategy crawler.Strategy
	Records  int
}

// PageHook observes fetched pages. It must not block for long.
type PageHook func(ctx context.Context, ev PageEvent)

// Result is everything a walk accumulated, including on early exit.
type Result struct {
	Records      []crawler.ScrapedRecord
	PagesFetched int
	Failures     []crawler.PageFailure
	Duplicates   int
}

// Walker drives the fetch, extract and advance loop. Pages are fetched
// strictly sequentially with a pause in between.
type Walker struct {
	fetcher   crawler.Fetcher
	extractor *extract.Extractor
	pauser    crawler.Pauser
	opts      Options
	logger    *zap.Logger
	hook      PageHook
}

// New constructs a Walker. pauser may be nil for the timer default.
func New(fetcher crawler.Fetcher, extractor *extract.Extractor, pauser crawler.Pauser, opts Options, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = DefaultPageDelay
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = DefaultDedupeSize
	}
	return &Walker{fetcher: fetcher, extractor: extractor, pauser: pauser, opts: opts, logger: logger}
}

// WithHook returns a copy of w that reports every fetched page to hook.
func (w *Walker) WithHook(hook PageHook) *Walker {
	cp := *w
	cp.hook = hook
	return &cp
}

// Walk crawls cfg.TargetURL. With a page range it synthesizes page-numbered
// URLs and skips failed pages; otherwise it follows the next-page link up to
// cfg.MaxPages and stops at the first failure. Only a failure on the first
// page is returned as an error. When ctx ends, the partial result is
// returned together with the context error.
func (w *Walker) Walk(ctx context.Context, cfg crawler.ExtractionConfig, pageRange *crawler.PageRange) (Result, error) {
	seen, err := lru.New[string, struct{}](w.opts.DedupeSize)
	if err != nil {
		return Result{}, fmt.Errorf("dedupe cache: %w", err)
	}
	state := &walkState{seen: seen}
	if pageRange != nil {
		err = w.walkRange(ctx, cfg, *pageRange, state)
	} else {
		err = w.walkLinks(ctx, cfg, state)
	}
	return state.result, err
}

type walkState struct {
	result Result
	seen   *lru.Cache[string, struct{}]
}

func (w *Walker) walkLinks(ctx context.Context, cfg crawler.ExtractionConfig, state *walkState) error {
	current := cfg.TargetURL
	visited := map[string]struct{}{normalized(current): {}}
	maxPages := cfg.MaxPages()

	for n := 1; n <= maxPages; n++ {
		if n > 1 {
			if err := w.pause(ctx); err != nil {
				return err
			}
		}
		doc, err := w.visit(ctx, cfg, n, current, state)
		if err != nil {
			if n == 1 || ctx.Err() != nil {
				return err
			}
			w.logger.Warn("aborting link walk after page failure",
				zap.String("url", current), zap.Int("page", n), zap.Error(err))
			return nil
		}
		next := nextPageURL(doc, cfg, current)
		if next == "" {
			return nil
		}
		key := normalized(next)
		if _, loop := visited[key]; loop {
			w.logger.Debug("next link revisits a page, stopping", zap.String("url", next))
			return nil
		}
		visited[key] = struct{}{}
		current = next
	}
	return nil
}

func (w *Walker) walkRange(ctx context.Context, cfg crawler.ExtractionConfig, pr crawler.PageRange, state *walkState) error {
	param := DefaultPageParam
	if cfg.Pagination != nil && cfg.Pagination.PageParam != "" {
		param = cfg.Pagination.PageParam
	}
	for n := pr.Start; n <= pr.End; n++ {
		if n > pr.Start {
			if err := w.pause(ctx); err != nil {
				return err
			}
		}
		pageURL, err := crawler.PageURL(cfg.TargetURL, param, n)
		if err != nil {
			return &crawler.ConfigError{Field: "target_url", Reason: err.Error()}
		}
		if _, err := w.visit(ctx, cfg, n, pageURL, state); err != nil {
			if n == pr.Start || ctx.Err() != nil {
				return err
			}
			w.logger.Warn("skipping failed page", zap.String("url", pageURL), zap.Int("page", n), zap.Error(err))
		}
	}
	return nil
}

// visit fetches and extracts one page. Failures are recorded on state and
// returned so the caller can apply its mode's policy.
func (w *Walker) visit(ctx context.Context, cfg crawler.ExtractionConfig, n int, pageURL string, state *walkState) (*goquery.Document, error) {
	page, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("walk interrupted at page %d: %w", n, ctxErr)
		}
		state.result.Failures = append(state.result.Failures, failureFor(pageURL, n, err))
		return nil, fmt.Errorf("page %d: %w", n, err)
	}
	state.result.PagesFetched++

	doc, err := extract.Parse(page.Body)
	if err != nil {
		state.result.Failures = append(state.result.Failures, failureFor(pageURL, n, err))
		return nil, fmt.Errorf("page %d: %w", n, err)
	}
	outcome := w.extractor.Extract(doc, pageURL, cfg)
	for _, rec := range outcome.Records {
		key := rec.Key()
		if ok, _ := state.seen.ContainsOrAdd(key, struct{}{}); ok {
			state.result.Duplicates++
			continue
		}
		state.result.Records = append(state.result.Records, rec)
	}
	w.logger.Info("page scraped",
		zap.String("url", pageURL),
		zap.Int("page", n),
		zap.String("strategy", string(outcome.Strategy)),
		zap.Int("records", len(outcome.Records)))
	if w.hook != nil {
		w.hook(ctx, PageEvent{Number: n, URL: pageURL, Page: page, Strategy: outcome.Strategy, Records: len(outcome.Records)})
	}
	return doc, nil
}

func (w *Walker) pause(ctx context.Context) error {
	if w.opts.PageDelay < 0 {
		return ctx.Err()
	}
	if err := w.pauser.Pause(ctx, w.opts.PageDelay); err != nil {
		return fmt.Errorf("walk interrupted between pages: %w", err)
	}
	return nil
}

// nextPageURL resolves the configured next-page link against current.
func nextPageURL(doc *goquery.Document, cfg crawler.ExtractionConfig, current string) string {
	if cfg.Pagination == nil || cfg.Pagination.NextPageSelector == "" {
		return ""
	}
	for _, alt := range extract.SplitSelectors(cfg.Pagination.NextPageSelector) {
		var href string
		doc.Find(alt).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr("href"); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(strings.TrimSpace(v), "#") {
				href = v
				return false
			}
			if v, ok := s.Find("a[href]").First().Attr("href"); ok && strings.TrimSpace(v) != "" {
				href = v
				return false
			}
			return true
		})
		if href == "" {
			continue
		}
		abs, err := crawler.Resolve(current, href)
		if err != nil || strings.HasPrefix(strings.ToLower(abs), "javascript:") {
			continue
		}
		return abs
	}
	return ""
}

func normalized(raw string) string {
	if n, err := crawler.NormalizeURL(raw); err == nil {
		return n
	}
	return raw
}

func failureFor(pageURL string, n int, err error) crawler.PageFailure {
	f := crawler.PageFailure{
		URL:     pageURL,
		Page:    n,
		Kind:    string(crawler.FailureKindOf(err)),
		Message: err.Error(),
	}
	var fe *crawler.FetchError
	if errors.As(err, &fe) {
		f.StatusCode = fe.StatusCode
	}
	return f
}
