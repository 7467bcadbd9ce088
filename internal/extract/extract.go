package extract

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Bounds on the heuristic passes.
const (
	GenericCandidateLimit = 20
	GenericRecordLimit    = 5
	namePrefixLen         = 20
	pageImageScanLimit    = 10
)

// Options are site-independent extraction settings.
type Options struct {
	// CurrencyRate converts structured-data prices that carry a currency code.
	// Zero or negative leaves prices unconverted.
	CurrencyRate float64
	// DefaultBrand fills records with no brand of their own.
	DefaultBrand string
	// ImageWidth replaces size tokens such as {width} in image URLs.
	ImageWidth int
}

// Extractor runs the layered extraction strategies over parsed pages.
type Extractor struct {
	opts   Options
	seq    crawler.Sequence
	logger *zap.Logger
}

// New constructs an Extractor. seq numbers selector-derived records and is
// owned by the caller; nil gets a fresh counter.
func New(opts Options, seq crawler.Sequence, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if seq == nil {
		seq = crawler.NewCounter(0)
	}
	if opts.ImageWidth <= 0 {
		opts.ImageWidth = DefaultImageWidth
	}
	return &Extractor{opts: opts, seq: seq, logger: logger}
}

// Outcome is the result of extracting one page.
type Outcome struct {
	Records  []crawler.ScrapedRecord
	Strategy crawler.Strategy
}

// Parse builds a document from raw markup.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &crawler.ParseError{Source: "html", Err: err}
	}
	return doc, nil
}

// Extract tries structured data, then configured selectors, then the generic
// pass, and stops at the first strategy that yields records. An empty outcome
// is a valid result, not an error.
func (e *Extractor) Extract(doc *goquery.Document, sourceURL string, cfg crawler.ExtractionConfig) Outcome {
	cfg.TargetURL = sourceURL
	strategies := []struct {
		name crawler.Strategy
		run  func() []crawler.ScrapedRecord
	}{
		{crawler.StrategyStructured, func() []crawler.ScrapedRecord { return e.ExtractStructured(doc, sourceURL) }},
		{crawler.StrategySelectors, func() []crawler.ScrapedRecord { return e.ExtractBySelectors(doc, cfg) }},
		{crawler.StrategyGeneric, func() []crawler.ScrapedRecord { return e.ExtractGeneric(doc, cfg) }},
	}
	for _, s := range strategies {
		if records := s.run(); len(records) > 0 {
			e.logger.Debug("extracted records",
				zap.String("url", sourceURL),
				zap.String("strategy", string(s.name)),
				zap.Int("count", len(records)))
			return Outcome{Records: records, Strategy: s.name}
		}
	}
	e.logger.Debug("no products found", zap.String("url", sourceURL))
	return Outcome{Strategy: crawler.StrategyNone}
}
