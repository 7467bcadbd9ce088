package extract

import (
	"fmt"

	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// ValidateConfig compiles every selector alternative in cfg so that a
// malformed custom config fails before any page is fetched.
func ValidateConfig(cfg crawler.ExtractionConfig) error {
	fields := []struct {
		name string
		list string
	}{
		{"selectors.list_container", cfg.Selectors.ListContainer},
		{"selectors.card_selector", cfg.Selectors.CardSelector},
		{"selectors.title", cfg.Selectors.Title},
		{"selectors.price", cfg.Selectors.Price},
		{"selectors.original_price", cfg.Selectors.OriginalPrice},
		{"selectors.image", cfg.Selectors.Image},
		{"selectors.description", cfg.Selectors.Description},
		{"selectors.availability_selector", cfg.Selectors.AvailabilitySelector},
		{"selectors.link", cfg.Selectors.Link},
	}
	if cfg.Pagination != nil {
		fields = append(fields, struct {
			name string
			list string
		}{"pagination.next_page_selector", cfg.Pagination.NextPageSelector})
		if cfg.Pagination.MaxPages < 0 {
			return &crawler.ConfigError{Field: "pagination.max_pages", Reason: "must not be negative"}
		}
	}
	for _, f := range fields {
		for _, alt := range SplitSelectors(f.list) {
			if _, err := cascadia.Compile(alt); err != nil {
				return &crawler.ConfigError{Field: f.name, Reason: fmt.Sprintf("selector %q: %v", alt, err)}
			}
		}
	}
	return nil
}

// ValidateRange checks an explicit page range. maxSpan caps the number of
// pages it may cover; zero leaves it uncapped.
func ValidateRange(r *crawler.PageRange, maxSpan int) error {
	if r == nil {
		return nil
	}
	if r.Start < 1 {
		return &crawler.ConfigError{Field: "page_range.start", Reason: "must be at least 1"}
	}
	if r.End < r.Start {
		return &crawler.ConfigError{Field: "page_range.end", Reason: "must not be before start"}
	}
	if maxSpan > 0 && r.End-r.Start+1 > maxSpan {
		return &crawler.ConfigError{Field: "page_range.end", Reason: fmt.Sprintf("range covers more than %d pages", maxSpan)}
	}
	return nil
}
