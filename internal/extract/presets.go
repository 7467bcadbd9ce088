package extract

import (
	"maps"
	"slices"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Built-in preset names.
const (
	PresetGeneric     = "generic"
	PresetShopify     = "shopify"
	PresetWooCommerce = "woocommerce"
	PresetMarketplace = "marketplace"
)

var builtinPresets = map[string]crawler.ExtractionConfig{
	PresetGeneric: {
		Selectors: crawler.Selectors{
			CardSelector:  ".product, .product-item, .product-card, article",
			Title:         ".product-title, .product-name, h2, h3, .title",
			Price:         ".price, .product-price, [itemprop=price]",
			OriginalPrice: ".compare-at-price, .original-price, del, s",
			Image:         "img",
			Description:   ".description, .product-description",
			Link:          "a[href]",
		},
		Pagination: &crawler.Pagination{NextPageSelector: `a[rel="next"], .pagination .next a, a.next`, MaxPages: 5},
	},
	PresetShopify: {
		Selectors: crawler.Selectors{
			ListContainer:        ".collection-products, .product-grid, #product-grid",
			CardSelector:         ".grid__item, .product-card, .card-wrapper",
			Title:                ".card__heading, .product-card__title, .grid-product__title",
			Price:                ".price-item--sale, .price-item--regular, .price",
			OriginalPrice:        ".price-item--regular s, .price__compare s, .compare-at",
			Image:                ".card__media img, .product-card__image img, img",
			AvailabilitySelector: ".badge, .price__badge-sold-out",
			Link:                 "a.full-unstyled-link, a[href*='/products/']",
		},
		Pagination: &crawler.Pagination{NextPageSelector: `a[rel="next"], a.pagination__item--next, link[rel="next"]`, MaxPages: 10},
	},
	PresetWooCommerce: {
		Selectors: crawler.Selectors{
			ListContainer:        "ul.products",
			CardSelector:         "li.product",
			Title:                ".woocommerce-loop-product__title, h2",
			Price:                ".price ins .amount, .price .amount",
			OriginalPrice:        ".price del .amount",
			Image:                "img.attachment-woocommerce_thumbnail, img",
			AvailabilitySelector: ".out-of-stock, .stock",
			Link:                 "a.woocommerce-LoopProduct-link",
		},
		Pagination: &crawler.Pagination{NextPageSelector: "a.next.page-numbers", MaxPages: 10},
	},
	PresetMarketplace: {
		Selectors: crawler.Selectors{
			CardSelector:         `[data-testid="item-cell"], .item-card, .items-box, li[class*="item"]`,
			Title:                `[data-testid="thumbnail-item-name"], .item-name, .items-box-name, [class*="name"]`,
			Price:                `[class*="price"], .items-box-price`,
			Image:                `picture img, img`,
			AvailabilitySelector: `[aria-label*="sold"], .item-sold-out-badge, [class*="sold"]`,
			Link:                 `a[href*="/item/"], a[href]`,
		},
		Pagination: &crawler.Pagination{NextPageSelector: `a[rel="next"], [data-testid="pagination-next-button"] a`, MaxPages: 10},
	},
}

// Presets resolves named extraction configs. Built-ins can be overridden or
// extended from configuration.
type Presets struct {
	byName map[string]crawler.ExtractionConfig
}

// NewPresets merges extra over the built-in presets.
func NewPresets(extra map[string]crawler.ExtractionConfig) *Presets {
	all := maps.Clone(builtinPresets)
	maps.Copy(all, extra)
	return &Presets{byName: all}
}

// Lookup returns a copy of the named preset bound to targetURL, or a
// ConfigError for an unknown name.
func (p *Presets) Lookup(name, targetURL string) (crawler.ExtractionConfig, error) {
	cfg, ok := p.byName[name]
	if !ok {
		return crawler.ExtractionConfig{}, &crawler.ConfigError{Field: "preset", Reason: "unknown preset " + `"` + name + `"`}
	}
	return cfg.WithTarget(targetURL), nil
}

// Names lists preset names in sorted order.
func (p *Presets) Names() []string {
	return slices.Sorted(maps.Keys(p.byName))
}
