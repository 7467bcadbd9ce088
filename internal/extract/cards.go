package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Generic selectors used when no card selector is configured.
const (
	defaultCardSelector = ".product, .product-item, .product-card, article"
	genericCardSelector = `[class*="product"], [class*="item"], [class*="card"], article, li:has(a[href*="/product"]), li:has(a[href*="/item"]), a[href*="/products/"], a[href*="/item/"]`
	genericTitle        = `h1, h2, h3, h4, [class*="title"], [class*="name"], a[title], img[alt]`
	genericPrice        = `[class*="price"], [itemprop="price"], [data-price]`
	genericImage        = "img"
	genericLink         = "a[href]"
)

// ExtractBySelectors applies cfg's selectors to the page. Title is the only
// validity gate: cards without one are dropped and everything else is
// optional.
func (e *Extractor) ExtractBySelectors(doc *goquery.Document, cfg crawler.ExtractionConfig) []crawler.ScrapedRecord {
	var records []crawler.ScrapedRecord
	e.candidates(doc, cfg.Selectors).Each(func(_ int, card *goquery.Selection) {
		if rec, ok := e.recordFromCard(card, cfg.Selectors, cfg.TargetURL); ok {
			records = append(records, rec)
		}
	})
	return records
}

// ExtractGeneric is the low-confidence last resort. It scans at most
// GenericCandidateLimit candidates and keeps at most GenericRecordLimit records.
func (e *Extractor) ExtractGeneric(doc *goquery.Document, cfg crawler.ExtractionConfig) []crawler.ScrapedRecord {
	sel := crawler.Selectors{
		Title:       genericTitle,
		Price:       genericPrice,
		Image:       genericImage,
		Link:        genericLink,
		Description: cfg.Selectors.Description,
	}
	cands := doc.Find(genericCardSelector)
	cands = cands.Slice(0, min(cands.Length(), GenericCandidateLimit))

	var records []crawler.ScrapedRecord
	cands.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		rec, ok := e.recordFromCard(card, sel, cfg.TargetURL)
		if ok {
			records = append(records, rec)
		}
		return len(records) < GenericRecordLimit
	})
	return records
}

func (e *Extractor) candidates(doc *goquery.Document, sel crawler.Selectors) *goquery.Selection {
	if sel.ListContainer != "" {
		if container := findFirst(doc.Selection, sel.ListContainer); container != nil {
			if sel.CardSelector != "" {
				if cards := findFirst(container, sel.CardSelector); cards != nil {
					return cards
				}
			}
			return container.Children()
		}
	}
	cardSel := sel.CardSelector
	if cardSel == "" {
		cardSel = defaultCardSelector
	}
	if cards := findFirst(doc.Selection, cardSel); cards != nil {
		return cards
	}
	return &goquery.Selection{}
}

func (e *Extractor) recordFromCard(card *goquery.Selection, sel crawler.Selectors, base string) (crawler.ScrapedRecord, bool) {
	title := cardTitle(card, sel.Title)
	if title == "" {
		return crawler.ScrapedRecord{}, false
	}
	rec := crawler.ScrapedRecord{
		ID:        fmt.Sprintf("sel-%d", e.seq.Next()),
		Title:     title,
		Brand:     e.opts.DefaultBrand,
		SourceURL: base,
	}
	if sel.Price != "" {
		rec.Price = ParsePrice(firstText(card, sel.Price))
	}
	if sel.OriginalPrice != "" {
		if text := firstText(card, sel.OriginalPrice); text != "" {
			orig := ParsePrice(text)
			rec.OriginalPrice = &orig
		}
	}
	if sel.Description != "" {
		rec.Description = firstText(card, sel.Description)
	}
	link := sel.Link
	if link == "" {
		link = genericLink
	}
	if href := cardLink(card, link); href != "" {
		rec.ProductURL = e.absoluteLink(href, base)
	}
	if img := e.ResolveImage(card, sel.Image, base); img != "" {
		rec.ImageURL = img
		rec.ImageSource = crawler.ImageSourceCard
	}

	cls := Classify(card, title, rec.Description)
	if sel.AvailabilitySelector != "" {
		if avail := findFirst(card, sel.AvailabilitySelector); avail != nil {
			extra := Classify(avail.First(), "", "")
			if extra.IsSoldOut {
				cls.markSoldOut()
			}
		}
	}
	cls.apply(&rec)
	return rec, true
}

// cardTitle reads the title text, falling back to title or alt attributes so
// image-only tiles still validate. An unset selector uses the generic list.
func cardTitle(card *goquery.Selection, list string) string {
	if list == "" {
		list = genericTitle
	}
	if t := firstText(card, list); t != "" {
		return t
	}
	if t := firstAttr(card, list, "title"); t != "" {
		return cleanText(t)
	}
	return cleanText(firstAttr(card, list, "alt"))
}

func cardLink(card *goquery.Selection, list string) string {
	if card.Is("a[href]") {
		href, _ := card.Attr("href")
		return href
	}
	return firstAttr(card, list, "href")
}
