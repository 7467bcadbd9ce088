package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// PlaceholderGIF is the 1x1 transparent GIF many storefronts put in src
// while the real image is lazy-loaded. It is never returned as an image.
const PlaceholderGIF = "data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"

// DefaultImageWidth replaces size tokens when Options.ImageWidth is unset.
const DefaultImageWidth = 800

// lazyImageSelectors is tried after the configured image selector, most
// specific first. Plain src comes last because it is usually the placeholder.
var lazyImageSelectors = []string{
	"img[data-hires]",
	"img[data-zoom-image]",
	"img[data-large_image]",
	"img[data-src]",
	"img[data-lazy-src]",
	"img[data-original]",
	"img[data-srcset]",
	"img[srcset]",
	"picture source[srcset]",
	"img[src]",
}

// imageAttrs is the attribute precedence within one element.
var imageAttrs = []string{
	"data-hires",
	"data-zoom-image",
	"data-large_image",
	"data-src",
	"data-lazy-src",
	"data-original",
	"data-srcset",
	"srcset",
	"src",
}

var widthTokens = []string{"{width}", "%7Bwidth%7D", "%7bwidth%7d"}

// SubstituteWidth replaces every size placeholder token in raw with width.
func SubstituteWidth(raw string, width int) string {
	if width <= 0 {
		width = DefaultImageWidth
	}
	w := strconv.Itoa(width)
	for _, tok := range widthTokens {
		raw = strings.ReplaceAll(raw, tok, w)
	}
	return raw
}

// firstSrcsetURL returns the URL of the first candidate in a srcset value.
func firstSrcsetURL(v string) string {
	first, _, _ := strings.Cut(v, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func rejectedImage(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == PlaceholderGIF || strings.HasPrefix(strings.ToLower(v), "data:")
}

// imageFromElement applies attribute precedence to one element and returns an
// absolute URL, or "" when nothing usable is present.
func (e *Extractor) imageFromElement(el *goquery.Selection, base string) string {
	for _, attr := range imageAttrs {
		v, ok := el.Attr(attr)
		if !ok {
			continue
		}
		if strings.HasSuffix(attr, "srcset") {
			v = firstSrcsetURL(v)
		}
		if rejectedImage(v) {
			continue
		}
		if abs := e.absoluteImage(v, base); abs != "" {
			return abs
		}
	}
	return ""
}

func (e *Extractor) absoluteImage(v, base string) string {
	v = SubstituteWidth(strings.TrimSpace(v), e.opts.ImageWidth)
	abs, err := crawler.Resolve(base, v)
	if err != nil {
		e.logger.Debug("unresolvable image url", zap.String("url", v), zap.String("base", base), zap.Error(err))
		return ""
	}
	if rejectedImage(abs) {
		return ""
	}
	return abs
}

// ResolveImage finds the image URL for a card. The configured selector is
// tried first, then common lazy-load patterns. It returns "" when the card
// has no usable image, which is not an error.
func (e *Extractor) ResolveImage(card *goquery.Selection, configured, base string) string {
	candidates := append(SplitSelectors(configured), lazyImageSelectors...)
	for _, sel := range candidates {
		var found string
		card.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			found = e.imageFromElement(el, base)
			if found == "" && !el.Is("img, source") {
				el.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
					found = e.imageFromElement(img, base)
					return found == ""
				})
			}
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// pageImageFor is the secondary pass for structured records without an image.
// It prefers an image whose alt or parent text contains the start of name and
// otherwise takes the first usable image among the first few on the page.
func (e *Extractor) pageImageFor(doc *goquery.Document, name, base string) (string, crawler.ImageSource) {
	prefix := strings.ToLower(strings.TrimSpace(truncateRunes(name, namePrefixLen)))
	imgs := doc.Find("img")
	if prefix != "" {
		var found string
		imgs.EachWithBreak(func(_ int, img *goquery.Selection) bool {
			alt, _ := img.Attr("alt")
			parent := img.Parent().Text()
			if strings.Contains(strings.ToLower(alt), prefix) || strings.Contains(strings.ToLower(parent), prefix) {
				found = e.imageFromElement(img, base)
			}
			return found == ""
		})
		if found != "" {
			return found, crawler.ImageSourceNameMatch
		}
	}
	var found string
	imgs.Slice(0, min(imgs.Length(), pageImageScanLimit)).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		found = e.imageFromElement(img, base)
		return found == ""
	})
	if found != "" {
		return found, crawler.ImageSourcePageFallback
	}
	return "", crawler.ImageSourceNone
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
