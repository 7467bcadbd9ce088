package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

var ldJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ExtractStructured reads every JSON-LD block on the page and returns one
// record per Product entry with a non-empty name. Malformed blocks are
// logged and skipped.
func (e *Extractor) ExtractStructured(doc *goquery.Document, sourceURL string) []crawler.ScrapedRecord {
	var records []crawler.ScrapedRecord
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var payload any
		if err := ldJSON.UnmarshalFromString(raw, &payload); err != nil {
			perr := &crawler.ParseError{Source: "ld+json block " + strconv.Itoa(i), Err: err}
			e.logger.Warn("skipping malformed structured data", zap.String("url", sourceURL), zap.Error(perr))
			return
		}
		for _, node := range productNodes(payload) {
			if rec, ok := e.recordFromNode(doc, node, sourceURL); ok {
				records = append(records, rec)
			}
		}
	})
	return records
}

// productNodes flattens arrays, @graph containers and ItemList wrappers and
// keeps only Product-typed objects.
func productNodes(v any) []map[string]any {
	var out []map[string]any
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			if graph, ok := t["@graph"]; ok {
				walk(graph)
			}
			if isType(t["@type"], "Product") {
				out = append(out, t)
				return
			}
			if isType(t["@type"], "ItemList") {
				walk(t["itemListElement"])
			}
			if isType(t["@type"], "ListItem") {
				walk(t["item"])
			}
		}
	}
	walk(v)
	return out
}

func isType(v any, want string) bool {
	match := func(s string) bool {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "http://schema.org/"), "https://schema.org/")
		return strings.EqualFold(strings.TrimPrefix(s, "schema:"), want)
	}
	switch t := v.(type) {
	case string:
		return match(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && match(s) {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) recordFromNode(doc *goquery.Document, node map[string]any, sourceURL string) (crawler.ScrapedRecord, bool) {
	name := cleanText(stringField(node["name"]))
	if name == "" {
		return crawler.ScrapedRecord{}, false
	}
	description := cleanText(stringField(node["description"]))
	rec := crawler.ScrapedRecord{
		ID:          crawler.RecordID(name, sourceURL),
		Title:       name,
		Description: description,
		Brand:       nameOrString(node["brand"]),
		Category:    cleanText(stringField(node["category"])),
		SourceURL:   sourceURL,
	}
	if rec.Brand == "" {
		rec.Brand = e.opts.DefaultBrand
	}

	offer := firstObject(node["offers"])
	if offer != nil {
		amount, ok := numberField(offer["price"])
		if !ok {
			amount, ok = numberField(offer["lowPrice"])
		}
		if ok {
			rate := 0.0
			if stringField(offer["priceCurrency"]) != "" {
				rate = e.opts.CurrencyRate
			}
			rec.Price = ConvertPrice(amount, rate)
		}
		rec.ProductURL = e.absoluteLink(stringField(offer["url"]), sourceURL)
	}
	if rec.ProductURL == "" {
		rec.ProductURL = e.absoluteLink(stringField(node["url"]), sourceURL)
	}

	if img := imageField(node["image"]); img != "" && !rejectedImage(img) {
		rec.ImageURL = e.absoluteImage(img, sourceURL)
		if rec.ImageURL != "" {
			rec.ImageSource = crawler.ImageSourceStructured
		}
	}
	if rec.ImageURL == "" {
		rec.ImageURL, rec.ImageSource = e.pageImageFor(doc, name, sourceURL)
	}

	cls := Classify(nil, name, description)
	if offer != nil && offerSoldOut(stringField(offer["availability"])) {
		cls.markSoldOut()
	}
	if cond := schemaCondition(node, offer); cond != "" {
		cls.markCondition(cond)
	}
	cls.apply(&rec)
	return rec, true
}

func (e *Extractor) absoluteLink(ref, base string) string {
	if strings.TrimSpace(ref) == "" {
		return ""
	}
	abs, err := crawler.Resolve(base, ref)
	if err != nil {
		e.logger.Debug("unresolvable product link", zap.String("url", ref), zap.Error(err))
		return ""
	}
	return abs
}

func offerSoldOut(availability string) bool {
	a := strings.ToLower(availability)
	return strings.Contains(a, "outofstock") || strings.Contains(a, "soldout") || strings.Contains(a, "discontinued")
}

func schemaCondition(node, offer map[string]any) crawler.Condition {
	raw := stringField(node["itemCondition"])
	if raw == "" && offer != nil {
		raw = stringField(offer["itemCondition"])
	}
	raw = strings.ToLower(raw)
	switch {
	case strings.Contains(raw, "refurbished"):
		return crawler.ConditionRefurbished
	case strings.Contains(raw, "used"), strings.Contains(raw, "damaged"):
		return crawler.ConditionUsed
	case strings.Contains(raw, "new"):
		return crawler.ConditionNew
	}
	return ""
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func nameOrString(v any) string {
	if m, ok := v.(map[string]any); ok {
		return cleanText(stringField(m["name"]))
	}
	if arr, ok := v.([]any); ok && len(arr) > 0 {
		return nameOrString(arr[0])
	}
	return cleanText(stringField(v))
}

func numberField(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, false
		}
		return ParsePrice(t), true
	}
	return 0, false
}

func firstObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// imageField accepts a URL string, an array of them, or an ImageObject.
func imageField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return imageField(t[0])
		}
	case map[string]any:
		if u := stringField(t["url"]); u != "" {
			return u
		}
		return stringField(t["contentUrl"])
	}
	return ""
}
