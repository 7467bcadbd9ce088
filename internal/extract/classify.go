package extract

import (
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

var soldOutKeywords = []string{
	"sold out",
	"sold-out",
	"soldout",
	"out of stock",
	"out-of-stock",
	"no longer available",
	"売り切れ",
	"売切れ",
	"品切れ",
	"在庫なし",
	"在庫切れ",
	"完売",
	"agotado",
	"esgotado",
	"ausverkauft",
	"épuisé",
	"rupture de stock",
	"esaurito",
	"품절",
	"已售完",
	"售罄",
}

var soldOutClasses = []string{"sold-out", "soldout", "sold_out", "out-of-stock", "outofstock", "out_of_stock"}

var (
	refurbishedPattern = regexp.MustCompile(`(?i)\b(refurbished|renewed|reconditioned|reacondicionado|generalüberholt)\b|reconditionné|整備済|リファービッシュ|再生品`)
	usedPattern        = regexp.MustCompile(`(?i)\b(used|pre-owned|preowned|second[- ]hand|gebraucht|usado)\b|d'occasion|中古|ユーズド|古着`)
)

// Classification is the availability and condition inferred for one product.
type Classification struct {
	Availability crawler.Availability
	Condition    crawler.Condition
	IsSoldOut    bool
	Labels       []string
}

// Classify inspects a card's text, class names, title and description for
// sold-out and used or refurbished signals. el may be nil.
func Classify(el *goquery.Selection, title, description string) Classification {
	var text, classes strings.Builder
	text.WriteString(title)
	text.WriteByte(' ')
	text.WriteString(description)
	if el != nil {
		text.WriteByte(' ')
		text.WriteString(el.Text())
		el.Find("*").AddSelection(el).Each(func(_ int, s *goquery.Selection) {
			if c, ok := s.Attr("class"); ok {
				classes.WriteString(c)
				classes.WriteByte(' ')
			}
		})
	}
	return classifyCorpus(text.String(), classes.String())
}

func classifyCorpus(text, classes string) Classification {
	out := Classification{Availability: crawler.AvailabilityIn, Labels: []string{}}
	corpus := strings.ToLower(text + " " + classes)
	lowerClasses := strings.ToLower(classes)

	soldOut := containsAny(corpus, soldOutKeywords) || containsAny(lowerClasses, soldOutClasses)
	if soldOut {
		out.markSoldOut()
	}

	switch {
	case refurbishedPattern.MatchString(corpus):
		out.markCondition(crawler.ConditionRefurbished)
	case usedPattern.MatchString(corpus):
		out.markCondition(crawler.ConditionUsed)
	}
	return out
}

func (c *Classification) markSoldOut() {
	c.Availability = crawler.AvailabilityOut
	c.IsSoldOut = true
	c.addLabel(crawler.LabelSold)
}

func (c *Classification) markCondition(cond crawler.Condition) {
	if cond == "" {
		return
	}
	c.Condition = cond
	if cond == crawler.ConditionUsed || cond == crawler.ConditionRefurbished {
		c.addLabel(crawler.LabelUsed)
		return
	}
	// A new item never carries the used label, even if keywords set it.
	c.Labels = slices.DeleteFunc(c.Labels, func(l string) bool { return l == crawler.LabelUsed })
}

func (c *Classification) addLabel(label string) {
	if !slices.Contains(c.Labels, label) {
		c.Labels = append(c.Labels, label)
	}
}

// apply copies the classification onto rec.
func (c Classification) apply(rec *crawler.ScrapedRecord) {
	rec.Availability = c.Availability
	rec.IsSoldOut = c.IsSoldOut
	rec.Condition = c.Condition
	rec.Labels = c.Labels
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
