package extract

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const pageURL = "https://shop.example/collections/cameras?page=1"

func newTestExtractor() *Extractor {
	return New(Options{CurrencyRate: 0.0067, DefaultBrand: "House", ImageWidth: 600}, crawler.NewCounter(0), nil)
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := Parse([]byte(html))
	require.NoError(t, err)
	return doc
}

func TestExtractStructuredProduct(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"Leica M6 Body",
 "description":"Classic rangefinder","brand":{"@type":"Brand","name":"Leica"},
 "image":["/cdn/leica_{width}x.jpg","/cdn/other.jpg"],
 "offers":{"@type":"Offer","price":"300000","priceCurrency":"JPY","availability":"https://schema.org/InStock","url":"/products/leica-m6"}}
</script></head><body></body></html>`

	e := newTestExtractor()
	recs := e.ExtractStructured(parse(t, html), pageURL)
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Equal(t, "Leica M6 Body", rec.Title)
	require.Equal(t, "Leica", rec.Brand)
	require.InDelta(t, 2010.0, rec.Price, 0.001)
	require.Equal(t, "https://shop.example/cdn/leica_600x.jpg", rec.ImageURL)
	require.Equal(t, crawler.ImageSourceStructured, rec.ImageSource)
	require.Equal(t, "https://shop.example/products/leica-m6", rec.ProductURL)
	require.Equal(t, crawler.AvailabilityIn, rec.Availability)
	require.Equal(t, crawler.RecordID("Leica M6 Body", pageURL), rec.ID)
	require.NotNil(t, rec.Labels)
	require.Empty(t, rec.Labels)
}

func TestExtractStructuredArraysGraphAndSoldOut(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<script type="application/ld+json">[{"@type":"Product","name":"Lens A","offers":[{"price":100}]},{"@type":"Organization","name":"Shop"}]</script>
<script type="application/ld+json">{"@graph":[{"@type":["Product","Thing"],"name":"Used Lens B","offers":{"price":50,"availability":"http://schema.org/OutOfStock"}}]}</script>
<script type="application/ld+json">{"@type":"Product","name":""}</script>
<script type="application/ld+json">{not json</script>
</head><body></body></html>`

	e := newTestExtractor()
	recs := e.ExtractStructured(parse(t, html), pageURL)
	require.Len(t, recs, 2)

	require.Equal(t, "Lens A", recs[0].Title)
	require.Equal(t, 100.0, recs[0].Price, "no currency code means no conversion")
	require.Equal(t, "House", recs[0].Brand)

	b := recs[1]
	require.Equal(t, "Used Lens B", b.Title)
	require.True(t, b.IsSoldOut)
	require.Equal(t, crawler.AvailabilityOut, b.Availability)
	require.Equal(t, crawler.ConditionUsed, b.Condition)
	require.ElementsMatch(t, []string{crawler.LabelSold, crawler.LabelUsed}, b.Labels)
}

func TestExtractStructuredItemListAndCondition(t *testing.T) {
	t.Parallel()

	html := `<script type="application/ld+json">{"@type":"ItemList","itemListElement":[
{"@type":"ListItem","position":1,"item":{"@type":"Product","name":"Phone X","itemCondition":"https://schema.org/RefurbishedCondition","image":{"@type":"ImageObject","url":"https://img.example/p.jpg"}}}]}</script>`

	e := newTestExtractor()
	recs := e.ExtractStructured(parse(t, html), pageURL)
	require.Len(t, recs, 1)
	require.Equal(t, crawler.ConditionRefurbished, recs[0].Condition)
	require.Equal(t, "https://img.example/p.jpg", recs[0].ImageURL)
	require.Equal(t, []string{crawler.LabelUsed}, recs[0].Labels)
}

func TestSchemaConditionOverridesKeywords(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<script type="application/ld+json">{"@type":"Product","name":"Desk Lamp","description":"Used once, still boxed","itemCondition":"https://schema.org/NewCondition","offers":{"price":20}}</script>
<script type="application/ld+json">{"@type":"Product","name":"Tripod","offers":{"price":30,"itemCondition":"https://schema.org/UsedCondition","availability":"https://schema.org/SoldOut"}}</script>
</head><body></body></html>`

	recs := newTestExtractor().ExtractStructured(parse(t, html), pageURL)
	require.Len(t, recs, 2)

	require.Equal(t, crawler.ConditionNew, recs[0].Condition)
	require.NotContains(t, recs[0].Labels, crawler.LabelUsed)

	require.Equal(t, crawler.ConditionUsed, recs[1].Condition)
	require.ElementsMatch(t, []string{crawler.LabelSold, crawler.LabelUsed}, recs[1].Labels)
}

func TestStructuredImageFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("name prefix match", func(t *testing.T) {
		html := `<script type="application/ld+json">{"@type":"Product","name":"Nikon F3 HP Film Camera Black Body"}</script>
<header><img src="/logo.png" alt="Shop logo"></header>
<div><img data-src="/img/f3.jpg" src="` + PlaceholderGIF + `"><span>nikon f3 hp film camera black</span></div>`
		e := newTestExtractor()
		recs := e.ExtractStructured(parse(t, html), pageURL)
		require.Len(t, recs, 1)
		require.Equal(t, "https://shop.example/img/f3.jpg", recs[0].ImageURL)
		require.Equal(t, crawler.ImageSourceNameMatch, recs[0].ImageSource)
	})

	t.Run("first page image", func(t *testing.T) {
		html := `<script type="application/ld+json">{"@type":"Product","name":"Widget"}</script>
<img src="` + PlaceholderGIF + `"><img src="//cdn.example/hero.jpg">`
		e := newTestExtractor()
		recs := e.ExtractStructured(parse(t, html), pageURL)
		require.Equal(t, "https://cdn.example/hero.jpg", recs[0].ImageURL)
		require.Equal(t, crawler.ImageSourcePageFallback, recs[0].ImageSource)
	})

	t.Run("placeholder only", func(t *testing.T) {
		html := `<script type="application/ld+json">{"@type":"Product","name":"Widget","image":"` + PlaceholderGIF + `"}</script>
<img src="` + PlaceholderGIF + `" alt="Widget">`
		e := newTestExtractor()
		recs := e.ExtractStructured(parse(t, html), pageURL)
		require.Len(t, recs, 1)
		require.Empty(t, recs[0].ImageURL)
		require.Equal(t, crawler.ImageSourceNone, recs[0].ImageSource)
	})
}

func TestConvertPriceIsMonotonicAndNonNegative(t *testing.T) {
	t.Parallel()

	prev := -1.0
	for _, amount := range []float64{0, 1, 149, 150, 151, 999, 1000, 12345.5, 1e7} {
		got := ConvertPrice(amount, 0.0067)
		require.GreaterOrEqual(t, got, 0.0)
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
	require.Equal(t, 0.0, ConvertPrice(-5, 0.0067))
	require.Equal(t, 12.5, ConvertPrice(12.5, 0))
}
