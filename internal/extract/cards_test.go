package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const catalogHTML = `<html><body>
<ul class="grid">
  <li class="card">
    <a href="/products/teapot"><h3 class="name">Cast Iron Teapot</h3></a>
    <span class="price">¥4,800</span><s class="was">¥6,000</s>
    <img src="` + PlaceholderGIF + `" data-src="/img/teapot.jpg">
    <p class="desc">Handmade in Iwate</p>
  </li>
  <li class="card sold-out">
    <h3 class="name">Kyusu</h3>
    <span class="price">¥2,000</span>
    <img srcset="/img/kyusu-400.jpg 400w, /img/kyusu-800.jpg 800w">
  </li>
  <li class="card"><span class="price">¥100</span></li>
  <li class="card"><h3 class="name">Title Only Cup</h3></li>
</ul>
</body></html>`

func catalogConfig() crawler.ExtractionConfig {
	return crawler.ExtractionConfig{
		TargetURL: "https://shop.example/catalog",
		Selectors: crawler.Selectors{
			ListContainer: "ul.missing, ul.grid",
			CardSelector:  "li.card",
			Title:         ".title, .name",
			Price:         ".price",
			OriginalPrice: "s.was",
			Image:         "img.primary, img",
			Description:   ".desc",
		},
	}
}

func TestExtractBySelectors(t *testing.T) {
	t.Parallel()

	e := newTestExtractor()
	recs := e.ExtractBySelectors(parse(t, catalogHTML), catalogConfig())
	require.Len(t, recs, 3, "card without a title is dropped")

	teapot := recs[0]
	require.Equal(t, "sel-1", teapot.ID)
	require.Equal(t, "Cast Iron Teapot", teapot.Title)
	require.Equal(t, 4800.0, teapot.Price)
	require.NotNil(t, teapot.OriginalPrice)
	require.Equal(t, 6000.0, *teapot.OriginalPrice)
	require.Equal(t, "https://shop.example/img/teapot.jpg", teapot.ImageURL)
	require.Equal(t, crawler.ImageSourceCard, teapot.ImageSource)
	require.Equal(t, "https://shop.example/products/teapot", teapot.ProductURL)
	require.Equal(t, "Handmade in Iwate", teapot.Description)
	require.Equal(t, crawler.AvailabilityIn, teapot.Availability)

	kyusu := recs[1]
	require.True(t, kyusu.IsSoldOut, "class name alone flags sold out")
	require.Equal(t, crawler.AvailabilityOut, kyusu.Availability)
	require.Equal(t, []string{crawler.LabelSold}, kyusu.Labels)
	require.Equal(t, "https://shop.example/img/kyusu-400.jpg", kyusu.ImageURL)

	cup := recs[2]
	require.Equal(t, "Title Only Cup", cup.Title)
	require.Equal(t, 0.0, cup.Price)
	require.Nil(t, cup.OriginalPrice)
	require.Empty(t, cup.ImageURL)
	require.NotNil(t, cup.Labels)
}

func TestExtractBySelectorsWithoutContainer(t *testing.T) {
	t.Parallel()

	html := `<div class="product"><h2>Alpha</h2></div><article><h2>Beta</h2><div class="price">$1,299.99</div></article>`
	e := newTestExtractor()
	recs := e.ExtractBySelectors(parse(t, html), crawler.ExtractionConfig{
		TargetURL: "https://shop.example/",
		Selectors: crawler.Selectors{Title: "h2", Price: ".price"},
	})
	require.Len(t, recs, 1, "first matching alternative of the default card list wins")
	require.Equal(t, "Alpha", recs[0].Title)
}

func TestAvailabilitySelector(t *testing.T) {
	t.Parallel()

	html := `<div class="item"><h2>Bag</h2><span class="stock">Currently out of stock</span></div>`
	e := newTestExtractor()
	recs := e.ExtractBySelectors(parse(t, html), crawler.ExtractionConfig{
		TargetURL: "https://shop.example/",
		Selectors: crawler.Selectors{CardSelector: ".item", Title: "h2", AvailabilitySelector: ".stock"},
	})
	require.Len(t, recs, 1)
	require.True(t, recs[0].IsSoldOut)
}

func TestExtractGenericIsBounded(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, `<div class="product-tile"><h3>Thing %d</h3><span class="price">%d</span></div>`, i, i*10)
	}
	e := newTestExtractor()
	recs := e.ExtractGeneric(parse(t, b.String()), crawler.ExtractionConfig{TargetURL: "https://shop.example/"})
	require.Len(t, recs, GenericRecordLimit)
	require.Equal(t, "Thing 0", recs[0].Title)
	require.Equal(t, 10.0, recs[1].Price)
}

func TestExtractLayering(t *testing.T) {
	t.Parallel()

	structured := `<script type="application/ld+json">{"@type":"Product","name":"From LD"}</script>` + catalogHTML
	e := newTestExtractor()
	out := e.Extract(parse(t, structured), "https://shop.example/catalog", catalogConfig())
	require.Equal(t, crawler.StrategyStructured, out.Strategy)
	require.Len(t, out.Records, 1)

	out = e.Extract(parse(t, catalogHTML), "https://shop.example/catalog", catalogConfig())
	require.Equal(t, crawler.StrategySelectors, out.Strategy)
	require.Len(t, out.Records, 3)

	generic := `<section><div class="product-box"><h3>Lonely Lamp</h3></div></section>`
	out = e.Extract(parse(t, generic), "https://shop.example/catalog", crawler.ExtractionConfig{
		Selectors: crawler.Selectors{CardSelector: ".nope", Title: ".nope"},
	})
	require.Equal(t, crawler.StrategyGeneric, out.Strategy)
	require.Equal(t, "Lonely Lamp", out.Records[0].Title)

	out = e.Extract(parse(t, `<p>nothing here</p>`), "https://shop.example/catalog", crawler.ExtractionConfig{})
	require.Equal(t, crawler.StrategyNone, out.Strategy)
	require.Empty(t, out.Records)
}

func TestExtractIsDeterministic(t *testing.T) {
	t.Parallel()

	first := newTestExtractor().Extract(parse(t, catalogHTML), "https://shop.example/catalog", catalogConfig())
	second := newTestExtractor().Extract(parse(t, catalogHTML), "https://shop.example/catalog", catalogConfig())
	require.Equal(t, first, second)
}
