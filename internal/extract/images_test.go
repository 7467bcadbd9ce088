package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveImage(t *testing.T) {
	t.Parallel()

	base := "https://shop.example/list/"
	cases := []struct {
		name       string
		html       string
		configured string
		want       string
	}{
		{
			name: "configured selector wins",
			html: `<div><img class="thumb" src="/a.jpg"><img class="main" data-src="/b.jpg"></div>`,
			configured: "img.main",
			want:       "https://shop.example/b.jpg",
		},
		{
			name: "high res before data-src before src",
			html: `<div><img src="/small.jpg" data-src="/mid.jpg" data-zoom-image="/big.jpg"></div>`,
			want: "https://shop.example/big.jpg",
		},
		{
			name: "srcset first candidate without descriptor",
			html: `<div><img data-srcset="img/a-200.jpg 200w, img/a-400.jpg 400w"></div>`,
			want: "https://shop.example/list/img/a-200.jpg",
		},
		{
			name: "picture source",
			html: `<div><picture><source srcset="https://cdn.example/p.webp 1x"></picture></div>`,
			want: "https://cdn.example/p.webp",
		},
		{
			name: "width token substituted",
			html: `<div><img data-src="//cdn.example/p_{width}x.jpg"></div>`,
			want: "https://cdn.example/p_800x.jpg",
		},
		{
			name: "encoded width token substituted",
			html: `<div><img src="https://cdn.example/p_%7Bwidth%7Dx.jpg"></div>`,
			want: "https://cdn.example/p_800x.jpg",
		},
		{
			name: "placeholder is never returned",
			html: `<div><img src="` + PlaceholderGIF + `"></div>`,
			want: "",
		},
		{
			name:       "wrapper element falls through to inner img",
			html:       `<div><span class="media"><img src="/inner.jpg"></span></div>`,
			configured: ".media",
			want:       "https://shop.example/inner.jpg",
		},
		{
			name: "no image is not an error",
			html: `<div><p>text</p></div>`,
			want: "",
		},
	}

	e := New(Options{}, nil, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := parse(t, tc.html)
			card := doc.Find("div").First()
			require.Equal(t, tc.want, e.ResolveImage(card, tc.configured, base))
		})
	}
}

func TestSubstituteWidth(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a_300x.jpg?w=300", SubstituteWidth("a_{width}x.jpg?w=%7bwidth%7d", 300))
	require.Equal(t, "a_800x.jpg", SubstituteWidth("a_{width}x.jpg", 0))
	require.NotContains(t, SubstituteWidth("{width}{width}", 10), "{width}")
}
