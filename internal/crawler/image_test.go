package crawler

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolveImage(t *testing.T) {
	base := mustURL(t, "https://shop.example.com/products/list")

	testCases := []struct {
		name     string
		html     string
		expected string
		ok       bool
	}{
		{
			name:     "srcset preferred over src, last entry first",
			html:     `<img src="/small.jpg" srcset="/a-300.jpg 300w, /a-600.jpg 600w">`,
			expected: "https://shop.example.com/a-600.jpg",
			ok:       true,
		},
		{
			name:     "lazy srcset preferred over plain srcset",
			html:     `<img srcset="/plain.jpg 1x" data-lazy-srcset="/lazy-1.jpg 1x, /lazy-2.jpg 2x">`,
			expected: "https://shop.example.com/lazy-2.jpg",
			ok:       true,
		},
		{
			name:     "data URI placeholder skipped",
			html:     `<img src="data:image/gif;base64,R0lGOD" data-src="//cdn.example.com/real.webp">`,
			expected: "https://cdn.example.com/real.webp",
			ok:       true,
		},
		{
			name:     "data URI srcset placeholder skipped",
			html:     `<img srcset="data:image/gif;base64,R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7" data-src="/real.jpg">`,
			expected: "https://shop.example.com/real.jpg",
			ok:       true,
		},
		{
			name:     "lazy attribute order",
			html:     `<img data-original="/orig.jpg" data-lazy-src="/lazy.jpg">`,
			expected: "https://shop.example.com/lazy.jpg",
			ok:       true,
		},
		{
			name:     "relative path resolved",
			html:     `<img src="images/x.png">`,
			expected: "https://shop.example.com/products/images/x.png",
			ok:       true,
		},
		{
			name: "only data URIs",
			html: `<img src="data:image/png;base64,AAAA" data-src="DATA:image/gif">`,
			ok:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustDoc(t, tc.html)
			got, ok := ResolveImage(doc.Find("img"), nil, base)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, got)
			assert.False(t, strings.HasPrefix(got, "data:"))
		})
	}
}

func TestResolveImageFallbackContainer(t *testing.T) {
	base := mustURL(t, "https://shop.example.com/")

	// Placeholder tag with the real one in <noscript>
	doc := mustDoc(t, `<div class="product-item">
		<a class="image" href="/p/1"><img src="data:image/gif;base64,R0lGOD"></a>
		<noscript><img src="/real/1.jpg"></noscript>
	</div>`)
	container := doc.Find("div.product-item")

	got, ok := ResolveImage(container.Find("a.image img"), container, base)
	require.True(t, ok)
	assert.Equal(t, "https://shop.example.com/real/1.jpg", got)

	// Without the container the placeholder is all there is
	_, ok = ResolveImage(container.Find("a.image img"), nil, base)
	assert.False(t, ok)

	// Sibling image in the container
	doc = mustDoc(t, `<div class="item">
		<img class="lazy" src="data:image/svg+xml,%3Csvg%3E">
		<span><img data-src="/sibling.jpg"></span>
	</div>`)
	container = doc.Find("div.item")
	got, ok = ResolveImage(container.Find("img.lazy"), container, base)
	require.True(t, ok)
	assert.Equal(t, "https://shop.example.com/sibling.jpg", got)
}

func TestFindImage(t *testing.T) {
	doc := mustDoc(t, `<div id="a"><noscript><img src="/ns.jpg"></noscript></div><div id="b"><p>none</p></div>`)

	img := FindImage(doc.Find("#a"))
	require.NotNil(t, img)
	assert.Equal(t, "/ns.jpg", img.AttrOr("src", ""))

	assert.Nil(t, FindImage(doc.Find("#b")))
}
