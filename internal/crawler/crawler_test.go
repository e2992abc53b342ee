package crawler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/productharvester/pkg/errors"
)

// fakeFetcher serves canned pages and records every fetched URL
type fakeFetcher struct {
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	f.fetched = append(f.fetched, pageURL)
	body, ok := f.pages[pageURL]
	if !ok {
		return "", errors.NewNetwork("test", "fetch failed", fmt.Errorf("no page at %s", pageURL))
	}
	return body, nil
}

// fakeDetail embeds fixed bytes, failing for the listed product URLs
type fakeDetail struct {
	fail     map[string]bool
	resolved []string
}

func (d *fakeDetail) ResolveDetail(ctx context.Context, rec *ProductRecord) error {
	d.resolved = append(d.resolved, rec.ProductURL)
	if d.fail[rec.ProductURL] {
		return errors.NewNetwork("test", "detail failed", nil)
	}
	rec.ImageURL = rec.ProductURL + "/hi-res.webp"
	rec.ImageContent = []byte("img")
	rec.ImageName = "hi-res.webp"
	return nil
}

func gridItem(slug string, price string) string {
	return fmt.Sprintf(`<div class="product-grid-item">
		<a class="product-image-link" href="/product/%[1]s/"><img src="/img/%[1]s.jpg"></a>
		<h3 class="wd-entities-title"><a href="/product/%[1]s/">Doll %[1]s</a></h3>
		<span class="price">%[2]s</span>
	</div>`, slug, price)
}

func listingPage(next string, items ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"products\">")
	for _, item := range items {
		b.WriteString(item)
	}
	b.WriteString("</div>")
	if next != "" {
		fmt.Fprintf(&b, `<a class="next page-numbers" href="%s">next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestCrawlTwoPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://yourdoll.jp/list/": listingPage("/list/page/2/",
			gridItem("a", "44,650円"), gridItem("b", "98,000円"), gridItem("c", "120,000円")),
		"https://yourdoll.jp/list/page/2/": listingPage("",
			gridItem("d", "274,500円(税込)"), gridItem("e", "150,000円")),
	}}

	c := NewPaginationCrawler(mustDialect(t, "yourdoll"), fetcher,
		WithStartURL("https://yourdoll.jp/list/"),
		WithMaxPages(10),
	)
	result := c.Crawl(context.Background())

	assert.Equal(t, StateDone, result.Status)
	assert.NoError(t, result.Err)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, []string{"https://yourdoll.jp/list/", "https://yourdoll.jp/list/page/2/"}, fetcher.fetched)
	require.Len(t, result.Records, 5)

	var slugs []string
	for _, rec := range result.Records {
		assert.True(t, rec.Valid())
		slugs = append(slugs, strings.TrimPrefix(rec.ProductURL, "https://yourdoll.jp/product/"))
	}
	assert.Equal(t, []string{"a/", "b/", "c/", "d/", "e/"}, slugs)
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	// Every page links to another one
	pages := map[string]string{}
	for i := 1; i <= 5; i++ {
		pages[fmt.Sprintf("https://yourdoll.jp/list/%d", i)] = listingPage(
			fmt.Sprintf("/list/%d", i+1), gridItem(fmt.Sprintf("p%d", i), "10,000円"))
	}
	fetcher := &fakeFetcher{pages: pages}

	c := NewPaginationCrawler(mustDialect(t, "yourdoll"), fetcher,
		WithStartURL("https://yourdoll.jp/list/1"),
		WithMaxPages(3),
	)
	result := c.Crawl(context.Background())

	assert.Equal(t, StateDone, result.Status)
	assert.Equal(t, 3, result.Pages)
	assert.Len(t, fetcher.fetched, 3)
	assert.Len(t, result.Records, 3)
}

func TestCrawlPartialSuccessOnFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://yourdoll.jp/list/": listingPage("/list/missing/", gridItem("a", "1,000円"), gridItem("b", "2,000円")),
	}}

	c := NewPaginationCrawler(mustDialect(t, "yourdoll"), fetcher, WithStartURL("https://yourdoll.jp/list/"))
	result := c.Crawl(context.Background())

	assert.Equal(t, StateFailed, result.Status)
	assert.Error(t, result.Err)
	assert.True(t, errors.IsType(result.Err, errors.ErrorTypeNetwork))
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, result.Records, 2)
	assert.Len(t, fetcher.fetched, 2)
}

func TestCrawlSkipCounters(t *testing.T) {
	broken := `<div class="product-grid-item"><h3 class="wd-entities-title"><a href="/ad">Sponsored</a></h3></div>`
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://yourdoll.jp/list/": listingPage("/list/2/",
			gridItem("a", "44,650円"), broken, gridItem("set", "1,500,000円")),
		// The same product shows up again on the next page
		"https://yourdoll.jp/list/2/": listingPage("", gridItem("a", "44,650円"), gridItem("b", "50,000円")),
	}}

	c := NewPaginationCrawler(mustDialect(t, "yourdoll"), fetcher, WithStartURL("https://yourdoll.jp/list/"))
	result := c.Crawl(context.Background())

	assert.Equal(t, StateDone, result.Status)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 1, result.SkippedUnextractable)
	assert.Equal(t, 1, result.SkippedOutlier)
	assert.Equal(t, 1, result.SkippedDuplicate)
}

func TestCrawlEmptyPageWithoutNextLinkStops(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://www.kuma-doll.com/list.html": `<html><body><p>No products</p></body></html>`,
	}}

	c := NewPaginationCrawler(mustDialect(t, "kuma"), fetcher, WithStartURL("https://www.kuma-doll.com/list.html"))
	result := c.Crawl(context.Background())

	assert.Equal(t, StateDone, result.Status)
	assert.Equal(t, 1, result.Pages)
	assert.Empty(t, result.Records)
	assert.Len(t, fetcher.fetched, 1)
}

func kumaItem(id int) string {
	return fmt.Sprintf(`<div class="product-item">
		<a class="image" href="/Products/item-%[1]d.html"><img src="/image/cache/%[1]d.webp"></a>
		<a class="title" href="/Products/item-%[1]d.html">Kuma %[1]d</a>
		<div class="price"><span>%[1]d0,000円</span></div>
	</div>`, id)
}

func TestCrawlRenderingDialect(t *testing.T) {
	start := "https://www.kuma-doll.com/Products/list-r1.html"
	fetcher := &fakeFetcher{pages: map[string]string{
		start:             "<html><body>" + kumaItem(1) + kumaItem(2) + kumaItem(3) + "</body></html>",
		start + "?page=2": "<html><body>" + kumaItem(4) + "</body></html>",
		start + "?page=3": "<html><body></body></html>",
	}}
	detail := &fakeDetail{fail: map[string]bool{"https://www.kuma-doll.com/Products/item-2.html": true}}
	known := func(productURL string) bool {
		return productURL == "https://www.kuma-doll.com/Products/item-3.html"
	}

	c := NewPaginationCrawler(mustDialect(t, "kuma"), fetcher,
		WithDetailResolver(detail),
		WithKnownURLs(known),
		WithDelay(time.Millisecond),
	)
	result := c.Crawl(context.Background())

	assert.Equal(t, StateDone, result.Status)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, []string{start, start + "?page=2", start + "?page=3"}, fetcher.fetched)

	// item-3 is already published, so no detail page is opened for it
	assert.Equal(t, []string{
		"https://www.kuma-doll.com/Products/item-1.html",
		"https://www.kuma-doll.com/Products/item-2.html",
		"https://www.kuma-doll.com/Products/item-4.html",
	}, detail.resolved)
	assert.Equal(t, 1, result.DetailFailures)
	assert.Equal(t, 1, result.SkippedDuplicate)

	require.Len(t, result.Records, 2)
	assert.Equal(t, "Kuma 1", result.Records[0].Title)
	assert.Equal(t, []byte("img"), result.Records[0].ImageContent)
	assert.Equal(t, "https://www.kuma-doll.com/Products/item-1.html/hi-res.webp", result.Records[0].ImageURL)
	assert.Equal(t, "Kuma 4", result.Records[1].Title)
}

func TestCrawlHeuristicWrappedGrid(t *testing.T) {
	card := func(n int) string {
		return fmt.Sprintf(`<div class="product-card">
			<a href="/products/doll-%[1]d"><img src="/img/%[1]d.jpg"></a>
			<h3><a href="/products/doll-%[1]d">Doll %[1]d</a></h3>
			<span class="price">%[1]d0,000円</span>
		</div>`, n)
	}
	page := `<html><body><div class="product-list">` + card(1) + card(2) + card(3) + `</div></body></html>`

	c := NewPaginationCrawler(mustDialect(t, "generic"), &fakeFetcher{pages: map[string]string{
		"https://shop.example.com/all": page,
	}}, WithStartURL("https://shop.example.com/all"))
	result := c.Crawl(context.Background())

	assert.Equal(t, StateDone, result.Status)
	require.Len(t, result.Records, 3)
	for i, rec := range result.Records {
		assert.Equal(t, fmt.Sprintf("Doll %d", i+1), rec.Title)
		assert.Equal(t, fmt.Sprintf("https://shop.example.com/products/doll-%d", i+1), rec.ProductURL)
		assert.Equal(t, int64((i+1)*10000), rec.Price)
	}
	// The wrapper yields the first card again
	assert.Equal(t, 1, result.SkippedDuplicate)
}

func TestCrawlWithoutStartURL(t *testing.T) {
	c := NewPaginationCrawler(mustDialect(t, "generic"), &fakeFetcher{})
	result := c.Crawl(context.Background())

	assert.Equal(t, StateFailed, result.Status)
	assert.True(t, errors.IsType(result.Err, errors.ErrorTypeConfiguration))
	assert.Zero(t, result.Pages)
}

func TestCrawlHonorsDelay(t *testing.T) {
	pages := map[string]string{}
	for i := 1; i <= 3; i++ {
		pages[fmt.Sprintf("https://yourdoll.jp/list/%d", i)] = listingPage(
			fmt.Sprintf("/list/%d", i+1), gridItem(fmt.Sprintf("p%d", i), "10,000円"))
	}

	c := NewPaginationCrawler(mustDialect(t, "yourdoll"), &fakeFetcher{pages: pages},
		WithStartURL("https://yourdoll.jp/list/1"),
		WithMaxPages(3),
		WithDelay(50*time.Millisecond),
	)

	start := time.Now()
	result := c.Crawl(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, 3, result.Pages)
	// Three fetches need two waits
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}
