package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"sjsage522/productharvester/logger"
	"sjsage522/productharvester/pkg/errors"
)

// DefaultMaxPages bounds a crawl when no limit is configured
const DefaultMaxPages = 10

// PaginationCrawler walks a listing page by page, strictly in link order
type PaginationCrawler struct {
	dialect   DialectConfig
	fetcher   Fetcher
	detail    DetailResolver
	known     func(productURL string) bool
	extractor *Extractor
	startURL  string
	maxPages  int
	delay     time.Duration
	log       *logger.Logger
}

// Option configures a PaginationCrawler
type Option func(*PaginationCrawler)

// WithStartURL overrides the dialect's start URL
func WithStartURL(startURL string) Option {
	return func(c *PaginationCrawler) {
		if startURL != "" {
			c.startURL = startURL
		}
	}
}

// WithMaxPages sets the page bound
func WithMaxPages(n int) Option {
	return func(c *PaginationCrawler) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithDelay sets the pause between page fetches
func WithDelay(d time.Duration) Option {
	return func(c *PaginationCrawler) {
		c.delay = d
	}
}

// WithDetailResolver sets the resolver that embeds detail page images
func WithDetailResolver(r DetailResolver) Option {
	return func(c *PaginationCrawler) {
		c.detail = r
	}
}

// WithKnownURLs skips detail resolution for product URLs the catalog already has
func WithKnownURLs(known func(productURL string) bool) Option {
	return func(c *PaginationCrawler) {
		c.known = known
	}
}

// NewPaginationCrawler creates a crawler for one dialect
func NewPaginationCrawler(dialect DialectConfig, fetcher Fetcher, opts ...Option) *PaginationCrawler {
	c := &PaginationCrawler{
		dialect:   dialect,
		fetcher:   fetcher,
		extractor: NewExtractor(dialect),
		startURL:  dialect.StartURL,
		maxPages:  DefaultMaxPages,
		log:       logger.ForCrawler(dialect.Name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl runs the pagination state machine until the page bound, the last page,
// or a failed fetch. Records collected before a failure are returned.
func (c *PaginationCrawler) Crawl(ctx context.Context) CrawlResult {
	result := CrawlResult{Status: StateIdle}
	cursor := Cursor{CurrentURL: c.startURL, MaxPages: c.maxPages}
	seenThisRun := make(map[string]struct{})

	var limiter *rate.Limiter
	if c.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.delay), 1)
	}

	var page *ListingPage
	state := StateIdle
	for {
		switch state {
		case StateIdle:
			if cursor.CurrentURL == "" {
				result.Err = errors.NewConfiguration(fmt.Sprintf("dialect %s has no start URL", c.dialect.Name), nil)
				state = StateFailed
				continue
			}
			state = StateFetchingPage

		case StateFetchingPage:
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					result.Err = err
					state = StateFailed
					continue
				}
			}

			var err error
			page, err = c.fetchPage(ctx, cursor.CurrentURL)
			if err != nil {
				c.log.Error().
					Err(err).
					Str("url", cursor.CurrentURL).
					Int("page", cursor.PagesVisited+1).
					Int("collected", len(result.Records)).
					Msg("Page fetch failed; stopping pagination")
				result.Err = err
				state = StateFailed
				continue
			}
			state = StateExtractingItems

		case StateExtractingItems:
			c.extractPage(ctx, page, &result, seenThisRun)
			state = StateAdvancingPage

		case StateAdvancingPage:
			cursor.PagesVisited++
			result.Pages = cursor.PagesVisited
			if cursor.Exhausted() {
				state = StateDone
				continue
			}

			next, ok := c.nextURL(page, cursor)
			if !ok || next == cursor.CurrentURL {
				state = StateDone
				continue
			}
			cursor.CurrentURL = next
			state = StateFetchingPage

		case StateDone, StateFailed:
			result.Status = state
			c.log.Info().
				Str("status", string(state)).
				Int("pages", result.Pages).
				Int("records", len(result.Records)).
				Int("skipped_unextractable", result.SkippedUnextractable).
				Int("skipped_outlier", result.SkippedOutlier).
				Int("skipped_duplicate", result.SkippedDuplicate).
				Int("detail_failures", result.DetailFailures).
				Msg("Crawl finished")
			return result
		}
	}
}

// fetchPage fetches and parses one listing page
func (c *PaginationCrawler) fetchPage(ctx context.Context, pageURL string) (*ListingPage, error) {
	c.log.Info().Str("url", pageURL).Msg("Fetching page")

	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.NewParsing(c.dialect.Name, "HTML parse error", err)
	}

	current, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.NewParsing(c.dialect.Name, "invalid page URL", err)
	}

	page := &ListingPage{
		SourceURL:  pageURL,
		Candidates: CandidateNodes(doc, c.dialect),
	}
	if next, ok := NextPageURL(doc, current, c.dialect); ok {
		page.NextURL = next
	}
	return page, nil
}

// extractPage appends the page's new, valid records to result
func (c *PaginationCrawler) extractPage(ctx context.Context, page *ListingPage, result *CrawlResult, seenThisRun map[string]struct{}) {
	base, _ := url.Parse(page.SourceURL)
	if len(page.Candidates) == 0 {
		c.log.Info().Str("url", page.SourceURL).Msg("No candidate nodes on page")
		return
	}

	for _, node := range page.Candidates {
		rec, err := c.extractor.Extract(node, base)
		if err != nil {
			c.recordSkip(err, result)
			continue
		}

		if _, dup := seenThisRun[rec.ProductURL]; dup {
			result.SkippedDuplicate++
			c.log.Debug().Str("product_url", rec.ProductURL).Msg("Duplicate within run")
			continue
		}
		seenThisRun[rec.ProductURL] = struct{}{}

		if c.detail != nil {
			if c.known != nil && c.known(rec.ProductURL) {
				result.SkippedDuplicate++
				c.log.Debug().Str("product_url", rec.ProductURL).Msg("Already published; detail skipped")
				continue
			}
			if err := c.detail.ResolveDetail(ctx, rec); err != nil {
				result.DetailFailures++
				c.log.Warn().
					Err(err).
					Str("title", rec.Title).
					Str("product_url", rec.ProductURL).
					Msg("Could not fetch detail image; dropping record")
				continue
			}
		}

		result.Records = append(result.Records, *rec)
	}

	c.log.Info().
		Str("url", page.SourceURL).
		Int("candidates", len(page.Candidates)).
		Int("collected", len(result.Records)).
		Msg("Page extracted")
}

// recordSkip counts a rejected candidate. Outliers are logged, missing fields are not.
func (c *PaginationCrawler) recordSkip(err error, result *CrawlResult) {
	if errors.IsType(err, errors.ErrorTypeOutlier) {
		result.SkippedOutlier++
		event := c.log.Info().Str("reason", "price_ceiling")
		var outlier *OutlierError
		if stderrors.As(err, &outlier) {
			event = event.
				Str("title", outlier.Title).
				Int64("price", outlier.Price).
				Str("product_url", outlier.ProductURL)
		}
		event.Msg("Skipping item priced at or above ceiling")
		return
	}
	result.SkippedUnextractable++
}

// nextURL follows the next link, or the page query parameter when the
// dialect paginates that way and the page was not empty
func (c *PaginationCrawler) nextURL(page *ListingPage, cursor Cursor) (string, bool) {
	if page.NextURL != "" {
		return page.NextURL, true
	}
	if len(page.Candidates) == 0 {
		return "", false
	}
	return pageParamURL(cursor.CurrentURL, c.dialect, cursor.PagesVisited+1)
}
