package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PriceCeiling is the exclusive upper bound for a publishable price.
// Bundle listings and multi-number price strings usually land above it.
const PriceCeiling int64 = 1_000_000

// ProductRecord represents one normalized product listing
type ProductRecord struct {
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	ImageURL   string `json:"image_url"`
	ProductURL string `json:"product_url"`

	// Filled only by rendering dialects from the product detail page
	ImageContent []byte `json:"-"`
	ImageName    string `json:"image_name,omitempty"`
}

// Valid reports whether the record may be published
func (r *ProductRecord) Valid() bool {
	if r == nil {
		return false
	}
	return r.Title != "" && r.ImageURL != "" && r.ProductURL != "" &&
		r.Price >= 0 && r.Price < PriceCeiling
}

// ListingPage is one fetched listing page, discarded after extraction
type ListingPage struct {
	SourceURL  string
	Candidates []*goquery.Selection
	NextURL    string
}

// DialectConfig contains the structural conventions of one target site.
// Every selector list is ordered; the first selector that matches wins.
type DialectConfig struct {
	Name     string
	StartURL string

	Candidates []string
	Title      []string
	Price      []string
	Image      []string
	Link       []string
	NextPage   []string

	// Heuristics enables the structural fallbacks for candidates, links and prices
	Heuristics bool

	// PageParam is the query parameter used when no next link exists (e.g. "page")
	PageParam string

	// Rendering path
	RequiresRendering  bool
	WaitSelector       string
	DetailWaitSelector string
	DetailImage        []string
	FallbackImageName  string

	// CooldownKey is the cache key set after the site answers 429
	CooldownKey string
	Cooldown    time.Duration
}

// Cursor tracks pagination progress. It only moves forward.
type Cursor struct {
	CurrentURL   string
	PagesVisited int
	MaxPages     int
}

// Exhausted reports whether the page bound has been reached
func (c *Cursor) Exhausted() bool {
	return c.PagesVisited >= c.MaxPages
}

// State is a pagination crawler state
type State string

const (
	StateIdle            State = "idle"
	StateFetchingPage    State = "fetching_page"
	StateExtractingItems State = "extracting_items"
	StateAdvancingPage   State = "advancing_page"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// CrawlResult is returned by a finished crawl. Records are kept on failure.
type CrawlResult struct {
	Records []ProductRecord
	Pages   int
	Status  State
	Err     error

	SkippedUnextractable int
	SkippedOutlier       int
	SkippedDuplicate     int
	DetailFailures       int
}

// Fetcher retrieves the HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// DetailResolver loads a product detail page and embeds a higher-fidelity image in rec
type DetailResolver interface {
	ResolveDetail(ctx context.Context, rec *ProductRecord) error
}
