package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/productharvester/helpers"
	"sjsage522/productharvester/pkg/errors"
)

// productLinkMarkers identify product pages among arbitrary anchors
var productLinkMarkers = []string{"/products/", "/product/", "product", "item"}

// OutlierError describes a complete record rejected by the price ceiling
type OutlierError struct {
	Title      string
	Price      int64
	ProductURL string
}

func (e *OutlierError) Error() string {
	return fmt.Sprintf("%q priced %d", e.Title, e.Price)
}

// Extractor turns candidate nodes into product records for one dialect
type Extractor struct {
	Dialect DialectConfig
}

// NewExtractor creates a new extractor
func NewExtractor(dialect DialectConfig) *Extractor {
	return &Extractor{Dialect: dialect}
}

// ExtractHTML parses a candidate fragment and extracts a record from it
func (e *Extractor) ExtractHTML(fragment, baseURL string) (*ProductRecord, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.NewParsing(e.Dialect.Name, "invalid base URL", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, errors.NewParsing(e.Dialect.Name, "HTML parse error", err)
	}

	return e.Extract(doc.Selection, base)
}

// Extract builds a record from one candidate node.
// A missing field yields an extraction error and a price at or above
// PriceCeiling yields an outlier error; no partial record is ever returned.
func (e *Extractor) Extract(node *goquery.Selection, base *url.URL) (*ProductRecord, error) {
	title := e.extractTitle(node)
	if title == "" {
		return nil, errors.NewExtraction(e.Dialect.Name, "title")
	}

	price, ok := e.extractPrice(node)
	if !ok {
		return nil, errors.NewExtraction(e.Dialect.Name, "price")
	}

	imageURL, ok := e.extractImage(node, base)
	if !ok {
		return nil, errors.NewExtraction(e.Dialect.Name, "image")
	}

	productURL := e.extractLink(node, base)
	if productURL == "" {
		return nil, errors.NewExtraction(e.Dialect.Name, "link")
	}

	if price >= PriceCeiling {
		return nil, errors.NewOutlier(e.Dialect.Name, &OutlierError{Title: title, Price: price, ProductURL: productURL})
	}

	return &ProductRecord{
		Title:      title,
		Price:      price,
		ImageURL:   imageURL,
		ProductURL: productURL,
	}, nil
}

// extractTitle returns the text of the first title selector that yields any,
// falling back to the title attribute
func (e *Extractor) extractTitle(node *goquery.Selection) string {
	for _, selector := range e.Dialect.Title {
		titleSel := node.Find(selector).First()
		if titleSel.Length() == 0 {
			continue
		}

		title := CleanText(titleSel.Text())
		if title == "" {
			title = CleanText(titleSel.AttrOr("title", ""))
		}
		if title != "" {
			return title
		}
	}
	return ""
}

// extractPrice normalizes the first price element carrying digits
func (e *Extractor) extractPrice(node *goquery.Selection) (int64, bool) {
	for _, selector := range e.Dialect.Price {
		priceSel := node.Find(selector).First()
		if priceSel.Length() == 0 {
			continue
		}
		if price, ok := NormalizePrice(priceSel.Text()); ok {
			return price, true
		}
	}

	if !e.Dialect.Heuristics {
		return 0, false
	}

	var (
		price int64
		found bool
	)
	node.Find("span, div, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.AttrOr("class", ""), "price") {
			return true
		}
		price, found = NormalizePrice(s.Text())
		return !found
	})
	return price, found
}

// extractImage locates the image tag and resolves its best reference
func (e *Extractor) extractImage(node *goquery.Selection, base *url.URL) (string, bool) {
	var img *goquery.Selection
	for _, selector := range e.Dialect.Image {
		if sel := node.Find(selector).First(); sel.Length() > 0 {
			img = sel
			break
		}
	}
	if img == nil {
		img = FindImage(node)
	}
	if img == nil {
		return "", false
	}

	return ResolveImage(img, node, base)
}

// extractLink resolves the href of the first link selector that has one
func (e *Extractor) extractLink(node *goquery.Selection, base *url.URL) string {
	for _, selector := range e.Dialect.Link {
		linkSel := node.Find(selector).First()
		if linkSel.Length() == 0 {
			continue
		}
		if href := strings.TrimSpace(linkSel.AttrOr("href", "")); href != "" {
			return helpers.ResolveURL(base, href)
		}
	}

	if !e.Dialect.Heuristics {
		return ""
	}

	var link string
	node.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.Contains(href, "add-to-cart") {
			return true
		}
		for _, marker := range productLinkMarkers {
			if strings.Contains(href, marker) {
				link = helpers.ResolveURL(base, href)
				return false
			}
		}
		return true
	})
	return link
}
