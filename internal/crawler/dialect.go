package crawler

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/productharvester/helpers"
)

// containerTags are the tags the structural heuristic accepts as product nodes
var containerTags = map[string]bool{"div": true, "li": true, "article": true}

// CandidateNodes returns the match set of the first candidate selector that matches anything.
// Tiers are never merged. When no tier matches, every div/li/article whose class
// contains "product" is used, in document order.
func CandidateNodes(doc *goquery.Document, dialect DialectConfig) []*goquery.Selection {
	for _, selector := range dialect.Candidates {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return splitSelection(sel)
		}
	}

	return heuristicCandidates(doc)
}

// NextPageURL returns the absolute href of the first next-page selector with an href
func NextPageURL(doc *goquery.Document, current *url.URL, dialect DialectConfig) (string, bool) {
	for _, selector := range dialect.NextPage {
		var next string
		doc.Find(selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			next = helpers.ResolveURL(current, a.AttrOr("href", ""))
			return next == ""
		})
		if next != "" {
			return next, true
		}
	}
	return "", false
}

// pageParamURL sets the dialect's page query parameter on current
func pageParamURL(current string, dialect DialectConfig, page int) (string, bool) {
	if dialect.PageParam == "" {
		return "", false
	}
	next, err := helpers.WithQueryParam(current, dialect.PageParam, strconv.Itoa(page))
	if err != nil {
		return "", false
	}
	return next, true
}

// heuristicCandidates finds div/li/article elements whose class mentions "product".
// Wrappers and their cards both match; the crawler drops the repeated product URL.
func heuristicCandidates(doc *goquery.Document) []*goquery.Selection {
	matches := doc.Find("div[class], li[class], article[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return looksLikeProduct(s)
	})
	return splitSelection(matches)
}

func looksLikeProduct(s *goquery.Selection) bool {
	if !containerTags[goquery.NodeName(s)] {
		return false
	}
	for _, class := range strings.Fields(s.AttrOr("class", "")) {
		if strings.Contains(class, "product") {
			return true
		}
	}
	return false
}

func splitSelection(sel *goquery.Selection) []*goquery.Selection {
	nodes := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, s)
	})
	return nodes
}
