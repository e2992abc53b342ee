package crawler

import (
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/productharvester/helpers"
)

// srcsetAttrs are probed first, in order; each yields its entries highest resolution first
var srcsetAttrs = []string{"data-lazy-srcset", "data-srcset", "srcset"}

// lazySrcAttrs are the single-URL lazy-load attributes, probed before the plain src
var lazySrcAttrs = []string{
	"data-lazy-src",
	"data-src",
	"data-original",
	"data-ll-src",
	"data-cfsrc",
	"data-echo",
	"data-hires",
	"data-image",
	"src",
}

// ResolveImage picks the best image reference of img and resolves it against base.
// When img yields nothing and container is not nil, the <img> inside a <noscript>
// of the container is probed, then every other <img> in the container.
// The result is never a data: URI.
func ResolveImage(img *goquery.Selection, container *goquery.Selection, base *url.URL) (string, bool) {
	var candidates []string
	if img != nil && img.Length() > 0 {
		candidates = imageCandidates(img.First())
	}

	if container != nil {
		for _, ns := range noscriptImages(container) {
			candidates = append(candidates, srcsetCandidates(attr(ns, "srcset"))...)
			candidates = append(candidates, attr(ns, "src"))
		}
		container.Find("img").Each(func(_ int, extra *goquery.Selection) {
			candidates = append(candidates, srcsetCandidates(attr(extra, "srcset"))...)
			candidates = append(candidates, attr(extra, "src"), attr(extra, "data-src"))
		})
	}

	for _, candidate := range candidates {
		if candidate == "" || isDataURI(candidate) {
			continue
		}
		if resolved := helpers.ResolveURL(base, candidate); resolved != "" {
			return resolved, true
		}
	}
	return "", false
}

// FindImage returns the first <img> under root, looking inside <noscript> when the
// page only carries the real tag there
func FindImage(root *goquery.Selection) *goquery.Selection {
	if img := root.Find("img").First(); img.Length() > 0 {
		return img
	}
	if imgs := noscriptImages(root); len(imgs) > 0 {
		return imgs[0]
	}
	return nil
}

// imageCandidates lists the references of a single <img> in priority order
func imageCandidates(img *goquery.Selection) []string {
	var candidates []string
	for _, name := range srcsetAttrs {
		candidates = append(candidates, srcsetCandidates(attr(img, name))...)
	}
	for _, name := range lazySrcAttrs {
		candidates = append(candidates, attr(img, name))
	}
	return candidates
}

// srcsetCandidates takes the URL token of every entry, last entry first.
// A data URI placeholder contains commas of its own, so it is skipped whole.
func srcsetCandidates(value string) []string {
	if value == "" || isDataURI(value) {
		return nil
	}

	var urls []string
	for _, entry := range strings.Split(value, ",") {
		if fields := strings.Fields(entry); len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	slices.Reverse(urls)
	return urls
}

// noscriptImages returns the <img> tags inside <noscript> elements of root.
// The HTML parser keeps noscript content as raw text, so it is parsed again here.
func noscriptImages(root *goquery.Selection) []*goquery.Selection {
	var imgs []*goquery.Selection
	root.Find("noscript").Each(func(_ int, ns *goquery.Selection) {
		if parsed := ns.Find("img"); parsed.Length() > 0 {
			imgs = append(imgs, parsed.First())
			return
		}
		inner := strings.TrimSpace(ns.Text())
		if inner == "" {
			return
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(inner))
		if err != nil {
			return
		}
		if img := doc.Find("img").First(); img.Length() > 0 {
			imgs = append(imgs, img)
		}
	})
	return imgs
}

func attr(s *goquery.Selection, name string) string {
	return strings.TrimSpace(s.AttrOr(name, ""))
}

func isDataURI(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "data:")
}
