package crawler

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// kumaImageWait matches the product images the kuma storefront injects after scripts run
const kumaImageWait = "img[src*='image/cache'], img[src*='.webp'], img[src*='.jpg'], img[src*='.jpeg']"

// woocommerceNext is the next-page link of WooCommerce themes
var woocommerceNext = []string{"a.next.page-numbers", "a[rel='next']"}

// Dialects returns the built-in dialect configurations, sorted by name
func Dialects() []DialectConfig {
	dialects := []DialectConfig{
		{
			// WooCommerce (Woodmart theme) grid
			Name:        "yourdoll",
			StartURL:    "https://yourdoll.jp/product-category/all-sex-dolls/",
			Candidates:  []string{"div.product-grid-item"},
			Title:       []string{"h3.wd-entities-title a"},
			Price:       []string{"span.price", "span.woocommerce-Price-amount"},
			Image:       []string{".product-image-link img"},
			Link:        []string{"h3.wd-entities-title a", ".product-image-link"},
			NextPage:    woocommerceNext,
			CooldownKey: "yourdoll_rate_limited",
			Cooldown:    10 * time.Minute,
		},
		{
			// Same theme as yourdoll, price scoped to the amount element
			Name:        "sweetdoll",
			StartURL:    "https://sweet-doll.com/product-category/sedoll/",
			Candidates:  []string{"div.product-grid-item"},
			Title:       []string{".wd-entities-title a"},
			Price:       []string{".price .woocommerce-Price-amount"},
			Image:       []string{".product-image-link img"},
			Link:        []string{".product-image-link", ".wd-entities-title a"},
			NextPage:    woocommerceNext,
			CooldownKey: "sweetdoll_rate_limited",
			Cooldown:    10 * time.Minute,
		},
		{
			// Markup changes between themes, so every tier is a guess
			Name:     "happiness",
			StartURL: "https://happiness-doll.com/products/list",
			Candidates: []string{
				"div.item_list .item",
				"ul.products li.product",
				"div.products-list .product",
				"div.product-list .product",
				"article.product",
				"li.product",
			},
			Title: []string{
				"h3 a", "h2 a", "p.name a", "a.product-name", "a.product_name", "a",
				"h3", "h2", "p.name", "p.title", "div.title",
			},
			Price: []string{
				"span.price", "p.price", "div.price", "span.amount", "span.woocommerce-Price-amount",
			},
			Link: []string{
				"a.product-img", "a.product_image", "a.item_thumb",
				"h3 a", "h2 a", "p.name a", "a.product-name", "a.product_name",
			},
			NextPage:    []string{"a.next.page-numbers", "a[rel='next']", "li.next a", "a.pagination-next"},
			Heuristics:  true,
			CooldownKey: "happiness_rate_limited",
			Cooldown:    10 * time.Minute,
		},
		{
			// Listing and product images only exist after scripts run
			Name:               "kuma",
			StartURL:           "https://www.kuma-doll.com/Products/list-r1.html",
			Candidates:         []string{".product-item"},
			Title:              []string{"a.title"},
			Price:              []string{".price span"},
			Image:              []string{"a.image img"},
			Link:               []string{"a.image", "a.title"},
			NextPage:           []string{"a.next", "a.page-link[rel='next']"},
			PageParam:          "page",
			RequiresRendering:  true,
			WaitSelector:       ".product-item",
			DetailWaitSelector: kumaImageWait,
			DetailImage: []string{
				"div.product img", "div#product img", "div.product-gallery img", "div.product-images img", "img",
			},
			FallbackImageName: "kuma-image.webp",
		},
		{
			// For sites without a dedicated dialect; StartURL comes from the command line
			Name:       "generic",
			Title:      []string{"h3 a", "h2 a", "a[title]", "h3", "h2"},
			Price:      []string{".price", "[class*='price']"},
			Link:       []string{"h3 a", "h2 a", "a[href]"},
			NextPage:   []string{"a[rel='next']", "a.next", "li.next a"},
			Heuristics: true,
		},
	}

	slices.SortFunc(dialects, func(a, b DialectConfig) int {
		return strings.Compare(a.Name, b.Name)
	})
	return dialects
}

// LookupDialect returns the built-in dialect with the given name
func LookupDialect(name string) (DialectConfig, error) {
	for _, d := range Dialects() {
		if d.Name == name {
			return d, nil
		}
	}
	return DialectConfig{}, fmt.Errorf("unknown dialect %q", name)
}

// DialectNames lists the built-in dialect names
func DialectNames() []string {
	var names []string
	for _, d := range Dialects() {
		names = append(names, d.Name)
	}
	return names
}
