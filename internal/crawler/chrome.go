package crawler

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"sjsage522/productharvester/logger"
	"sjsage522/productharvester/pkg/errors"
)

// fetchImageJS downloads src inside the page so the request carries the page's cookies
const fetchImageJS = `async (src) => {
	const resp = await fetch(src, { credentials: 'include' });
	if (!resp.ok) {
		throw new Error('image request failed with status ' + resp.status);
	}
	const bytes = new Uint8Array(await resp.arrayBuffer());
	let binary = '';
	for (let i = 0; i < bytes.length; i += 0x8000) {
		binary += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
	}
	return btoa(binary);
}`

var (
	_ Fetcher        = (*Renderer)(nil)
	_ DetailResolver = (*Renderer)(nil)
)

// RendererConfig configures the headless browser
type RendererConfig struct {
	Bin         string
	NoSandbox   bool
	UserAgent   string
	Wait        time.Duration // bound on waiting for the dialect's selectors
	Settle      time.Duration // pause after the wait before the snapshot
	PageTimeout time.Duration // bound on navigation
}

// Renderer fetches pages through headless Chrome. All pages share one
// browser context, so detail page and image requests reuse listing cookies.
type Renderer struct {
	dialect  DialectConfig
	cfg      RendererConfig
	browser  *rod.Browser
	launcher *launcher.Launcher
	log      *logger.Logger
}

// NewRenderer launches a headless browser for the dialect.
// Close must be called when the renderer is no longer needed.
func NewRenderer(dialect DialectConfig, cfg RendererConfig) (*Renderer, error) {
	l := launcher.New().Headless(true)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.NewConfiguration("launching browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, errors.NewConfiguration("connecting to browser", err)
	}

	return &Renderer{
		dialect:  dialect,
		cfg:      cfg,
		browser:  browser,
		launcher: l,
		log:      logger.ForRenderer().WithStr("crawler", dialect.Name),
	}, nil
}

// Fetch renders pageURL and returns the HTML once the dialect's wait selector
// appeared or the wait bound passed
func (r *Renderer) Fetch(ctx context.Context, pageURL string) (string, error) {
	page, err := r.open(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer page.Close()

	r.waitFor(ctx, page, r.dialect.WaitSelector, pageURL)

	html, err := page.HTML()
	if err != nil {
		return "", errors.NewNetwork(r.dialect.Name, "reading rendered HTML", err)
	}
	return html, nil
}

// ResolveDetail opens the product page, picks its main image and embeds the
// image bytes in rec. Images whose URL mentions "logo" are ignored.
func (r *Renderer) ResolveDetail(ctx context.Context, rec *ProductRecord) error {
	page, err := r.open(ctx, rec.ProductURL)
	if err != nil {
		return err
	}
	defer page.Close()

	r.waitFor(ctx, page, r.dialect.DetailWaitSelector, rec.ProductURL)

	html, err := page.HTML()
	if err != nil {
		return errors.NewNetwork(r.dialect.Name, "reading detail HTML", err)
	}

	imageURL, err := detailImage(r.dialect, html, rec.ProductURL)
	if err != nil {
		return err
	}

	r.log.Info().Str("image_url", imageURL).Msg("Downloading image with session")
	res, err := page.Eval(fetchImageJS, imageURL)
	if err != nil {
		return errors.NewNetwork(r.dialect.Name, "downloading image "+imageURL, err)
	}
	content, err := base64.StdEncoding.DecodeString(res.Value.Str())
	if err != nil {
		return errors.NewParsing(r.dialect.Name, "decoding image payload", err)
	}
	if len(content) == 0 {
		return errors.NewValidation(r.dialect.Name, "empty image "+imageURL)
	}

	rec.ImageURL = imageURL
	rec.ImageContent = content
	rec.ImageName = imageName(imageURL, r.dialect.FallbackImageName)
	return nil
}

// Close releases browser resources
func (r *Renderer) Close() error {
	err := r.browser.Close()
	r.launcher.Kill()
	return err
}

// open creates a page bound to ctx and navigates it to pageURL
func (r *Renderer) open(ctx context.Context, pageURL string) (*rod.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.NewNetwork(r.dialect.Name, "opening page", err)
	}
	page = page.Context(ctx)

	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			page.Close()
			return nil, errors.NewNetwork(r.dialect.Name, "setting user agent", err)
		}
	}

	r.log.Info().Str("url", pageURL).Msg("Rendering page")

	nav := page
	if r.cfg.PageTimeout > 0 {
		nav = page.Timeout(r.cfg.PageTimeout)
	}
	if err := nav.Navigate(pageURL); err != nil {
		page.Close()
		return nil, errors.NewNetwork(r.dialect.Name, "navigating to "+pageURL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		page.Close()
		return nil, errors.NewNetwork(r.dialect.Name, "waiting for load of "+pageURL, err)
	}
	return page, nil
}

// waitFor waits up to the configured bound for selector, then lets the page settle.
// Running out of time is not an error; the snapshot is taken anyway.
func (r *Renderer) waitFor(ctx context.Context, page *rod.Page, selector, pageURL string) {
	if selector != "" && r.cfg.Wait > 0 {
		if _, err := page.Timeout(r.cfg.Wait).Element(selector); err != nil {
			r.log.Warn().
				Str("url", pageURL).
				Str("selector", selector).
				Dur("wait", r.cfg.Wait).
				Msg("Timeout waiting for content")
		}
	}

	if r.cfg.Settle > 0 {
		select {
		case <-time.After(r.cfg.Settle):
		case <-ctx.Done():
		}
	}
}

// detailImage picks the first non-logo image of the detail page
func detailImage(dialect DialectConfig, html, productURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.NewParsing(dialect.Name, "HTML parse error", err)
	}
	base, err := url.Parse(productURL)
	if err != nil {
		return "", errors.NewParsing(dialect.Name, "invalid product URL", err)
	}

	for _, selector := range dialect.DetailImage {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			candidate, ok := ResolveImage(img, nil, base)
			if ok && !strings.Contains(candidate, "logo") {
				found = candidate
				return false
			}
			return true
		})
		if found != "" {
			return found, nil
		}
	}

	return "", errors.NewExtraction(dialect.Name, fmt.Sprintf("detail image on %s", productURL))
}

// imageName returns the last path segment of imageURL. URLs without one get a
// name derived from the URL hash so uploads do not collide.
func imageName(imageURL, fallback string) string {
	if u, err := url.Parse(imageURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}

	if fallback == "" {
		fallback = "image"
	}
	return fmt.Sprintf("%016x-%s", xxhash.Sum64String(imageURL), fallback)
}
