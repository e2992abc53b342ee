package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"

	"sjsage522/productharvester/helpers"
	"sjsage522/productharvester/logger"
	"sjsage522/productharvester/pkg/errors"
	"sjsage522/productharvester/services/cache"
)

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher fetches listing pages with a plain GET.
// After the site answers 429 it stores a cooldown marker in the cache and
// refuses to fetch until the marker expires.
type HTTPFetcher struct {
	Client        *http.Client
	UserAgent     string
	Provider      string
	CacheKey      string
	CacheSvc      cache.CacheService
	BlockTime     time.Duration
	RespectRobots bool

	robots map[string]*robotstxt.RobotsData
}

// NewHTTPFetcher creates a fetcher for the given dialect
func NewHTTPFetcher(dialect DialectConfig, client *http.Client, userAgent string, cacheSvc cache.CacheService) *HTTPFetcher {
	if client == nil {
		client = helpers.NewClient(helpers.DefaultTimeout)
	}
	return &HTTPFetcher{
		Client:    client,
		UserAgent: userAgent,
		Provider:  dialect.Name,
		CacheKey:  dialect.CooldownKey,
		CacheSvc:  cacheSvc,
		BlockTime: dialect.Cooldown,
		robots:    make(map[string]*robotstxt.RobotsData),
	}
}

// Fetch returns the UTF-8 body of pageURL
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	// Check if the site is cooling down
	if f.coolingDown() {
		return "", errors.NewRateLimit(f.Provider, f.BlockTime)
	}

	if f.RespectRobots && !f.allowed(ctx, pageURL) {
		return "", errors.NewValidation(f.Provider, "disallowed by robots.txt: "+pageURL)
	}

	body, err := helpers.FetchHTML(ctx, f.Client, pageURL, f.UserAgent)
	if err != nil {
		var rateErr *helpers.ErrRateLimited
		if stderrors.As(err, &rateErr) {
			if err := f.startCooldown(); err != nil {
				logger.ForCache().Warn().Err(err).Str("key", f.CacheKey).Msg("Cooldown not recorded")
			}
			return "", errors.New(errors.ErrorTypeRateLimit, f.Provider, "rate limited", err)
		}
		return "", errors.NewNetwork(f.Provider, "fetch failed", err)
	}

	return body, nil
}

func (f *HTTPFetcher) coolingDown() bool {
	if f.CacheSvc == nil || f.CacheKey == "" {
		return false
	}
	_, err := f.CacheSvc.Get(f.CacheKey)
	return err == nil
}

// startCooldown stores the rate-limit marker for BlockTime
func (f *HTTPFetcher) startCooldown() error {
	if f.CacheSvc == nil || f.CacheKey == "" || f.BlockTime <= 0 {
		return nil
	}
	value := []byte(fmt.Sprintf("%d", int(f.BlockTime/time.Second)))
	if err := f.CacheSvc.Set(f.CacheKey, value, f.BlockTime); err != nil {
		return errors.NewCache(f.Provider, "failed to store cooldown marker", err)
	}
	logger.ForCrawler(f.Provider).Warn().
		Dur("cooldown", f.BlockTime).
		Msg("Rate limited; cooling down")
	return nil
}

func (f *HTTPFetcher) allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}

	if f.robots == nil {
		f.robots = make(map[string]*robotstxt.RobotsData)
	}
	data, cached := f.robots[u.Host]
	if !cached {
		data = f.loadRobots(ctx, u)
		f.robots[u.Host] = data
	}
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, f.UserAgent)
}

func (f *HTTPFetcher) loadRobots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}
