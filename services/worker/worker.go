package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sjsage522/productharvester/internal/crawler"
	"sjsage522/productharvester/logger"
	"sjsage522/productharvester/services/dedup"
	"sjsage522/productharvester/services/metrics"
	"sjsage522/productharvester/services/publisher"
)

// Options tune a single run
type Options struct {
	StartURL       string
	MaxPages       int
	Delay          time.Duration
	Limit          int // successful publishes; 0 means unlimited
	DryRun         bool
	PushgatewayURL string
}

// Deps are the collaborators of a run. Detail and Stream are optional.
type Deps struct {
	Fetcher crawler.Fetcher
	Detail  crawler.DetailResolver
	Catalog publisher.CatalogReader
	Records publisher.RecordPublisher
	Stream  publisher.StreamPublisher
}

// RunResult summarizes a run
type RunResult struct {
	RunID   string
	Dialect string

	Scraped              int
	SkippedUnextractable int
	SkippedOutlier       int
	SkippedDuplicate     int
	Published            int
	PublishFailures      int
	DetailFailures       int

	CrawlStatus crawler.State
	SeedLoaded  bool
}

// Worker handles the crawling and publishing process for one dialect
type Worker struct {
	dialect crawler.DialectConfig
	deps    Deps
	opts    Options
}

// NewWorker creates a new worker
func NewWorker(dialect crawler.DialectConfig, deps Deps, opts Options) *Worker {
	return &Worker{
		dialect: dialect,
		deps:    deps,
		opts:    opts,
	}
}

// Run seeds the duplicate index, crawls the listing and publishes new records.
// Failures are reported through the result and the log, never returned.
func (w *Worker) Run(ctx context.Context) RunResult {
	start := time.Now()
	result := RunResult{
		RunID:   uuid.NewString(),
		Dialect: w.dialect.Name,
	}
	log := logger.ForWorker().WithFields(logger.Fields{
		"run_id":  result.RunID,
		"crawler": w.dialect.Name,
	})
	m := metrics.New(w.dialect.Name)

	index := dedup.NewIndex()
	result.SeedLoaded = w.seed(ctx, index, log)

	opts := []crawler.Option{
		crawler.WithStartURL(w.opts.StartURL),
		crawler.WithMaxPages(w.opts.MaxPages),
		crawler.WithDelay(w.opts.Delay),
		crawler.WithKnownURLs(index.IsPublished),
	}
	if w.deps.Detail != nil {
		opts = append(opts, crawler.WithDetailResolver(w.deps.Detail))
	}
	crawl := crawler.NewPaginationCrawler(w.dialect, w.deps.Fetcher, opts...).Crawl(ctx)

	result.CrawlStatus = crawl.Status
	result.Scraped = len(crawl.Records)
	result.SkippedUnextractable = crawl.SkippedUnextractable
	result.SkippedOutlier = crawl.SkippedOutlier
	result.SkippedDuplicate = crawl.SkippedDuplicate
	result.DetailFailures = crawl.DetailFailures
	if crawl.Err != nil {
		log.WithError(crawl.Err).Error().Int("pages", crawl.Pages).Msg("Crawl ended with an error")
	}

	w.publishAll(ctx, crawl.Records, index, &result, log)

	if w.deps.Stream != nil {
		if err := w.deps.Stream.TrimStreams(); err != nil {
			logger.LogError("StreamTrimming", err, "failed to trim streams")
		}
	}

	m.PagesFetched.Add(float64(crawl.Pages))
	m.RecordsScraped.Add(float64(result.Scraped))
	m.RecordsSkipped.WithLabelValues("unextractable").Add(float64(result.SkippedUnextractable))
	m.RecordsSkipped.WithLabelValues("outlier").Add(float64(result.SkippedOutlier))
	m.RecordsSkipped.WithLabelValues("duplicate").Add(float64(result.SkippedDuplicate))
	m.RecordsPublished.Add(float64(result.Published))
	m.PublishFailures.Add(float64(result.PublishFailures))
	m.DetailFailures.Add(float64(result.DetailFailures))
	m.RunDuration.Set(time.Since(start).Seconds())
	if result.Scraped > 0 {
		m.LastSuccess.SetToCurrentTime()
	}
	if err := m.Push(ctx, w.opts.PushgatewayURL); err != nil {
		log.Warn().Err(err).Msg("Failed to push metrics")
	}

	log.Info().
		Str("status", string(result.CrawlStatus)).
		Int("pages", crawl.Pages).
		Int("scraped", result.Scraped).
		Int("published", result.Published).
		Int("publish_failures", result.PublishFailures).
		Int("skipped_duplicate", result.SkippedDuplicate).
		Int("skipped_outlier", result.SkippedOutlier).
		Int("skipped_unextractable", result.SkippedUnextractable).
		Int("detail_failures", result.DetailFailures).
		Dur("elapsed", time.Since(start)).
		Msg("Run finished")

	return result
}

// seed loads the published product URLs. A failing catalog leaves the index empty.
func (w *Worker) seed(ctx context.Context, index *dedup.Index, log *logger.Logger) bool {
	urls, err := w.deps.Catalog.ListPublished(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Bool("reduced_confidence", true).
			Msg("Could not load published products; duplicates may be published")
		return false
	}
	index.Seed(urls)
	log.Info().Int("published", index.SeedLen()).Msg("Duplicate index seeded")
	return true
}

// publishAll sends every new record until the limit of successful publishes is reached
func (w *Worker) publishAll(ctx context.Context, records []crawler.ProductRecord, index *dedup.Index, result *RunResult, log *logger.Logger) {
	for _, rec := range records {
		if w.opts.Limit > 0 && result.Published >= w.opts.Limit {
			log.Info().Int("limit", w.opts.Limit).Msg("Publish limit reached")
			return
		}
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("Run cancelled; remaining records not published")
			return
		}

		if index.IsDuplicate(rec.ProductURL) {
			result.SkippedDuplicate++
			log.Debug().Str("product_url", rec.ProductURL).Msg("Already published")
			continue
		}
		index.MarkSeen(rec.ProductURL)

		if w.opts.DryRun {
			result.Published++
			log.Info().
				Str("title", rec.Title).
				Int64("price", rec.Price).
				Str("product_url", rec.ProductURL).
				Msg("Dry run; not publishing")
			continue
		}

		id, err := w.deps.Records.Publish(ctx, rec)
		if err != nil {
			result.PublishFailures++
			log.Error().
				Err(err).
				Str("title", rec.Title).
				Str("product_url", rec.ProductURL).
				Msg("Publish failed")
			continue
		}
		result.Published++
		log.Info().
			Str("id", id).
			Str("title", rec.Title).
			Int64("price", rec.Price).
			Msg("Published")

		w.notify(id, result, rec, log)
	}
}

// notify announces a published record on the stream, if one is configured
func (w *Worker) notify(id string, result *RunResult, rec crawler.ProductRecord, log *logger.Logger) {
	if w.deps.Stream == nil {
		return
	}
	data, err := publisher.NewNotification(id, result.RunID, result.Dialect, rec).Marshal()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode notification")
		return
	}
	if err := w.deps.Stream.Publish(publisher.NotificationKey, data); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to publish notification")
	}
}
