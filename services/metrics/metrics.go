package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const job = "product_harvester"

// RunMetrics holds the counters of a single harvesting run.
// Each run gets its own registry so pushes never carry stale series.
type RunMetrics struct {
	registry *prometheus.Registry
	dialect  string

	PagesFetched     prometheus.Counter
	RecordsScraped   prometheus.Counter
	RecordsSkipped   *prometheus.CounterVec
	RecordsPublished prometheus.Counter
	PublishFailures  prometheus.Counter
	DetailFailures   prometheus.Counter
	RunDuration      prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New creates the counters for a run over dialect
func New(dialect string) *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,
		dialect:  dialect,
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_pages_fetched_total",
			Help: "Listing pages fetched during the run.",
		}),
		RecordsScraped: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_records_scraped_total",
			Help: "Valid product records extracted during the run.",
		}),
		RecordsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_skipped_total",
				Help: "Candidates or records dropped before publishing.",
			},
			[]string{"reason"}, // unextractable, outlier, duplicate
		),
		RecordsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_records_published_total",
			Help: "Records created through the content API.",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_publish_failures_total",
			Help: "Records the content API refused.",
		}),
		DetailFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_detail_failures_total",
			Help: "Records dropped because the detail page could not be resolved.",
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_run_duration_seconds",
			Help: "Wall clock duration of the last run.",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_last_success_timestamp_seconds",
			Help: "Unix time of the last run that scraped at least one record.",
		}),
	}
}

// Registry exposes the run registry
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push sends the run counters to a Prometheus Pushgateway.
// An empty url disables pushing.
func (m *RunMetrics) Push(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).
		Gatherer(m.registry).
		Grouping("dialect", m.dialect).
		PushContext(ctx)
}
