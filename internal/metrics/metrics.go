package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetmap_jobs_submitted_total",
		Help: "Total scrape jobs submitted",
	})
	JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetmap_jobs_finished_total",
		Help: "Total scrape jobs that reached a terminal state",
	}, []string{"status", "kind"})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tweetmap_job_duration_seconds",
		Help:    "Wall time of a scrape from start to terminal state",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tweetmap_queue_depth",
		Help: "Jobs waiting for a worker",
	})
	JobsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetmap_jobs_swept_total",
		Help: "Jobs removed after their TTL expired",
	})
	WorkerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetmap_worker_panics_total",
		Help: "Worker panics recovered by the supervisor",
	})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetmap_cache_lookups_total",
		Help: "Result cache lookups by freshness",
	}, []string{"freshness"})
	CacheWriteRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetmap_cache_write_retries_total",
		Help: "Retried result cache writes",
	})

	PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetmap_pages_fetched_total",
		Help: "Timeline pages fetched per account",
	}, []string{"account"})
	TweetsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetmap_tweets_fetched_total",
		Help: "Tweets counted into histograms",
	})
	AccountFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetmap_account_failures_total",
		Help: "Times an account was quarantined",
	}, []string{"account"})
	RotationResets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetmap_rotation_resets_total",
		Help: "Times every account failed and the rotation cycle was reset",
	})
)

func init() {
	prometheus.MustRegister(
		JobsSubmitted, JobsFinished, JobDuration, QueueDepth, JobsSwept, WorkerPanics,
		CacheLookups, CacheWriteRetries,
		PagesFetched, TweetsFetched, AccountFailures, RotationResets,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJobDuration records the time since start.
func ObserveJobDuration(start time.Time) {
	JobDuration.Observe(time.Since(start).Seconds())
}
