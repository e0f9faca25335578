package jobserver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/cache"
	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/metrics"
)

var handleRE = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Scraper computes a result for one handle.
type Scraper interface {
	Run(ctx context.Context, handle string) (*types.ScrapeResult, error)
}

// ResultCache is the part of cache.ResultCache the server uses.
type ResultCache interface {
	Lookup(ctx context.Context, handle string) cache.Lookup
	Put(ctx context.Context, handle string, result types.ScrapeResult) error
}

type JobServer struct {
	cfg     config.JobServerConfig
	scraper Scraper
	cache   ResultCache
	jobs    *JobStore
	queue   *WorkQueue
	now     func() time.Time
	backOff func(ctx context.Context) backoff.BackOff
}

// Stats is a snapshot of the job table and the queue.
type Stats struct {
	Queue   QueueStats              `json:"queue"`
	Jobs    map[types.JobStatus]int `json:"jobs"`
	Workers int                     `json:"workers"`
}

type Option func(*JobServer)

func WithClock(now func() time.Time) Option {
	return func(js *JobServer) { js.now = now }
}

// WithRetryBackOff replaces the back-off used to retry cache writes.
func WithRetryBackOff(fn func(ctx context.Context) backoff.BackOff) Option {
	return func(js *JobServer) { js.backOff = fn }
}

func defaultBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
}

func NewJobServer(cfg config.JobServerConfig, sc Scraper, rc ResultCache, opts ...Option) *JobServer {
	logrus.Info("Initializing JobServer...")

	if cfg.Workers <= 0 {
		logrus.Infof("Invalid worker count (%d), defaulting to 1 worker.", cfg.Workers)
		cfg.Workers = 1
	} else {
		logrus.Infof("Setting worker count to %d.", cfg.Workers)
	}
	if cfg.MaxQueuedJobs > 0 {
		logrus.Infof("Queue high-water mark set to %d.", cfg.MaxQueuedJobs)
	}

	js := &JobServer{
		cfg:     cfg,
		scraper: sc,
		cache:   rc,
		queue:   NewWorkQueue(cfg.MaxQueuedJobs),
		now:     time.Now,
		backOff: defaultBackOff,
	}
	for _, o := range opts {
		o(js)
	}
	js.jobs = NewJobStore(js.now)

	logrus.Info("JobServer initialization complete.")
	return js
}

// NormalizeHandle strips surrounding whitespace and one leading '@', then
// validates the result against the username grammar.
func NormalizeHandle(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	if !handleRE.MatchString(h) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return h, nil
}

// Submit creates a queued job for target and hands it to the workers.
func (js *JobServer) Submit(target string) (string, error) {
	j := js.jobs.Create(target)
	if err := js.queue.Enqueue(WorkItem{JobID: j.UUID, Target: target}); err != nil {
		js.jobs.Remove(j.UUID)
		return "", err
	}
	metrics.JobsSubmitted.Inc()
	metrics.QueueDepth.Set(float64(js.queue.Len()))
	logrus.WithFields(logrus.Fields{"job_id": j.UUID, "target": target}).Debug("Job queued")
	return j.UUID, nil
}

// Status returns the job's current status.
func (js *JobServer) Status(id string) (types.JobStatus, error) {
	j, ok := js.jobs.Get(id)
	if !ok {
		return "", ErrJobNotFound
	}
	return j.Status, nil
}

// Result returns a copy of the job; callers branch on its Status.
func (js *JobServer) Result(id string) (types.Job, error) {
	j, ok := js.jobs.Get(id)
	if !ok {
		return types.Job{}, ErrJobNotFound
	}
	return j, nil
}

// Fetch serves a fresh cached result directly and otherwise starts a job.
func (js *JobServer) Fetch(ctx context.Context, raw string) (types.FetchResponse, error) {
	handle, err := NormalizeHandle(raw)
	if err != nil {
		return types.FetchResponse{}, err
	}

	l := js.cache.Lookup(ctx, handle)
	if l.Freshness == cache.Fresh {
		res := l.Entry.Result
		return types.FetchResponse{Cached: true, Fresh: true, Result: &res}, nil
	}

	id, err := js.Submit(handle)
	if err != nil {
		return types.FetchResponse{}, err
	}
	resp := types.FetchResponse{JobID: &id}
	if l.Freshness == cache.Stale {
		resp.Cached = true
		if js.cfg.ReturnStaleResults {
			res := l.Entry.Result
			resp.Result = &res
		}
	}
	return resp, nil
}

func (js *JobServer) Stats() Stats {
	return Stats{
		Queue:   js.queue.GetStats(),
		Jobs:    js.jobs.CountByStatus(),
		Workers: js.cfg.Workers,
	}
}

// Run starts the workers and the sweeper and blocks until ctx ends or one of
// them returns an error. The queue is closed on exit.
func (js *JobServer) Run(ctx context.Context) error {
	defer js.queue.Close()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < js.cfg.Workers; i++ {
		id := i
		g.Go(func() error { return js.supervise(gctx, id) })
	}
	g.Go(func() error { return js.sweep(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
		return nil
	}
	return err
}

func (js *JobServer) sweep(ctx context.Context) error {
	interval := js.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			js.SweepExpired()
		}
	}
}

// SweepExpired removes jobs older than the job TTL.
func (js *JobServer) SweepExpired() int {
	if js.cfg.JobTTL <= 0 {
		return 0
	}
	n := js.jobs.Sweep(js.cfg.JobTTL)
	if n > 0 {
		metrics.JobsSwept.Add(float64(n))
		logrus.WithField("removed", n).Info("Swept expired jobs")
	}
	return n
}
