package jobserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/metrics"
	"github.com/tweetmap/tweetmap-worker/internal/scraper"
)

// supervise runs a worker loop and restarts it after a panic.
func (js *JobServer) supervise(ctx context.Context, id int) error {
	for {
		err := js.worker(ctx, id)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logrus.WithField("worker", id).Warn("Restarting worker after panic")
	}
}

// worker drains the queue. It returns nil only after recovering a panic.
func (js *JobServer) worker(ctx context.Context, id int) (err error) {
	var current string
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerPanics.Inc()
			logrus.WithFields(logrus.Fields{"worker": id, "job_id": current, "panic": r}).Error("Worker panicked")
			if current != "" {
				// Start is a no-op unless the panic hit before the job left queued.
				_ = js.jobs.Start(current)
				js.finish(current, time.Time{}, &types.JobError{
					Error:  fmt.Sprintf("worker panic: %v", r),
					Kind:   types.ErrorKindInternal,
					Status: types.JobStatusError,
				})
			}
			err = nil
		}
	}()

	for {
		item, derr := js.queue.Dequeue(ctx)
		if derr != nil {
			return derr
		}
		metrics.QueueDepth.Set(float64(js.queue.Len()))
		current = item.JobID
		js.doWork(ctx, item)
		current = ""
	}
}

func (js *JobServer) doWork(ctx context.Context, item WorkItem) {
	log := logrus.WithFields(logrus.Fields{"job_id": item.JobID, "target": item.Target})
	if err := js.jobs.Start(item.JobID); err != nil {
		// Swept or otherwise gone before a worker picked it up.
		log.WithError(err).Debug("Skipping job")
		return
	}
	start := time.Now()
	log.Info("Job started")

	result, err := js.scraper.Run(ctx, item.Target)
	if err != nil {
		log.WithError(err).Warn("Job failed")
		js.finish(item.JobID, start, scraper.JobError(err))
		return
	}

	if err := js.storeResult(ctx, item.Target, *result); err != nil {
		log.WithError(err).Error("Giving up on cache write")
		js.finish(item.JobID, start, &types.JobError{
			Error:  fmt.Sprintf("store unavailable: %v", err),
			Kind:   types.ErrorKindStoreUnavailable,
			Status: types.JobStatusError,
		})
		return
	}

	if err := js.jobs.Complete(item.JobID, result); err != nil {
		log.WithError(err).Warn("Could not complete job")
		return
	}
	metrics.JobsFinished.WithLabelValues(string(types.JobStatusDone), "").Inc()
	metrics.ObserveJobDuration(start)
	log.WithField("tweets", result.TotalTweetsFetched).Info("Job done")
}

func (js *JobServer) finish(id string, start time.Time, jobErr *types.JobError) {
	if err := js.jobs.Fail(id, jobErr); err != nil {
		if !errors.Is(err, ErrJobNotFound) {
			logrus.WithError(err).WithField("job_id", id).Warn("Could not fail job")
		}
		return
	}
	metrics.JobsFinished.WithLabelValues(string(types.JobStatusError), string(jobErr.Kind)).Inc()
	if !start.IsZero() {
		metrics.ObserveJobDuration(start)
	}
}

// storeResult writes the result to the cache, retrying with backoff. A job
// only reaches done once its result is stored.
func (js *JobServer) storeResult(ctx context.Context, handle string, result types.ScrapeResult) error {
	op := func() error {
		return js.cache.Put(ctx, handle, result)
	}
	notify := func(err error, wait time.Duration) {
		metrics.CacheWriteRetries.Inc()
		logrus.WithError(err).WithFields(logrus.Fields{"target": handle, "retry_in": wait}).Warn("Cache write failed, retrying")
	}
	return backoff.RetryNotify(op, js.backOff(ctx), notify)
}
