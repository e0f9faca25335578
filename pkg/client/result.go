package client

import (
	"context"
	"fmt"
	"time"

	"github.com/tweetmap/tweetmap-worker/api/types"
)

// JobResult is a handle on a running scrape.
type JobResult struct {
	UUID       string
	maxRetries int
	delay      time.Duration
	client     *Client
}

func (jr *JobResult) SetMaxRetries(maxRetries int) {
	jr.maxRetries = maxRetries
}

func (jr *JobResult) SetDelay(delay time.Duration) {
	jr.delay = delay
}

// Get polls the server until the job is done, fails, disappears or the
// retries run out.
func (jr *JobResult) Get(ctx context.Context) (*types.ScrapeResult, error) {
	for retries := 0; retries < jr.maxRetries; retries++ {
		res, ready, err := jr.client.GetResult(ctx, jr.UUID)
		if err != nil {
			return nil, err
		}
		if ready {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jr.delay):
		}
	}
	return nil, fmt.Errorf("max retries reached waiting for job %s", jr.UUID)
}
