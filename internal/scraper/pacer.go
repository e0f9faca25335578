package scraper

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

// Pacer delays between page fetches.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RandomPacer sleeps a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

func (p RandomPacer) Wait(ctx context.Context) error {
	d := p.Min
	if p.Max > p.Min {
		d += time.Duration(rand.Int64N(int64(p.Max - p.Min + 1)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	logrus.Debugf("Sleeping for %v", d)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoPacer never waits.
type NoPacer struct{}

func (NoPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}
