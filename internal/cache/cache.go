// Package cache decides whether a stored scrape result can be served as is,
// served while being refreshed, or must be computed.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/metrics"
	"github.com/tweetmap/tweetmap-worker/internal/store"
)

// Table holds one record per lower-cased handle.
const Table = "scrape_results"

type Freshness int

const (
	Absent Freshness = iota
	Stale
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Entry is a decoded cache record.
type Entry struct {
	Result      types.ScrapeResult
	LastUpdated time.Time
}

// Lookup is the outcome of a freshness check. Entry is nil when Absent.
type Lookup struct {
	Freshness Freshness
	Entry     *Entry
}

type selected struct {
	rec   store.Record
	found bool
}

type ResultCache struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
	cb    circuitbreaker.CircuitBreaker[any]
}

type Option func(*options)

type options struct {
	now              func() time.Time
	failureThreshold uint
	failureWindow    uint
	openDelay        time.Duration
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBreaker sets the read circuit breaker to open after failures out of
// the last window reads and to probe again after delay.
func WithBreaker(failures, window uint, delay time.Duration) Option {
	return func(o *options) {
		o.failureThreshold, o.failureWindow, o.openDelay = failures, window, delay
	}
}

func New(st store.Store, ttl time.Duration, opts ...Option) *ResultCache {
	o := options{
		now:              time.Now,
		failureThreshold: 5,
		failureWindow:    10,
		openDelay:        15 * time.Second,
	}
	for _, fn := range opts {
		fn(&o)
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(o.failureThreshold, o.failureWindow).
		WithDelay(o.openDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logrus.WithFields(logrus.Fields{
				"from_state": event.OldState,
				"to_state":   event.NewState,
			}).Warn("Result store circuit breaker state change")
		}).
		Build()

	return &ResultCache{store: st, ttl: ttl, now: o.now, cb: cb}
}

// Key normalizes a handle into its cache key.
func Key(handle string) string {
	return strings.ToLower(handle)
}

// Lookup never fails: store errors and undecodable records read as Absent.
func (c *ResultCache) Lookup(ctx context.Context, handle string) Lookup {
	key := Key(handle)
	res, err := failsafe.With(c.cb).Get(func() (any, error) {
		rec, found, err := c.store.SelectByKey(ctx, Table, key)
		return selected{rec: rec, found: found}, err
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			logrus.WithField("key", key).Debug("Result store circuit open, treating as absent")
		} else {
			logrus.WithError(err).WithField("key", key).Warn("Result store read failed, treating as absent")
		}
		return c.record(Lookup{Freshness: Absent})
	}

	sel := res.(selected)
	if !sel.found {
		return c.record(Lookup{Freshness: Absent})
	}
	result, err := types.UnmarshalScrapeResult(sel.rec.Payload)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Undecodable cache record, treating as absent")
		return c.record(Lookup{Freshness: Absent})
	}

	entry := &Entry{Result: result, LastUpdated: sel.rec.LastUpdated}
	if c.now().Sub(sel.rec.LastUpdated) >= c.ttl {
		return c.record(Lookup{Freshness: Stale, Entry: entry})
	}
	return c.record(Lookup{Freshness: Fresh, Entry: entry})
}

func (c *ResultCache) record(l Lookup) Lookup {
	metrics.CacheLookups.WithLabelValues(l.Freshness.String()).Inc()
	return l
}

// Put upserts result under handle with last_updated set to now.
func (c *ResultCache) Put(ctx context.Context, handle string, result types.ScrapeResult) error {
	payload, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.store.Upsert(ctx, Table, Key(handle), store.Record{Payload: payload, LastUpdated: c.now().UTC()})
}

// Ping checks the underlying store.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// BreakerOpen reports whether reads are currently short-circuited.
func (c *ResultCache) BreakerOpen() bool {
	return c.cb.IsOpen()
}
