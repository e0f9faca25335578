// Package scraper turns one target handle into a ScrapeResult by walking the
// target's timeline through a rotating pool of accounts.
package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/accounts"
	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/feed"
	"github.com/tweetmap/tweetmap-worker/internal/histogram"
	"github.com/tweetmap/tweetmap-worker/internal/metrics"
	"github.com/tweetmap/tweetmap-worker/internal/stats"
)

const progressEvery = 50

// Rotator is the part of accounts.Rotator the scraper uses.
type Rotator interface {
	Next() (types.Account, error)
	MarkFailed(username string)
}

type Scraper struct {
	rotator Rotator
	source  feed.Source
	cfg     config.ScraperConfig
	pacer   Pacer
	stats   *stats.StatsCollector
	now     func() time.Time
}

type Option func(*Scraper)

func WithPacer(p Pacer) Option {
	return func(s *Scraper) { s.pacer = p }
}

func WithStats(sc *stats.StatsCollector) Option {
	return func(s *Scraper) { s.stats = sc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

func New(rotator Rotator, source feed.Source, cfg config.ScraperConfig, opts ...Option) *Scraper {
	s := &Scraper{
		rotator: rotator,
		source:  source,
		cfg:     cfg,
		pacer:   RandomPacer{Min: cfg.PageDelayMin, Max: cfg.PageDelayMax},
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run scrapes handle with the next available account. It never retries with
// a different account; a failing account is quarantined for the rest of the
// rotation cycle.
func (s *Scraper) Run(ctx context.Context, handle string) (*types.ScrapeResult, error) {
	account, err := s.rotator.Next()
	if err != nil {
		if errors.Is(err, accounts.ErrNoAccountsAvailable) {
			return nil, &Error{Kind: types.ErrorKindNoAccounts, Cause: err}
		}
		return nil, &Error{Kind: types.ErrorKindInternal, Cause: err}
	}

	log := logrus.WithFields(logrus.Fields{"target": handle, "account": account.Username})
	s.stats.Add(account.Username, stats.Scrapes, 1)

	sess, err := s.source.Login(ctx, feed.Credentials{
		Identity:  account.Username,
		Email:     account.Email,
		Secret:    account.Password,
		UserAgent: account.UserAgent,
	})
	if err != nil {
		s.stats.Add(account.Username, stats.LoginErrors, 1)
		return nil, s.fail(ctx, account, err)
	}

	profile, err := sess.ResolveUser(ctx, handle)
	if err != nil {
		return nil, s.fail(ctx, account, err)
	}

	start := s.now()
	agg := histogram.New(histogram.Options{
		MaxItems:          s.cfg.MaxTweets,
		Window:            s.cfg.Window,
		Now:               start,
		AssumeNewestFirst: true,
	})

	page, err := sess.FirstPage(ctx, profile, s.cfg.PageSize)
	pages := 0
	for {
		if err != nil {
			return nil, s.fail(ctx, account, err)
		}
		pages++
		s.stats.Add(account.Username, stats.PagesFetched, 1)
		metrics.PagesFetched.WithLabelValues(account.Username).Inc()

		before := agg.Total()
		more := consume(agg, page)
		after := agg.Total()
		if after/progressEvery > before/progressEvery {
			log.Infof("Fetched %d tweets so far", after)
		}

		if !more || page.End {
			break
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, s.fail(ctx, account, err)
		}
		page, err = sess.NextPage(ctx, page)
	}

	h := agg.Result()
	s.stats.Add(account.Username, stats.TweetsCounted, uint(h.Total))
	s.stats.Add(account.Username, stats.ScrapeSuccesses, 1)
	metrics.TweetsFetched.Add(float64(h.Total))
	log.WithFields(logrus.Fields{"pages": pages, "tweets": h.Total}).Info("Scrape finished")

	return &types.ScrapeResult{
		UserInfo: types.UserInfo{
			Username:               profile.Handle,
			Name:                   profile.Name,
			ProfileImageURL:        profile.AvatarURL,
			TweetCount:             profile.PostCount,
			IsVerified:             profile.Verified,
			CreatedAt:              profile.CreatedAt,
			HasDefaultProfileImage: profile.HasDefaultProfileImage,
			StartDate:              h.Earliest,
			EndDate:                s.now().UTC(),
		},
		TweetsPerDay:       h.Days,
		TotalTweetsFetched: h.Total,
	}, nil
}

// consume feeds a page to the aggregator, keeping pinned posts out of the
// early-termination check.
func consume(agg *histogram.Aggregator, page feed.Page) bool {
	ordered := make([]time.Time, 0, len(page.Items))
	for _, it := range page.Items {
		if it.Pinned {
			agg.Include(it.CreatedAt)
			continue
		}
		ordered = append(ordered, it.CreatedAt)
	}
	return agg.Consume(ordered)
}

func (s *Scraper) fail(ctx context.Context, account types.Account, err error) error {
	log := logrus.WithField("account", account.Username).WithError(err)

	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		log.Info("Scrape canceled")
		return &Error{Kind: types.ErrorKindCanceled, Account: account.Username, Cause: err}
	case errors.Is(err, feed.ErrUserNotFound):
		s.stats.Add(account.Username, stats.NotFound, 1)
		log.Info("Target not found")
		return &Error{Kind: types.ErrorKindTargetNotFound, Account: account.Username, Cause: err}
	case errors.Is(err, feed.ErrRateLimited):
		s.stats.Add(account.Username, stats.RateLimitErrors, 1)
		log.Warn("Rate limited")
	case errors.Is(err, feed.ErrAuth):
		log.Warn("Login failed")
	default:
		s.stats.Add(account.Username, stats.FetchErrors, 1)
		log.Warn("Scrape failed")
	}

	s.rotator.MarkFailed(account.Username)
	return &Error{Kind: types.ErrorKindAccountFault, Account: account.Username, Cause: err}
}
