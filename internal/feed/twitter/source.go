// Package twitter implements feed.Source on top of the twitter-scraper
// client, persisting one cookie session per account.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	twitterscraper "github.com/imperatrona/twitter-scraper"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/feed"
)

// Source logs accounts in and hands out sessions. Request pacing is tracked
// per account so every session of the same account shares one limiter.
type Source struct {
	sessionsDir           string
	skipLoginVerification bool
	rps                   float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSource(cfg config.TwitterConfig) *Source {
	return &Source{
		sessionsDir:           cfg.SessionsDir,
		skipLoginVerification: cfg.SkipLoginVerification,
		rps:                   cfg.RequestsPerSecond,
		limiters:              make(map[string]*rate.Limiter),
	}
}

// HasSession reports whether a persisted session exists for the identity.
func (s *Source) HasSession(identity string) bool {
	_, err := os.Stat(sessionFile(s.sessionsDir, identity))
	return err == nil
}

// Login reuses the persisted session of the account when it is still valid
// and performs a full login otherwise, saving the new session.
func (s *Source) Login(ctx context.Context, creds feed.Credentials) (feed.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scraper := twitterscraper.New()
	scraper.SetSkipLoginVerification(s.skipLoginVerification)
	path := sessionFile(s.sessionsDir, creds.Identity)

	if cookies, err := loadCookies(path); err == nil {
		scraper.SetCookies(cookies)
		if scraper.IsLoggedIn() {
			logrus.Debugf("Reusing session for %s", creds.Identity)
			return s.session(scraper, creds.Identity), nil
		}
		logrus.Debugf("Stored session for %s is no longer valid", creds.Identity)
	}

	var err error
	if creds.Email != "" {
		err = scraper.Login(creds.Identity, creds.Secret, creds.Email)
	} else {
		err = scraper.Login(creds.Identity, creds.Secret)
	}
	if err != nil {
		logrus.WithError(err).Warnf("Login failed for %s", creds.Identity)
		return nil, fmt.Errorf("%w: %s: %v", feed.ErrAuth, creds.Identity, classify(err))
	}

	if err := saveCookies(path, scraper.GetCookies()); err != nil {
		logrus.WithError(err).Errorf("Failed to save session for %s", creds.Identity)
	}
	logrus.Debugf("Login successful for %s", creds.Identity)
	return s.session(scraper, creds.Identity), nil
}

func (s *Source) session(scraper *twitterscraper.Scraper, identity string) *session {
	return &session{scraper: scraper, identity: identity, limiter: s.limiter(identity)}
}

func (s *Source) limiter(identity string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[identity]
	if !ok {
		limit := rate.Inf
		if s.rps > 0 {
			limit = rate.Limit(s.rps)
		}
		l = rate.NewLimiter(limit, 1)
		s.limiters[identity] = l
	}
	return l
}

type session struct {
	scraper  *twitterscraper.Scraper
	identity string
	limiter  *rate.Limiter
}

func (s *session) ResolveUser(ctx context.Context, handle string) (feed.Profile, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return feed.Profile{}, err
	}
	p, err := s.scraper.GetProfile(handle)
	if err != nil {
		return feed.Profile{}, classifyLookup(err)
	}
	if p.Username == "" {
		return feed.Profile{}, fmt.Errorf("%w: %s", feed.ErrUserNotFound, handle)
	}
	return toProfile(p), nil
}

func (s *session) FirstPage(ctx context.Context, profile feed.Profile, pageSize int) (feed.Page, error) {
	return s.fetch(ctx, feed.Page{Profile: profile, PageSize: pageSize})
}

func (s *session) NextPage(ctx context.Context, prev feed.Page) (feed.Page, error) {
	if prev.End {
		return prev, nil
	}
	return s.fetch(ctx, feed.Page{Profile: prev.Profile, PageSize: prev.PageSize, Cursor: prev.Cursor})
}

func (s *session) fetch(ctx context.Context, req feed.Page) (feed.Page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return feed.Page{}, err
	}
	tweets, next, err := s.scraper.FetchTweets(req.Profile.Handle, req.PageSize, req.Cursor)
	if err != nil {
		return feed.Page{}, classify(err)
	}

	page := feed.Page{
		Profile:  req.Profile,
		PageSize: req.PageSize,
		Cursor:   next,
		Items:    make([]feed.Post, 0, len(tweets)),
	}
	for _, t := range tweets {
		if t == nil {
			continue
		}
		page.Items = append(page.Items, feed.Post{ID: t.ID, CreatedAt: time.Unix(t.Timestamp, 0).UTC(), Pinned: t.IsPin})
	}
	page.End = len(tweets) == 0 || next == "" || next == req.Cursor
	return page, nil
}

func toProfile(p twitterscraper.Profile) feed.Profile {
	return feed.Profile{
		ID:                     p.UserID,
		Handle:                 p.Username,
		Name:                   p.Name,
		AvatarURL:              p.Avatar,
		PostCount:              p.TweetsCount,
		Verified:               p.IsBlueVerified,
		CreatedAt:              p.Joined,
		HasDefaultProfileImage: p.Avatar == "" || strings.Contains(p.Avatar, "default_profile_images"),
	}
}

// classify maps client error strings onto feed.ErrRateLimited. Anything
// else is returned unchanged and counts against the account.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, feed.ErrRateLimited) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit exceeded") || strings.Contains(msg, "429") {
		return fmt.Errorf("%w: %v", feed.ErrRateLimited, err)
	}
	return err
}

// classifyLookup is classify plus the not-found mapping, which only holds
// for profile lookups.
func classifyLookup(err error) error {
	err = classify(err)
	if err == nil || errors.Is(err, feed.ErrRateLimited) || errors.Is(err, feed.ErrUserNotFound) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "suspended") {
		return fmt.Errorf("%w: %v", feed.ErrUserNotFound, err)
	}
	return err
}
