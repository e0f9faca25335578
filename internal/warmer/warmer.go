// Package warmer logs accounts in ahead of time so the server starts with a
// persisted session for each of them.
package warmer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/feed"
)

// SessionSource is a feed.Source that can tell whether a session is already
// persisted for an identity.
type SessionSource interface {
	feed.Source
	HasSession(identity string) bool
}

// Report lists the outcome per account.
type Report struct {
	Warmed  []string
	Skipped []string
	Failed  map[string]error
}

// Warm logs in every active account that has no persisted session, waiting
// delay between consecutive logins. It stops early when ctx ends.
func Warm(ctx context.Context, src SessionSource, accts []types.Account, delay time.Duration) (Report, error) {
	report := Report{Failed: make(map[string]error)}
	first := true

	for _, a := range accts {
		log := logrus.WithField("account", a.Username)
		if !a.Active() {
			log.Debug("Skipping inactive account")
			report.Skipped = append(report.Skipped, a.Username)
			continue
		}
		if src.HasSession(a.Username) {
			log.Info("Session already present")
			report.Skipped = append(report.Skipped, a.Username)
			continue
		}

		if !first && delay > 0 {
			log.Infof("Waiting %s before next login", delay)
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(delay):
			}
		}
		first = false

		_, err := src.Login(ctx, feed.Credentials{
			Identity:  a.Username,
			Email:     a.Email,
			Secret:    a.Password,
			UserAgent: a.UserAgent,
		})
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.WithError(err).Warn("Login failed")
			report.Failed[a.Username] = err
			continue
		}
		log.Info("Session saved")
		report.Warmed = append(report.Warmed, a.Username)
	}
	return report, nil
}
