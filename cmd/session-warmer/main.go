// Command session-warmer logs every configured account in once and persists
// its session, pausing between logins.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/internal/accounts"
	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/feed/twitter"
	"github.com/tweetmap/tweetmap-worker/internal/warmer"
)

func main() {
	delay := flag.Duration("delay", 60*time.Second, "pause between consecutive logins")
	flag.Parse()

	jc := config.ReadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accts, err := accounts.Load(jc.GetAccountsConfig())
	if err != nil {
		logrus.WithError(err).Fatal("Could not load accounts")
	}
	if len(accts) == 0 {
		logrus.Fatal("No accounts configured, set ACCOUNTS_FILE or TWITTER_ACCOUNTS")
	}

	twitterCfg := jc.GetTwitterConfig()
	logrus.WithField("sessions_dir", twitterCfg.SessionsDir).Infof("Warming sessions for %d accounts", len(accts))

	report, err := warmer.Warm(ctx, twitter.NewSource(twitterCfg), accts, *delay)
	logrus.WithFields(logrus.Fields{
		"warmed":  len(report.Warmed),
		"skipped": len(report.Skipped),
		"failed":  len(report.Failed),
	}).Info("Session warm-up finished")
	if err != nil {
		logrus.WithError(err).Fatal("Interrupted")
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
