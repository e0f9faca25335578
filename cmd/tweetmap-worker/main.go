package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tweetmap/tweetmap-worker/internal/accounts"
	"github.com/tweetmap/tweetmap-worker/internal/api"
	"github.com/tweetmap/tweetmap-worker/internal/cache"
	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/feed/twitter"
	"github.com/tweetmap/tweetmap-worker/internal/jobserver"
	"github.com/tweetmap/tweetmap-worker/internal/scraper"
	"github.com/tweetmap/tweetmap-worker/internal/stats"
	"github.com/tweetmap/tweetmap-worker/internal/store"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("tweetmap-worker exited")
	}
}

func run() error {
	jc := config.ReadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accts, err := accounts.Load(jc.GetAccountsConfig())
	if err != nil {
		return err
	}
	rotator := accounts.NewRotator(accts)
	if rotator.Len() == 0 {
		logrus.Warn("No active accounts configured, every scrape will fail with no_accounts_available")
	} else {
		logrus.Infof("Loaded %d active accounts", rotator.Len())
	}

	st, err := store.Open(ctx, jc.GetStoreConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	collector := stats.StartCollector(ctx, jc.GetInt("stats_buf_size", 128))
	source := twitter.NewSource(jc.GetTwitterConfig())
	scr := scraper.New(rotator, source, jc.GetScraperConfig(), scraper.WithStats(collector))

	jsCfg := jc.GetJobServerConfig()
	rc := cache.New(st, jsCfg.CacheTTL)
	jobServer := jobserver.NewJobServer(jsCfg, scr, rc)

	e := api.NewServer(jc, api.Deps{
		Jobs:     jobServer,
		Store:    rc,
		Accounts: rotator,
		Stats:    collector,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return jobServer.Run(gctx) })
	g.Go(func() error { return api.Start(gctx, jc.ListenAddress(), e) })

	err = g.Wait()
	logrus.Info("Shut down")
	return err
}
