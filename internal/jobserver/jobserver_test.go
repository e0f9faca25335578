package jobserver_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/accounts"
	"github.com/tweetmap/tweetmap-worker/internal/cache"
	"github.com/tweetmap/tweetmap-worker/internal/config"
	"github.com/tweetmap/tweetmap-worker/internal/feed"
	"github.com/tweetmap/tweetmap-worker/internal/feed/fakefeed"
	. "github.com/tweetmap/tweetmap-worker/internal/jobserver"
	"github.com/tweetmap/tweetmap-worker/internal/scraper"
	"github.com/tweetmap/tweetmap-worker/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// panicky panics on its first run for targets starting with "boom".
type panicky struct {
	next   Scraper
	panics atomic.Int32
}

func (p *panicky) Run(ctx context.Context, handle string) (*types.ScrapeResult, error) {
	if strings.HasPrefix(handle, "boom") {
		p.panics.Add(1)
		panic("scraper exploded")
	}
	return p.next.Run(ctx, handle)
}

// brokenCache fails every write.
type brokenCache struct {
	*cache.ResultCache
	puts atomic.Int32
}

func (b *brokenCache) Put(ctx context.Context, handle string, result types.ScrapeResult) error {
	b.puts.Add(1)
	return errors.New("disk full")
}

var _ = Describe("JobServer", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		clk    *clock
		src    *fakefeed.Source
		rc     *cache.ResultCache
		cfg    config.JobServerConfig
		sc     *scraper.Scraper
	)

	newScraper := func(accts ...types.Account) *scraper.Scraper {
		return scraper.New(accounts.NewRotator(accts), src, config.ScraperConfig{
			MaxTweets: 500,
			Window:    180 * 24 * time.Hour,
			PageSize:  2,
		}, scraper.WithPacer(scraper.NoPacer{}))
	}

	start := func(js *JobServer) chan error {
		done := make(chan error, 1)
		go func() { done <- js.Run(ctx) }()
		return done
	}

	waitFor := func(js *JobServer, id string, status types.JobStatus) types.Job {
		Eventually(func() types.JobStatus {
			s, _ := js.Status(id)
			return s
		}, "5s", "10ms").Should(Equal(status))
		j, err := js.Result(id)
		Expect(err).NotTo(HaveOccurred())
		return j
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		clk = &clock{t: time.Now().UTC()}
		src = fakefeed.New()
		src.AddUser(feed.Profile{Handle: "alice", Name: "Alice", PostCount: 3},
			time.Now().Add(-time.Hour), time.Now().Add(-25*time.Hour), time.Now().Add(-49*time.Hour))
		rc = cache.New(store.NewMemory(0), time.Hour, cache.WithClock(clk.Now))
		cfg = config.JobServerConfig{Workers: 2, JobTTL: time.Hour, SweepInterval: time.Hour, CacheTTL: time.Hour}
		sc = newScraper(types.Account{Username: "bot1", Password: "pw", Status: types.AccountActive})
	})

	AfterEach(func() {
		cancel()
	})

	Describe("NormalizeHandle", func() {
		DescribeTable("accepts valid handles",
			func(raw, want string) {
				got, err := NormalizeHandle(raw)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			},
			Entry("plain", "alice", "alice"),
			Entry("at sign and spaces", "  @Alice_01 ", "Alice_01"),
			Entry("fifteen chars", "abcdefghijklmno", "abcdefghijklmno"),
		)

		DescribeTable("rejects invalid handles",
			func(raw string) {
				_, err := NormalizeHandle(raw)
				Expect(err).To(MatchError(ErrInvalidHandle))
			},
			Entry("empty", ""),
			Entry("only at", "@"),
			Entry("dot", "a.b"),
			Entry("too long", "abcdefghijklmnop"),
			Entry("double at", "@@alice"),
			Entry("dash", "al-ice"),
		)
	})

	It("runs a scrape end to end and then serves it from cache", func() {
		js := NewJobServer(cfg, sc, rc, WithClock(clk.Now))
		done := start(js)

		resp, err := js.Fetch(ctx, "@alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.JobID).NotTo(BeNil())
		Expect(resp.Cached).To(BeFalse())
		Expect(resp.Fresh).To(BeFalse())
		Expect(resp.Result).To(BeNil())

		j := waitFor(js, *resp.JobID, types.JobStatusDone)
		Expect(j.Result.TotalTweetsFetched).To(Equal(3))
		Expect(j.Result.UserInfo.Username).To(Equal("alice"))

		Eventually(func() cache.Freshness {
			return rc.Lookup(ctx, "ALICE").Freshness
		}, "2s", "10ms").Should(Equal(cache.Fresh))

		resp, err = js.Fetch(ctx, "Alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.JobID).To(BeNil())
		Expect(resp.Cached).To(BeTrue())
		Expect(resp.Fresh).To(BeTrue())
		Expect(resp.Result.TotalTweetsFetched).To(Equal(3))

		cancel()
		Eventually(done, "2s").Should(Receive(BeNil()))
	})

	It("rejects invalid handles without creating a job", func() {
		js := NewJobServer(cfg, sc, rc)
		_, err := js.Fetch(ctx, "a.b")
		Expect(err).To(MatchError(ErrInvalidHandle))
		Expect(js.Stats().Queue.Enqueued).To(BeZero())
	})

	Context("with a stale cache entry", func() {
		BeforeEach(func() {
			Expect(rc.Put(ctx, "alice", types.ScrapeResult{TotalTweetsFetched: 1})).To(Succeed())
			clk.Advance(2 * time.Hour)
		})

		It("starts a refresh and withholds the stale result by default", func() {
			js := NewJobServer(cfg, sc, rc)
			resp, err := js.Fetch(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.JobID).NotTo(BeNil())
			Expect(resp.Cached).To(BeTrue())
			Expect(resp.Fresh).To(BeFalse())
			Expect(resp.Result).To(BeNil())

			status, err := js.Status(*resp.JobID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(types.JobStatusQueued))
		})

		It("includes the stale result when configured to", func() {
			cfg.ReturnStaleResults = true
			js := NewJobServer(cfg, sc, rc)
			resp, err := js.Fetch(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.JobID).NotTo(BeNil())
			Expect(resp.Result).NotTo(BeNil())
			Expect(resp.Result.TotalTweetsFetched).To(Equal(1))
		})
	})

	It("records unknown targets as target_not_found", func() {
		js := NewJobServer(cfg, sc, rc)
		start(js)

		id, err := js.Submit("nobody")
		Expect(err).NotTo(HaveOccurred())
		j := waitFor(js, id, types.JobStatusError)
		Expect(j.Error.Kind).To(Equal(types.ErrorKindTargetNotFound))
		Expect(j.Error.Status).To(Equal(types.JobStatusError))
		Expect(j.Result).To(BeNil())
	})

	It("records an empty account pool as no_accounts_available", func() {
		js := NewJobServer(cfg, newScraper(), rc)
		start(js)

		id, err := js.Submit("alice")
		Expect(err).NotTo(HaveOccurred())
		j := waitFor(js, id, types.JobStatusError)
		Expect(j.Error.Kind).To(Equal(types.ErrorKindNoAccounts))
	})

	It("fails the in-flight job and restarts a worker that panics", func() {
		cfg.Workers = 1
		p := &panicky{next: sc}
		js := NewJobServer(cfg, p, rc)
		start(js)

		bad, err := js.Submit("boom")
		Expect(err).NotTo(HaveOccurred())
		good, err := js.Submit("alice")
		Expect(err).NotTo(HaveOccurred())

		j := waitFor(js, bad, types.JobStatusError)
		Expect(j.Error.Kind).To(Equal(types.ErrorKindInternal))
		Expect(j.Error.Error).To(ContainSubstring("scraper exploded"))

		waitFor(js, good, types.JobStatusDone)
		Expect(p.panics.Load()).To(Equal(int32(1)))
	})

	It("fails the job as store_unavailable when the cache write keeps failing", func() {
		bc := &brokenCache{ResultCache: rc}
		js := NewJobServer(cfg, sc, bc, WithRetryBackOff(func(ctx context.Context) backoff.BackOff {
			return backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2), ctx)
		}))
		start(js)

		id, err := js.Submit("alice")
		Expect(err).NotTo(HaveOccurred())
		j := waitFor(js, id, types.JobStatusError)
		Expect(j.Error.Kind).To(Equal(types.ErrorKindStoreUnavailable))
		Expect(j.Error.Error).To(ContainSubstring("disk full"))
		Expect(j.Result).To(BeNil())
		Expect(bc.puts.Load()).To(Equal(int32(3)))
	})

	It("gives concurrent fetches of an uncached target distinct jobs that both finish", func() {
		js := NewJobServer(cfg, sc, rc)

		var (
			wg  sync.WaitGroup
			ids [2]string
		)
		for i := range ids {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp, err := js.Fetch(ctx, "alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.JobID).NotTo(BeNil())
				ids[i] = *resp.JobID
			}()
		}
		wg.Wait()
		start(js)

		Expect(ids[0]).NotTo(Equal(ids[1]))
		for _, id := range ids {
			j := waitFor(js, id, types.JobStatusDone)
			Expect(j.Result.TotalTweetsFetched).To(Equal(3))
		}
	})

	It("rejects submissions past the queue high-water mark", func() {
		cfg.MaxQueuedJobs = 1
		js := NewJobServer(cfg, sc, rc)

		_, err := js.Submit("alice")
		Expect(err).NotTo(HaveOccurred())
		_, err = js.Fetch(ctx, "bob")
		Expect(err).To(MatchError(ErrQueueFull))
		Expect(js.Stats().Jobs[types.JobStatusQueued]).To(Equal(1))
	})

	It("sweeps jobs older than the job TTL", func() {
		js := NewJobServer(cfg, sc, rc, WithClock(clk.Now))
		id, err := js.Submit("alice")
		Expect(err).NotTo(HaveOccurred())

		clk.Advance(30 * time.Minute)
		Expect(js.SweepExpired()).To(Equal(0))

		clk.Advance(31 * time.Minute)
		Expect(js.SweepExpired()).To(Equal(1))
		_, err = js.Status(id)
		Expect(err).To(MatchError(ErrJobNotFound))
		_, err = js.Result(id)
		Expect(err).To(MatchError(ErrJobNotFound))
	})

	It("reports unknown job ids", func() {
		js := NewJobServer(cfg, sc, rc)
		_, err := js.Status("00000000-0000-0000-0000-000000000000")
		Expect(err).To(MatchError(ErrJobNotFound))
	})
})
