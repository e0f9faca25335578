package jobserver_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/jobserver"
)

var _ = Describe("JobStore", func() {
	var (
		now   time.Time
		store *jobserver.JobStore
	)

	BeforeEach(func() {
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		store = jobserver.NewJobStore(func() time.Time { return now })
	})

	It("creates queued jobs with unique ids", func() {
		a := store.Create("alice")
		b := store.Create("alice")
		Expect(a.UUID).ToNot(BeEmpty())
		Expect(a.UUID).ToNot(Equal(b.UUID))
		Expect(a.Status).To(Equal(types.JobStatusQueued))
		Expect(a.CreatedAt).To(Equal(now))
		Expect(store.Len()).To(Equal(2))
	})

	It("walks queued -> fetching -> done", func() {
		j := store.Create("alice")
		now = now.Add(time.Second)
		Expect(store.Start(j.UUID)).To(Succeed())

		got, ok := store.Get(j.UUID)
		Expect(ok).To(BeTrue())
		Expect(got.Status).To(Equal(types.JobStatusFetching))
		Expect(got.UpdatedAt).To(Equal(now))

		res := &types.ScrapeResult{TotalTweetsFetched: 7}
		Expect(store.Complete(j.UUID, res)).To(Succeed())
		got, _ = store.Get(j.UUID)
		Expect(got.Status).To(Equal(types.JobStatusDone))
		Expect(got.Result.TotalTweetsFetched).To(Equal(7))
	})

	It("fails only from fetching", func() {
		a := store.Create("a")
		b := store.Create("b")
		Expect(store.Start(b.UUID)).To(Succeed())

		jobErr := &types.JobError{Error: "boom", Kind: types.ErrorKindAccountFault, Status: types.JobStatusError}
		Expect(store.Fail(a.UUID, jobErr)).To(MatchError(jobserver.ErrInvalidTransition))
		Expect(store.Fail(b.UUID, jobErr)).To(Succeed())

		got, _ := store.Get(a.UUID)
		Expect(got.Status).To(Equal(types.JobStatusQueued))
		Expect(got.Error).To(BeNil())

		got, _ = store.Get(b.UUID)
		Expect(got.Status).To(Equal(types.JobStatusError))
		Expect(got.Error.Kind).To(Equal(types.ErrorKindAccountFault))
	})

	It("rejects illegal transitions and never leaves a terminal state", func() {
		j := store.Create("alice")
		Expect(store.Complete(j.UUID, &types.ScrapeResult{})).To(MatchError(jobserver.ErrInvalidTransition))

		Expect(store.Start(j.UUID)).To(Succeed())
		Expect(store.Start(j.UUID)).To(MatchError(jobserver.ErrInvalidTransition))
		Expect(store.Complete(j.UUID, &types.ScrapeResult{})).To(Succeed())

		Expect(store.Fail(j.UUID, &types.JobError{Error: "late"})).To(MatchError(jobserver.ErrInvalidTransition))
		Expect(store.Start(j.UUID)).To(MatchError(jobserver.ErrInvalidTransition))
		got, _ := store.Get(j.UUID)
		Expect(got.Status).To(Equal(types.JobStatusDone))
		Expect(got.Error).To(BeNil())
	})

	It("reports unknown ids", func() {
		Expect(store.Start("nope")).To(MatchError(jobserver.ErrJobNotFound))
		_, ok := store.Get("nope")
		Expect(ok).To(BeFalse())
	})

	It("returns copies", func() {
		j := store.Create("alice")
		got, _ := store.Get(j.UUID)
		got.Status = types.JobStatusDone
		again, _ := store.Get(j.UUID)
		Expect(again.Status).To(Equal(types.JobStatusQueued))
	})

	It("sweeps jobs older than the TTL whatever their status", func() {
		old := store.Create("old")
		Expect(store.Start(old.UUID)).To(Succeed())
		now = now.Add(30 * time.Minute)
		young := store.Create("young")
		now = now.Add(31 * time.Minute)

		Expect(store.Sweep(time.Hour)).To(Equal(1))
		_, ok := store.Get(old.UUID)
		Expect(ok).To(BeFalse())
		_, ok = store.Get(young.UUID)
		Expect(ok).To(BeTrue())
	})

	It("counts jobs by status", func() {
		a := store.Create("a")
		store.Create("b")
		Expect(store.Start(a.UUID)).To(Succeed())

		counts := store.CountByStatus()
		Expect(counts).To(HaveKeyWithValue(types.JobStatusQueued, 1))
		Expect(counts).To(HaveKeyWithValue(types.JobStatusFetching, 1))
		Expect(counts).To(HaveKeyWithValue(types.JobStatusDone, 0))
	})
})
