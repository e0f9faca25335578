package jobserver_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetmap/tweetmap-worker/internal/jobserver"
)

var _ = Describe("WorkQueue", func() {
	var (
		q   *jobserver.WorkQueue
		ctx context.Context
	)

	BeforeEach(func() {
		q = jobserver.NewWorkQueue(0)
		ctx = context.Background()
	})

	AfterEach(func() {
		q.Close()
	})

	It("should dequeue in FIFO order", func() {
		for i := 0; i < 3; i++ {
			Expect(q.Enqueue(jobserver.WorkItem{JobID: fmt.Sprint(i)})).To(Succeed())
		}
		Expect(q.Len()).To(Equal(3))
		for i := 0; i < 3; i++ {
			item, err := q.Dequeue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.JobID).To(Equal(fmt.Sprint(i)))
		}
		Expect(q.Len()).To(Equal(0))
	})

	It("should block until an item arrives", func() {
		got := make(chan jobserver.WorkItem, 1)
		go func() {
			defer GinkgoRecover()
			item, err := q.Dequeue(ctx)
			Expect(err).NotTo(HaveOccurred())
			got <- item
		}()

		Consistently(got, 50*time.Millisecond).ShouldNot(Receive())
		Expect(q.Enqueue(jobserver.WorkItem{JobID: "late"})).To(Succeed())
		Eventually(got, time.Second).Should(Receive(HaveField("JobID", "late")))
	})

	It("should respect context cancellation", func() {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := q.Dequeue(cctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("should reject items past the high-water mark", func() {
		bounded := jobserver.NewWorkQueue(1)
		defer bounded.Close()
		Expect(bounded.Enqueue(jobserver.WorkItem{JobID: "1"})).To(Succeed())
		Expect(bounded.Enqueue(jobserver.WorkItem{JobID: "2"})).To(MatchError(jobserver.ErrQueueFull))
	})

	It("should drain then report closed", func() {
		Expect(q.Enqueue(jobserver.WorkItem{JobID: "left"})).To(Succeed())
		q.Close()
		q.Close()

		Expect(q.Enqueue(jobserver.WorkItem{JobID: "rejected"})).To(MatchError(jobserver.ErrQueueClosed))
		item, err := q.Dequeue(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(item.JobID).To(Equal("left"))
		_, err = q.Dequeue(ctx)
		Expect(err).To(MatchError(jobserver.ErrQueueClosed))
	})

	It("should wake blocked consumers on close", func() {
		done := make(chan error, 1)
		go func() {
			_, err := q.Dequeue(ctx)
			done <- err
		}()
		time.Sleep(20 * time.Millisecond)
		q.Close()
		Eventually(done, time.Second).Should(Receive(MatchError(jobserver.ErrQueueClosed)))
	})

	It("should deliver each item to exactly one consumer", func() {
		const n = 200
		for i := 0; i < n; i++ {
			Expect(q.Enqueue(jobserver.WorkItem{JobID: fmt.Sprint(i)})).To(Succeed())
		}
		q.Close()

		var (
			mu   sync.Mutex
			seen = make(map[string]int)
			wg   sync.WaitGroup
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					item, err := q.Dequeue(ctx)
					if err != nil {
						return
					}
					mu.Lock()
					seen[item.JobID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Expect(seen).To(HaveLen(n))
		for _, c := range seen {
			Expect(c).To(Equal(1))
		}
		stats := q.GetStats()
		Expect(stats.Enqueued).To(Equal(int64(n)))
		Expect(stats.Dequeued).To(Equal(int64(n)))
		Expect(stats.Depth).To(Equal(0))
	})
})
