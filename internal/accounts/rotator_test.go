package accounts_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/accounts"
)

func account(name string, status types.AccountStatus) types.Account {
	return types.Account{Username: name, Password: "pw-" + name, Status: status}
}

func nextName(r *accounts.Rotator) string {
	a, err := r.Next()
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return a.Username
}

var _ = Describe("Rotator", func() {
	It("fails when no account is active", func() {
		r := accounts.NewRotator([]types.Account{account("a", types.AccountInactive)})
		_, err := r.Next()
		Expect(err).To(MatchError(accounts.ErrNoAccountsAvailable))

		r = accounts.NewRotator(nil)
		_, err = r.Next()
		Expect(err).To(MatchError(accounts.ErrNoAccountsAvailable))
	})

	It("rotates over active accounts in load order and wraps", func() {
		r := accounts.NewRotator([]types.Account{
			account("a", types.AccountActive),
			account("off", types.AccountInactive),
			account("b", types.AccountActive),
			account("c", types.AccountActive),
		})
		Expect(r.Len()).To(Equal(3))

		var got []string
		for i := 0; i < 5; i++ {
			got = append(got, nextName(r))
		}
		Expect(got).To(Equal([]string{"a", "b", "c", "a", "b"}))
	})

	It("skips quarantined accounts", func() {
		r := accounts.NewRotator([]types.Account{
			account("a", types.AccountActive),
			account("b", types.AccountActive),
			account("c", types.AccountActive),
		})
		Expect(nextName(r)).To(Equal("a"))
		r.MarkFailed("b")
		Expect(nextName(r)).To(Equal("c"))
		Expect(nextName(r)).To(Equal("a"))
		Expect(nextName(r)).To(Equal("c"))
	})

	It("resets the cycle once every account has failed", func() {
		r := accounts.NewRotator([]types.Account{
			account("a", types.AccountActive),
			account("b", types.AccountActive),
			account("c", types.AccountActive),
		})
		Expect(nextName(r)).To(Equal("a"))
		r.MarkFailed("a")
		Expect(nextName(r)).To(Equal("b"))
		r.MarkFailed("b")
		Expect(nextName(r)).To(Equal("c"))
		r.MarkFailed("c")

		Expect(nextName(r)).To(Equal("a"))
		for _, s := range r.States() {
			Expect(s.Quarantined).To(BeFalse())
			Expect(s.Failures).To(Equal(1))
		}
		Expect(nextName(r)).To(Equal("b"))
	})

	It("never returns an error while an account is active", func() {
		r := accounts.NewRotator([]types.Account{account("solo", types.AccountActive)})
		for i := 0; i < 10; i++ {
			Expect(nextName(r)).To(Equal("solo"))
			r.MarkFailed("solo")
		}
	})

	It("ignores unknown usernames", func() {
		r := accounts.NewRotator([]types.Account{
			account("a", types.AccountActive),
			account("off", types.AccountInactive),
		})
		r.MarkFailed("ghost")
		r.MarkFailed("off")
		Expect(r.States()).To(ConsistOf(accounts.AccountState{Username: "a"}))
		Expect(nextName(r)).To(Equal("a"))
	})

	It("is safe for concurrent use", func() {
		r := accounts.NewRotator([]types.Account{
			account("a", types.AccountActive),
			account("b", types.AccountActive),
		})
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				a, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				r.MarkFailed(a.Username)
			}()
		}
		wg.Wait()

		total := 0
		for _, s := range r.States() {
			total += s.HandedOut
		}
		Expect(total).To(Equal(50))
	})
})
