package accounts

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tweetmap/tweetmap-worker/api/types"
	"github.com/tweetmap/tweetmap-worker/internal/metrics"
)

var ErrNoAccountsAvailable = errors.New("no active accounts available")

// Rotator hands out active accounts round-robin. An account marked failed is
// skipped until every active account has failed, at which point the cycle
// starts over with a clean slate.
type Rotator struct {
	mu          sync.Mutex
	accounts    []types.Account
	index       int
	quarantined map[string]struct{}
	failures    map[string]int
	handedOut   map[string]int
}

// AccountState is a point-in-time view of one account, used by /readyz.
type AccountState struct {
	Username    string `json:"username"`
	Quarantined bool   `json:"quarantined"`
	Failures    int    `json:"failures"`
	HandedOut   int    `json:"handed_out"`
}

// NewRotator keeps only the active accounts, in load order.
func NewRotator(all []types.Account) *Rotator {
	active := filterMap(all, func(a types.Account) (types.Account, bool) {
		return a, a.Active()
	})
	return &Rotator{
		accounts:    active,
		quarantined: make(map[string]struct{}),
		failures:    make(map[string]int),
		handedOut:   make(map[string]int),
	}
}

// Len is the number of active accounts.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// Next returns the next usable account and advances the cursor past it.
func (r *Rotator) Next() (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.accounts) == 0 {
		return types.Account{}, ErrNoAccountsAvailable
	}

	if len(r.quarantined) >= len(r.accounts) {
		logrus.WithField("accounts", len(r.accounts)).Warn("All accounts failed in this cycle, resetting rotation")
		r.quarantined = make(map[string]struct{})
		r.index = 0
		metrics.RotationResets.Inc()
	}

	for i := 0; i < len(r.accounts); i++ {
		account := r.accounts[r.index]
		r.index = (r.index + 1) % len(r.accounts)
		if _, failed := r.quarantined[account.Username]; !failed {
			r.handedOut[account.Username]++
			return account, nil
		}
	}

	// Unreachable while len(quarantined) < len(accounts).
	return types.Account{}, ErrNoAccountsAvailable
}

// MarkFailed quarantines the account for the rest of the current cycle.
// Unknown usernames are ignored.
func (r *Rotator) MarkFailed(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Username == username {
			r.quarantined[username] = struct{}{}
			r.failures[username]++
			logrus.WithField("account", username).Warn("Account quarantined for this rotation cycle")
			metrics.AccountFailures.WithLabelValues(username).Inc()
			return
		}
	}
}

// States returns the state of all active accounts
func (r *Rotator) States() []AccountState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]AccountState, len(r.accounts))
	for i, a := range r.accounts {
		_, q := r.quarantined[a.Username]
		states[i] = AccountState{
			Username:    a.Username,
			Quarantined: q,
			Failures:    r.failures[a.Username],
			HandedOut:   r.handedOut[a.Username],
		}
	}
	return states
}

func filterMap[T any, R any](slice []T, f func(T) (R, bool)) []R {
	result := make([]R, 0, len(slice))
	for _, v := range slice {
		if r, ok := f(v); ok {
			result = append(result, r)
		}
	}
	return result
}
