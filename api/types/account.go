package types

// AccountStatus marks whether a credential may be used for scraping.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// Account is one scraping credential. Accounts are loaded once at startup
// and never mutated afterwards.
type Account struct {
	Username  string        `json:"username" yaml:"username"`
	Email     string        `json:"email,omitempty" yaml:"email,omitempty"`
	Password  string        `json:"password" yaml:"password"`
	UserAgent string        `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	Status    AccountStatus `json:"status" yaml:"status"`
}

// Active reports whether the account may be handed out by the rotator.
func (a Account) Active() bool {
	return a.Status == AccountActive
}
