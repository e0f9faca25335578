package types

// ErrorKind classifies a failure so callers can branch on it without
// inspecting error strings.
type ErrorKind string

const (
	ErrorKindNoAccounts       ErrorKind = "no_accounts_available"
	ErrorKindTargetNotFound   ErrorKind = "target_not_found"
	ErrorKindAccountFault     ErrorKind = "account_fault"
	ErrorKindInvalidInput     ErrorKind = "invalid_input"
	ErrorKindStoreUnavailable ErrorKind = "store_unavailable"
	ErrorKindCanceled         ErrorKind = "canceled"
	ErrorKindInternal         ErrorKind = "internal"
)

// JobError is the structured error payload returned by every endpoint.
type JobError struct {
	Error  string    `json:"error"`
	Kind   ErrorKind `json:"kind,omitempty"`
	Status JobStatus `json:"status,omitempty"`
}
