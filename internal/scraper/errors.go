package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/tweetmap/tweetmap-worker/api/types"
)

// Error is the failure of one scrape. Callers branch on Kind.
type Error struct {
	Kind    types.ErrorKind
	Account string
	Cause   error
}

func (e *Error) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("%s (account %s): %v", e.Kind, e.Account, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf classifies any error returned by Run.
func KindOf(err error) types.ErrorKind {
	var se *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.ErrorKindCanceled
	default:
		return types.ErrorKindInternal
	}
}

// JobError converts err into the payload stored on a failed job.
func JobError(err error) *types.JobError {
	return &types.JobError{
		Error:  err.Error(),
		Kind:   KindOf(err),
		Status: types.JobStatusError,
	}
}
