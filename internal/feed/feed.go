// Package feed defines the capability the scraper needs from a social
// platform client: log in, resolve a user and walk that user's timeline one
// page at a time.
package feed

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned by ResolveUser when the handle does not exist
	// or is not visible to the session.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateLimited marks an upstream throttling signal.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuth marks a login or session failure.
	ErrAuth = errors.New("authentication failed")
)

// Credentials identify the account a session is established with.
type Credentials struct {
	Identity  string
	Email     string
	Secret    string
	UserAgent string
}

// Profile is the subset of a user profile the histogram result carries.
type Profile struct {
	ID                     string
	Handle                 string
	Name                   string
	AvatarURL              string
	PostCount              int
	Verified               bool
	CreatedAt              *time.Time
	HasDefaultProfileImage bool
}

// Post is a single timeline entry. Pinned posts may appear out of
// chronological order.
type Post struct {
	ID        string
	CreatedAt time.Time
	Pinned    bool
}

// Page is one slice of a timeline. End is set when no further page exists;
// Cursor is opaque to callers and only meaningful to the Session that
// produced the page.
type Page struct {
	Items  []Post
	Cursor string
	End    bool

	Profile  Profile
	PageSize int
}

// Source establishes sessions.
type Source interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
}

// Session is an authenticated handle bound to one account.
type Session interface {
	ResolveUser(ctx context.Context, handle string) (Profile, error)
	FirstPage(ctx context.Context, profile Profile, pageSize int) (Page, error)
	NextPage(ctx context.Context, prev Page) (Page, error)
}

// Timestamps extracts the creation instants of the page's posts.
func (p Page) Timestamps() []time.Time {
	out := make([]time.Time, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.CreatedAt
	}
	return out
}
