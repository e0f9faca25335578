// Package fakefeed is an in-memory feed.Source with scripted users and
// failures. It backs the tests and the dev mode of the worker.
package fakefeed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tweetmap/tweetmap-worker/internal/feed"
)

type user struct {
	profile feed.Profile
	posts   []feed.Post
}

// Source serves timelines from memory. Posts are served in the order they
// were added.
type Source struct {
	mu         sync.Mutex
	users      map[string]user
	loginErrs  map[string]error
	pageErrs   map[string]error
	logins     []string
	pages      int
	pageHook   func(identity string)
	resolveErr error
}

func New() *Source {
	return &Source{
		users:     make(map[string]user),
		loginErrs: make(map[string]error),
		pageErrs:  make(map[string]error),
	}
}

// AddUser registers a profile with its timeline.
func (s *Source) AddUser(p feed.Profile, posts ...time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user{profile: p, posts: make([]feed.Post, len(posts))}
	for i, ts := range posts {
		u.posts[i] = feed.Post{ID: strconv.Itoa(i + 1), CreatedAt: ts}
	}
	s.users[strings.ToLower(p.Handle)] = u
}

// Pin puts a pinned post at the top of the user's timeline.
func (s *Source) Pin(handle string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(handle)]
	if !ok {
		return
	}
	u.posts = append([]feed.Post{{ID: "pinned", CreatedAt: ts, Pinned: true}}, u.posts...)
	s.users[strings.ToLower(handle)] = u
}

// FailLogin makes every login of identity fail with err. A nil err clears it.
func (s *Source) FailLogin(identity string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.loginErrs, identity)
		return
	}
	s.loginErrs[identity] = err
}

// FailPages makes every page fetched through identity fail with err.
func (s *Source) FailPages(identity string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.pageErrs, identity)
		return
	}
	s.pageErrs[identity] = err
}

// FailResolve makes every ResolveUser call fail with err.
func (s *Source) FailResolve(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveErr = err
}

// OnPage installs a hook called before each page is served.
func (s *Source) OnPage(hook func(identity string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageHook = hook
}

// Logins lists the identities that logged in successfully, in order.
func (s *Source) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logins...)
}

// PagesServed counts pages returned so far.
func (s *Source) PagesServed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

func (s *Source) Login(ctx context.Context, creds feed.Credentials) (feed.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loginErrs[creds.Identity]; err != nil {
		return nil, err
	}
	s.logins = append(s.logins, creds.Identity)
	return &session{src: s, identity: creds.Identity}, nil
}

type session struct {
	src      *Source
	identity string
}

func (s *session) ResolveUser(ctx context.Context, handle string) (feed.Profile, error) {
	if err := ctx.Err(); err != nil {
		return feed.Profile{}, err
	}
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	if s.src.resolveErr != nil {
		return feed.Profile{}, s.src.resolveErr
	}
	u, ok := s.src.users[strings.ToLower(handle)]
	if !ok {
		return feed.Profile{}, fmt.Errorf("%w: %s", feed.ErrUserNotFound, handle)
	}
	return u.profile, nil
}

func (s *session) FirstPage(ctx context.Context, profile feed.Profile, pageSize int) (feed.Page, error) {
	return s.page(ctx, profile, pageSize, 0)
}

func (s *session) NextPage(ctx context.Context, prev feed.Page) (feed.Page, error) {
	if prev.End {
		return prev, nil
	}
	offset, err := strconv.Atoi(prev.Cursor)
	if err != nil {
		return feed.Page{}, fmt.Errorf("bad cursor %q: %w", prev.Cursor, err)
	}
	return s.page(ctx, prev.Profile, prev.PageSize, offset)
}

func (s *session) page(ctx context.Context, profile feed.Profile, pageSize, offset int) (feed.Page, error) {
	if err := ctx.Err(); err != nil {
		return feed.Page{}, err
	}

	s.src.mu.Lock()
	hook := s.src.pageHook
	s.src.mu.Unlock()
	if hook != nil {
		hook(s.identity)
	}

	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	if err := s.src.pageErrs[s.identity]; err != nil {
		return feed.Page{}, err
	}
	u, ok := s.src.users[strings.ToLower(profile.Handle)]
	if !ok {
		return feed.Page{}, fmt.Errorf("%w: %s", feed.ErrUserNotFound, profile.Handle)
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	end := min(offset+pageSize, len(u.posts))
	if offset > end {
		offset = end
	}
	s.src.pages++
	return feed.Page{
		Items:    append([]feed.Post(nil), u.posts[offset:end]...),
		Cursor:   strconv.Itoa(end),
		End:      end >= len(u.posts),
		Profile:  profile,
		PageSize: pageSize,
	}, nil
}
