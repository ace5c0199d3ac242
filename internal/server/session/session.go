// Package session carries the caller's browser session, and the retros it
// has unlocked, through a request context.
package session

import "context"

// Session is the server-side state of one browser session. Grants maps a
// retro slug to true once the session authenticated into that retro.
type Session struct {
	ID     string
	Grants map[string]bool
}

// New returns an empty session with the given id.
func New(id string) *Session {
	return &Session{ID: id, Grants: map[string]bool{}}
}

// Granted reports whether the session unlocked the retro with slug.
func (s *Session) Granted(slug string) bool {
	return s != nil && s.Grants[slug]
}

// Grant records an unlock for slug in the in-memory view of the session.
func (s *Session) Grant(slug string) {
	if s.Grants == nil {
		s.Grants = map[string]bool{}
	}
	s.Grants[slug] = true
}

// Revoke forgets the unlock for slug only.
func (s *Session) Revoke(slug string) {
	delete(s.Grants, slug)
}

type ctxKey struct{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
