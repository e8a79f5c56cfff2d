// Package token keeps the single-use, expiring capabilities embedded in
// operator verification links.
//
// Tokens live only in process memory. A restart invalidates every pending
// link; the orders they refer to stay in their last stored status.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

const DefaultTTL = time.Hour

var (
	// ErrNotFound is returned for unknown, consumed and expired tokens alike.
	ErrNotFound = errors.New("token not found or expired")
	ErrClosed   = errors.New("token store closed")
)

type Action string

const (
	ActionNone    Action = "" // operator picks approve or reject on the page
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDeliver Action = "deliver"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionApprove, ActionReject, ActionDeliver:
		return a, nil
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

type ContextType string

const (
	ContextTicket ContextType = "ticket"
	ContextSite   ContextType = "site"
)

// Context carries whichever identifiers the guarded action needs.
type Context struct {
	Type        ContextType
	OrderID     string // site order id, or ticket id for tickets
	ChannelID   string
	UserID      string
	ProductID   string
	ProductName string
}

type Token struct {
	ID        string
	Action    Action
	Context   Context
	Details   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

type Option func(*Store)

// WithClock replaces time.Now for expiry checks. Eviction timers still run on
// the real clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type entry struct {
	token Token
	timer *time.Timer
}

type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue stores a new token and schedules its eviction after the TTL.
func (s *Store) Issue(action Action, ctx Context, details string) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := s.now()
	e := &entry{token: Token{
		ID:        id,
		Action:    action,
		Context:   ctx,
		Details:   details,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	e.timer = time.AfterFunc(s.ttl, func() { s.expire(id, e) })
	s.entries[id] = e

	return id, nil
}

// Peek returns the token without consuming it.
func (s *Store) Peek(id string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	if e.token.Expired(s.now()) {
		s.removeLocked(id, e)
		return Token{}, ErrNotFound
	}
	return e.token, nil
}

// Resolve removes the token and returns it. Only the first caller for a given
// id succeeds; the lookup and the delete happen under one lock.
func (s *Store) Resolve(id string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	s.removeLocked(id, e)

	// the eviction timer may not have fired yet
	if e.token.Expired(s.now()) {
		return Token{}, ErrNotFound
	}
	return e.token, nil
}

func (s *Store) Evict(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if ok {
		s.removeLocked(id, e)
	}
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close drops every token and stops all eviction timers. Issue fails after
// Close.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		s.removeLocked(id, e)
	}
	s.closed = true
}

func (s *Store) expire(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[id]; ok && current == e {
		delete(s.entries, id)
	}
}

func (s *Store) removeLocked(id string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, id)
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
