// Package history keeps the persisted chat transcript of one chat surface,
// one storage key per session.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CoachChat/internal/cache"
	"CoachChat/internal/kv"
	"CoachChat/internal/session"
)

const (
	// OnboardingPrefix keys the onboarding transcript
	OnboardingPrefix = "onboardingChatHistory_"

	noSessionSuffix = "_noSession"
)

var (
	// ErrNotLoaded is returned when a transcript is modified before Load
	ErrNotLoaded = errors.New("history not loaded")
	// ErrInactive is returned when the key written to is no longer the active one
	ErrInactive = errors.New("history key no longer active")
)

// WeeklyPrefix keys the transcript of one course-unit chat
func WeeklyPrefix(week int) string {
	return fmt.Sprintf("coachChatHistory_week%d_", week)
}

// Key returns the storage key of a session's transcript
func Key(prefix, sessionID string) string {
	if sessionID == "" {
		return prefix + noSessionSuffix
	}
	return prefix + sessionID
}

// Store is the transcript of the active session, written through to a kv.Store
type Store struct {
	kv      kv.Store
	prefix  string
	logger  *slog.Logger
	now     func() time.Time
	digests cache.Digests

	mu       sync.Mutex
	key      string
	messages []session.Message
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source used for reconciled messages
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store whose keys start with prefix
func New(store kv.Store, prefix string, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		prefix: prefix,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load makes sessionID's transcript the active one and returns it.
// An absent or corrupt payload yields an empty transcript; only storage
// failures are returned as errors, and the transcript is empty then too.
func (s *Store) Load(ctx context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = Key(s.prefix, sessionID)
	s.messages = []session.Message{}

	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.digests.Forget(s.key)
		return []session.Message{}, fmt.Errorf("load history %s: %w", s.key, err)
	}
	if !ok {
		s.digests.Forget(s.key)
		return []session.Message{}, nil
	}

	var messages []session.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		s.logger.Warn("discarding corrupt chat history", "key", s.key, "error", err)
		s.digests.Forget(s.key)
		return []session.Message{}, nil
	}
	if messages == nil {
		messages = []session.Message{}
	}

	s.messages = messages
	s.digests.Store(s.key, cache.Digest(messages))
	return s.snapshot(), nil
}

// Append adds msg to the active transcript. The message becomes visible only
// once it is durable; on a write failure nothing changes.
func (s *Store) Append(ctx context.Context, msg session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, msg)
}

// AppendTo is Append that only writes while key is still the active transcript.
// Otherwise it returns ErrInactive and nothing is written.
func (s *Store) AppendTo(ctx context.Context, key string, msg session.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != s.key {
		return ErrInactive
	}
	return s.appendLocked(ctx, msg)
}

func (s *Store) appendLocked(ctx context.Context, msg session.Message) error {
	if s.key == "" {
		return ErrNotLoaded
	}

	next := make([]session.Message, len(s.messages), len(s.messages)+1)
	copy(next, s.messages)
	next = append(next, msg)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.messages = next
	return nil
}

// Reconcile replaces the active transcript wholesale with the backend's message
// list. Local messages the backend has not echoed yet are dropped. Entries
// without text are skipped. It reports whether the transcript changed.
func (s *Store) Reconcile(ctx context.Context, remote []session.RemoteMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked(ctx, remote)
}

// ReconcileTo is Reconcile guarded like AppendTo
func (s *Store) ReconcileTo(ctx context.Context, key string, remote []session.RemoteMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != s.key {
		return false, ErrInactive
	}
	return s.reconcileLocked(ctx, remote)
}

func (s *Store) reconcileLocked(ctx context.Context, remote []session.RemoteMessage) (bool, error) {
	if s.key == "" {
		return false, ErrNotLoaded
	}

	now := s.now()
	next := make([]session.Message, 0, len(remote))
	for _, rm := range remote {
		if rm.Text == nil {
			continue
		}
		next = append(next, session.NewMessage(*rm.Text, rm.FromUser(), now))
	}

	if s.digests.Unchanged(s.key, cache.Digest(next)) {
		return false, nil
	}
	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	s.messages = next
	return true, nil
}

// Messages returns a copy of the active transcript
func (s *Store) Messages() []session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Key returns the storage key of the active transcript, empty before Load
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *Store) persist(ctx context.Context, messages []session.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("save history %s: %w", s.key, err)
	}
	s.digests.Store(s.key, cache.Digest(messages))
	return nil
}

func (s *Store) snapshot() []session.Message {
	out := make([]session.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
