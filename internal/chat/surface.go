// Package chat implements the onboarding and weekly chat surfaces on top of the
// session client and a per-session transcript.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"CoachChat/internal/gate"
	"CoachChat/internal/history"
	"CoachChat/internal/kv"
	"CoachChat/internal/session"
)

// SessionAPI is the part of the session client a surface needs
type SessionAPI interface {
	CreateSession(ctx context.Context) (string, error)
	FetchState(ctx context.Context) (session.Snapshot, error)
	SendMessage(ctx context.Context, text string) (string, error)
	State() *session.State
}

var _ SessionAPI = (*session.Client)(nil)

// Messages shown to the user. A new one replaces the previous one.
const (
	MsgCreateFailed = "Failed to create session. Please try again."
	MsgFetchFailed  = "Failed to fetch session state."
	MsgSendFailed   = "Failed to send message."
)

// OnboardingGreeting seeds an empty onboarding transcript
const OnboardingGreeting = "Hi there! 👋 This is your onboarding chat. Feel free to introduce yourself. May I ask your name?"

// WeeklyGreeting is sent silently when a weekly transcript is empty
const WeeklyGreeting = "Hi"

var (
	ErrBusy          = errors.New("another request is still in flight")
	ErrInputDisabled = errors.New("input is disabled in this phase")
	ErrNotReady      = errors.New("chat is not initialized")
	ErrClosed        = errors.New("chat is closed")
	ErrAlreadyOpen   = errors.New("chat already opened")
)

// Status is the lifecycle position of a surface
type Status int

const (
	Uninitialized Status = iota
	Loading
	Initialized
	Closed
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Initialized:
		return "initialized"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind distinguishes the two surfaces
type Kind int

const (
	Onboarding Kind = iota
	Weekly
)

// View is what a renderer needs to draw a surface
type View struct {
	Status       Status
	Messages     []session.Message
	Busy         bool
	Error        string
	InputEnabled bool
	Phase        string
	SessionID    string
}

// Surface is one chat screen. Operations on a surface are serialized: while a
// load, fetch or send is outstanding every other one is rejected with ErrBusy.
type Surface struct {
	kind    Kind
	week    int
	prefix  string
	api     SessionAPI
	history *history.Store
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	status      Status
	busy        bool
	errMsg      string
	unsubscribe func()
}

// Option configures a Surface
type Option func(*Surface)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Surface) { s.logger = l }
}

// WithClock sets the time source for new messages
func WithClock(now func() time.Time) Option {
	return func(s *Surface) { s.now = now }
}

// NewOnboarding creates the onboarding surface
func NewOnboarding(api SessionAPI, store kv.Store, opts ...Option) *Surface {
	return newSurface(Onboarding, 0, api, store, history.OnboardingPrefix, opts)
}

// NewWeekly creates the chat surface of one course week
func NewWeekly(api SessionAPI, store kv.Store, week int, opts ...Option) *Surface {
	return newSurface(Weekly, week, api, store, history.WeeklyPrefix(week), opts)
}

func newSurface(kind Kind, week int, api SessionAPI, store kv.Store, prefix string, opts []Option) *Surface {
	s := &Surface{
		kind:   kind,
		week:   week,
		prefix: prefix,
		api:    api,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("surface", s.name())
	s.history = history.New(store, prefix, history.WithLogger(s.logger), history.WithClock(s.now))
	return s
}

func (s *Surface) name() string {
	if s.kind == Onboarding {
		return "onboarding"
	}
	return "weekly"
}

// Kind reports which surface this is
func (s *Surface) Kind() Kind {
	return s.kind
}

// Week is the course week of a weekly surface, 0 for onboarding
func (s *Surface) Week() int {
	return s.week
}

// Open restores the transcript and brings the surface to Initialized.
// Failures are reported through the view's error message, not as errors.
func (s *Surface) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.status != Uninitialized {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.status = Loading
	s.busy = true
	s.unsubscribe = s.api.State().Subscribe(s.onSessionChange)
	s.mu.Unlock()

	if s.kind == Onboarding {
		s.openOnboarding(ctx)
	} else {
		s.openWeekly(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.status == Closed {
		return ErrClosed
	}
	s.status = Initialized
	return nil
}

func (s *Surface) openOnboarding(ctx context.Context) {
	if s.api.State().ID() == "" {
		if _, err := s.api.CreateSession(ctx); err != nil {
			s.setError(MsgCreateFailed)
		}
	}

	id := s.api.State().ID()
	if len(s.load(ctx, id)) == 0 {
		greeting := session.NewMessage(OnboardingGreeting, false, s.now())
		if err := s.history.AppendTo(ctx, history.Key(s.prefix, id), greeting); err != nil {
			s.logger.Warn("failed to store greeting", "error", err)
		}
	}

	if id != "" {
		s.refresh(ctx)
	}
}

func (s *Surface) openWeekly(ctx context.Context) {
	id := s.api.State().ID()
	if len(s.load(ctx, id)) > 0 {
		return
	}
	if id == "" {
		s.logger.Info("no session, skipping weekly greeting", "week", s.week)
		return
	}

	reply, err := s.api.SendMessage(ctx, WeeklyGreeting)
	if err != nil {
		s.logger.Warn("weekly greeting failed", "week", s.week, "error", err)
		return
	}
	if s.isClosed() || !s.current(id) {
		return
	}
	if err := s.history.AppendTo(ctx, history.Key(s.prefix, id), session.NewMessage(reply, false, s.now())); err != nil {
		s.logger.Warn("failed to store greeting reply", "error", err)
	}
}

// Send appends text as a user message, posts it and appends the reply.
// The user message stays in the transcript when the request fails. A reply
// that arrives after the session was replaced is dropped and the error wraps
// session.ErrSessionChanged.
func (s *Surface) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", session.ErrEmptyMessage
	}

	if err := s.begin(true); err != nil {
		return "", err
	}
	defer s.end()

	id := s.api.State().ID()
	key := history.Key(s.prefix, id)

	if err := s.history.AppendTo(ctx, key, session.NewMessage(text, true, s.now())); err != nil {
		if errors.Is(err, history.ErrInactive) {
			return "", session.ErrSessionChanged
		}
		s.setError(MsgSendFailed)
		return "", err
	}

	reply, err := s.api.SendMessage(ctx, text)
	if s.isClosed() {
		s.logger.Debug("dropping reply for closed surface")
		return reply, err
	}
	if err != nil {
		s.setError(MsgSendFailed)
		return "", err
	}
	if !s.current(id) {
		return "", session.ErrSessionChanged
	}

	if err := s.history.AppendTo(ctx, key, session.NewMessage(reply, false, s.now())); err != nil {
		if errors.Is(err, history.ErrInactive) {
			s.logger.Info("dropping reply for replaced session", "session_id", id)
			return "", session.ErrSessionChanged
		}
		s.setError(MsgSendFailed)
		return reply, err
	}
	s.setError("")
	return reply, nil
}

// Refresh re-fetches the session state. The onboarding surface also replaces
// its transcript with the backend's message list.
func (s *Surface) Refresh(ctx context.Context) error {
	if err := s.begin(false); err != nil {
		return err
	}
	defer s.end()

	if s.api.State().ID() == "" {
		return session.ErrNoSession
	}
	return s.refresh(ctx)
}

func (s *Surface) refresh(ctx context.Context) error {
	id := s.api.State().ID()

	snap, err := s.api.FetchState(ctx)
	if s.isClosed() {
		return err
	}
	if errors.Is(err, session.ErrSessionChanged) {
		s.logger.Info("dropping state for replaced session", "session_id", id)
		return err
	}
	if err != nil {
		s.setError(MsgFetchFailed)
		return err
	}
	s.setError("")

	if s.kind != Onboarding || !snap.HasMessages {
		return nil
	}
	if !s.current(id) {
		return session.ErrSessionChanged
	}
	if _, err := s.history.ReconcileTo(ctx, history.Key(s.prefix, id), snap.Messages); err != nil {
		if errors.Is(err, history.ErrInactive) {
			s.logger.Info("dropping state for replaced session", "session_id", id)
			return session.ErrSessionChanged
		}
		s.logger.Warn("failed to reconcile history", "error", err)
	}
	return nil
}

// current reports whether id is still the active session, logging when it is not
func (s *Surface) current(id string) bool {
	if active := s.api.State().ID(); active != id {
		s.logger.Info("session replaced during request", "session_id", id, "active", active)
		return false
	}
	return true
}

// Close detaches the surface. Requests still in flight complete without
// touching the transcript.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Closed
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// View returns the current state of the surface
func (s *Surface) View() View {
	phase := s.api.State().Phase()
	id := s.api.State().ID()
	messages := s.history.Messages()

	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Status:       s.status,
		Messages:     messages,
		Busy:         s.busy,
		Error:        s.errMsg,
		InputEnabled: s.status == Initialized && !s.busy && s.inputAllowed(phase),
		Phase:        phase,
		SessionID:    id,
	}
}

// Messages returns the current transcript
func (s *Surface) Messages() []session.Message {
	return s.history.Messages()
}

// HistoryKey is the storage key of the active transcript
func (s *Surface) HistoryKey() string {
	return s.history.Key()
}

func (s *Surface) inputAllowed(phase string) bool {
	if s.kind == Onboarding {
		return gate.OnboardingInputEnabled(phase)
	}
	return true
}

func (s *Surface) begin(gated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.status == Closed:
		return ErrClosed
	case s.busy:
		return ErrBusy
	case s.status != Initialized:
		return ErrNotReady
	case gated && !s.inputAllowed(s.api.State().Phase()):
		return ErrInputDisabled
	}
	s.busy = true
	return nil
}

func (s *Surface) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Surface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == Closed
}

func (s *Surface) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Closed {
		return
	}
	s.errMsg = msg
}

func (s *Surface) load(ctx context.Context, sessionID string) []session.Message {
	messages, err := s.history.Load(ctx, sessionID)
	if err != nil {
		s.logger.Warn("failed to load history", "key", s.history.Key(), "error", err)
	}
	return messages
}

func (s *Surface) onSessionChange(c session.Change) {
	if c.Kind != session.IDChanged && c.Kind != session.Cleared {
		return
	}
	if s.isClosed() {
		return
	}
	s.load(context.Background(), c.SessionID)
	s.logger.Info("session changed, transcript reloaded", "session_id", c.SessionID)
}
