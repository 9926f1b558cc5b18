package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoachChat/internal/history"
	"CoachChat/internal/kv"
	"CoachChat/internal/session"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAPI behaves like session.Client against a scripted backend
type fakeAPI struct {
	state *session.State

	mu        sync.Mutex
	createID  string
	createErr error
	fetch     func() (session.Snapshot, error)
	reply     func(text string) (string, error)
	sent      []string
	creates   int
	fetches   int
	// lenient returns snapshots even when the session changed mid-request
	lenient bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		state:    session.NewState(),
		createID: "abc123",
		fetch: func() (session.Snapshot, error) {
			return session.Snapshot{Phase: "incomplete", HasPhase: true}, nil
		},
		reply: func(text string) (string, error) { return "echo: " + text, nil },
	}
}

func (f *fakeAPI) State() *session.State { return f.state }

func (f *fakeAPI) CreateSession(context.Context) (string, error) {
	f.mu.Lock()
	f.creates++
	id, err := f.createID, f.createErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	f.state.SetID(id)
	return id, nil
}

func (f *fakeAPI) FetchState(context.Context) (session.Snapshot, error) {
	f.mu.Lock()
	f.fetches++
	fetch := f.fetch
	f.mu.Unlock()

	id := f.state.ID()
	snap, err := fetch()
	if err != nil {
		return session.Snapshot{}, err
	}
	if !f.state.Apply(id, snap) && !f.lenient {
		return session.Snapshot{}, session.ErrSessionChanged
	}
	return snap, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	reply := f.reply
	f.mu.Unlock()
	return reply(text)
}

func (f *fakeAPI) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type transcriptLine struct {
	Text   string
	IsUser bool
}

func lines(messages []session.Message) []transcriptLine {
	out := make([]transcriptLine, len(messages))
	for i, m := range messages {
		out[i] = transcriptLine{Text: m.Content, IsUser: m.IsUser}
	}
	return out
}

func assertTranscript(t *testing.T, want []transcriptLine, got []session.Message) {
	t.Helper()
	if diff := cmp.Diff(want, lines(got)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestOnboardingOpenCreatesSessionAndSeedsGreeting(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := kv.NewMemory()
	s := NewOnboarding(api, store)

	assert.Equal(t, Uninitialized, s.View().Status)
	require.NoError(t, s.Open(ctx))

	v := s.View()
	assert.Equal(t, Initialized, v.Status)
	assert.Equal(t, "abc123", v.SessionID)
	assert.Empty(t, v.Error)
	assert.True(t, v.InputEnabled)
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 1, api.fetches)
	assertTranscript(t, []transcriptLine{{Text: OnboardingGreeting}}, v.Messages)
	assert.Equal(t, history.Key(history.OnboardingPrefix, "abc123"), s.HistoryKey())

	require.ErrorIs(t, s.Open(ctx), ErrAlreadyOpen)
	s.Close()
}

func TestOnboardingOpenRestoresWithoutSecondGreeting(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := kv.NewMemory()

	first := NewOnboarding(api, store)
	require.NoError(t, first.Open(ctx))
	_, err := first.Send(ctx, "Sam")
	require.NoError(t, err)
	first.Close()

	second := NewOnboarding(api, store)
	require.NoError(t, second.Open(ctx))
	defer second.Close()

	assert.Equal(t, 1, api.creates)
	assertTranscript(t, []transcriptLine{
		{Text: OnboardingGreeting},
		{Text: "Sam", IsUser: true},
		{Text: "echo: Sam"},
	}, second.Messages())
}

func TestOnboardingOpenCreateFailure(t *testing.T) {
	api := newFakeAPI()
	api.createErr = errors.New("offline")
	s := NewOnboarding(api, kv.NewMemory())

	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	v := s.View()
	assert.Equal(t, Initialized, v.Status)
	assert.Equal(t, MsgCreateFailed, v.Error)
	assert.Equal(t, 0, api.fetches)
	assert.Equal(t, history.Key(history.OnboardingPrefix, ""), s.HistoryKey())
	assertTranscript(t, []transcriptLine{{Text: OnboardingGreeting}}, v.Messages)
}

func TestOnboardingOpenFetchFailureKeepsTranscript(t *testing.T) {
	api := newFakeAPI()
	api.state.SetID("abc123")
	api.fetch = func() (session.Snapshot, error) { return session.Snapshot{}, errors.New("boom") }
	s := NewOnboarding(api, kv.NewMemory())

	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	v := s.View()
	assert.Equal(t, MsgFetchFailed, v.Error)
	assert.Equal(t, 0, api.creates)
	assertTranscript(t, []transcriptLine{{Text: OnboardingGreeting}}, v.Messages)
}

func TestOnboardingOpenReconcilesRemoteMessages(t *testing.T) {
	api := newFakeAPI()
	api.state.SetID("abc123")
	api.fetch = func() (session.Snapshot, error) {
		return session.Snapshot{
			Phase:       "plan_ready",
			HasPhase:    true,
			HasMessages: true,
			Messages: []session.RemoteMessage{
				{Text: strPtr("I'm Sam"), IsUser: boolPtr(true)},
				{Text: strPtr("Hi Sam"), Role: strPtr("assistant")},
			},
		}, nil
	}
	s := NewOnboarding(api, kv.NewMemory())

	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	assertTranscript(t, []transcriptLine{
		{Text: "I'm Sam", IsUser: true},
		{Text: "Hi Sam"},
	}, s.Messages())
	assert.Equal(t, "plan_ready", s.View().Phase)
}

func TestOnboardingSendAppendsBothMessages(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.reply = func(string) (string, error) {
		api.state.Apply(api.state.ID(), session.Snapshot{Phase: "plan_ready", HasPhase: true})
		return "Hello!", nil
	}
	s := NewOnboarding(api, kv.NewMemory())
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	reply, err := s.Send(ctx, "  Hi ")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
	assert.Equal(t, []string{"Hi"}, api.sentMessages())
	assert.Equal(t, "plan_ready", s.View().Phase)
	assertTranscript(t, []transcriptLine{
		{Text: OnboardingGreeting},
		{Text: "Hi", IsUser: true},
		{Text: "Hello!"},
	}, s.Messages())
}

func TestSendRejections(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	s := NewOnboarding(api, kv.NewMemory())

	_, err := s.Send(ctx, "early")
	require.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, s.Open(ctx))

	_, err = s.Send(ctx, "   ")
	require.ErrorIs(t, err, session.ErrEmptyMessage)

	api.state.Apply("abc123", session.Snapshot{Phase: "week1", HasPhase: true})
	assert.False(t, s.View().InputEnabled)
	_, err = s.Send(ctx, "more")
	require.ErrorIs(t, err, ErrInputDisabled)

	s.Close()
	_, err = s.Send(ctx, "closed")
	require.ErrorIs(t, err, ErrClosed)

	assert.Empty(t, api.sentMessages())
}

func TestSendIsSerialized(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.reply = func(text string) (string, error) {
		if text == "first" {
			close(entered)
			<-release
		}
		return "ok " + text, nil
	}
	s := NewOnboarding(api, kv.NewMemory())
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	done := make(chan error)
	go func() {
		_, err := s.Send(ctx, "first")
		done <- err
	}()
	<-entered

	assert.True(t, s.View().Busy)
	assert.False(t, s.View().InputEnabled)
	_, err := s.Send(ctx, "second")
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, s.Refresh(ctx), ErrBusy)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"first"}, api.sentMessages())
	assertTranscript(t, []transcriptLine{
		{Text: OnboardingGreeting},
		{Text: "first", IsUser: true},
		{Text: "ok first"},
	}, s.Messages())
}

func TestErrorMessageIsReplaced(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	s := NewOnboarding(api, kv.NewMemory())
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	api.reply = func(string) (string, error) { return "", errors.New("offline") }
	_, err := s.Send(ctx, "one")
	require.Error(t, err)
	_, err = s.Send(ctx, "two")
	require.Error(t, err)
	assert.Equal(t, MsgSendFailed, s.View().Error)

	api.fetch = func() (session.Snapshot, error) { return session.Snapshot{}, errors.New("offline") }
	require.Error(t, s.Refresh(ctx))
	assert.Equal(t, MsgFetchFailed, s.View().Error)

	// failed sends keep the user's messages
	assertTranscript(t, []transcriptLine{
		{Text: OnboardingGreeting},
		{Text: "one", IsUser: true},
		{Text: "two", IsUser: true},
	}, s.Messages())

	api.fetch = func() (session.Snapshot, error) {
		return session.Snapshot{Phase: "incomplete", HasPhase: true}, nil
	}
	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.View().Error)
}

func TestWeeklyGreetingAppendsOnlyReply(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.state.SetID("abc123")
	api.reply = func(string) (string, error) { return "Welcome to week 1!", nil }
	store := kv.NewMemory()

	s := NewWeekly(api, store, 1)
	require.NoError(t, s.Open(ctx))
	assert.Equal(t, []string{WeeklyGreeting}, api.sentMessages())
	assertTranscript(t, []transcriptLine{{Text: "Welcome to week 1!"}}, s.Messages())
	assert.Equal(t, history.Key(history.WeeklyPrefix(1), "abc123"), s.HistoryKey())
	assert.Equal(t, 0, api.fetches)
	s.Close()

	again := NewWeekly(api, store, 1)
	require.NoError(t, again.Open(ctx))
	defer again.Close()
	assert.Len(t, api.sentMessages(), 1)
	assert.Len(t, again.Messages(), 1)
}

func TestWeeklyGreetingFailureIsSilent(t *testing.T) {
	api := newFakeAPI()
	api.state.SetID("abc123")
	api.reply = func(string) (string, error) { return "", errors.New("offline") }

	s := NewWeekly(api, kv.NewMemory(), 1)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	v := s.View()
	assert.Empty(t, v.Messages)
	assert.Empty(t, v.Error)
	assert.True(t, v.InputEnabled)
}

func TestWeeklyInputIgnoresPhase(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.state.SetID("abc123")
	api.state.Apply("abc123", session.Snapshot{Phase: "week1", HasPhase: true})

	s := NewWeekly(api, kv.NewMemory(), 1)
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	_, err := s.Send(ctx, "how do I start?")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Week())
	assert.Equal(t, Weekly, s.Kind())
}

func TestSessionChangeSwapsTranscript(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.createID = "A"
	s := NewOnboarding(api, kv.NewMemory())
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	_, err := s.Send(ctx, "from A")
	require.NoError(t, err)
	underA := s.Messages()
	require.Len(t, underA, 3)

	api.state.Reset()
	assert.Empty(t, s.Messages())

	api.state.SetID("B")
	assert.Empty(t, s.Messages())
	_, err = s.Send(ctx, "from B")
	require.NoError(t, err)

	api.state.SetID("A")
	if diff := cmp.Diff(underA, s.Messages()); diff != "" {
		t.Fatalf("session A transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseDropsLateReply(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	api.reply = func(string) (string, error) {
		close(entered)
		<-release
		return "late", nil
	}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewOnboarding(api, kv.NewMemory(), WithClock(func() time.Time { return at }))
	require.NoError(t, s.Open(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Send(ctx, "hello")
	}()
	<-entered
	s.Close()
	close(release)
	<-done

	assert.Equal(t, Closed, s.View().Status)
	assertTranscript(t, []transcriptLine{
		{Text: OnboardingGreeting},
		{Text: "hello", IsUser: true},
	}, s.Messages())
	assert.Equal(t, at, s.Messages()[1].Timestamp)
}

func TestOnboardingEmptyRemoteListClearsTranscript(t *testing.T) {
	api := newFakeAPI()
	api.state.SetID("abc123")
	api.fetch = func() (session.Snapshot, error) {
		return session.Snapshot{Phase: "incomplete", HasPhase: true, HasMessages: true}, nil
	}
	store := kv.NewMemory()
	s := NewOnboarding(api, store)

	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	assert.Empty(t, s.Messages())
	got, err := history.New(store, history.OnboardingPrefix).Load(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRefreshDropsStateOfReplacedSession(t *testing.T) {
	for _, lenient := range []bool{false, true} {
		name := "client drops stale state"
		if lenient {
			name = "surface drops stale state"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			api := newFakeAPI()
			api.lenient = lenient
			api.createID = "A"
			store := kv.NewMemory()
			s := NewOnboarding(api, store)
			require.NoError(t, s.Open(ctx))
			defer s.Close()

			api.fetch = func() (session.Snapshot, error) {
				api.state.SetID("B")
				return session.Snapshot{
					Phase:       "plan_ready",
					HasPhase:    true,
					HasMessages: true,
					Messages:    []session.RemoteMessage{{Text: strPtr("message from session A"), IsUser: boolPtr(true)}},
				}, nil
			}

			require.ErrorIs(t, s.Refresh(ctx), session.ErrSessionChanged)

			v := s.View()
			assert.Empty(t, v.Error)
			assert.Equal(t, "B", v.SessionID)
			assert.Empty(t, v.Messages)
			assert.Equal(t, history.Key(history.OnboardingPrefix, "B"), s.HistoryKey())

			_, ok, err := store.Get(ctx, history.Key(history.OnboardingPrefix, "B"))
			require.NoError(t, err)
			assert.False(t, ok)

			underA, err := history.New(store, history.OnboardingPrefix).Load(ctx, "A")
			require.NoError(t, err)
			assertTranscript(t, []transcriptLine{{Text: OnboardingGreeting}}, underA)
		})
	}
}

func TestSendDropsReplyOfReplacedSession(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.createID = "A"
	store := kv.NewMemory()
	s := NewOnboarding(api, store)
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	api.reply = func(string) (string, error) {
		api.state.SetID("B")
		return "reply for A", nil
	}

	_, err := s.Send(ctx, "hello")
	require.ErrorIs(t, err, session.ErrSessionChanged)

	assert.Empty(t, s.Messages())
	assert.Empty(t, s.View().Error)
	_, ok, err := store.Get(ctx, history.Key(history.OnboardingPrefix, "B"))
	require.NoError(t, err)
	assert.False(t, ok)

	underA, err := history.New(store, history.OnboardingPrefix).Load(ctx, "A")
	require.NoError(t, err)
	assertTranscript(t, []transcriptLine{
		{Text: OnboardingGreeting},
		{Text: "hello", IsUser: true},
	}, underA)
}

func TestWeeklyGreetingDroppedWhenSessionReplaced(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.state.SetID("A")
	api.reply = func(string) (string, error) {
		api.state.SetID("B")
		return "Welcome, A!", nil
	}
	store := kv.NewMemory()

	s := NewWeekly(api, store, 1)
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	assert.Empty(t, s.Messages())
	assert.Equal(t, history.Key(history.WeeklyPrefix(1), "B"), s.HistoryKey())
	keys, err := store.Keys(ctx, "coachChatHistory_")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
