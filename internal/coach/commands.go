package coach

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"CoachChat/internal/chat"
	"CoachChat/internal/course"
	"CoachChat/internal/export"
	"CoachChat/internal/gate"
	"CoachChat/internal/history"
	"CoachChat/internal/session"
)

var (
	ErrOnboardingIncomplete = errors.New("complete onboarding first to access your coach")
	ErrWeekLocked           = errors.New("this week is locked")
	ErrUnknownWeek          = errors.New("no such course week")
)

// RunOnboarding opens the onboarding chat and reads messages until EOF or /quit
func (a *App) RunOnboarding(ctx context.Context) error {
	s := chat.NewOnboarding(a.client, a.store, chat.WithLogger(a.logger))
	defer s.Close()

	if err := s.Open(ctx); err != nil {
		return err
	}

	a.ui.header("Onboarding")
	a.ui.transcript(chat.Onboarding, s.Messages())
	a.ui.errorLine(s.View().Error)
	if !s.View().InputEnabled {
		a.ui.hint("Onboarding is complete. Continue with: coach week 1")
		return nil
	}
	a.ui.hint("Type /help for commands, /quit to exit")
	return a.loop(ctx, s)
}

// RunWeekly opens the chat of one course week. Onboarding must be complete and
// the week must not be locked in the course view.
func (a *App) RunWeekly(ctx context.Context, week int) error {
	snap, err := a.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if !gate.IsOnboardingComplete(a.client.State().Phase()) {
		return ErrOnboardingIncomplete
	}
	row, ok := a.course.Week(course.DefaultLockPolicy, snap, week)
	if !ok {
		return fmt.Errorf("week %d: %w", week, ErrUnknownWeek)
	}
	if row.Locked {
		return fmt.Errorf("week %d: %w", week, ErrWeekLocked)
	}

	s := chat.NewWeekly(a.client, a.store, week, chat.WithLogger(a.logger))
	defer s.Close()

	if err := s.Open(ctx); err != nil {
		return err
	}

	a.ui.header(fmt.Sprintf("Week %d: %s", s.Week(), row.Unit.Title))
	a.ui.transcript(chat.Weekly, s.Messages())
	a.ui.hint("Type /help for commands, /quit to exit")
	return a.loop(ctx, s)
}

// ShowState fetches and prints the raw session state
func (a *App) ShowState(ctx context.Context) error {
	if a.client.State().ID() == "" {
		a.ui.state("", session.Snapshot{}, gate.Evaluate(a.client.State().Phase()))
		return nil
	}
	snap, err := a.client.FetchState(ctx)
	if err != nil {
		return err
	}
	a.ui.state(a.client.State().ID(), snap, gate.Evaluate(snap.Phase))
	return nil
}

// ShowCourse prints the course with plan topics and the user's goal
func (a *App) ShowCourse(ctx context.Context) error {
	snap, err := a.currentSnapshot(ctx)
	if err != nil {
		return err
	}
	if !gate.IsOnboardingComplete(a.client.State().Phase()) {
		return ErrOnboardingIncomplete
	}
	rows := a.course.Display(course.DefaultLockPolicy, snap)
	a.ui.course(a.course.Name(), a.course.Progress(), a.course.Available(), snap.Goal(), rows)
	return nil
}

// CompleteWeek marks a course week done, which unlocks the following week,
// and saves the progress locally. A week still locked in storage cannot be completed.
func (a *App) CompleteWeek(ctx context.Context, week int) error {
	if _, err := a.currentSnapshot(ctx); err != nil {
		return err
	}
	if !gate.IsOnboardingComplete(a.client.State().Phase()) {
		return ErrOnboardingIncomplete
	}

	var unit *course.Unit
	for _, u := range a.course.Units() {
		if u.WeekNumber == week {
			unit = &u
			break
		}
	}
	if unit == nil {
		return fmt.Errorf("week %d: %w", week, ErrUnknownWeek)
	}
	if unit.Locked {
		return fmt.Errorf("week %d: %w", week, ErrWeekLocked)
	}

	if err := a.course.SetCompleted(unit.ID, true); err != nil {
		return err
	}
	if err := a.saveCourse(ctx); err != nil {
		return fmt.Errorf("save course progress: %w", err)
	}
	a.logger.Info("course week completed", "week", week)
	a.ui.printf("Week %d completed. %d of %d weeks unlocked.\n", week, a.course.Available(), len(a.course.Units()))
	return nil
}

// Reset clears the current session and, when startNew is set, creates another one
func (a *App) Reset(ctx context.Context, startNew bool) error {
	if err := a.client.ClearSession(ctx); err != nil {
		return err
	}
	if !startNew {
		a.ui.printf("Session cleared.\n")
		return nil
	}
	id, err := a.client.CreateSession(ctx)
	if err != nil {
		return err
	}
	a.ui.printf("Started new session: %s\n", id)
	return nil
}

// Export writes the stored transcript of a surface for the current session
func (a *App) Export(ctx context.Context, w io.Writer, surface string, week int, format string) error {
	exporter, err := export.NewExporter(format)
	if err != nil {
		return err
	}

	var prefix string
	switch surface {
	case "onboarding":
		prefix, week = history.OnboardingPrefix, 0
	case "week", "weekly":
		if week < 1 {
			return fmt.Errorf("week %d: %w", week, ErrUnknownWeek)
		}
		prefix, surface = history.WeeklyPrefix(week), "weekly"
	default:
		return fmt.Errorf("unknown surface %q (supported: onboarding, week)", surface)
	}

	id := a.client.State().ID()
	messages, err := history.New(a.store, prefix, history.WithLogger(a.logger)).Load(ctx, id)
	if err != nil {
		return err
	}

	t := export.NewTranscript(id, surface, week, a.client.State().Phase(), messages)
	return exporter.Export(t, w)
}

// HistoryKeys lists every stored transcript key, including those of cleared sessions
func (a *App) HistoryKeys(ctx context.Context) ([]string, error) {
	onboarding, err := a.store.Keys(ctx, history.OnboardingPrefix)
	if err != nil {
		return nil, err
	}
	weekly, err := a.store.Keys(ctx, "coachChatHistory_")
	if err != nil {
		return nil, err
	}
	return append(onboarding, weekly...), nil
}

// currentSnapshot refreshes the state when a session exists
func (a *App) currentSnapshot(ctx context.Context) (session.Snapshot, error) {
	if a.client.State().ID() == "" {
		return session.Snapshot{}, ErrOnboardingIncomplete
	}
	return a.client.FetchState(ctx)
}

func (a *App) loop(ctx context.Context, s *chat.Surface) error {
	scanner := bufio.NewScanner(a.in)

	for {
		a.ui.printf("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := a.handleCommand(ctx, s, input)
			if err != nil {
				a.ui.errorLine(fmt.Sprintf("Error: %v", err))
				a.logger.Error("command error", "command", input, "error", err)
			}
			if quit {
				break
			}
			continue
		}

		reply, err := s.Send(ctx, input)
		switch {
		case err == nil:
			a.ui.message(s.Kind(), session.Message{Content: reply})
		case errors.Is(err, chat.ErrInputDisabled):
			a.ui.hint("Onboarding is complete. Continue with: coach week 1")
		case errors.Is(err, chat.ErrBusy):
			a.ui.hint("Still waiting for the previous reply.")
		case errors.Is(err, session.ErrSessionChanged):
			a.ui.hint("The session changed before the reply arrived; it was not added.")
		default:
			a.ui.errorLine(s.View().Error)
			a.logger.Error("failed to send message", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	a.ui.printf("\nGoodbye!\n")
	return nil
}

func (a *App) handleCommand(ctx context.Context, s *chat.Surface, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/state":
		return false, a.ShowState(ctx)

	case "/refresh":
		err := s.Refresh(ctx)
		a.ui.errorLine(s.View().Error)
		if err == nil {
			a.ui.transcript(s.Kind(), s.Messages())
		}
		return false, err

	case "/new-session":
		if s.Kind() != chat.Onboarding {
			return false, fmt.Errorf("start a new session from the onboarding chat")
		}
		if err := a.Reset(ctx, true); err != nil {
			return false, err
		}
		return false, nil

	case "/history":
		a.ui.transcript(s.Kind(), s.Messages())
		return false, nil

	case "/complete":
		if s.Kind() != chat.Weekly {
			return false, fmt.Errorf("complete a week from its weekly chat")
		}
		return false, a.CompleteWeek(ctx, s.Week())

	case "/help":
		a.ui.printf("Available commands:\n")
		a.ui.printf("  /quit, /exit   - Exit the chat\n")
		a.ui.printf("  /state         - Show the session state\n")
		a.ui.printf("  /refresh       - Fetch the session state again\n")
		a.ui.printf("  /history       - Print the transcript\n")
		if s.Kind() == chat.Onboarding {
			a.ui.printf("  /new-session   - Start a new session\n")
		} else {
			a.ui.printf("  /complete      - Mark this week as completed\n")
		}
		a.ui.printf("  /help          - Show this help message\n")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", parts[0])
	}
}
