package coach

import (
	"fmt"
	"io"
	"strings"

	"CoachChat/internal/chat"
	"CoachChat/internal/course"
	"CoachChat/internal/gate"
	"CoachChat/internal/session"

	"github.com/charmbracelet/lipgloss"
)

type renderer struct {
	out    io.Writer
	title  lipgloss.Style
	user   lipgloss.Style
	coach  lipgloss.Style
	errMsg lipgloss.Style
	dim    lipgloss.Style
	locked lipgloss.Style
}

func newRenderer(out io.Writer) *renderer {
	r := lipgloss.NewRenderer(out)
	return &renderer{
		out:    out,
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		user:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		coach:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		errMsg: r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    r.NewStyle().Faint(true),
		locked: r.NewStyle().Faint(true).Strikethrough(true),
	}
}

func (r *renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) header(text string) {
	r.printf("%s\n", r.title.Render("=== "+text+" ==="))
}

func (r *renderer) message(kind chat.Kind, m session.Message) {
	if m.IsUser {
		r.printf("%s %s\n", r.user.Render("You:"), m.Content)
		return
	}
	label := "Mentor:"
	if kind == chat.Weekly {
		label = "Coach:"
	}
	r.printf("%s %s\n\n", r.coach.Render(label), m.Content)
}

func (r *renderer) transcript(kind chat.Kind, messages []session.Message) {
	for _, m := range messages {
		r.message(kind, m)
	}
}

func (r *renderer) errorLine(msg string) {
	if msg == "" {
		return
	}
	r.printf("%s\n", r.errMsg.Render(msg))
}

func (r *renderer) hint(text string) {
	r.printf("%s\n", r.dim.Render(text))
}

func (r *renderer) state(id string, snap session.Snapshot, status gate.Status) {
	r.header("Session State")
	if id == "" {
		id = "none"
	}
	r.printf("Session:             %s\n", id)
	r.printf("Phase:               %s\n", status.Phase)
	r.printf("Onboarding complete: %t\n", status.OnboardingComplete)
	r.printf("Plan ready:          %t\n", status.PlanReady)
	r.printf("\n%s\n", snap.Pretty())
}

func (r *renderer) course(name string, progress float64, available int, goal string, rows []course.Row) {
	r.header(name)
	r.printf("Goal:     %s\n", goal)
	r.printf("Progress: %.0f%%\n", progress*100)
	r.printf("Unlocked: %d of %d weeks\n\n", available, len(rows))
	for _, row := range rows {
		status := " "
		if row.Unit.Completed {
			status = "✓"
		}
		line := fmt.Sprintf("[%s] Week %2d  %-34s %s", status, row.Unit.WeekNumber, row.Unit.Title, row.Topic)
		if row.Locked {
			r.printf("%s\n", r.locked.Render(strings.TrimRight(line, " ")+"  (locked)"))
			continue
		}
		r.printf("%s\n", strings.TrimRight(line, " "))
	}
}
