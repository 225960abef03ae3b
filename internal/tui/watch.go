package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/session"
)

// Remote is the daemon as seen by the live view.
type Remote interface {
	Toggle(ctx context.Context) (session.Snapshot, error)
	Finalize(ctx context.Context) (session.Snapshot, error)
	Clear(ctx context.Context) (session.Snapshot, error)
	Watch(ctx context.Context, fn func(session.Snapshot)) error
}

const (
	actionTimeout   = 5 * time.Minute
	transcriptLines = 8
	defaultWidth    = 80
)

type snapshotMsg session.Snapshot

type actionDoneMsg struct {
	action string
	err    error
}

type streamEndedMsg struct{ err error }

type watchModel struct {
	remote  Remote
	snap    session.Snapshot
	have    bool
	pending string
	err     string
	width   int
	ended   bool
}

func newWatchModel(remote Remote) watchModel {
	return watchModel{remote: remote, width: defaultWidth}
}

func (m watchModel) Init() tea.Cmd { return nil }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.have = true
	case actionDoneMsg:
		if m.pending == msg.action {
			m.pending = ""
		}
		m.err = ""
		if msg.err != nil {
			m.err = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
	case streamEndedMsg:
		m.ended = true
		if msg.err != nil {
			m.err = "connection lost: " + msg.err.Error()
		}
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "t":
			return m.run("toggle", m.remote.Toggle)
		case "f":
			return m.run("finalize", m.remote.Finalize)
		case "c":
			return m.run("clear", m.remote.Clear)
		}
	}
	return m, nil
}

// run issues one action unless another is still outstanding.
func (m watchModel) run(name string, call func(context.Context) (session.Snapshot, error)) (tea.Model, tea.Cmd) {
	if m.pending != "" {
		return m, nil
	}
	m.pending = name
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		_, err := call(ctx)
		return actionDoneMsg{action: name, err: err}
	}
}

func (m watchModel) View() string {
	if !m.have {
		return StyleMuted.Render("Connecting to the scribe daemon...") + "\n"
	}
	s := m.snap
	width := max(m.width-2, 20)

	var b strings.Builder
	b.WriteString(statusBadge(s))
	b.WriteString("  ")
	b.WriteString(StyleLabel.Render(formatElapsed(s.ElapsedSeconds)))
	b.WriteString(StyleMuted.Render(fmt.Sprintf("  blocks %d  pending %d  scenario %s", s.Blocks, s.PendingUploads, s.Scenario)))
	b.WriteString("\n")
	if s.Patient.Name != "" || s.Patient.Age > 0 {
		b.WriteString(StyleMuted.Render("Patient: " + formatPatient(s.Patient)))
		b.WriteString("\n")
	}

	transcript := tail(s.Transcript, width-4, transcriptLines)
	if transcript == "" {
		transcript = StyleSubtle.Render("No transcript yet")
	}
	b.WriteString(StyleBox.Width(width).Render(transcript))
	b.WriteString("\n")

	insight := s.Insights.Insight
	switch {
	case s.Insights.Loading:
		insight = StyleSubtle.Render("Analyzing...")
	case insight == "" && s.Insights.LastError != "":
		insight = StyleWarning.Render(s.Insights.LastError)
	case insight == "":
		insight = StyleSubtle.Render("No insight yet")
	}
	b.WriteString(StyleFocusedBox.Width(width).Render(insight))
	b.WriteString("\n")

	if s.Bundle != nil {
		b.WriteString(StyleHeader.Render("Documents"))
		b.WriteString("\n")
		for _, kind := range models.DocumentKinds {
			content, _ := s.Bundle.Document(kind)
			if strings.TrimSpace(content) == "" {
				b.WriteString(StyleMuted.Render(fmt.Sprintf("  %-12s empty", kind)))
			} else {
				b.WriteString(StyleSuccess.Render(fmt.Sprintf("  %-12s %d chars", kind, len([]rune(content)))))
			}
			b.WriteString("\n")
		}
	}

	if s.Note != "" {
		b.WriteString(StyleWarning.Render(s.Note))
		b.WriteString("\n")
	}
	if s.LastError != "" {
		b.WriteString(StyleError.Render(s.LastError))
		b.WriteString("\n")
	}
	if m.err != "" {
		b.WriteString(StyleError.Render(m.err))
		b.WriteString("\n")
	}
	if m.pending != "" {
		b.WriteString(StyleMuted.Render(m.pending + "..."))
		b.WriteString("\n")
	}

	b.WriteString(StyleSubtle.Render("space record/stop • f finalize • c clear • q quit"))
	b.WriteString("\n")
	return b.String()
}

func statusBadge(s session.Snapshot) string {
	label := strings.ToUpper(string(s.Status))
	style := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch s.Status {
	case session.Recording:
		style = style.Background(ColorError).Foreground(ColorText)
		label = "● " + label
	case session.Processing:
		style = style.Background(ColorWarning).Foreground(ColorText)
	case session.Results:
		style = style.Background(ColorSuccess).Foreground(ColorText)
	case session.Failed:
		style = style.Background(ColorError).Foreground(ColorText)
	default:
		style = style.Background(ColorSubtle).Foreground(ColorText)
	}
	return style.Render(label)
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func formatPatient(p models.Patient) string {
	switch {
	case p.Name == "":
		return fmt.Sprintf("%d anos", p.Age)
	case p.Age == 0:
		return p.Name
	}
	return fmt.Sprintf("%s, %d anos", p.Name, p.Age)
}

// tail wraps text to width and keeps the last n lines.
func tail(text string, width, n int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lines := strings.Split(lipgloss.NewStyle().Width(width).Render(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Watch runs the live view until the user quits or the daemon goes away.
func Watch(ctx context.Context, remote Remote) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWatchModel(remote), tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		err := remote.Watch(ctx, func(s session.Snapshot) {
			p.Send(snapshotMsg(s))
		})
		if ctx.Err() == nil {
			p.Send(streamEndedMsg{err: err})
		}
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return err
	}
	if m, ok := final.(watchModel); ok && m.ended && m.err != "" {
		return fmt.Errorf("%s", m.err)
	}
	return nil
}
