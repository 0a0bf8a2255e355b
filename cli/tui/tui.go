package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressMsg carries a new percent for the running request.
type ProgressMsg struct {
	Percent int
}

// DoneMsg ends the view with a final state.
type DoneMsg struct {
	Outcome string
	Message string
	Elapsed time.Duration
}

// RequestInfo labels the progress view.
type RequestInfo struct {
	RequestID string
	Server    string
	Mode      string
	Workers   int
	Width     int
	Height    int
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ProgressModel is a Bubble Tea model that tracks one request.
type ProgressModel struct {
	info     RequestInfo
	bar      progress.Model
	percent  int
	done     *DoneMsg
	quitting bool
	onQuit   func()
}

// NewProgressModel creates a model. onQuit runs when the user quits
// before the request finishes and may be nil.
func NewProgressModel(info RequestInfo, onQuit func()) ProgressModel {
	return ProgressModel{
		info:   info,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		onQuit: onQuit,
	}
}

// Percent returns the last accepted progress percent.
func (m ProgressModel) Percent() int {
	return m.percent
}

// Done returns the final state, or nil while the request is running.
func (m ProgressModel) Done() *DoneMsg {
	return m.done
}

// Quitting reports whether the user asked to quit.
func (m ProgressModel) Quitting() bool {
	return m.quitting
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if w := msg.Width - 8; w > 10 && w < 80 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if m.done == nil && m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case ProgressMsg:
		// Stale or out-of-range updates never move the bar backwards.
		if msg.Percent > m.percent && msg.Percent <= 100 {
			m.percent = msg.Percent
		}
		return m, nil

	case DoneMsg:
		m.done = &msg
		if msg.Outcome == "success" {
			m.percent = 100
		}
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("bilat request"))
	b.WriteString("\n")
	b.WriteString(row("Request", m.info.RequestID))
	b.WriteString(row("Server", m.info.Server))
	b.WriteString(row("Mode", fmt.Sprintf("%s (%d workers)", m.info.Mode, m.info.Workers)))
	b.WriteString(row("Image", fmt.Sprintf("%dx%d", m.info.Width, m.info.Height)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
	b.WriteString("\n")

	state, detail := "processing", ""
	if m.done != nil {
		state = m.done.Outcome
		detail = m.done.Message
		if m.done.Elapsed > 0 {
			detail = strings.TrimSpace(detail + " " + m.done.Elapsed.Round(time.Millisecond).String())
		}
	} else if m.quitting {
		state = "cancelled"
	}
	b.WriteString("\n")
	b.WriteString(row("State", OutcomeStyle(state).Render(state)))
	if detail != "" {
		b.WriteString(row("Detail", detail))
	}

	out := BoxStyle.Render(b.String())
	if m.done == nil {
		out += "\n" + HelpStyle.Render("Press q or Ctrl+C to cancel")
	}
	return out + "\n"
}

func row(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value) + "\n"
}

// Session runs a ProgressModel program fed from another goroutine.
type Session struct {
	program *tea.Program
}

// NewSession prepares a program writing to out. A nil out uses stdout.
func NewSession(info RequestInfo, onQuit func(), out io.Writer) *Session {
	opts := []tea.ProgramOption{}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	return &Session{program: tea.NewProgram(NewProgressModel(info, onQuit), opts...)}
}

// Progress forwards a percent to the view. Safe from any goroutine.
func (s *Session) Progress(percent int) {
	s.program.Send(ProgressMsg{Percent: percent})
}

// Finish ends the view with a final state.
func (s *Session) Finish(msg DoneMsg) {
	s.program.Send(msg)
}

// Run blocks until the view exits and returns its final model.
func (s *Session) Run() (ProgressModel, error) {
	final, err := s.program.Run()
	if err != nil {
		return ProgressModel{}, err
	}
	m, _ := final.(ProgressModel)
	return m, nil
}
