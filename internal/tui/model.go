// Package tui is the terminal editor: a source pane, an output pane and a
// status line bound to a run controller.
package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/caffeineduck/plxrun/controller"
	"github.com/caffeineduck/plxrun/output"
)

// refreshInterval is how often output is redrawn while a run is in flight.
const refreshInterval = 50 * time.Millisecond

// Controller is what the editor drives. *controller.Controller satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	Run(ctx context.Context, source string) (*controller.Report, error)
	State() controller.State
	Status() string
	CanRun() bool
	Output() *output.Sink
}

type startedMsg struct{ err error }

type runFinishedMsg struct {
	report *controller.Report
	err    error
}

type savedMsg struct{ err error }

type tickMsg time.Time

// Model is the editor's bubbletea model.
type Model struct {
	ctrl   Controller
	path   string
	editor textarea.Model
	output viewport.Model

	width, height int
	running       bool
	lastReport    *controller.Report
	message       string
}

// SampleSource is loaded into the editor when there is nothing to edit.
const SampleSource = `import io from "runtime/io"

io.write(io.stdout, "hello\n")
`

// New creates an editor over ctrl with source preloaded, or SampleSource
// when source is empty. path is where ctrl+s saves; it may be empty.
func New(ctrl Controller, path, source string) *Model {
	if source == "" {
		source = SampleSource
	}

	ed := textarea.New()
	ed.Placeholder = "Write Protolex here, ctrl+r to run"
	ed.ShowLineNumbers = true
	ed.CharLimit = 0
	ed.SetValue(source)
	ed.Focus()

	return &Model{
		ctrl:   ctrl,
		path:   path,
		editor: ed,
		output: viewport.New(80, 8),
	}
}

// Init starts the runtime in the background so the editor is usable while
// it loads.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.start)
}

func (m *Model) start() tea.Msg {
	return startedMsg{err: m.ctrl.Start(context.Background())}
}

func (m *Model) run(source string) tea.Cmd {
	return func() tea.Msg {
		report, err := m.ctrl.Run(context.Background(), source)
		return runFinishedMsg{report: report, err: err}
	}
}

func (m *Model) save() tea.Msg {
	return savedMsg{err: os.WriteFile(m.path, []byte(m.editor.Value()), 0o644)}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+r":
			// The trigger is inert unless the runtime is ready.
			if m.running || !m.ctrl.CanRun() {
				return m, nil
			}
			m.running = true
			m.message = ""
			return m, tea.Batch(m.run(m.editor.Value()), tick())

		case "ctrl+s":
			if m.path == "" {
				m.message = "no file to save to"
				return m, nil
			}
			return m, m.save

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}

	case startedMsg:
		if msg.err != nil {
			m.message = msg.err.Error()
		}
		m.refreshOutput()
		return m, nil

	case tickMsg:
		m.refreshOutput()
		if m.running {
			return m, tick()
		}
		return m, nil

	case runFinishedMsg:
		m.running = false
		if msg.err != nil {
			m.message = msg.err.Error()
		} else {
			m.lastReport = msg.report
		}
		m.refreshOutput()
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.message = "save failed: " + msg.err.Error()
		} else {
			m.message = "saved " + m.path
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// title, divider, status and help lines
	avail := m.height - 4
	if avail < 4 {
		avail = 4
	}
	editorHeight := avail * 3 / 5
	m.editor.SetWidth(m.width)
	m.editor.SetHeight(editorHeight)
	m.output.Width = m.width
	m.output.Height = avail - editorHeight
	m.refreshOutput()
}

func (m *Model) refreshOutput() {
	m.output.SetContent(renderRecords(m.ctrl.Output().Snapshot()))
	m.output.GotoBottom()
}

func renderRecords(records []output.Record) string {
	var b strings.Builder
	for _, r := range records {
		text := strings.TrimSuffix(r.Text, "\n")
		switch r.Channel {
		case output.Error:
			b.WriteString(stderrStyle.Render(text))
		case output.Exception:
			b.WriteString(exceptionStyle.Render(text))
		default:
			b.WriteString(normalStyle.Render(text))
		}
		if strings.HasSuffix(r.Text, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m *Model) statusLine() string {
	state := m.ctrl.State()
	status := m.ctrl.Status()

	var line string
	switch state {
	case controller.Ready:
		line = readyStyle.Render(status)
	case controller.Faulted:
		line = faultStyle.Render(status)
	default:
		line = busyStyle.Render(status)
	}

	if r := m.lastReport; r != nil && !m.running {
		line += helpStyle.Render(fmt.Sprintf("  last run: %s, exit %d, %s",
			r.Outcome, r.ExitCode, r.Duration.Round(time.Millisecond)))
	}
	if m.message != "" {
		line += "  " + m.message
	}
	return line
}

// View renders the editor.
func (m *Model) View() string {
	title := "plxrun"
	if m.path != "" {
		title += " " + m.path
	}

	width := m.width
	if width <= 0 {
		width = 40
	}

	help := "ctrl+r run"
	if !m.ctrl.CanRun() {
		help = "ctrl+r run (disabled)"
	}
	help += " • ctrl+s save • pgup/pgdown scroll output • ctrl+c quit"

	return strings.Join([]string{
		titleStyle.Render(title),
		m.editor.View(),
		dividerStyle.Render(strings.Repeat("─", width)),
		m.output.View(),
		m.statusLine(),
		helpStyle.Render(help),
	}, "\n")
}

// Source returns the editor's current text.
func (m *Model) Source() string {
	return m.editor.Value()
}

// Run opens the editor full screen and blocks until the user quits.
func Run(ctrl Controller, path, source string) error {
	p := tea.NewProgram(New(ctrl, path, source), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
