package record

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a rendered line for the viewport.
type logMsg struct{ line string }

type tickMsg struct{ TickRow }

type eventMsg struct{ EventRow }

type statsMsg struct{ StatsRow }

type runMsg struct{ RunRow }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

// TUIWriter renders scheduler activity using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the TUI interrupts the process so the run shuts down cleanly.
func NewTUIWriter(ov *Overview) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(ov), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteTick implements TickWriter.
func (w *TUIWriter) WriteTick(row TickRow) error {
	w.program.Send(logMsg{line: tickLine(row)})
	w.program.Send(tickMsg{row})
	return nil
}

// WriteEvent implements EventWriter.
func (w *TUIWriter) WriteEvent(row EventRow) error {
	w.program.Send(logMsg{line: eventLine(row)})
	w.program.Send(eventMsg{row})
	return nil
}

// WriteStats implements StatsWriter.
func (w *TUIWriter) WriteStats(row StatsRow) error {
	w.program.Send(statsMsg{row})
	return nil
}

// WriteRun implements RunWriter.
func (w *TUIWriter) WriteRun(row RunRow) error {
	w.program.Send(logMsg{line: runLine(row)})
	w.program.Send(runMsg{row})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type tuiModel struct {
	ov           *Overview
	table        table.Model
	vp           viewport.Model
	logs         []string
	wrap         bool
	autoscroll   bool
	header       string
	headerHeight int
	width        int
	height       int

	phase      string
	scenario   int
	ticks      int
	launches   int
	violations int
	misses     int
	stats      *StatsRow
	run        *RunRow
	admin      bool
}

func newTUIModel(ov *Overview) tuiModel {
	if ov == nil {
		ov = &Overview{}
	}
	cols := []table.Column{
		{Title: "Run", Width: 16},
		{Title: "Value", Width: 18},
		{Title: "Progress", Width: 16},
		{Title: "Value", Width: 10},
	}
	m := tuiModel{
		ov:         ov,
		vp:         viewport.New(0, 0),
		autoscroll: true,
		phase:      "Unauthenticated",
	}
	m.table = table.New(table.WithColumns(cols), table.WithRows(m.tableRows()), table.WithHeight(5))
	m.header = m.renderHeader()
	m.headerHeight = lipgloss.Height(m.header)
	return m
}

func (m tuiModel) tableRows() []table.Row {
	return []table.Row{
		{"Entry", m.ov.EntryName, "Phase", m.phase},
		{"Track", m.ov.Track, "Scenario", fmt.Sprintf("%d", m.scenario)},
		{"Dialect", m.ov.Dialect, "Ticks", fmt.Sprintf("%d", m.ticks)},
		{"Planner", m.ov.Planner, "Launches", fmt.Sprintf("%d", m.launches)},
		{"Admin", onOff(m.admin), "Violations", fmt.Sprintf("%d/%d", m.violations, m.misses)},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.refreshHeader()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshHeader()
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case logMsg:
		m.logs = append(m.logs, msg.line)
		m.refreshViewport()
	case tickMsg:
		m.scenario = msg.Scenario
		m.ticks++
		m.launches += msg.Launched
		if msg.DeadlineMissed {
			m.misses++
		}
		m.refreshHeader()
	case eventMsg:
		switch msg.Type {
		case EventPhase:
			m.phase = msg.Phase
		case EventViolation, EventMalformed:
			m.violations++
		}
		m.refreshHeader()
	case statsMsg:
		row := msg.StatsRow
		m.stats = &row
		m.refreshHeader()
	case runMsg:
		row := msg.RunRow
		m.run = &row
		m.phase = "Terminated"
		m.refreshHeader()
	case adminMsg:
		m.admin = msg.active
		m.refreshHeader()
	}
	return m, nil
}

func (m *tuiModel) refreshHeader() {
	m.table.SetRows(m.tableRows())
	m.header = m.renderHeader()
	m.headerHeight = lipgloss.Height(m.header)
	m.updateViewportHeight()
}

func (m tuiModel) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("droneops scheduler"))
	if m.ov.URL != "" {
		b.WriteString(" " + m.ov.URL)
	}
	b.WriteString("\n")
	b.WriteString(m.table.View())
	if m.stats != nil && len(m.stats.Values) > 0 {
		parts := make([]string, 0, len(m.stats.Values))
		for _, v := range m.stats.Values {
			if v.Display {
				parts = append(parts, fmt.Sprintf("%s=%v", v.Label, v.Value))
			}
		}
		line := fmt.Sprintf("Stats (scenario %d): %s", m.stats.Scenario, strings.Join(parts, "  "))
		b.WriteString("\n" + m.wrapText(line))
	}
	if m.run != nil && m.run.Error != "" {
		b.WriteString("\n" + errorStyle.Render(m.wrapText(fmt.Sprintf("%s: %s", m.run.Outcome, m.run.Error))))
	}
	return b.String()
}

func (m tuiModel) wrapText(s string) string {
	if !m.wrap || m.width <= 0 {
		return s
	}
	return wordwrap.String(s, m.width)
}

func (m *tuiModel) updateViewportHeight() {
	if m.height == 0 {
		return
	}
	h := m.height - m.headerHeight - 1
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.width > 0 {
		lines = make([]string, len(m.logs))
		for i, l := range m.logs {
			lines[i] = wordwrap.String(l, m.width)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	footer := footerStyle.Render("q quit  w wrap  s autoscroll  up/down scroll")
	return lipgloss.JoinVertical(lipgloss.Left, m.header, m.vp.View(), footer)
}
