// Package tui is the interactive front-end: a tab bar, the active terminal
// tab and a file picker for starting runs.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/codefionn/runpad/internal/execution"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/session"
	"github.com/codefionn/runpad/internal/terminal"
	"github.com/codefionn/runpad/internal/workspace"
	"github.com/muesli/reflow/wordwrap"
)

const (
	// title, tab bar and footer
	chromeHeight = 3

	errorVisibleFor = 5 * time.Second
	quitWindow      = 500 * time.Millisecond
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	pickerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// Options configures the front-end.
type Options struct {
	Workspace    *workspace.Workspace
	Runner       session.Runner
	Dialer       execution.Dialer
	Capacity     int
	Prompt       string
	BatchTimeout time.Duration
}

type (
	// changedMsg means some tab's contents or the tab set changed.
	changedMsg struct{}

	filesLoadedMsg struct {
		root *workspace.FileNode
	}

	runFinishedMsg struct {
		tab  terminal.TabID
		path string
		err  error
	}

	pingedMsg struct {
		err error
	}
)

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	ws      *workspace.Workspace
	mux     *terminal.Multiplexer
	runs    *session.Manager
	styles  terminal.Styles
	keys    keyMap
	changes chan struct{}

	viewport      viewport.Model
	spinner       spinner.Model
	spinnerActive bool
	picker        *filePicker
	pickFor       terminal.TabID

	width, height   int
	ready           bool
	err             error
	errVisibleUntil time.Time
	lastCtrlC       time.Time
}

// New creates the model with one open tab.
func New(ctx context.Context, opts Options) *Model {
	m := &Model{
		ctx:     ctx,
		ws:      opts.Workspace,
		styles:  terminal.DefaultStyles(),
		keys:    defaultKeyMap(),
		changes: make(chan struct{}, 1),
	}
	m.mux = terminal.NewMultiplexer(terminal.Options{
		Capacity: opts.Capacity,
		Prompt:   opts.Prompt,
		OnChange: m.notify,
	})
	m.runs = session.NewManager(opts.Workspace, m.mux, opts.Runner, opts.Dialer, session.Options{
		BatchTimeout: opts.BatchTimeout,
	})

	vp := viewport.New(80, 20)
	vp.SetContent("")
	m.viewport = vp
	m.spinner = spinner.New(
		spinner.WithSpinner(spinner.Line),
		spinner.WithStyle(statusStyle),
	)

	m.mux.CreateTab("")
	return m
}

// notify is called by tabs from arbitrary goroutines, possibly with a session
// lock held, so it must never block.
func (m *Model) notify(terminal.TabID) {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return changedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// Shutdown stops every run. Call it after the program exits.
func (m *Model) Shutdown() {
	m.runs.StopAll()
}

func (m *Model) Init() tea.Cmd {
	if m.ws != nil && m.ws.HasRemote() {
		return tea.Batch(m.waitForChange(), m.pingRemote())
	}
	return m.waitForChange()
}

// pingRemote probes the workspace service so the status line starts out
// accurate.
func (m *Model) pingRemote() tea.Cmd {
	return func() tea.Msg {
		return pingedMsg{err: m.ws.Ping(m.ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		if m.picker != nil {
			m.picker.setSize(msg.Width, msg.Height)
		}
		m.ready = true
		m.refresh()
		return m, nil

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case pingedMsg:
		if msg.err != nil {
			logger.Warn("Workspace service check failed: %v", msg.err)
		}
		return m, nil

	case filesLoadedMsg:
		m.picker = newFilePicker(msg.root, m.width, m.height)
		return m, nil

	case pickedMsg:
		m.picker = nil
		if msg.path == "" {
			return m, nil
		}
		return m, m.startRun(m.pickFor, msg.path)

	case runFinishedMsg:
		if msg.err != nil {
			logger.Debug("Run of %s in tab %d ended with: %v", msg.path, msg.tab, msg.err)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.anyRunning() {
			m.spinnerActive = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.picker != nil {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}
		return m, m.handleKey(msg)
	}

	if m.picker != nil {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if idx, ok := tabDigit(msg); ok {
		tabs := m.mux.Tabs()
		if idx < len(tabs) {
			m.mux.SetActive(tabs[idx].ID())
		}
		m.refresh()
		return nil
	}

	active := m.mux.Active()
	switch {
	case key.Matches(msg, m.keys.Quit):
		now := time.Now()
		if now.Sub(m.lastCtrlC) < quitWindow {
			return tea.Quit
		}
		m.lastCtrlC = now
		return nil

	case key.Matches(msg, m.keys.EOF):
		if active == nil || (active.Input() == "" && active.Process() == nil) {
			return tea.Quit
		}
		return nil

	case key.Matches(msg, m.keys.NewTab):
		m.mux.SetActive(m.mux.CreateTab(""))

	case key.Matches(msg, m.keys.CloseTab):
		if active != nil {
			m.mux.CloseTab(active.ID())
		}
		if m.mux.Len() == 0 {
			m.mux.CreateTab("")
		}

	case key.Matches(msg, m.keys.NextTab):
		m.cycleTab()

	case key.Matches(msg, m.keys.RunFile):
		if active == nil {
			return nil
		}
		m.pickFor = active.ID()
		return m.loadFiles()

	case key.Matches(msg, m.keys.Stop):
		if active != nil {
			m.runs.Stop(active.ID())
		}

	case key.Matches(msg, m.keys.Clear):
		if active != nil {
			m.mux.Clear(active.ID())
		}

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd

	default:
		for _, k := range terminalKeys(msg) {
			if err := m.mux.HandleKey(k); err != nil {
				m.setError(err)
			}
		}
	}

	m.refresh()
	return nil
}

func (m *Model) cycleTab() {
	tabs := m.mux.Tabs()
	active := m.mux.Active()
	if len(tabs) == 0 || active == nil {
		return
	}
	for i, t := range tabs {
		if t == active {
			m.mux.SetActive(tabs[(i+1)%len(tabs)].ID())
			return
		}
	}
}

func (m *Model) loadFiles() tea.Cmd {
	return func() tea.Msg {
		return filesLoadedMsg{root: m.ws.List(m.ctx)}
	}
}

// startRun runs p in tab id off the event loop. Failures are already shown in
// the tab by the time runFinishedMsg arrives.
func (m *Model) startRun(id terminal.TabID, p string) tea.Cmd {
	run := func() tea.Msg {
		_, err := m.runs.Run(m.ctx, id, p)
		return runFinishedMsg{tab: id, path: p, err: err}
	}
	if m.spinnerActive {
		return run
	}
	m.spinnerActive = true
	return tea.Batch(run, func() tea.Msg { return m.spinner.Tick() })
}

func (m *Model) anyRunning() bool {
	for _, t := range m.mux.Tabs() {
		if t.Process() != nil {
			return true
		}
	}
	return false
}

func (m *Model) setError(err error) {
	m.err = err
	m.errVisibleUntil = time.Now().Add(errorVisibleFor)
}

// refresh re-renders the active tab into the viewport, following the output
// unless the user scrolled up.
func (m *Model) refresh() {
	content := ""
	if active := m.mux.Active(); active != nil {
		content = active.Render(m.styles, 0)
	}
	if m.width > 0 {
		content = wordwrap.String(content, m.width)
	}
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(content)
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	if m.picker != nil {
		return lipgloss.Place(
			m.width,
			m.height,
			lipgloss.Center,
			lipgloss.Center,
			m.picker.View(),
			lipgloss.WithWhitespaceChars(" "),
			lipgloss.WithWhitespaceForeground(lipgloss.Color("0")),
		)
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("runpad"))
	sb.WriteString(" ")
	sb.WriteString(statusStyle.Render(m.workspaceStatus()))
	sb.WriteString("\n")
	sb.WriteString(m.mux.RenderTabBar(m.styles))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m *Model) workspaceStatus() string {
	if m.ws == nil {
		return ""
	}
	mode := "local only"
	switch {
	case m.ws.HasRemote() && m.ws.Online():
		mode = "remote"
	case m.ws.HasRemote():
		mode = "remote · offline"
	}
	if n := len(m.ws.Pending()); n > 0 {
		return fmt.Sprintf("%s · %d unsynced", mode, n)
	}
	return mode
}

func (m *Model) runStatus() string {
	active := m.mux.Active()
	if active == nil {
		return ""
	}
	exec, ok := m.runs.Execution(active.ID())
	if !ok {
		return ""
	}
	text := fmt.Sprintf("%s (%s)", exec.Path, exec.Mode)
	if exec.Mode == execution.ModeInteractive {
		text = fmt.Sprintf("%s (%s, %s)", exec.Path, exec.Mode, m.runs.State(active.ID()))
	}
	if m.spinnerActive {
		return m.spinner.View() + " " + text
	}
	return text
}

func (m *Model) renderFooter() string {
	var left string
	if m.err != nil && time.Now().Before(m.errVisibleUntil) {
		left = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	} else {
		left = statusStyle.Render(m.runStatus())
	}

	hints := make([]string, 0, len(m.keys.shortHelp()))
	for _, b := range m.keys.shortHelp() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	right := helpStyle.Render(strings.Join(hints, " · "))

	if m.width <= 0 {
		return left + " " + right
	}
	space := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if space < 1 {
		space = 1
	}
	return left + strings.Repeat(" ", space) + right
}
