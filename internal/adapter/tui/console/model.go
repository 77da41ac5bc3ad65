package console

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gloveterm/internal/adapter/tui/theme"
	"gloveterm/internal/usecase"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// focusTarget identifies which element receives key input.
type focusTarget int

const (
	focusInput focusTarget = iota
	focusCLI
	focusMonitor
)

// Deps are the dependencies injected into the console model.
type Deps struct {
	Session     *usecase.DeviceSession
	CLI         *usecase.Sink
	Monitor     *usecase.Sink
	Telemetry   *usecase.TelemetryState
	Logger      *slog.Logger
	ScanTimeout time.Duration
	HistorySize int
}

// Model is the root Bubble Tea model for the device console.
type Model struct {
	deps Deps

	cliView viewport.Model
	monView viewport.Model
	input   textinput.Model
	focus   focusTarget

	// Input history, most recent last. histIdx == len(history) means the
	// in-progress line.
	history []string
	histIdx int
	draft   string

	scanning   bool
	connecting bool
	notice     string
	noticeErr  bool

	width    int
	height   int
	quitting bool
}

// New creates the console model.
func New(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HistorySize <= 0 {
		deps.HistorySize = 100
	}

	ti := textinput.New()
	ti.Placeholder = "command (or /help)"
	ti.Prompt = "> "
	ti.Focus()

	return &Model{
		deps:    deps,
		cliView: viewport.New(0, 0),
		monView: viewport.New(0, 0),
		input:   ti,
	}
}

// Init starts the poll loop.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, pollCmd())
}

// Update handles all incoming messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pollMsg:
		m.refreshPanes()
		return m, pollCmd()

	case scanDoneMsg:
		m.scanning = false
		if msg.Err != nil {
			m.setNotice("scan failed: "+msg.Err.Error(), true)
		} else {
			m.showDiscovered()
		}
		return m, nil

	case connectDoneMsg:
		m.connecting = false
		if msg.Err != nil {
			m.setNotice("connect failed: "+msg.Err.Error(), true)
		} else if p := m.deps.Session.Connected(); p != nil {
			name := p.Name
			if name == "" {
				name = p.ID
			}
			m.setNotice("connected to "+name, false)
		}
		return m, nil

	case writeDoneMsg:
		if msg.Err != nil {
			m.setNotice("send failed: "+msg.Err.Error(), true)
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		_ = m.deps.Session.Disconnect()
		return m, tea.Quit

	case "tab":
		m.cycleFocus()
		return m, nil

	case "up":
		if m.focus == focusInput {
			m.historyPrev()
			return m, nil
		}
	case "down":
		if m.focus == focusInput {
			m.historyNext()
			return m, nil
		}

	case "enter":
		if m.focus == focusInput {
			value := m.input.Value()
			m.input.SetValue("")
			return m, m.handleSubmit(value)
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusInput:
		m.input, cmd = m.input.Update(msg)
	case focusCLI:
		m.cliView, cmd = m.cliView.Update(msg)
	case focusMonitor:
		m.monView, cmd = m.monView.Update(msg)
	}
	return m, cmd
}

func (m *Model) cycleFocus() {
	switch m.focus {
	case focusInput:
		m.focus = focusCLI
		m.input.Blur()
	case focusCLI:
		m.focus = focusMonitor
	default:
		m.focus = focusInput
		m.input.Focus()
	}
}

func (m *Model) historyPrev() {
	if len(m.history) == 0 || m.histIdx == 0 {
		return
	}
	if m.histIdx == len(m.history) {
		m.draft = m.input.Value()
	}
	m.histIdx--
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

func (m *Model) historyNext() {
	if m.histIdx >= len(m.history) {
		return
	}
	m.histIdx++
	if m.histIdx == len(m.history) {
		m.input.SetValue(m.draft)
	} else {
		m.input.SetValue(m.history[m.histIdx])
	}
	m.input.CursorEnd()
}

func (m *Model) pushHistory(value string) {
	if value == "" {
		return
	}
	if n := len(m.history); n > 0 && m.history[n-1] == value {
		m.histIdx = len(m.history)
		return
	}
	m.history = append(m.history, value)
	if len(m.history) > m.deps.HistorySize {
		m.history = m.history[1:]
	}
	m.histIdx = len(m.history)
	m.draft = ""
}

// handleSubmit routes a submitted line: slash commands act on the session,
// everything else is sent to the device.
func (m *Model) handleSubmit(value string) tea.Cmd {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	m.pushHistory(trimmed)

	if !strings.HasPrefix(trimmed, "/") {
		return writeCmd(m.deps.Session, trimmed)
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/help":
		m.appendCLI(helpText)
		return nil

	case "/scan":
		if m.scanning {
			m.setNotice("scan already running", true)
			return nil
		}
		m.scanning = true
		m.setNotice("scanning...", false)
		return scanCmd(m.deps.Session, m.deps.ScanTimeout)

	case "/stop":
		if err := m.deps.Session.StopScan(); err != nil {
			m.setNotice("stop failed: "+err.Error(), true)
		}
		return nil

	case "/connect":
		if len(fields) < 2 {
			m.setNotice("usage: /connect <number|id>", true)
			return nil
		}
		id, err := m.resolveTarget(fields[1])
		if err != nil {
			m.setNotice(err.Error(), true)
			return nil
		}
		m.connecting = true
		m.setNotice("connecting to "+id+"...", false)
		return connectCmd(m.deps.Session, id)

	case "/disconnect":
		if err := m.deps.Session.Disconnect(); err != nil {
			m.setNotice("disconnect failed: "+err.Error(), true)
		} else {
			m.setNotice("disconnected", false)
		}
		return nil

	case "/clear":
		m.deps.CLI.Clear()
		m.deps.Monitor.Clear()
		return nil

	case "/quit":
		m.quitting = true
		_ = m.deps.Session.Disconnect()
		return tea.Quit

	default:
		m.setNotice("unknown command "+fields[0]+" (try /help)", true)
		return nil
	}
}

// resolveTarget maps a 1-based list number or a raw id to a peripheral id.
func (m *Model) resolveTarget(arg string) (string, error) {
	list := m.deps.Session.Discovered()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(list) {
			return "", fmt.Errorf("no device #%d, run /scan first", n)
		}
		return list[n-1].ID, nil
	}
	for _, p := range list {
		if strings.EqualFold(p.ID, arg) {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("unknown device %q, run /scan first", arg)
}

// showDiscovered prints the scan results into the CLI pane.
func (m *Model) showDiscovered() {
	list := m.deps.Session.Discovered()
	if len(list) == 0 {
		m.setNotice("scan finished, no devices found", false)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "found %d device(s):\n", len(list))
	for i, p := range list {
		name := p.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "  %d. %s  %s  %d dBm\n", i+1, name, p.ID, p.RSSI)
	}
	b.WriteString("connect with /connect <number>\n")
	m.appendCLI(b.String())
	m.setNotice("scan finished", false)
}

func (m *Model) appendCLI(text string) {
	m.deps.CLI.Append(text)
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
	if isErr {
		m.deps.Logger.Warn(text)
	}
}

func (m *Model) layout() {
	paneWidth := (m.width - 4) / 2
	paneHeight := m.height - 5
	if paneWidth < 10 {
		paneWidth = 10
	}
	if paneHeight < 3 {
		paneHeight = 3
	}
	m.cliView.Width = paneWidth
	m.cliView.Height = paneHeight
	m.monView.Width = paneWidth
	m.monView.Height = paneHeight
	m.input.Width = m.width - 6
	m.refreshPanes()
}

// refreshPanes re-renders both panes from the sinks, keeping the view
// pinned to the bottom unless the user scrolled up.
func (m *Model) refreshPanes() {
	cliBottom := m.cliView.AtBottom()
	monBottom := m.monView.AtBottom()

	m.cliView.SetContent(joinLines(m.deps.CLI.Lines()))
	m.monView.SetContent(joinLines(m.deps.Monitor.Lines()))

	if cliBottom {
		m.cliView.GotoBottom()
	}
	if monBottom {
		m.monView.GotoBottom()
	}
}

// joinLines renders sink entries one per display line. Stream-derived
// entries carry no terminator while locally appended ones (command echo,
// help text) end in "\n"; normalize so neither runs together nor doubles up.
func joinLines(entries []string) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = strings.TrimSuffix(e, "\n")
	}
	return strings.Join(lines, "\n")
}

// View renders the full console.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	cli := m.pane("Console", m.cliView.View(), m.focus == focusCLI)
	mon := m.pane("Monitor", m.monView.View(), m.focus == focusMonitor)
	panes := lipgloss.JoinHorizontal(lipgloss.Top, cli, " ", mon)

	return lipgloss.JoinVertical(lipgloss.Left,
		panes,
		m.input.View(),
		m.statusLine(),
	)
}

func (m *Model) pane(title, body string, focused bool) string {
	border := theme.UnfocusedBorder
	if focused {
		border = theme.FocusBorder
	}
	return border.Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.PaneTitle.Render(" "+title+" "),
		body,
	))
}

// statusLine renders session state, device identity and live telemetry.
func (m *Model) statusLine() string {
	var parts []string

	state := m.deps.Session.State()
	switch state {
	case usecase.StateReady:
		parts = append(parts, theme.TextSuccess.Render(state.String()))
	case usecase.StateIdle:
		parts = append(parts, theme.TextMuted.Render(state.String()))
	default:
		parts = append(parts, theme.TextWarning.Render(state.String()))
	}

	if p := m.deps.Session.Connected(); p != nil {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		parts = append(parts, theme.TextAccent.Render(name))
	}

	if m.deps.Telemetry != nil {
		snap := m.deps.Telemetry.Snapshot()
		if snap.HasBattery {
			parts = append(parts, theme.StatusKey.Render("batt")+
				fmt.Sprintf(" %.0f%% %.2fV", snap.BatteryPct, snap.VoltageV))
		}
		if snap.HasRSSI {
			parts = append(parts, fmt.Sprintf("%d dBm", snap.RSSIdBm))
		}
		if snap.Flex != nil {
			parts = append(parts, theme.StatusKey.Render("flex")+
				fmt.Sprintf(" %d", snap.Flex.Value))
		}
		if q, source := snap.Orientation(); q != nil {
			parts = append(parts, theme.StatusKey.Render(source)+
				fmt.Sprintf(" q[%.2f %.2f %.2f %.2f]", q[0], q[1], q[2], q[3]))
		}
	}

	if m.notice != "" {
		style := theme.TextInfo
		if m.noticeErr {
			style = theme.TextError
		}
		parts = append(parts, style.Render(m.notice))
	}

	hints := theme.Dim.Render("tab: focus | /help")
	left := strings.Join(parts, theme.Dim.Render(" | "))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(hints)
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + hints)
}

const helpText = `commands:
  /scan        scan for devices
  /stop        stop an active scan
  /connect N   connect to device N from the scan list (or a raw id)
  /disconnect  drop the connection
  /clear       clear both panes
  /quit        exit
anything else is sent to the device.
`
