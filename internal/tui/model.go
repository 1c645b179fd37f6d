package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/admin"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// statusMsg carries a status document from a poll or the event stream.
type statusMsg struct {
	status admin.StatusJSON
	err    error
}

// sirenMsg carries the outcome of a siren action.
type sirenMsg struct {
	action string
	res    SirenResult
	err    error
}

// logMsg carries a free-form line for the event log.
type logMsg struct{ line string }

type pollMsg struct{}

var keyActions = map[string]string{
	"t": "test",
	"c": "clear_snooze",
	"1": "snooze_10m",
	"2": "snooze_20m",
	"3": "snooze_1h",
}

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	riskStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type model struct {
	client   *Client
	interval time.Duration

	table  table.Model
	vp     viewport.Model
	logs   []string
	status admin.StatusJSON
	last   time.Time
	err    error
	wrap   bool
	width  int
	height int
	now    func() time.Time
}

func newModel(client *Client, interval time.Duration) model {
	cols := []table.Column{
		{Title: "Tank", Width: 6},
		{Title: "Distance", Width: 10},
		{Title: "State", Width: 9},
		{Title: "Seen", Width: 10},
		{Title: "Battery", Width: 9},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(4))
	return model{
		client:   client,
		interval: interval,
		table:    t,
		vp:       viewport.New(0, 0),
		wrap:     true,
		now:      time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return m.fetch()
}

func (m model) fetch() tea.Cmd {
	if m.client == nil {
		return nil
	}
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := c.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m model) poll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m model) siren(action string) tea.Cmd {
	if m.client == nil {
		return nil
	}
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := c.Siren(ctx, action)
		return sirenMsg{action: action, res: res, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-lipgloss.Height(m.renderHeader())-3, 1)
		m.refreshLog()
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshLog()
		case "r":
			return m, m.fetch()
		default:
			if action, ok := keyActions[key]; ok {
				m.appendLog(dimStyle.Render(m.stamp()) + " sending " + action)
				return m, m.siren(action)
			}
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case statusMsg:
		if msg.err != nil {
			if m.err == nil {
				m.appendLog(riskStyle.Render("status unavailable: " + msg.err.Error()))
			}
			m.err = msg.err
			return m, m.poll()
		}
		if m.err != nil {
			m.appendLog(okStyle.Render("status restored"))
		}
		m.err = nil
		m.noteChanges(msg.status)
		m.status = msg.status
		m.last = m.now()
		m.table.SetRows(tankRows(msg.status))
		return m, m.poll()
	case pollMsg:
		return m, m.fetch()
	case sirenMsg:
		switch {
		case msg.err != nil:
			m.appendLog(riskStyle.Render(fmt.Sprintf("%s failed: %v", msg.action, msg.err)))
		case !msg.res.OK:
			m.appendLog(riskStyle.Render(fmt.Sprintf("%s not acknowledged (id %s)", msg.action, msg.res.ID)))
		default:
			m.appendLog(okStyle.Render(fmt.Sprintf("%s delivered (id %s)", msg.action, msg.res.ID)))
		}
	case logMsg:
		m.appendLog(msg.line)
	}
	return m, nil
}

// noteChanges logs state transitions between two status documents.
func (m *model) noteChanges(next admin.StatusJSON) {
	prev := make(map[uint8]admin.TankJSON, len(m.status.Tanks))
	for _, t := range m.status.Tanks {
		prev[t.TankID] = t
	}
	for _, t := range next.Tanks {
		p, seen := prev[t.TankID]
		state := tankState(t)
		if seen && tankState(p) == state {
			continue
		}
		if !seen && t.Offline && t.DistanceCM == nil {
			continue
		}
		m.appendLog(fmt.Sprintf("%s tank %d %s %s", dimStyle.Render(m.stamp()), t.TankID+1, styleState(state), distance(t)))
	}
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > 500 {
		m.logs = m.logs[len(m.logs)-500:]
	}
	m.refreshLog()
}

func (m *model) refreshLog() {
	content := strings.Join(m.logs, "\n")
	if m.wrap && m.vp.Width > 0 {
		content = wordwrap.String(content, m.vp.Width)
	}
	m.vp.SetContent(content)
	m.vp.GotoBottom()
}

func (m model) stamp() string {
	return m.now().Format("15:04:05")
}

func (m model) View() string {
	divider := strings.Repeat("─", max(m.width, 10))
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.vp.View(),
		divider,
		m.renderFooter(),
	}, "\n")
}

func (m model) renderHeader() string {
	clock := riskStyle.Render("not synced")
	if m.status.NTPSynced {
		clock = okStyle.Render(m.status.ServerTimeISO)
	}
	title := titleStyle.Render("Honey Tank Monitor") + "  " + clock + dimStyle.Render(fmt.Sprintf("  channel %d", m.status.WiFiChannel))
	return title + "\n" + m.table.View()
}

func (m model) renderFooter() string {
	conn := okStyle.Render("●")
	if m.err != nil {
		conn = riskStyle.Render("●")
	}
	wrap := offlineStyle.Render("●")
	if m.wrap {
		wrap = okStyle.Render("●")
	}
	return fmt.Sprintf("%s link  %s wrap   t test  1/2/3 snooze 10m/20m/1h  c clear  r refresh  w wrap  q quit", conn, wrap)
}

func tankRows(st admin.StatusJSON) []table.Row {
	rows := make([]table.Row, 0, len(st.Tanks))
	for _, t := range st.Tanks {
		seen := "never"
		if t.LastSeenSecsAgo != nil {
			seen = since(*t.LastSeenSecsAgo)
		}
		battery := "--"
		if t.BatteryMV > 0 {
			battery = fmt.Sprintf("%.2fV", float64(t.BatteryMV)/1000)
		}
		rows = append(rows, table.Row{fmt.Sprintf("%d", t.TankID+1), distance(t), tankState(t), seen, battery})
	}
	return rows
}

func tankState(t admin.TankJSON) string {
	switch {
	case t.Offline || t.DistanceCM == nil:
		return "OFFLINE"
	case t.AtRisk:
		return "AT RISK"
	default:
		return "OK"
	}
}

func styleState(s string) string {
	switch s {
	case "AT RISK":
		return riskStyle.Render(s)
	case "OK":
		return okStyle.Render(s)
	default:
		return offlineStyle.Render(s)
	}
}

func distance(t admin.TankJSON) string {
	if t.DistanceCM == nil {
		return "--"
	}
	return fmt.Sprintf("%.1f cm", *t.DistanceCM)
}

func since(sec int64) string {
	if sec < 60 {
		return fmt.Sprintf("%ds ago", sec)
	}
	m := sec / 60
	if m < 60 {
		return fmt.Sprintf("%dm ago", m)
	}
	return fmt.Sprintf("%dh %dm ago", m/60, m%60)
}
