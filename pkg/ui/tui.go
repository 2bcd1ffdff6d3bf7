package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/deltaneutral/perp-arb-engine/pkg/ui/components"
)

// Program is the running Bubble Tea program, set by main once Run has
// started it, so background goroutines can Send it messages.
var Program *tea.Program

// Send delivers msg to the running program. Safe to call before Program is
// set: it is then silently dropped, mirroring CLI mode where no TUI runs.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}

const maxLogLines = 8

// Model is the dashboard's single Bubble Tea model: venue connection
// health, execution engine state, the last observed spread, and the open
// position if any. There is no historical view and no paging (Non-goal):
// every field holds only the latest sample, except the activity feed, which
// keeps the last maxLogLines lines.
type Model struct {
	botID  string
	symbol string

	status *components.StatusComponent

	engineState string
	lastState   string

	haveSpread bool
	direction  string
	spreadPct  float64
	askA, bidA float64
	askB, bidB float64
	spreadAt   time.Time

	position *PositionMsg

	logs []string
	err  error

	keys     KeyMap
	quitting bool
}

// New constructs the dashboard model for one configured bot.
func New(botID, symbol string) Model {
	status := components.NewStatusComponent()
	status.Update(components.ConnectionStatus{Name: "Venue A"})
	status.Update(components.ConnectionStatus{Name: "Venue B"})
	return Model{
		botID:       botID,
		symbol:      symbol,
		status:      status,
		engineState: "idle",
		keys:        DefaultKeyMap(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return TickMsg{} })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key := msg.String(); key == "q" || key == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       venueDisplayName(msg.Name),
			Connected:  msg.Connected,
			Latency:    msg.Latency,
			LastUpdate: time.Now(),
		})
		return m, nil

	case StateMsg:
		m.lastState = msg.From
		m.engineState = msg.To
		return m, nil

	case SpreadMsg:
		m.haveSpread = true
		m.direction = msg.Direction
		m.spreadPct = msg.SpreadPct
		m.askA, m.bidA = msg.AskA, msg.BidA
		m.askB, m.bidB = msg.AskB, msg.BidB
		m.spreadAt = msg.Timestamp
		return m, nil

	case PositionMsg:
		if msg.Open {
			p := msg
			m.position = &p
		} else {
			m.position = nil
		}
		return m, nil

	case LogMsg:
		m.pushLog(fmt.Sprintf("[%s] %s", strings.ToUpper(msg.Level), msg.Message))
		return m, nil

	case ErrorMsg:
		m.err = msg.Error
		m.pushLog(fmt.Sprintf("[ERROR] %v", msg.Error))
		return m, nil

	case TickMsg:
		return m, tick()
	}
	return m, nil
}

func (m *Model) pushLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func venueDisplayName(name string) string {
	switch name {
	case "A":
		return "Venue A"
	case "B":
		return "Venue B"
	default:
		return name
	}
}

func (m Model) View() string {
	if m.quitting {
		return "shutting down...\n"
	}

	var b strings.Builder

	title := fmt.Sprintf(" %s — %s ", m.botID, m.symbol)
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(HeaderStyle.Render("Connections"))
	b.WriteString("\n")
	b.WriteString(m.status.View())
	b.WriteString("\n")

	b.WriteString(HeaderStyle.Render("Engine"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  state: %s\n", m.stateStyle().Render(m.engineState)))
	if m.haveSpread {
		b.WriteString(fmt.Sprintf("  spread: %s %.4f%% (askA=%.2f bidA=%.2f askB=%.2f bidB=%.2f)\n",
			m.direction, m.spreadPct, m.askA, m.bidA, m.askB, m.bidB))
	} else {
		b.WriteString(MutedValue.Render("  spread: no data yet\n"))
	}
	b.WriteString("\n")

	b.WriteString(HeaderStyle.Render("Position"))
	b.WriteString("\n")
	if m.position != nil {
		p := m.position
		b.WriteString(fmt.Sprintf("  %s qty=%.4f long=%s@%.2f short=%s@%.2f opened=%s\n",
			p.Direction, p.FilledQuantity, p.LongVenue, p.LongEntryPrice, p.ShortVenue, p.ShortEntryPrice,
			p.OpenedAt.Format("15:04:05")))
	} else {
		b.WriteString(MutedValue.Render("  flat\n"))
	}
	b.WriteString("\n")

	b.WriteString(HeaderStyle.Render("Activity"))
	b.WriteString("\n")
	if len(m.logs) == 0 {
		b.WriteString(MutedValue.Render("  (no events yet)\n"))
	}
	for _, line := range m.logs {
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q: quit"))

	return BoxStyle.Render(b.String())
}

// stateStyle colors the engine state line: green while a position is held,
// red in the Halted sink, muted when idle, amber for every transient state.
func (m Model) stateStyle() lipgloss.Style {
	switch m.engineState {
	case "halted":
		return StatusDisconnected
	case "holding":
		return StatusConnected
	case "idle":
		return MutedValue
	default:
		return StatusReconnecting
	}
}
