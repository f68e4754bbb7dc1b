// Package tui is the live dashboard shown by "tabtimer serve --tui".
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabtimer/internal/router"
	"github.com/lotas/tabtimer/internal/types"
)

// DefaultTimer is the duration armed by the "t" key.
const DefaultTimer = 30 * time.Minute

const refreshEvery = time.Second

// Source is what the dashboard reads and drives. *router.Router satisfies it.
type Source interface {
	Do(ctx context.Context, req router.Request) (any, error)
}

// --- Messages ---

type tickMsg time.Time

type snapshotMsg struct {
	tabs  []*types.TrackedTab
	stats types.RealTimeStats
	err   error
}

type actionDoneMsg struct {
	what string
	err  error
}

// --- Model ---

type Model struct {
	src       Source
	connected func() bool
	port      int

	tabs   []*types.TrackedTab
	stats  types.RealTimeStats
	cursor int
	status string
	err    error
	now    time.Time
	width  int
	height int
}

// NewModel builds a dashboard over src. connected reports whether the
// extension is attached; it may be nil.
func NewModel(src Source, connected func() bool, port int) Model {
	if connected == nil {
		connected = func() bool { return true }
	}
	return Model{src: src, connected: connected, port: port, now: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refresh() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx := context.Background()
		tabs, err := src.Do(ctx, router.GetTabData{})
		if err != nil {
			return snapshotMsg{err: err}
		}
		stats, err := src.Do(ctx, router.GetRealTimeStats{})
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{tabs: tabs.([]*types.TrackedTab), stats: stats.(types.RealTimeStats)}
	}
}

func (m Model) act(what string, req router.Request) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		_, err := src.Do(context.Background(), req)
		return actionDoneMsg{what: what, err: err}
	}
}

func (m Model) selected() *types.TrackedTab {
	if m.cursor < 0 || m.cursor >= len(m.tabs) {
		return nil
	}
	return m.tabs[m.cursor]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		return m, tea.Batch(m.refresh(), tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.tabs = msg.tabs
			m.stats = msg.stats
			if m.cursor >= len(m.tabs) {
				m.cursor = max(len(m.tabs)-1, 0)
			}
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
		} else {
			m.status = msg.what
		}
		return m, m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.tabs)-1 {
				m.cursor++
			}
			return m, nil
		case "r":
			return m, m.refresh()
		}

		tab := m.selected()
		if tab == nil {
			return m, nil
		}
		switch msg.String() {
		case "p":
			return m, m.act(fmt.Sprintf("protect toggled on tab %d", tab.ID), router.ProtectTab{TabID: tab.ID})
		case "t":
			return m, m.act(fmt.Sprintf("timer set on tab %d", tab.ID), router.SetTimer{TabID: tab.ID, Duration: DefaultTimer})
		case "c":
			return m, m.act(fmt.Sprintf("timer cleared on tab %d", tab.ID), router.ClearTimer{TabID: tab.ID})
		case "x":
			return m, m.act(fmt.Sprintf("closed tab %d", tab.ID), router.CloseTab{TabID: tab.ID})
		case "enter":
			return m, m.act(fmt.Sprintf("switched to tab %d", tab.ID), router.SwitchToTab{TabID: tab.ID})
		}
	}
	return m, nil
}

func (m Model) View() string {
	topBarStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	var conn string
	if m.connected() {
		conn = "Live ● connected"
	} else {
		conn = fmt.Sprintf("Live ○ waiting on :%d...", m.port)
	}
	s := m.stats
	statsStr := fmt.Sprintf("%d tabs · %d scheduled · %d protected · %d empty · %d auto-closed today · ~%d MB saved",
		s.TotalTabs, s.ScheduledTabs, s.ProtectedTabs, s.EmptyTabs, s.AutoClosed, s.MemorySavedMB)
	topBar := topBarStyle.Render(conn + "  " + statsStr)

	listHeight := m.height - 4
	if listHeight < 3 {
		listHeight = 3
	}
	listBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62"))
	if m.width > 2 {
		listBorder = listBorder.Width(m.width - 2)
	}
	list := listBorder.Render(renderTabs(m.tabs, m.cursor, m.now, listHeight))

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	bottom := "↑↓/jk navigate · enter focus · t timer 30m · c clear · p protect · x close · r refresh · q quit"
	if m.err != nil {
		bottom = errStyle.Render("error: "+m.err.Error()) + "  " + bottom
	} else if m.status != "" {
		bottom = m.status + "  ·  " + bottom
	}
	return lipgloss.JoinVertical(lipgloss.Left, topBar, list, bottomBarStyle.Render(bottom))
}
