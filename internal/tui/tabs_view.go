package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabtimer/internal/types"
)

var (
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	protectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	timerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	urgentStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// renderTabs draws one line per tab, scrolled so the cursor stays visible.
func renderTabs(tabs []*types.TrackedTab, cursor int, now time.Time, height int) string {
	if len(tabs) == 0 {
		return dimStyle.Render("No tracked tabs yet.")
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(start+height, len(tabs))

	var b strings.Builder
	for i := start; i < end; i++ {
		prefix := "  "
		if i == cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + tabLine(tabs[i], now))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func tabLine(t *types.TrackedTab, now time.Time) string {
	title := t.Title
	if title == "" {
		title = t.URL
	}
	if r := []rune(title); len(r) > 48 {
		title = string(r[:47]) + "…"
	}

	var flags []string
	if t.Active {
		flags = append(flags, activeStyle.Render("active"))
	}
	if t.Protected {
		flags = append(flags, protectedStyle.Render("protected"))
	}
	if t.Pinned {
		flags = append(flags, dimStyle.Render("pinned"))
	}
	if t.IsEmpty {
		flags = append(flags, dimStyle.Render("empty"))
	}
	if t.TimerActive && t.AutoCloseTime != nil {
		flags = append(flags, timerLabel(t.AutoCloseTime.Sub(now)))
	}

	spent := t.TotalTimeSpent
	if t.ActiveStartTime != nil {
		spent += now.Sub(*t.ActiveStartTime)
	}
	return fmt.Sprintf("%-5d %-50s %-24s %8s  %s",
		t.ID, title, t.Domain, formatDuration(spent), strings.Join(flags, " "))
}

func timerLabel(remaining time.Duration) string {
	if remaining <= 0 {
		return urgentStyle.Render("closing")
	}
	label := "⏱ " + formatDuration(remaining)
	if remaining <= time.Minute {
		return urgentStyle.Render(label)
	}
	return timerStyle.Render(label)
}

// formatDuration renders d as 1h02m, 3m05s or 12s.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
