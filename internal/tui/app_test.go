package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lotas/tabtimer/internal/router"
	"github.com/lotas/tabtimer/internal/types"
)

type fakeSource struct {
	tabs []*types.TrackedTab
	reqs []router.Request
}

func (f *fakeSource) Do(_ context.Context, req router.Request) (any, error) {
	f.reqs = append(f.reqs, req)
	switch req.(type) {
	case router.GetTabData:
		return f.tabs, nil
	case router.GetRealTimeStats:
		return types.RealTimeStats{TotalTabs: len(f.tabs)}, nil
	}
	return true, nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRefreshAndActions(t *testing.T) {
	src := &fakeSource{tabs: []*types.TrackedTab{
		{ID: 1, Title: "One", Domain: "one.example", Active: true},
		{ID: 2, Title: "Two", Domain: "two.example"},
	}}
	m := NewModel(src, nil, 19191)

	next, _ := m.Update(m.refresh()())
	m = next.(Model)
	if len(m.tabs) != 2 || m.stats.TotalTabs != 2 {
		t.Fatalf("snapshot not applied: %d tabs, stats %+v", len(m.tabs), m.stats)
	}

	next, _ = m.Update(key("j"))
	m = next.(Model)
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}

	_, cmd := m.Update(key("t"))
	if cmd == nil {
		t.Fatal("expected a command for t")
	}
	done := cmd().(actionDoneMsg)
	if done.err != nil {
		t.Fatal(done.err)
	}
	last := src.reqs[len(src.reqs)-1]
	if last != (router.SetTimer{TabID: 2, Duration: DefaultTimer}) {
		t.Errorf("last request = %#v", last)
	}
}

func TestViewShowsTimer(t *testing.T) {
	now := time.Date(2025, 5, 12, 10, 0, 0, 0, time.UTC)
	at := now.Add(90 * time.Second)
	line := tabLine(&types.TrackedTab{ID: 3, Title: "Docs", TimerActive: true, AutoCloseTime: &at}, now)
	if !strings.Contains(line, "1m30s") {
		t.Errorf("line %q should show remaining time", line)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{12 * time.Second, "12s"},
		{3*time.Minute + 5*time.Second, "3m05s"},
		{time.Hour + 2*time.Minute, "1h02m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
