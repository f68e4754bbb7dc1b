package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/timer"
	"github.com/lotas/tabtimer/internal/types"
)

// memoryPerTabMB is the estimated memory one closed tab gives back.
const memoryPerTabMB = 75

// Request is a popup query. The set of implementations is closed: each
// variant below handles itself.
type Request interface {
	handle(ctx context.Context, r *Router) (any, error)
}

// Do executes req.
func (r *Router) Do(ctx context.Context, req Request) (any, error) {
	return req.handle(ctx, r)
}

type (
	// GetTabData lists every tracked tab, the active ones first.
	GetTabData struct{}
	// GetStats counts active, scheduled and protected tabs.
	GetStats struct{}
	// GetRealTimeStats returns the aggregate view including persisted counters.
	GetRealTimeStats struct{}
	// SetTimer arms an auto-close timer. Re-arming replaces the previous one.
	SetTimer struct {
		TabID        int
		Duration     time.Duration
		AllowPolling bool
	}
	// ClearTimer disarms a tab's auto-close timer.
	ClearTimer struct{ TabID int }
	// ProtectTab toggles protection and returns the new state.
	ProtectTab struct{ TabID int }
	// CloseTab closes a tab on the user's behalf.
	CloseTab struct{ TabID int }
	// SwitchToTab focuses a tab and its window.
	SwitchToTab struct{ TabID int }
	GetEmptyTabSettings struct{}
	// SetEmptyTabSettings updates the fields that are set.
	SetEmptyTabSettings struct {
		Enabled         *bool
		CleanupInterval time.Duration
		CheckInterval   time.Duration
	}
	// GetTabDurations returns the active time of every tracked tab.
	GetTabDurations struct{}
	GetEmptyTabCount struct{}
	// GetAnalytics returns the domains with the most active time.
	GetAnalytics struct{ Limit int }
	Ping struct{}
)

// TimerInfo is the reply to SetTimer.
type TimerInfo struct {
	TabID         int       `json:"tabId"`
	AutoCloseTime time.Time `json:"autoCloseTime"`
	Polling       bool      `json:"polling"`
}

// Pong is the reply to Ping.
type Pong struct {
	Message string    `json:"message"`
	Time    time.Time `json:"timestamp"`
}

func (GetTabData) handle(_ context.Context, r *Router) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.reg.All()
	out := make([]*types.TrackedTab, 0, len(all))
	for _, t := range all {
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Active && !out[j].Active
	})
	return out, nil
}

func (GetStats) handle(_ context.Context, r *Router) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statsLocked(), nil
}

func (r *Router) statsLocked() types.Stats {
	var s types.Stats
	for _, t := range r.reg.All() {
		if t.Active {
			s.Active++
		}
		if t.TimerActive && t.AutoCloseTime != nil {
			s.Scheduled++
		}
		if t.Protected {
			s.Protected++
		}
	}
	return s
}

func (GetRealTimeStats) handle(ctx context.Context, r *Router) (any, error) {
	return r.realTimeStats(ctx), nil
}

// realTimeStats never fails: counter read errors are logged and reported
// as zero.
func (r *Router) realTimeStats(ctx context.Context) types.RealTimeStats {
	now := r.clock.Now()

	r.mu.Lock()
	s := r.statsLocked()
	out := types.RealTimeStats{
		TotalTabs:     r.reg.Len(),
		ActiveTabs:    s.Active,
		ScheduledTabs: s.Scheduled,
		ProtectedTabs: s.Protected,
		Timestamp:     now,
	}
	for _, t := range r.reg.All() {
		if t.IsEmpty {
			out.EmptyTabs++
		}
	}
	r.mu.Unlock()

	today, err := r.recorder.AutoClosedOn(ctx, now)
	if err != nil {
		applog.Error("router.stats", err, "counter", "today")
	}
	total, err := r.recorder.TotalAutoClosed(ctx)
	if err != nil {
		applog.Error("router.stats", err, "counter", "total")
	}
	out.AutoClosed = today
	out.MemorySavedMB = total * memoryPerTabMB
	return out
}

func (r *Router) publishStats(ctx context.Context) {
	if err := r.notifier.PublishStats(ctx, r.realTimeStats(ctx)); err != nil {
		applog.Error("router.publish", err)
	}
}

func (req SetTimer) handle(ctx context.Context, r *Router) (any, error) {
	if req.Duration < 0 {
		return nil, fmt.Errorf("set timer: negative duration %s: %w", req.Duration, ErrInvalidRequest)
	}
	if err := r.ensureTracked(ctx, req.TabID); err != nil {
		return nil, fmt.Errorf("set timer: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.reg.Get(req.TabID)
	if !ok {
		return nil, fmt.Errorf("set timer: tab %d: %w", req.TabID, ErrTabNotFound)
	}
	deadline := r.timer.Arm(t.ID, timer.AutoClose, req.Duration, timer.Options{AllowPolling: req.AllowPolling})
	t.TimerActive = true
	t.AutoCloseTime = &deadline
	delete(r.warned, t.ID)
	return TimerInfo{
		TabID:         t.ID,
		AutoCloseTime: deadline,
		Polling:       req.AllowPolling || req.Duration > timer.MaxDirectDelay,
	}, nil
}

// handle reports whether a timer was cancelled. An unknown id is looked up
// on the host like SetTimer does; a tab that exists but was never tracked
// has no timer and yields false.
func (req ClearTimer) handle(ctx context.Context, r *Router) (any, error) {
	if err := r.ensureTracked(ctx, req.TabID); err != nil {
		return nil, fmt.Errorf("clear timer: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cleared := r.timer.Disarm(req.TabID, timer.AutoClose)
	if t, ok := r.reg.Get(req.TabID); ok {
		t.TimerActive = false
		t.AutoCloseTime = nil
	}
	delete(r.warned, req.TabID)
	return cleared, nil
}

func (req ProtectTab) handle(ctx context.Context, r *Router) (any, error) {
	if err := r.ensureTracked(ctx, req.TabID); err != nil {
		return nil, fmt.Errorf("protect tab: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.reg.Get(req.TabID)
	if !ok {
		return nil, fmt.Errorf("protect tab %d: %w", req.TabID, ErrTabNotFound)
	}
	t.Protected = !t.Protected
	applog.Info("router.protect", "tab", t.ID, "protected", t.Protected)
	return t.Protected, nil
}

func (req CloseTab) handle(ctx context.Context, r *Router) (any, error) {
	if err := r.closeTab(ctx, req.TabID, closeManual); err != nil {
		return nil, err
	}
	return true, nil
}

func (req SwitchToTab) handle(ctx context.Context, r *Router) (any, error) {
	ht, err := r.host.GetTab(ctx, req.TabID)
	if err != nil {
		return nil, fmt.Errorf("switch to tab %d: %w", req.TabID, err)
	}
	if err := r.host.ActivateTab(ctx, ht.ID); err != nil {
		return nil, fmt.Errorf("switch to tab %d: %w", ht.ID, err)
	}
	if err := r.host.FocusWindow(ctx, ht.WindowID); err != nil {
		return nil, fmt.Errorf("focus window %d: %w", ht.WindowID, err)
	}
	return true, nil
}

func (GetEmptyTabSettings) handle(_ context.Context, r *Router) (any, error) {
	return r.EmptyTabSettings(), nil
}

// EmptyTabSettings returns the current empty-tab cleanup settings.
func (r *Router) EmptyTabSettings() types.EmptyTabSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.empty
}

func (req SetEmptyTabSettings) handle(ctx context.Context, r *Router) (any, error) {
	if req.CleanupInterval < 0 || req.CheckInterval < 0 {
		return nil, fmt.Errorf("empty tab settings: %w", ErrInvalidRequest)
	}
	now := r.clock.Now()

	r.mu.Lock()
	prev := r.empty
	next := prev
	if req.Enabled != nil {
		next.Enabled = *req.Enabled
	}
	if req.CleanupInterval > 0 {
		next.CleanupInterval = req.CleanupInterval
	}
	if req.CheckInterval > 0 {
		next.CheckInterval = req.CheckInterval
	}
	r.empty = next

	switch {
	case prev.Enabled && !next.Enabled:
		for _, t := range r.reg.All() {
			r.timer.Disarm(t.ID, timer.EmptyCleanup)
		}
	case !prev.Enabled && next.Enabled:
		for _, t := range r.reg.All() {
			if t.IsEmpty && !r.timer.Armed(t.ID, timer.EmptyCleanup) {
				r.armEmptyLocked(t, now)
			}
		}
	}
	if next.CheckInterval != prev.CheckInterval {
		r.rescheduleLocked("empty")
	}
	r.mu.Unlock()

	if err := r.recorder.SaveEmptyTabSettings(ctx, next); err != nil {
		applog.Error("router.settings", err)
	}
	return next, nil
}

func (GetTabDurations) handle(_ context.Context, r *Router) (any, error) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]time.Duration, r.reg.Len())
	for _, t := range r.reg.All() {
		out[t.ID] = r.acc.Flush(t.ID, now)
	}
	return out, nil
}

func (GetEmptyTabCount) handle(_ context.Context, r *Router) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.reg.All() {
		if t.IsEmpty {
			n++
		}
	}
	return n, nil
}

func (req GetAnalytics) handle(ctx context.Context, r *Router) (any, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	return r.recorder.TopDomains(ctx, limit)
}

func (Ping) handle(_ context.Context, r *Router) (any, error) {
	return Pong{Message: "pong", Time: r.clock.Now()}, nil
}

// ensureTracked tracks id on demand when a query names a tab the router has
// not seen yet. It asks the host once.
func (r *Router) ensureTracked(ctx context.Context, id int) error {
	r.mu.Lock()
	_, ok := r.reg.Get(id)
	r.mu.Unlock()
	if ok {
		return nil
	}

	ht, err := r.host.GetTab(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTabNotFound) {
			return fmt.Errorf("tab %d: %w", id, err)
		}
		return fmt.Errorf("look up tab %d: %w", id, err)
	}
	if !classify.IsTrackable(ht.URL) {
		return fmt.Errorf("tab %d: %w", id, ErrNotTrackable)
	}
	r.HandleCreated(ctx, ht)
	return nil
}
