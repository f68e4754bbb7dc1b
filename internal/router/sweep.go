package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/clock"
	"github.com/lotas/tabtimer/internal/timer"
	"github.com/lotas/tabtimer/internal/types"
)

// sweep is a periodic job re-scheduled after each run. gen guards against
// a run that was already in flight when the sweep was rescheduled.
type sweep struct {
	name     string
	interval func() time.Duration // called with r.mu held
	run      func(ctx context.Context)
	gen      int
	t        clock.Timer
}

// Start begins the periodic sweeps. ctx is used for every host call made
// from timer callbacks and sweeps; cancelling it does not stop the sweeps,
// Stop does.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.stopped = false
	r.sweeps = []*sweep{
		{name: "inactive", interval: func() time.Duration { return r.sweepInterval }, run: r.sweepInactive},
		{name: "empty", interval: func() time.Duration { return r.empty.CheckInterval }, run: r.sweepEmpty},
		{name: "warnings", interval: func() time.Duration { return r.warnings.CheckInterval }, run: r.sweepWarnings},
	}
	for _, s := range r.sweeps {
		r.scheduleLocked(s)
	}
	r.mu.Unlock()
	applog.Info("router.start", "sweeps", len(r.sweeps))
}

// Stop cancels the sweeps. Armed tab timers are left alone.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for _, s := range r.sweeps {
		if s.t != nil {
			s.t.Stop()
		}
	}
}

func (r *Router) scheduleLocked(s *sweep) {
	if r.stopped {
		return
	}
	if s.t != nil {
		s.t.Stop()
	}
	s.gen++
	gen := s.gen
	s.t = r.clock.AfterFunc(s.interval(), func() {
		s.run(r.context())
		r.mu.Lock()
		if s.gen == gen {
			r.scheduleLocked(s)
		}
		r.mu.Unlock()
	})
}

func (r *Router) rescheduleLocked(name string) {
	for _, s := range r.sweeps {
		if s.name == name {
			r.scheduleLocked(s)
		}
	}
}

// sweepInactive closes tabs left unfocused for longer than the configured
// threshold. Each tab is closed independently; one failure does not stop
// the rest.
func (r *Router) sweepInactive(ctx context.Context) {
	if !r.features.AutoCloseEnabled() {
		return
	}
	threshold := r.features.InactivityThreshold()
	if threshold <= 0 {
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	var stale []int
	for _, t := range r.reg.All() {
		if t.Active || t.Pinned || t.Protected {
			continue
		}
		if now.Sub(t.LastActive()) > threshold {
			stale = append(stale, t.ID)
		}
	}
	r.mu.Unlock()

	closed := 0
	for _, id := range stale {
		err := r.closeTab(ctx, id, closeInactive)
		if err == nil {
			closed++
			continue
		}
		if errors.Is(err, ErrProtected) {
			continue
		}
		r.logCloseErr(id, closeInactive, err)
	}
	if len(stale) > 0 {
		applog.Info("router.sweep", "kind", "inactive", "candidates", len(stale), "closed", closed)
	}
}

// sweepEmpty looks for tabs that became empty without an update event
// reaching the router and starts their cleanup countdown.
func (r *Router) sweepEmpty(ctx context.Context) {
	r.mu.Lock()
	enabled := r.empty.Enabled
	r.mu.Unlock()
	if !enabled {
		return
	}

	tabs, err := r.host.ListTabs(ctx)
	if err != nil {
		applog.Error("router.sweep", err, "kind", "empty")
		return
	}

	now := r.clock.Now()
	found := 0
	r.mu.Lock()
	for _, ht := range tabs {
		if !classify.IsTrackable(ht.URL) || !classify.IsEmpty(ht.URL) {
			continue
		}
		t, ok := r.reg.Get(ht.ID)
		if ok && t.IsEmpty {
			continue
		}
		found++
		if !ok {
			r.upsertLocked(ht, now)
			continue
		}
		t.IsEmpty = true
		at := now
		t.EmptyTabCreatedAt = &at
		r.armEmptyLocked(t, now)
	}
	r.mu.Unlock()

	if found > 0 {
		applog.Info("router.sweep", "kind", "empty", "found", found)
	}
}

// sweepWarnings sends last-minute warnings for armed timers and publishes
// the closing-soon count when it changes.
func (r *Router) sweepWarnings(ctx context.Context) {
	now := r.clock.Now()
	var pending []types.Notification

	r.mu.Lock()
	closingSoon := 0
	for _, t := range r.reg.All() {
		deadline, ok := r.timer.Deadline(t.ID, timer.AutoClose)
		if !ok {
			continue
		}
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			delete(r.warned, t.ID)
			continue
		}
		if remaining <= closingSoonWindow {
			closingSoon++
		}
		if !r.warnings.Enabled || remaining > r.warnings.Window || r.warned[t.ID] || t.Protected {
			continue
		}
		if r.gate == nil || !r.gate.ShouldNotify(types.CategoryTimerWarning) {
			continue
		}
		r.gate.Record(types.CategoryTimerWarning)
		r.warned[t.ID] = true
		pending = append(pending, warningFor(t, remaining))
	}
	changed := closingSoon != r.lastClosingSoon
	r.lastClosingSoon = closingSoon
	r.mu.Unlock()

	for _, n := range pending {
		if err := r.notifier.Notify(ctx, n); err != nil {
			applog.Error("router.notify", err, "tab", n.TabID)
		}
	}
	if changed {
		if err := r.notifier.PublishClosingSoon(ctx, closingSoon); err != nil {
			applog.Error("router.closing_soon", err)
		}
	}
}

func warningFor(t *types.TrackedTab, remaining time.Duration) types.Notification {
	secs := int((remaining + time.Second - 1) / time.Second)
	return types.Notification{
		Category: types.CategoryTimerWarning,
		TabID:    t.ID,
		Title:    "Tab closing soon",
		Message:  fmt.Sprintf("%s (%s) closes in %ds", truncate(t.Title, 40), t.Domain, secs),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
