// Package router drives the tab registry, timer engine and activity
// accountant from host events and answers queries from the extension popup.
//
// A single mutex guards the registry, the accountant, the timer mirrors on
// each TrackedTab and the warned set. Host calls, recorder writes and
// notifier output always happen with that mutex released, so state read
// before a host call is re-validated afterwards.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/lotas/tabtimer/internal/activity"
	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/clock"
	"github.com/lotas/tabtimer/internal/notify"
	"github.com/lotas/tabtimer/internal/registry"
	"github.com/lotas/tabtimer/internal/timer"
	"github.com/lotas/tabtimer/internal/types"
)

const (
	DefaultSweepInterval   = 5 * time.Minute
	DefaultWarningWindow   = 60 * time.Second
	DefaultWarningInterval = 5 * time.Second

	// closingSoonWindow is how far ahead a deadline counts as closing soon.
	closingSoonWindow = 5 * time.Minute
	// minTrackedActive is the shortest active time worth recording per domain.
	minTrackedActive = 5 * time.Second
)

// WarningOptions controls last-minute warnings.
type WarningOptions struct {
	Enabled       bool
	Window        time.Duration
	CheckInterval time.Duration
}

// Options wires collaborators into a Router. Nil collaborators are replaced
// by no-op implementations; zero durations fall back to the defaults.
type Options struct {
	Clock         clock.Clock
	Features      Features
	Recorder      Recorder
	Notifier      Notifier
	Gate          *notify.Gate
	EmptyTabs     types.EmptyTabSettings
	SweepInterval time.Duration
	Warnings      WarningOptions
}

// Router owns the in-memory tab state.
type Router struct {
	host     Host
	clock    clock.Clock
	features Features
	recorder Recorder
	notifier Notifier
	gate     *notify.Gate
	timer    *timer.Engine

	mu              sync.Mutex
	ctx             context.Context
	reg             *registry.Registry
	acc             *activity.Accountant
	empty           types.EmptyTabSettings
	warnings        WarningOptions
	sweepInterval   time.Duration
	warned          map[int]bool
	lastClosingSoon int
	sweeps          []*sweep
	stopped         bool
}

// New builds a router bound to host.
func New(host Host, opts Options) *Router {
	r := &Router{
		host:            host,
		clock:           opts.Clock,
		features:        opts.Features,
		recorder:        opts.Recorder,
		notifier:        opts.Notifier,
		gate:            opts.Gate,
		reg:             registry.New(),
		empty:           opts.EmptyTabs,
		warnings:        opts.Warnings,
		sweepInterval:   opts.SweepInterval,
		warned:          make(map[int]bool),
		lastClosingSoon: -1,
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.features == nil {
		r.features = disabledFeatures{}
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	if r.notifier == nil {
		r.notifier = nopNotifier{}
	}
	if r.empty.CleanupInterval <= 0 || r.empty.CheckInterval <= 0 {
		def := types.DefaultEmptyTabSettings()
		if r.empty.CleanupInterval <= 0 {
			r.empty.CleanupInterval = def.CleanupInterval
		}
		if r.empty.CheckInterval <= 0 {
			r.empty.CheckInterval = def.CheckInterval
		}
	}
	if r.sweepInterval <= 0 {
		r.sweepInterval = DefaultSweepInterval
	}
	if r.warnings.Window <= 0 {
		r.warnings.Window = DefaultWarningWindow
	}
	if r.warnings.CheckInterval <= 0 {
		r.warnings.CheckInterval = DefaultWarningInterval
	}
	r.acc = activity.New(r.reg)
	r.timer = timer.New(r.clock, r.onFire)
	return r
}

func (r *Router) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// HandleCreated tracks a newly opened tab.
func (r *Router) HandleCreated(ctx context.Context, ht types.HostTab) {
	if !classify.IsTrackable(ht.URL) {
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	_, known := r.reg.Get(ht.ID)
	r.upsertLocked(ht, now)
	r.mu.Unlock()

	if !known {
		r.recordVisit(ctx, ht.URL, now)
	}
	r.publishStats(ctx)
}

// HandleUpdated merges a URL or load-state change. Unknown trackable tabs
// are tracked on the spot.
func (r *Router) HandleUpdated(ctx context.Context, ht types.HostTab) {
	now := r.clock.Now()

	r.mu.Lock()
	_, known := r.reg.Get(ht.ID)
	if !known && !classify.IsTrackable(ht.URL) {
		r.mu.Unlock()
		return
	}
	ch := r.upsertLocked(ht, now)
	r.mu.Unlock()

	if ch.Created || ch.URLChanged {
		r.recordVisit(ctx, ht.URL, now)
	}
	if ch.Created {
		r.publishStats(ctx)
	}
}

// HandleRemoved forgets a tab closed by the user or by the router.
func (r *Router) HandleRemoved(ctx context.Context, id int) {
	if r.removeTab(ctx, id) {
		r.publishStats(ctx)
	}
}

// HandleActivated moves focus accounting to id in windowID. When the
// activated tab is not tracked and windowID is unknown (not positive), the
// host is asked which window the tab lives in.
func (r *Router) HandleActivated(ctx context.Context, id, windowID int) {
	if windowID <= 0 {
		r.mu.Lock()
		_, tracked := r.reg.Get(id)
		r.mu.Unlock()
		if !tracked {
			if ht, err := r.host.GetTab(ctx, id); err == nil {
				windowID = ht.WindowID
			} else {
				applog.Debug("router.activate", "tab", id, "err", err.Error())
			}
		}
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.activateLocked(id, windowID, now)
}

// HandleWindowFocusChanged pauses accounting when windowID is
// types.WindowNone and resumes it for that window's active tab otherwise.
func (r *Router) HandleWindowFocusChanged(ctx context.Context, windowID int) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if windowID == types.WindowNone {
		r.acc.OnWindowBlurredAll(now)
		return
	}
	r.acc.OnWindowFocused(windowID, now)
}

// Sync re-enumerates the host and reconciles the registry with it.
func (r *Router) Sync(ctx context.Context) error {
	tabs, err := r.host.ListTabs(ctx)
	if err != nil {
		return err
	}
	r.Reconcile(ctx, tabs)
	return nil
}

// Reconcile makes the registry mirror tabs: unseen trackable tabs are
// tracked, known ones are merged and tracked tabs missing from the list are
// dropped.
func (r *Router) Reconcile(ctx context.Context, tabs []types.HostTab) {
	now := r.clock.Now()
	seen := make(map[int]bool, len(tabs))

	r.mu.Lock()
	for _, ht := range tabs {
		_, known := r.reg.Get(ht.ID)
		if !known && !classify.IsTrackable(ht.URL) {
			continue
		}
		seen[ht.ID] = true
		r.upsertLocked(ht, now)
	}
	var gone []int
	for _, t := range r.reg.All() {
		if !seen[t.ID] {
			gone = append(gone, t.ID)
		}
	}
	tracked := r.reg.Len()
	r.mu.Unlock()

	for _, id := range gone {
		r.removeTab(ctx, id)
	}
	applog.Info("router.sync", "host", len(tabs), "tracked", tracked, "dropped", len(gone))
	r.publishStats(ctx)
}

// upsertLocked applies a host tab to the registry and keeps the activity and
// empty-tab bookkeeping consistent with the detected transitions.
func (r *Router) upsertLocked(ht types.HostTab, now time.Time) registry.Change {
	ch := r.reg.Upsert(ht, now)
	t, _ := r.reg.Get(ht.ID)

	if ch.Created {
		if t.Active {
			// A creation reported active still has to close other intervals.
			r.acc.OnActivated(t.ID, now)
		}
		if t.IsEmpty {
			r.armEmptyLocked(t, now)
		}
		applog.Debug("router.track", "tab", t.ID, "domain", t.Domain, "empty", t.IsEmpty)
		return ch
	}

	switch {
	case ch.BecameEmpty:
		t.IsEmpty = true
		at := now
		t.EmptyTabCreatedAt = &at
		r.armEmptyLocked(t, now)
	case ch.BecameNonEmpty:
		t.IsEmpty = false
		t.EmptyTabCreatedAt = nil
		r.timer.Disarm(t.ID, timer.EmptyCleanup)
	}

	if ch.ActiveChanged {
		if ht.Active {
			r.activateLocked(t.ID, t.WindowID, now)
		} else {
			r.acc.OnDeactivated(t.ID, now)
		}
	}
	return ch
}

func (r *Router) activateLocked(id, windowID int, now time.Time) {
	t, ok := r.reg.Get(id)
	if !ok {
		// An internal page took focus; the tab the user left is no longer
		// the active one in its window.
		r.acc.OnUntrackedActivated(windowID, now)
		return
	}
	wasActive := t.Active
	r.acc.OnActivated(id, now)
	if wasActive || !t.IsEmpty || !r.empty.Enabled {
		return
	}
	// Looking at an empty tab restarts its cleanup countdown.
	at := now
	t.EmptyTabCreatedAt = &at
	r.armEmptyLocked(t, now)
}

func (r *Router) armEmptyLocked(t *types.TrackedTab, now time.Time) {
	if !r.empty.Enabled {
		return
	}
	r.timer.Arm(t.ID, timer.EmptyCleanup, r.empty.CleanupInterval, timer.Options{AllowPolling: true})
}

// removeTab drops id from the registry, cancels its timers and records its
// domain usage. It reports whether the tab was tracked.
func (r *Router) removeTab(ctx context.Context, id int) bool {
	now := r.clock.Now()

	r.mu.Lock()
	t, ok := r.reg.Get(id)
	if !ok {
		r.mu.Unlock()
		return false
	}
	spent := r.acc.CommitClose(id, now)
	usage := types.DomainUsage{
		Domain:      t.Domain,
		TotalTime:   spent,
		TotalTabs:   1,
		Activations: max(t.ActivationCount, 1),
		LastVisited: now,
	}
	r.timer.DisarmAll(id)
	delete(r.warned, id)
	r.reg.Remove(id)
	r.mu.Unlock()

	applog.Debug("router.untrack", "tab", id, "spent", spent)
	if spent >= minTrackedActive && usage.Domain != classify.UnknownDomain {
		if err := r.recorder.RecordDomainUsage(ctx, usage); err != nil {
			applog.Error("router.usage", err, "domain", usage.Domain)
		}
	}
	return true
}

func (r *Router) recordVisit(ctx context.Context, rawURL string, now time.Time) {
	if !classify.IsWebURL(rawURL) {
		return
	}
	if err := r.recorder.RecordTabOpened(ctx, classify.Domain(rawURL), now); err != nil {
		applog.Error("router.visit", err)
	}
}

// Tab returns a copy of the tracked state for id.
func (r *Router) Tab(id int) (*types.TrackedTab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.reg.Get(id)
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}
