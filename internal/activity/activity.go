// Package activity accounts for the time each tab spends focused.
//
// At most one tab has an open interval (non-nil ActiveStartTime) at any
// instant: activating a tab closes every other open interval first.
package activity

import (
	"time"

	"github.com/lotas/tabtimer/internal/registry"
	"github.com/lotas/tabtimer/internal/types"
)

// Accountant mutates activity fields of registry entries. Like the registry
// it relies on the caller for serialization.
type Accountant struct {
	reg *registry.Registry
}

// New returns an accountant over reg.
func New(reg *registry.Registry) *Accountant {
	return &Accountant{reg: reg}
}

// OnActivated marks id as the focused tab. Every other tab with an open
// interval is deactivated before id's interval opens; tabs in the same
// window also lose their active flag. Re-activating the tab that is already
// focused keeps its running interval.
func (a *Accountant) OnActivated(id int, now time.Time) {
	t, ok := a.reg.Get(id)
	for _, other := range a.reg.All() {
		if other.ID == id {
			continue
		}
		closeInterval(other, now)
		if ok && other.WindowID == t.WindowID {
			other.Active = false
		}
	}
	if !ok {
		return
	}
	if !t.Active {
		t.ActivationCount++
		t.LastActivated = now
	}
	t.Active = true
	if t.ActiveStartTime == nil {
		start := now
		t.ActiveStartTime = &start
	}
}

// OnUntrackedActivated handles focus moving to a tab the registry does not
// track, such as a browser settings page in windowID. Every open interval
// closes and tracked tabs in that window lose their active flag. A
// non-positive windowID only closes the intervals.
func (a *Accountant) OnUntrackedActivated(windowID int, now time.Time) {
	for _, t := range a.reg.All() {
		closeInterval(t, now)
		if windowID > 0 && t.WindowID == windowID {
			t.Active = false
		}
	}
}

// OnDeactivated closes id's open interval and clears its active flag.
func (a *Accountant) OnDeactivated(id int, now time.Time) {
	t, ok := a.reg.Get(id)
	if !ok {
		return
	}
	closeInterval(t, now)
	t.Active = false
}

// OnWindowBlurredAll closes every open interval when the browser loses
// focus. Active flags are kept so focus can resume on the same tab.
func (a *Accountant) OnWindowBlurredAll(now time.Time) {
	for _, t := range a.reg.All() {
		closeInterval(t, now)
	}
}

// OnWindowFocused resumes accounting for the tab already marked active in
// windowID. Its interval restarts at now.
func (a *Accountant) OnWindowFocused(windowID int, now time.Time) {
	for _, t := range a.reg.All() {
		if t.WindowID != windowID {
			closeInterval(t, now)
		}
	}
	t, ok := a.reg.ActiveInWindow(windowID)
	if !ok {
		return
	}
	start := now
	t.ActiveStartTime = &start
}

// Flush returns id's total active time including any open interval. It does
// not modify state.
func (a *Accountant) Flush(id int, now time.Time) time.Duration {
	t, ok := a.reg.Get(id)
	if !ok {
		return 0
	}
	return Total(t, now)
}

// CommitClose folds the open interval into the total, zeroes the record and
// returns the final duration. Called right before the entry is removed.
func (a *Accountant) CommitClose(id int, now time.Time) time.Duration {
	t, ok := a.reg.Get(id)
	if !ok {
		return 0
	}
	total := Total(t, now)
	t.TotalTimeSpent = 0
	t.ActiveStartTime = nil
	t.Active = false
	return total
}

// Total is the accumulated time of t plus its open interval.
func Total(t *types.TrackedTab, now time.Time) time.Duration {
	total := t.TotalTimeSpent
	if t.ActiveStartTime != nil && now.After(*t.ActiveStartTime) {
		total += now.Sub(*t.ActiveStartTime)
	}
	return total
}

func closeInterval(t *types.TrackedTab, now time.Time) {
	if t.ActiveStartTime == nil {
		return
	}
	if now.After(*t.ActiveStartTime) {
		t.TotalTimeSpent += now.Sub(*t.ActiveStartTime)
	}
	t.ActiveStartTime = nil
}
