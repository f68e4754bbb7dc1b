// Package registry holds the in-memory table of tracked tabs. It is the
// single source of truth for tab state and is never persisted; after a
// restart it is rebuilt from a full host enumeration.
//
// Registry is not safe for concurrent use. The router serializes access.
package registry

import (
	"sort"
	"time"

	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/types"
)

// Change describes the edge transitions detected by Upsert.
type Change struct {
	Created        bool
	ActiveChanged  bool
	BecameEmpty    bool
	BecameNonEmpty bool
	URLChanged     bool
	Reloaded       bool
}

// Registry maps tab ids to tracked metadata.
type Registry struct {
	tabs map[int]*types.TrackedTab
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tabs: make(map[int]*types.TrackedTab)}
}

// Upsert records a host-reported tab. An unseen id creates a new entry; a
// known id merges the host fields and reports what changed. Neither the
// active flag nor the empty flag is merged on update: activation belongs to
// the activity accountant and empty-tab state depends on cleanup settings,
// so the caller applies both from the returned Change.
func (r *Registry) Upsert(ht types.HostTab, now time.Time) Change {
	existing, ok := r.tabs[ht.ID]
	if !ok {
		r.tabs[ht.ID] = newTracked(ht, now)
		return Change{Created: true}
	}

	var c Change
	if ht.URL != existing.URL {
		c.URLChanged = true
		existing.URLChangeCount++
		existing.Domain = classify.Domain(ht.URL)
	}
	if ht.Status == types.StatusLoading && existing.Status == types.StatusComplete {
		c.Reloaded = true
		existing.ReloadCount++
	}
	c.ActiveChanged = ht.Active != existing.Active

	wasEmpty := existing.IsEmpty
	nowEmpty := classify.IsEmpty(ht.URL)
	c.BecameEmpty = !wasEmpty && nowEmpty
	c.BecameNonEmpty = wasEmpty && !nowEmpty

	existing.URL = ht.URL
	if ht.Title != "" {
		existing.Title = ht.Title
	}
	existing.FavIconURL = ht.FavIconURL
	existing.WindowID = ht.WindowID
	existing.Index = ht.Index
	existing.Pinned = ht.Pinned
	if ht.Status != "" {
		existing.Status = ht.Status
	}
	return c
}

func newTracked(ht types.HostTab, now time.Time) *types.TrackedTab {
	title := ht.Title
	if title == "" {
		title = "Untitled"
	}
	t := &types.TrackedTab{
		ID:         ht.ID,
		URL:        ht.URL,
		Title:      title,
		FavIconURL: ht.FavIconURL,
		WindowID:   ht.WindowID,
		Index:      ht.Index,
		Pinned:     ht.Pinned,
		Status:     ht.Status,
		Domain:     classify.Domain(ht.URL),
		CreatedAt:  now,
		IsEmpty:    classify.IsEmpty(ht.URL),
	}
	if t.IsEmpty {
		at := now
		t.EmptyTabCreatedAt = &at
	}
	if ht.Active {
		start := now
		t.Active = true
		t.LastActivated = now
		t.ActiveStartTime = &start
		t.ActivationCount = 1
	}
	return t
}

// Get returns the live entry for id. Callers holding the router lock may
// mutate it in place.
func (r *Registry) Get(id int) (*types.TrackedTab, bool) {
	t, ok := r.tabs[id]
	return t, ok
}

// Remove deletes id and returns the entry it held.
func (r *Registry) Remove(id int) (*types.TrackedTab, bool) {
	t, ok := r.tabs[id]
	if ok {
		delete(r.tabs, id)
	}
	return t, ok
}

// Len returns the number of tracked tabs.
func (r *Registry) Len() int { return len(r.tabs) }

// All returns every entry ordered by window and tab index.
func (r *Registry) All() []*types.TrackedTab {
	out := make([]*types.TrackedTab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WindowID != out[j].WindowID {
			return out[i].WindowID < out[j].WindowID
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveInWindow returns the tab marked active in windowID.
func (r *Registry) ActiveInWindow(windowID int) (*types.TrackedTab, bool) {
	for _, t := range r.tabs {
		if t.Active && t.WindowID == windowID {
			return t, true
		}
	}
	return nil, false
}
