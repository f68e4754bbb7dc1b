package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lotas/tabtimer/internal/clock"
	"github.com/lotas/tabtimer/internal/notify"
	"github.com/lotas/tabtimer/internal/types"
)

var t0 = time.Date(2025, 5, 12, 10, 0, 0, 0, time.UTC)

type fakeHost struct {
	mu        sync.Mutex
	tabs      map[int]types.HostTab
	closed    []int
	activated []int
	focused   []int
	listErr   error
}

func newFakeHost() *fakeHost {
	return &fakeHost{tabs: make(map[int]types.HostTab)}
}

func (h *fakeHost) put(ht types.HostTab) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs[ht.ID] = ht
}

func (h *fakeHost) drop(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tabs, id)
}

func (h *fakeHost) closedIDs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.closed...)
}

func (h *fakeHost) ListTabs(context.Context) ([]types.HostTab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	out := make([]types.HostTab, 0, len(h.tabs))
	for _, t := range h.tabs {
		out = append(out, t)
	}
	return out, nil
}

func (h *fakeHost) GetTab(_ context.Context, id int) (types.HostTab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return types.HostTab{}, fmt.Errorf("get tab %d: %w", id, ErrTabNotFound)
	}
	return t, nil
}

func (h *fakeHost) CloseTab(_ context.Context, id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[id]; !ok {
		return fmt.Errorf("remove tab %d: %w", id, ErrTabNotFound)
	}
	delete(h.tabs, id)
	h.closed = append(h.closed, id)
	return nil
}

func (h *fakeHost) ActivateTab(_ context.Context, id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[id]; !ok {
		return fmt.Errorf("activate tab %d: %w", id, ErrTabNotFound)
	}
	h.activated = append(h.activated, id)
	return nil
}

func (h *fakeHost) FocusWindow(_ context.Context, windowID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = append(h.focused, windowID)
	return nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	notes       []types.Notification
	stats       []types.RealTimeStats
	closingSoon []int
}

func (n *fakeNotifier) Notify(_ context.Context, note types.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *fakeNotifier) PublishStats(_ context.Context, s types.RealTimeStats) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats = append(n.stats, s)
	return nil
}

func (n *fakeNotifier) PublishClosingSoon(_ context.Context, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closingSoon = append(n.closingSoon, count)
	return nil
}

func (n *fakeNotifier) notifications() []types.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]types.Notification(nil), n.notes...)
}

type fakeFeatures struct {
	enabled   bool
	threshold time.Duration
}

func (f fakeFeatures) AutoCloseEnabled() bool { return f.enabled }
func (f fakeFeatures) InactivityThreshold() time.Duration { return f.threshold }

type fakeRecorder struct {
	mu         sync.Mutex
	autoClosed []time.Time
	opened     map[string]int
	usage      map[string]types.DomainUsage
	settings   []types.EmptyTabSettings
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{opened: make(map[string]int), usage: make(map[string]types.DomainUsage)}
}

func (f *fakeRecorder) RecordAutoClose(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoClosed = append(f.autoClosed, at)
	return nil
}

func (f *fakeRecorder) AutoClosedOn(_ context.Context, day time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, at := range f.autoClosed {
		if at.Format(time.DateOnly) == day.Format(time.DateOnly) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRecorder) TotalAutoClosed(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.autoClosed), nil
}

func (f *fakeRecorder) RecordTabOpened(_ context.Context, domain string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened[domain]++
	return nil
}

func (f *fakeRecorder) RecordDomainUsage(_ context.Context, u types.DomainUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.usage[u.Domain]
	cur.Domain = u.Domain
	cur.TotalTime += u.TotalTime
	cur.TotalTabs += u.TotalTabs
	cur.Activations += u.Activations
	cur.LastVisited = u.LastVisited
	f.usage[u.Domain] = cur
	return nil
}

func (f *fakeRecorder) TopDomains(context.Context, int) ([]types.DomainUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.DomainUsage
	for _, u := range f.usage {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRecorder) SaveEmptyTabSettings(_ context.Context, s types.EmptyTabSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, s)
	return nil
}

func (f *fakeRecorder) autoClosedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.autoClosed)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	clock    *clock.Fake
	host     *fakeHost
	notifier *fakeNotifier
	recorder *fakeRecorder
	gate     *notify.Gate
	router   *Router
}

func newHarness(t *testing.T, features Features) *harness {
	t.Helper()
	c := clock.NewFake(t0)
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		clock:    c,
		host:     newFakeHost(),
		notifier: &fakeNotifier{},
		recorder: newFakeRecorder(),
		gate:     notify.New(c, notify.Config{Enabled: true, Location: time.UTC}),
	}
	h.router = New(h.host, Options{
		Clock:     c,
		Features:  features,
		Recorder:  h.recorder,
		Notifier:  h.notifier,
		Gate:      h.gate,
		EmptyTabs: types.DefaultEmptyTabSettings(),
		Warnings:  WarningOptions{Enabled: true},
	})
	h.router.Start(h.ctx)
	t.Cleanup(h.router.Stop)
	return h
}

// open makes the tab exist on the host and delivers the creation event.
func (h *harness) open(ht types.HostTab) {
	h.t.Helper()
	if ht.Status == "" {
		ht.Status = types.StatusComplete
	}
	h.host.put(ht)
	h.router.HandleCreated(h.ctx, ht)
}

func (h *harness) do(req Request) any {
	h.t.Helper()
	out, err := h.router.Do(h.ctx, req)
	if err != nil {
		h.t.Fatalf("%T: %v", req, err)
	}
	return out
}
