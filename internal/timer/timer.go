// Package timer schedules per-tab close callbacks.
//
// Each (tab, kind) pair owns at most one live handle. Arm always cancels the
// previous handle before scheduling, and every handle carries a generation
// number so a callback that races a cancel is dropped instead of firing.
//
// Durations beyond MaxDirectDelay, or callers that ask for it, use polling
// mode: the engine wakes at most every PollInterval, compares the clock to
// the deadline and either fires or sleeps again. No single scheduled delay
// ever exceeds PollInterval in that mode.
package timer

import (
	"sync"
	"time"

	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/clock"
)

const (
	// MaxDirectDelay is the longest delay a browser scheduler honours
	// (2^31-1 ms, about 24.8 days).
	MaxDirectDelay = 2147483647 * time.Millisecond

	// PollInterval bounds each wake-up in polling mode.
	PollInterval = time.Hour
)

// Kind distinguishes the two timers a tab can carry.
type Kind int

const (
	AutoClose Kind = iota
	EmptyCleanup
)

func (k Kind) String() string {
	switch k {
	case AutoClose:
		return "auto-close"
	case EmptyCleanup:
		return "empty-cleanup"
	default:
		return "unknown"
	}
}

// Options tunes a single Arm call.
type Options struct {
	AllowPolling bool
}

// FireFunc is invoked once a deadline is reached. It receives only ids so
// the receiver must re-read current state.
type FireFunc func(tabID int, kind Kind)

type key struct {
	tabID int
	kind  Kind
}

type handle struct {
	gen      uint64
	deadline time.Time
	polling  bool
	t        clock.Timer
}

// Engine owns the handle table.
type Engine struct {
	clock  clock.Clock
	onFire FireFunc

	mu      sync.Mutex
	gen     uint64
	handles map[key]*handle
}

// New creates an engine that reports expirations to onFire.
func New(c clock.Clock, onFire FireFunc) *Engine {
	return &Engine{
		clock:   c,
		onFire:  onFire,
		handles: make(map[key]*handle),
	}
}

// Arm schedules a callback for tabID after d and returns the deadline.
// An existing handle of the same kind is cancelled first.
func (e *Engine) Arm(tabID int, kind Kind, d time.Duration, opts Options) time.Time {
	if d < 0 {
		d = 0
	}
	k := key{tabID, kind}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked(k)

	e.gen++
	h := &handle{
		gen:      e.gen,
		deadline: e.clock.Now().Add(d),
		polling:  opts.AllowPolling || d > MaxDirectDelay,
	}
	e.handles[k] = h

	if h.polling {
		h.t = e.clock.AfterFunc(min(d, PollInterval), func() { e.wake(k, h.gen) })
	} else {
		h.t = e.clock.AfterFunc(d, func() { e.wake(k, h.gen) })
	}
	applog.Info("timer.armed", "tab", tabID, "kind", kind, "in", d, "polling", h.polling)
	return h.deadline
}

// Disarm cancels the handle for (tabID, kind). It is a no-op when nothing is
// armed and reports whether a handle was cancelled.
func (e *Engine) Disarm(tabID int, kind Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelLocked(key{tabID, kind})
}

// DisarmAll cancels every handle owned by tabID.
func (e *Engine) DisarmAll(tabID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(key{tabID, AutoClose})
	e.cancelLocked(key{tabID, EmptyCleanup})
}

// Armed reports whether a live handle exists for (tabID, kind).
func (e *Engine) Armed(tabID int, kind Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handles[key{tabID, kind}]
	return ok
}

// Deadline returns the scheduled fire time for (tabID, kind).
func (e *Engine) Deadline(tabID int, kind Kind) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[key{tabID, kind}]
	if !ok {
		return time.Time{}, false
	}
	return h.deadline, true
}

// Len returns the number of live handles.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

func (e *Engine) cancelLocked(k key) bool {
	h, ok := e.handles[k]
	if !ok {
		return false
	}
	if h.t != nil {
		h.t.Stop()
	}
	delete(e.handles, k)
	return true
}

func (e *Engine) wake(k key, gen uint64) {
	e.mu.Lock()
	h, ok := e.handles[k]
	if !ok || h.gen != gen {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	if h.polling && now.Before(h.deadline) {
		remaining := h.deadline.Sub(now)
		h.t = e.clock.AfterFunc(min(remaining, PollInterval), func() { e.wake(k, gen) })
		e.mu.Unlock()
		return
	}
	delete(e.handles, k)
	e.mu.Unlock()

	applog.Info("timer.fired", "tab", k.tabID, "kind", k.kind)
	if e.onFire != nil {
		e.onFire(k.tabID, k.kind)
	}
}
