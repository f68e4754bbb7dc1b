// Package notify rate-limits user-facing notifications per category.
package notify

import (
	"sync"
	"time"

	"github.com/lotas/tabtimer/internal/clock"
	"github.com/lotas/tabtimer/internal/types"
)

// DefaultDailyLimits are the per-category caps the extension ships with.
var DefaultDailyLimits = map[types.NotificationCategory]int{
	types.CategoryTimerWarning: 5,
	types.CategoryPerformance:  2,
	types.CategoryGeneral:      3,
}

// DefaultMinInterval is the cooldown between two notifications of the same
// category.
const DefaultMinInterval = time.Minute

// Config configures a Gate. Zero values fall back to the defaults.
type Config struct {
	Enabled     bool
	DailyLimits map[types.NotificationCategory]int
	MinInterval time.Duration
	// Location decides where the calendar day boundary falls. Defaults to
	// time.Local.
	Location *time.Location
}

// Gate decides whether a notification may be shown. Counters are kept in
// memory and reset when the local calendar date changes.
type Gate struct {
	clock clock.Clock

	mu          sync.Mutex
	enabled     bool
	limits      map[types.NotificationCategory]int
	minInterval time.Duration
	loc         *time.Location
	day         string
	counts      map[types.NotificationCategory]int
	last        map[types.NotificationCategory]time.Time
}

// New builds a gate reading time from c.
func New(c clock.Clock, cfg Config) *Gate {
	g := &Gate{
		clock:  c,
		counts: make(map[types.NotificationCategory]int),
		last:   make(map[types.NotificationCategory]time.Time),
	}
	g.Configure(cfg)
	return g
}

// Configure replaces the gate's settings without touching today's counters.
func (g *Gate) Configure(cfg Config) {
	limits := make(map[types.NotificationCategory]int, len(DefaultDailyLimits))
	for cat, n := range DefaultDailyLimits {
		limits[cat] = n
	}
	for cat, n := range cfg.DailyLimits {
		limits[cat] = n
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = cfg.Enabled
	g.limits = limits
	g.minInterval = interval
	g.loc = loc
}

// Enabled reports the master switch.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// ShouldNotify reports whether a notification of cat may be shown now. It
// returns false when the gate is disabled, the daily cap is reached or the
// category's cooldown has not elapsed. Unknown categories have a cap of zero.
func (g *Gate) ShouldNotify(cat types.NotificationCategory) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled {
		return false
	}
	now := g.clock.Now()
	g.rolloverLocked(now)

	if g.counts[cat] >= g.limits[cat] {
		return false
	}
	if last, ok := g.last[cat]; ok && now.Sub(last) < g.minInterval {
		return false
	}
	return true
}

// Record notes that a notification of cat was shown.
func (g *Gate) Record(cat types.NotificationCategory) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.rolloverLocked(now)
	g.counts[cat]++
	g.last[cat] = now
}

// Count returns how many notifications of cat were recorded today.
func (g *Gate) Count(cat types.NotificationCategory) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked(g.clock.Now())
	return g.counts[cat]
}

func (g *Gate) rolloverLocked(now time.Time) {
	today := now.In(g.loc).Format(time.DateOnly)
	if g.day == today {
		return
	}
	g.day = today
	clear(g.counts)
}
