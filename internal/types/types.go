package types

import "time"

// WindowNone is the window id the host reports when no window has focus.
const WindowNone = -1

// Load states reported by the host.
const (
	StatusLoading  = "loading"
	StatusComplete = "complete"
)

// HostTab is a tab as reported by the browser.
type HostTab struct {
	ID         int
	URL        string
	Title      string
	FavIconURL string
	WindowID   int
	Index      int
	Pinned     bool
	Active     bool
	Status     string
}

// TrackedTab is the registry's view of a live tab.
type TrackedTab struct {
	ID         int
	URL        string
	Title      string
	FavIconURL string
	WindowID   int
	Index      int
	Pinned     bool
	Active     bool
	Status     string
	Domain     string

	CreatedAt       time.Time
	LastActivated   time.Time  // zero if never active
	ActiveStartTime *time.Time // nil unless active and the browser is focused
	TotalTimeSpent  time.Duration
	ActivationCount int

	Protected bool

	IsEmpty           bool
	EmptyTabCreatedAt *time.Time

	// Mirrors of the timer engine's handle table.
	TimerActive   bool
	AutoCloseTime *time.Time

	URLChangeCount int
	ReloadCount    int
}

// Clone returns a deep copy safe to hand out of the registry.
func (t *TrackedTab) Clone() *TrackedTab {
	c := *t
	if t.ActiveStartTime != nil {
		v := *t.ActiveStartTime
		c.ActiveStartTime = &v
	}
	if t.EmptyTabCreatedAt != nil {
		v := *t.EmptyTabCreatedAt
		c.EmptyTabCreatedAt = &v
	}
	if t.AutoCloseTime != nil {
		v := *t.AutoCloseTime
		c.AutoCloseTime = &v
	}
	return &c
}

// LastActive returns when the tab was last activated, or its creation time
// if it never was.
func (t *TrackedTab) LastActive() time.Time {
	if t.LastActivated.IsZero() {
		return t.CreatedAt
	}
	return t.LastActivated
}

// Stats holds the tab counts shown in the popup header.
type Stats struct {
	Active    int `json:"active"`
	Scheduled int `json:"scheduled"`
	Protected int `json:"protected"`
}

// RealTimeStats is the aggregate view pushed to the extension.
type RealTimeStats struct {
	TotalTabs     int       `json:"totalTabs"`
	AutoClosed    int       `json:"autoClosed"` // today
	MemorySavedMB int       `json:"memorySaved"`
	ActiveTabs    int       `json:"activeTabs"`
	ScheduledTabs int       `json:"scheduledTabs"`
	ProtectedTabs int       `json:"protectedTabs"`
	EmptyTabs     int       `json:"emptyTabs"`
	Timestamp     time.Time `json:"-"`
}

// EmptyTabSettings controls automatic cleanup of blank tabs.
type EmptyTabSettings struct {
	Enabled         bool
	CleanupInterval time.Duration
	CheckInterval   time.Duration
}

// DefaultEmptyTabSettings mirrors what the extension ships with.
func DefaultEmptyTabSettings() EmptyTabSettings {
	return EmptyTabSettings{
		Enabled:         true,
		CleanupInterval: 24 * time.Hour,
		CheckInterval:   time.Hour,
	}
}

// NotificationCategory groups notifications for rate limiting.
type NotificationCategory string

const (
	CategoryTimerWarning NotificationCategory = "timer_warnings"
	CategoryPerformance  NotificationCategory = "performance_alerts"
	CategoryGeneral      NotificationCategory = "general_notifications"
)

// Notification is a user-facing message delivered by the host.
type Notification struct {
	Category NotificationCategory
	TabID    int
	Title    string
	Message  string
}

// DomainUsage is the accumulated active time for one domain.
type DomainUsage struct {
	Domain      string
	TotalTime   time.Duration
	TotalTabs   int
	Activations int
	Visits      int
	LastVisited time.Time
}

// AvgPerTab returns the mean active time per closed tab.
func (d DomainUsage) AvgPerTab() time.Duration {
	if d.TotalTabs == 0 {
		return 0
	}
	return d.TotalTime / time.Duration(d.TotalTabs)
}

// Tab is a tab read from a browser session file (offline audit).
type Tab struct {
	URL          string
	Title        string
	LastAccessed time.Time
	WindowIndex  int
	TabIndex     int
	Pinned       bool

	// Set from the same rules the router applies to live tabs.
	Trackable bool
	IsEmpty   bool
}

// Profile represents a Firefox profile.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// SessionData holds the tabs of a saved Firefox session.
type SessionData struct {
	Tabs     []*Tab
	Windows  int
	Profile  Profile
	ParsedAt time.Time
}
