package router

import (
	"context"
	"errors"
	"time"

	"github.com/lotas/tabtimer/internal/types"
)

var (
	// ErrTabNotFound is returned when the host no longer knows a tab.
	ErrTabNotFound = errors.New("tab not found")
	// ErrProtected is returned when a close targets a protected tab.
	ErrProtected = errors.New("tab is protected")
	// ErrNotTrackable is returned for internal pages the router never tracks.
	ErrNotTrackable = errors.New("tab is not trackable")
	// ErrInvalidRequest is returned for malformed query arguments.
	ErrInvalidRequest = errors.New("invalid request")
)

// Host is the browser side. All calls may block on I/O and are made without
// the router lock held. Implementations return an error wrapping
// ErrTabNotFound when the tab vanished.
type Host interface {
	ListTabs(ctx context.Context) ([]types.HostTab, error)
	GetTab(ctx context.Context, id int) (types.HostTab, error)
	CloseTab(ctx context.Context, id int) error
	ActivateTab(ctx context.Context, id int) error
	FocusWindow(ctx context.Context, windowID int) error
}

// Notifier delivers user-facing output.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
	PublishStats(ctx context.Context, s types.RealTimeStats) error
	PublishClosingSoon(ctx context.Context, count int) error
}

// Features exposes the subscription-gated inactivity auto-close settings.
type Features interface {
	AutoCloseEnabled() bool
	InactivityThreshold() time.Duration
}

// Recorder persists counters and analytics. Failures are logged by the
// router and never block tab handling.
type Recorder interface {
	RecordAutoClose(ctx context.Context, at time.Time) error
	AutoClosedOn(ctx context.Context, day time.Time) (int, error)
	TotalAutoClosed(ctx context.Context) (int, error)
	RecordTabOpened(ctx context.Context, domain string, at time.Time) error
	RecordDomainUsage(ctx context.Context, u types.DomainUsage) error
	TopDomains(ctx context.Context, limit int) ([]types.DomainUsage, error)
	SaveEmptyTabSettings(ctx context.Context, s types.EmptyTabSettings) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, types.Notification) error { return nil }
func (nopNotifier) PublishStats(context.Context, types.RealTimeStats) error { return nil }
func (nopNotifier) PublishClosingSoon(context.Context, int) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordAutoClose(context.Context, time.Time) error { return nil }
func (nopRecorder) AutoClosedOn(context.Context, time.Time) (int, error) { return 0, nil }
func (nopRecorder) TotalAutoClosed(context.Context) (int, error) { return 0, nil }
func (nopRecorder) RecordTabOpened(context.Context, string, time.Time) error { return nil }
func (nopRecorder) RecordDomainUsage(context.Context, types.DomainUsage) error { return nil }
func (nopRecorder) TopDomains(context.Context, int) ([]types.DomainUsage, error) { return nil, nil }
func (nopRecorder) SaveEmptyTabSettings(context.Context, types.EmptyTabSettings) error { return nil }

type disabledFeatures struct{}

func (disabledFeatures) AutoCloseEnabled() bool { return false }
func (disabledFeatures) InactivityThreshold() time.Duration { return 0 }
