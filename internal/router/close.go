package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/tabtimer/internal/applog"
	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/timer"
)

type closeReason int

const (
	closeManual closeReason = iota
	closeTimer
	closeEmpty
	closeInactive
)

func (c closeReason) String() string {
	switch c {
	case closeTimer:
		return "timer"
	case closeEmpty:
		return "empty"
	case closeInactive:
		return "inactive"
	default:
		return "manual"
	}
}

func (r *Router) onFire(tabID int, kind timer.Kind) {
	ctx := r.context()
	switch kind {
	case timer.AutoClose:
		r.fireAutoClose(ctx, tabID)
	case timer.EmptyCleanup:
		r.fireEmptyCleanup(ctx, tabID)
	}
}

func (r *Router) fireAutoClose(ctx context.Context, id int) {
	r.mu.Lock()
	if r.timer.Armed(id, timer.AutoClose) {
		// Re-armed between expiry and this callback.
		r.mu.Unlock()
		return
	}
	t, ok := r.reg.Get(id)
	if !ok {
		r.mu.Unlock()
		return
	}
	t.TimerActive = false
	t.AutoCloseTime = nil
	delete(r.warned, id)
	protected := t.Protected
	r.mu.Unlock()

	if protected {
		applog.Info("router.skip", "tab", id, "reason", "protected")
		return
	}
	r.logCloseErr(id, closeTimer, r.closeTab(ctx, id, closeTimer))
}

func (r *Router) fireEmptyCleanup(ctx context.Context, id int) {
	r.mu.Lock()
	if r.timer.Armed(id, timer.EmptyCleanup) {
		r.mu.Unlock()
		return
	}
	if _, ok := r.reg.Get(id); !ok {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	ht, err := r.host.GetTab(ctx, id)
	if errors.Is(err, ErrTabNotFound) {
		r.removeTab(ctx, id)
		return
	}

	now := r.clock.Now()
	r.mu.Lock()
	t, ok := r.reg.Get(id)
	if !ok {
		r.mu.Unlock()
		return
	}
	reason := ""
	switch {
	case err != nil:
		reason = "host error"
	case !r.empty.Enabled:
		reason = "disabled"
	case !t.IsEmpty || !classify.IsEmpty(ht.URL):
		reason = "no longer empty"
	case ht.Active:
		reason = "currently active"
	case ht.Pinned:
		reason = "pinned"
	case t.Protected:
		reason = "protected"
	case t.EmptyTabCreatedAt == nil || now.Sub(*t.EmptyTabCreatedAt) < r.empty.CleanupInterval:
		reason = "not old enough"
	}
	if reason != "" {
		// The next empty-tab sweep re-evaluates the tab from scratch.
		t.IsEmpty = false
		t.EmptyTabCreatedAt = nil
		r.mu.Unlock()
		applog.Info("router.skip", "tab", id, "reason", reason)
		if err != nil {
			applog.Error("router.empty", err, "tab", id)
		}
		return
	}
	r.mu.Unlock()

	r.logCloseErr(id, closeEmpty, r.closeTab(ctx, id, closeEmpty))
}

// closeTab closes id through the host. Protection is checked under the lock
// right before the host call; automatic closes are counted once the host
// confirms.
func (r *Router) closeTab(ctx context.Context, id int, reason closeReason) error {
	r.mu.Lock()
	t, ok := r.reg.Get(id)
	if ok && t.Protected {
		r.mu.Unlock()
		return fmt.Errorf("close tab %d: %w", id, ErrProtected)
	}
	r.mu.Unlock()

	err := r.host.CloseTab(ctx, id)
	if errors.Is(err, ErrTabNotFound) {
		r.removeTab(ctx, id)
		return fmt.Errorf("close tab %d: %w", id, err)
	}
	if err != nil {
		return fmt.Errorf("close tab %d: %w", id, err)
	}

	r.removeTab(ctx, id)
	applog.Info("router.close", "tab", id, "reason", reason)
	if reason != closeManual {
		if err := r.recorder.RecordAutoClose(ctx, r.clock.Now()); err != nil {
			applog.Error("router.count", err, "tab", id)
		}
	}
	r.publishStats(ctx)
	return nil
}

// logCloseErr reports a failed automatic close. A vanished tab is the
// expected race with a manual close and is only logged at debug level.
func (r *Router) logCloseErr(id int, reason closeReason, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrTabNotFound):
		applog.Debug("router.close", "tab", id, "reason", reason, "result", "gone")
	default:
		applog.Error("router.close", err, "tab", id, "reason", reason)
	}
}
