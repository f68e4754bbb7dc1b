package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lotas/tabtimer/internal/router"
	"github.com/lotas/tabtimer/internal/types"
)

type wireTab struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl,omitempty"`
	WindowID   int    `json:"windowId"`
	Index      int    `json:"index"`
	Pinned     bool   `json:"pinned"`
	Active     bool   `json:"active"`
	Status     string `json:"status,omitempty"`
}

func (wt wireTab) hostTab() types.HostTab {
	return types.HostTab{
		ID:         wt.ID,
		URL:        wt.URL,
		Title:      wt.Title,
		FavIconURL: wt.FavIconURL,
		WindowID:   wt.WindowID,
		Index:      wt.Index,
		Pinned:     wt.Pinned,
		Active:     wt.Active,
		Status:     wt.Status,
	}
}

// ParseTab converts a raw JSON tab into a HostTab.
func ParseTab(raw json.RawMessage) (types.HostTab, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return types.HostTab{}, fmt.Errorf("parse tab: %w", err)
	}
	return wt.hostTab(), nil
}

// ParseTabs converts a raw JSON tab array, as sent with "tabs.snapshot" and
// in reply to "query-tabs".
func ParseTabs(raw json.RawMessage) ([]types.HostTab, error) {
	var wts []wireTab
	if err := json.Unmarshal(raw, &wts); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	out := make([]types.HostTab, 0, len(wts))
	for _, wt := range wts {
		out = append(out, wt.hostTab())
	}
	return out, nil
}

// requestParams is the union of the popup's request arguments.
type requestParams struct {
	TabID        int  `json:"tabId"`
	Minutes      int  `json:"minutes"`
	Milliseconds int  `json:"milliseconds"`
	UsePolling   bool `json:"usePolling"`
	Limit        int  `json:"limit"`
	Settings     *struct {
		Enabled         *bool `json:"enabled"`
		CleanupInterval int64 `json:"cleanupInterval"` // ms
		CheckInterval   int64 `json:"checkInterval"`   // ms
	} `json:"settings"`
}

// ParseRequest maps a popup action onto a router request. "getTabData" with
// a tab id is answered from the registry directly and is not handled here.
func ParseRequest(action string, params json.RawMessage) (router.Request, error) {
	var p requestParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", action, router.ErrInvalidRequest, err)
		}
	}

	switch action {
	case "getTabData", "GET_TABS_DATA":
		return router.GetTabData{}, nil
	case "GET_STATS":
		return router.GetStats{}, nil
	case "getRealTimeStats":
		return router.GetRealTimeStats{}, nil
	case "setTimer":
		d := time.Duration(p.Minutes) * time.Minute
		if p.Milliseconds > 0 {
			d = time.Duration(p.Milliseconds) * time.Millisecond
		}
		if d <= 0 {
			return nil, fmt.Errorf("setTimer: %w: duration must be positive", router.ErrInvalidRequest)
		}
		return router.SetTimer{TabID: p.TabID, Duration: d, AllowPolling: p.UsePolling}, nil
	case "clearTimer":
		return router.ClearTimer{TabID: p.TabID}, nil
	case "protectTab":
		return router.ProtectTab{TabID: p.TabID}, nil
	case "closeTab":
		return router.CloseTab{TabID: p.TabID}, nil
	case "switchToTab":
		return router.SwitchToTab{TabID: p.TabID}, nil
	case "getEmptyTabSettings":
		return router.GetEmptyTabSettings{}, nil
	case "setEmptyTabSettings":
		if p.Settings == nil {
			return nil, fmt.Errorf("setEmptyTabSettings: %w: missing settings", router.ErrInvalidRequest)
		}
		return router.SetEmptyTabSettings{
			Enabled:         p.Settings.Enabled,
			CleanupInterval: time.Duration(p.Settings.CleanupInterval) * time.Millisecond,
			CheckInterval:   time.Duration(p.Settings.CheckInterval) * time.Millisecond,
		}, nil
	case "getTabDurations":
		return router.GetTabDurations{}, nil
	case "getEmptyTabCount":
		return router.GetEmptyTabCount{}, nil
	case "GET_ANALYTICS":
		return router.GetAnalytics{Limit: p.Limit}, nil
	case "ping", "PING":
		return router.Ping{}, nil
	}
	return nil, fmt.Errorf("unknown action %q: %w", action, router.ErrInvalidRequest)
}

// wireTracked is a tracked tab as the popup reads it. Times are Unix
// milliseconds, zero when unset.
type wireTracked struct {
	ID              int    `json:"id"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	FavIconURL      string `json:"favIconUrl,omitempty"`
	WindowID        int    `json:"windowId"`
	Index           int    `json:"index"`
	Pinned          bool   `json:"pinned"`
	Active          bool   `json:"active"`
	Domain          string `json:"domain"`
	CreatedAt       int64  `json:"createdAt"`
	LastActivated   int64  `json:"lastActivated"`
	TotalTimeSpent  int64  `json:"totalTimeSpent"`
	ActivationCount int    `json:"activationCount"`
	Protected       bool   `json:"protected"`
	IsEmpty         bool   `json:"isEmpty"`
	TimerActive     bool   `json:"timerActive"`
	AutoCloseTime   int64  `json:"autoCloseTime,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func encodeTracked(t *types.TrackedTab) wireTracked {
	w := wireTracked{
		ID:              t.ID,
		URL:             t.URL,
		Title:           t.Title,
		FavIconURL:      t.FavIconURL,
		WindowID:        t.WindowID,
		Index:           t.Index,
		Pinned:          t.Pinned,
		Active:          t.Active,
		Domain:          t.Domain,
		CreatedAt:       millis(t.CreatedAt),
		LastActivated:   millis(t.LastActivated),
		TotalTimeSpent:  t.TotalTimeSpent.Milliseconds(),
		ActivationCount: t.ActivationCount,
		Protected:       t.Protected,
		IsEmpty:         t.IsEmpty,
		TimerActive:     t.TimerActive,
	}
	if t.AutoCloseTime != nil {
		w.AutoCloseTime = t.AutoCloseTime.UnixMilli()
	}
	return w
}

type wireSettings struct {
	Enabled         bool  `json:"enabled"`
	CleanupInterval int64 `json:"cleanupInterval"`
	CheckInterval   int64 `json:"checkInterval"`
}

type wireDomain struct {
	Domain      string `json:"domain"`
	TotalTime   int64  `json:"totalTime"`
	TotalTabs   int    `json:"totalTabs"`
	Activations int    `json:"activations"`
	Visits      int    `json:"visits"`
	AvgTime     int64  `json:"avgTimePerTab"`
	LastVisited int64  `json:"lastVisited"`
}

type wireDuration struct {
	TabID    int   `json:"tabId"`
	Duration int64 `json:"duration"`
}

// EncodeResult converts a router reply into its JSON shape. Durations and
// times become milliseconds.
func EncodeResult(v any) any {
	switch v := v.(type) {
	case *types.TrackedTab:
		return encodeTracked(v)
	case []*types.TrackedTab:
		out := make([]wireTracked, 0, len(v))
		for _, t := range v {
			out = append(out, encodeTracked(t))
		}
		return out
	case types.EmptyTabSettings:
		return wireSettings{
			Enabled:         v.Enabled,
			CleanupInterval: v.CleanupInterval.Milliseconds(),
			CheckInterval:   v.CheckInterval.Milliseconds(),
		}
	case []types.DomainUsage:
		out := make([]wireDomain, 0, len(v))
		for _, u := range v {
			out = append(out, wireDomain{
				Domain:      u.Domain,
				TotalTime:   u.TotalTime.Milliseconds(),
				TotalTabs:   u.TotalTabs,
				Activations: u.Activations,
				Visits:      u.Visits,
				AvgTime:     u.AvgPerTab().Milliseconds(),
				LastVisited: millis(u.LastVisited),
			})
		}
		return out
	case map[int]time.Duration:
		out := make([]wireDuration, 0, len(v))
		for id, d := range v {
			out = append(out, wireDuration{TabID: id, Duration: d.Milliseconds()})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
		return out
	case router.TimerInfo:
		return struct {
			TabID         int   `json:"tabId"`
			AutoCloseTime int64 `json:"autoCloseTime"`
			Polling       bool  `json:"polling"`
		}{v.TabID, v.AutoCloseTime.UnixMilli(), v.Polling}
	case router.Pong:
		return struct {
			Message   string `json:"message"`
			Timestamp int64  `json:"timestamp"`
		}{v.Message, v.Time.UnixMilli()}
	}
	return v
}
