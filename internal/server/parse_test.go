package server

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lotas/tabtimer/internal/router"
	"github.com/lotas/tabtimer/internal/types"
)

func TestParseTabs(t *testing.T) {
	raw := `[
		{"id": 1, "url": "https://example.com", "title": "Example", "windowId": 1, "index": 0, "active": true, "status": "complete"},
		{"id": 2, "url": "about:newtab", "title": "New Tab", "windowId": 2, "index": 3, "pinned": true, "status": "loading"}
	]`

	tabs, err := ParseTabs(json.RawMessage(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(tabs) != 2 {
		t.Fatalf("got %d tabs, want 2", len(tabs))
	}
	want := types.HostTab{ID: 1, URL: "https://example.com", Title: "Example", WindowID: 1, Active: true, Status: "complete"}
	if tabs[0] != want {
		t.Errorf("tab 0 = %+v, want %+v", tabs[0], want)
	}
	if !tabs[1].Pinned || tabs[1].Index != 3 || tabs[1].Status != types.StatusLoading {
		t.Errorf("tab 1 = %+v", tabs[1])
	}
}

func TestParseTabInvalid(t *testing.T) {
	if _, err := ParseTab(json.RawMessage(`{"id": "x"}`)); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestParseRequest(t *testing.T) {
	enabled := false
	tests := []struct {
		action string
		params string
		want   router.Request
	}{
		{"getTabData", ``, router.GetTabData{}},
		{"GET_STATS", ``, router.GetStats{}},
		{"getRealTimeStats", ``, router.GetRealTimeStats{}},
		{"setTimer", `{"tabId": 4, "minutes": 30}`, router.SetTimer{TabID: 4, Duration: 30 * time.Minute}},
		{"setTimer", `{"tabId": 4, "minutes": 30, "milliseconds": 1500, "usePolling": true}`,
			router.SetTimer{TabID: 4, Duration: 1500 * time.Millisecond, AllowPolling: true}},
		{"clearTimer", `{"tabId": 4}`, router.ClearTimer{TabID: 4}},
		{"protectTab", `{"tabId": 4}`, router.ProtectTab{TabID: 4}},
		{"closeTab", `{"tabId": 4}`, router.CloseTab{TabID: 4}},
		{"switchToTab", `{"tabId": 4}`, router.SwitchToTab{TabID: 4}},
		{"getEmptyTabSettings", ``, router.GetEmptyTabSettings{}},
		{"getTabDurations", ``, router.GetTabDurations{}},
		{"getEmptyTabCount", ``, router.GetEmptyTabCount{}},
		{"GET_ANALYTICS", `{"limit": 5}`, router.GetAnalytics{Limit: 5}},
		{"ping", ``, router.Ping{}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, err := ParseRequest(tt.action, json.RawMessage(tt.params))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	t.Run("setEmptyTabSettings", func(t *testing.T) {
		got, err := ParseRequest("setEmptyTabSettings",
			json.RawMessage(`{"settings": {"enabled": false, "cleanupInterval": 7200000}}`))
		if err != nil {
			t.Fatal(err)
		}
		req := got.(router.SetEmptyTabSettings)
		if req.Enabled == nil || *req.Enabled != enabled {
			t.Errorf("enabled = %v", req.Enabled)
		}
		if req.CleanupInterval != 2*time.Hour || req.CheckInterval != 0 {
			t.Errorf("intervals = %v / %v", req.CleanupInterval, req.CheckInterval)
		}
	})
}

func TestParseRequestRejects(t *testing.T) {
	tests := []struct {
		action string
		params string
	}{
		{"setTimer", `{"tabId": 4}`},
		{"setTimer", `{"tabId": 4, "minutes": -1}`},
		{"setEmptyTabSettings", `{}`},
		{"closeTab", `{"tabId": "four"}`},
		{"stripe-webhook", ``},
	}
	for _, tt := range tests {
		_, err := ParseRequest(tt.action, json.RawMessage(tt.params))
		if !errors.Is(err, router.ErrInvalidRequest) {
			t.Errorf("%s %s: err = %v, want ErrInvalidRequest", tt.action, tt.params, err)
		}
	}
}

func TestEncodeResult(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	tab := &types.TrackedTab{ID: 3, URL: "https://go.dev", TotalTimeSpent: 90 * time.Second, TimerActive: true, AutoCloseTime: &at}

	data, err := json.Marshal(EncodeResult([]*types.TrackedTab{tab}))
	if err != nil {
		t.Fatal(err)
	}
	var got []map[string]any
	json.Unmarshal(data, &got)
	if len(got) != 1 {
		t.Fatalf("got %d tabs", len(got))
	}
	if got[0]["totalTimeSpent"] != float64(90000) || got[0]["autoCloseTime"] != float64(1700000000000) {
		t.Errorf("encoded tab = %v", got[0])
	}

	data, _ = json.Marshal(EncodeResult(map[int]time.Duration{2: time.Second, 1: time.Minute}))
	if string(data) != `[{"tabId":1,"duration":60000},{"tabId":2,"duration":1000}]` {
		t.Errorf("durations = %s", data)
	}

	data, _ = json.Marshal(EncodeResult(types.DefaultEmptyTabSettings()))
	if string(data) != `{"enabled":true,"cleanupInterval":86400000,"checkInterval":3600000}` {
		t.Errorf("settings = %s", data)
	}
}
