// Package analyzer audits a saved browser session against the daemon's
// cleanup rules.
package analyzer

import (
	"sort"
	"time"

	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/types"
)

// AuditOptions are the thresholds the running daemon would apply.
type AuditOptions struct {
	Now time.Time
	// EmptyCleanup is how long an empty tab may sit before it is closed.
	// Zero disables empty-tab findings.
	EmptyCleanup time.Duration
	// InactivityThreshold is the idle time after which the inactivity sweep
	// closes a tab. Zero disables inactivity findings.
	InactivityThreshold time.Duration
}

// DomainCount is the number of open tabs on one site.
type DomainCount struct {
	Domain string
	Tabs   int
}

// Report summarizes a session.
type Report struct {
	Total     int
	Trackable int
	Pinned    int
	Empty     int

	// EmptyExpired would be closed by empty-tab cleanup.
	EmptyExpired []*types.Tab
	// Inactive would be closed by the inactivity sweep, excluding tabs
	// already in EmptyExpired.
	Inactive   []*types.Tab
	Duplicates [][]*types.Tab
	Domains    []DomainCount
}

// Audit classifies every tab in data. Pinned and untracked tabs are never
// reported as closable, matching the live router.
func Audit(data *types.SessionData, opts AuditOptions) Report {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	r := Report{Total: len(data.Tabs)}
	var tracked []*types.Tab
	domains := make(map[string]int)

	for _, tab := range data.Tabs {
		if tab.Pinned {
			r.Pinned++
		}
		if !tab.Trackable {
			continue
		}
		r.Trackable++
		tracked = append(tracked, tab)

		idle := opts.Now.Sub(tab.LastAccessed)
		if tab.IsEmpty {
			r.Empty++
			if opts.EmptyCleanup > 0 && !tab.Pinned && idle >= opts.EmptyCleanup {
				r.EmptyExpired = append(r.EmptyExpired, tab)
				continue
			}
		}
		if opts.InactivityThreshold > 0 && !tab.Pinned && idle > opts.InactivityThreshold {
			r.Inactive = append(r.Inactive, tab)
		}
		if classify.IsWebURL(tab.URL) {
			domains[classify.Domain(tab.URL)]++
		}
	}

	var pages []*types.Tab
	for _, tab := range tracked {
		if !tab.IsEmpty {
			pages = append(pages, tab)
		}
	}
	r.Duplicates = Duplicates(pages)

	for d, n := range domains {
		r.Domains = append(r.Domains, DomainCount{Domain: d, Tabs: n})
	}
	sort.Slice(r.Domains, func(i, j int) bool {
		if r.Domains[i].Tabs != r.Domains[j].Tabs {
			return r.Domains[i].Tabs > r.Domains[j].Tabs
		}
		return r.Domains[i].Domain < r.Domains[j].Domain
	})
	return r
}
