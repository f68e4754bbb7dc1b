package classify

import (
	"net/url"
	"regexp"
	"strings"
)

// UnknownDomain is returned by Domain when the URL has no parseable host.
const UnknownDomain = "unknown"

var newTabPrefixes = []string{
	"chrome://newtab/",
	"chrome://new-tab-page/",
	"chrome-search://local-ntp/local-ntp.html",
	"chrome://startpageshared/",
	"chrome://vivaldi-webui/",
	"about:newtab",
	"about:blank",
	"about:home",
	"edge://newtab/",
}

var blankURLs = map[string]bool{
	"":                true,
	"about:blank":     true,
	"data:text/html,": true,
}

var searchHomepages = map[string]bool{
	"https://www.google.com":    true,
	"https://www.bing.com":      true,
	"https://www.yahoo.com":     true,
	"https://duckduckgo.com":    true,
	"https://www.startpage.com": true,
	"https://www.ecosia.org":    true,
}

var searchRootPattern = regexp.MustCompile(`^https?://(www\.)?(google|bing|yahoo|duckduckgo)\.com/?(\?.*)?$`)

// IsEmpty reports whether url is a blank page: a new-tab page, an empty or
// about:blank URL, or a bare search engine homepage. A search URL with a path
// such as /search?q=x is never empty.
func IsEmpty(rawURL string) bool {
	for _, p := range newTabPrefixes {
		if strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	if blankURLs[rawURL] {
		return true
	}
	if searchHomepages[rawURL] {
		return true
	}
	return searchRootPattern.MatchString(rawURL)
}

var internalPrefixes = []string{
	"chrome-extension:",
	"moz-extension:",
	"chrome://extensions/",
	"chrome://settings/",
	"chrome://flags/",
	"chrome://history/",
	"chrome://downloads/",
}

var trackableNewTab = []string{
	"chrome://newtab/",
	"chrome://new-tab-page/",
	"chrome-search://local-ntp/local-ntp.html",
}

// IsTrackable reports whether a tab with this URL should be tracked at all.
// Extension and browser-internal pages are excluded; new-tab and blank pages
// are included so they can later be cleaned up as empty tabs.
func IsTrackable(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	for _, p := range internalPrefixes {
		if strings.HasPrefix(rawURL, p) {
			return false
		}
	}
	for _, p := range trackableNewTab {
		if strings.HasPrefix(rawURL, p) {
			return true
		}
	}
	if !strings.HasPrefix(rawURL, "chrome://") &&
		!strings.HasPrefix(rawURL, "about:") &&
		!strings.HasPrefix(rawURL, "edge://") {
		return true
	}
	return rawURL == "about:blank" || rawURL == "about:newtab"
}

// Domain returns the host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return UnknownDomain
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// IsWebURL reports whether rawURL is an ordinary http(s) page, the only kind
// counted in site visit analytics.
func IsWebURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}
