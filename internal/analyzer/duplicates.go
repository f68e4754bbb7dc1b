package analyzer

import (
	"net/url"
	"sort"
	"strings"

	"github.com/lotas/tabtimer/internal/types"
)

// NormalizeURL drops the fragment, sorts query parameters and trims a
// trailing slash so that equivalent URLs compare equal.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	params := u.Query()
	for k := range params {
		sort.Strings(params[k])
	}
	u.RawQuery = params.Encode()
	result := u.String()
	if strings.HasSuffix(result, "/") && result != u.Scheme+"://"+u.Host+"/" {
		result = strings.TrimRight(result, "/")
	}
	return result
}

// Duplicates groups tabs showing the same page. Only groups of two or more
// are returned, in order of first appearance.
func Duplicates(tabs []*types.Tab) [][]*types.Tab {
	byURL := make(map[string][]*types.Tab)
	var order []string
	for _, tab := range tabs {
		key := NormalizeURL(tab.URL)
		if _, seen := byURL[key]; !seen {
			order = append(order, key)
		}
		byURL[key] = append(byURL[key], tab)
	}
	var out [][]*types.Tab
	for _, key := range order {
		if len(byURL[key]) > 1 {
			out = append(out, byURL[key])
		}
	}
	return out
}
