package common

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters dropped during normalization because
// they never change the resource a URL identifies.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref":     true,
}

// NormalizeURL produces a stable canonical form of a URL so repeat crawls of
// the same logical resource map to one crawl record. The policy is:
// lowercase scheme and host, strip default ports, drop the fragment, drop
// tracking parameters (utm_* and common click IDs), sort remaining query
// parameters, and trim the trailing slash on non-root paths.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q is missing scheme or host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Strip default ports
	if host, port, ok := strings.Cut(u.Host, ":"); ok {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
		}
	}

	// Drop tracking parameters, sort the rest for determinism
	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for key := range query {
			if trackingParams[key] || strings.HasPrefix(key, "utm_") {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var rebuilt url.Values = make(url.Values, len(keys))
		for _, key := range keys {
			rebuilt[key] = query[key]
		}
		u.RawQuery = rebuilt.Encode()
	}

	// Trim trailing slash on non-root paths
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String(), nil
}
