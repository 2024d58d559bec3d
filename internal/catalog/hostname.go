package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeHostname lowercases a host and strips any port and trailing dot
func NormalizeHostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, found := strings.Cut(host, ":"); found && !strings.Contains(h, "]") {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// HostnameOf returns the normalized hostname of an absolute URL
func HostnameOf(rawURL string) (string, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return "", err
	}
	return NormalizeHostname(u.Hostname()), nil
}

// ParseURL parses an absolute http(s) URL
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in %q", rawURL)
	}
	return u, nil
}

// PathInStore returns the store-relative part of u: its path plus any query
func PathInStore(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// JoinStoreURL rebuilds a full product URL from a store base URL and a stored
// path. Stored paths are host-absolute, so any path on the base URL is ignored.
func JoinStoreURL(baseURL, pathInStore string) string {
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if u, err := ParseURL(base); err == nil {
		base = u.Scheme + "://" + u.Host
	}
	if pathInStore == "" {
		return base + "/"
	}
	if !strings.HasPrefix(pathInStore, "/") {
		pathInStore = "/" + pathInStore
	}
	return base + pathInStore
}
