package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseTarget validates that raw is an absolute http(s) URL.
func ParseTarget(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ConfigError{Field: "target_url", Reason: "required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{Field: "target_url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ConfigError{Field: "target_url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, &ConfigError{Field: "target_url", Reason: "missing host"}
	}
	return u, nil
}

// NormalizeURL standardizes a URL for equality checks.
// It lowercases the scheme and host, removes default ports and fragments, and
// sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// Resolve turns ref into an absolute URL relative to base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// PageURL sets the page query parameter on base to n.
func PageURL(base, param string, n int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if param == "" {
		param = "page"
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SiteName derives a short site label from a URL's host.
func SiteName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	site := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if site == "" {
		return "unknown"
	}
	return site
}
