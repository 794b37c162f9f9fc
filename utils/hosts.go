package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// HostAllowlist is the organization allowlist, matched case-insensitively
// against hostnames (no port).
type HostAllowlist struct {
	hosts map[string]struct{}
}

func NewHostAllowlist(hosts []string) HostAllowlist {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			set[h] = struct{}{}
		}
	}
	return HostAllowlist{hosts: set}
}

// Enabled reports whether any host is configured.
func (a HostAllowlist) Enabled() bool { return len(a.hosts) > 0 }

func (a HostAllowlist) Contains(host string) bool {
	_, ok := a.hosts[strings.ToLower(host)]
	return ok
}

func (a HostAllowlist) Hosts() []string {
	out := make([]string, 0, len(a.hosts))
	for h := range a.hosts {
		out = append(out, h)
	}
	return out
}

// ResolveURL resolves ref against base the way an anchor's href does.
func ResolveURL(base, ref string) (*url.URL, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", ref, err)
	}
	if base == "" {
		return r, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}
	return b.ResolveReference(r), nil
}

// Origin serializes scheme://host[:port]. Non network schemes have the
// opaque origin "null".
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return "null"
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" && scheme != "ws" && scheme != "wss" {
		return "null"
	}

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (scheme == "http" || scheme == "ws") && port == "80" || (scheme == "https" || scheme == "wss") && port == "443" {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// HostFromURL returns the lowercase hostname of raw, or "" when raw has none.
func HostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
