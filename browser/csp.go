package browser

import (
	"strings"
)

// contentPolicy is the merged Content-Security-Policy of a page: the
// response header plus any <meta http-equiv> policies. Multiple policies
// all apply, so a script must pass every one.
type contentPolicy struct {
	policies []map[string][]string
}

func parsePolicy(raw string) map[string][]string {
	directives := make(map[string][]string)
	for _, part := range strings.Split(raw, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])
		if _, seen := directives[name]; seen {
			// first occurrence wins
			continue
		}
		directives[name] = fields[1:]
	}
	return directives
}

func (c *contentPolicy) add(raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	c.policies = append(c.policies, parsePolicy(raw))
}

// allowsInlineScript reports whether an inline <script> may run.
func (c *contentPolicy) allowsInlineScript() bool {
	for _, p := range c.policies {
		sources, ok := p["script-src-elem"]
		if !ok {
			sources, ok = p["script-src"]
		}
		if !ok {
			sources, ok = p["default-src"]
		}
		if !ok {
			continue
		}
		if !inlineAllowed(sources) {
			return false
		}
	}
	return true
}

func inlineAllowed(sources []string) bool {
	unsafeInline := false
	for _, s := range sources {
		s = strings.ToLower(s)
		switch {
		case s == "'unsafe-inline'":
			unsafeInline = true
		// a nonce, hash or strict-dynamic disables 'unsafe-inline'
		case strings.HasPrefix(s, "'nonce-"), strings.HasPrefix(s, "'sha256-"),
			strings.HasPrefix(s, "'sha384-"), strings.HasPrefix(s, "'sha512-"),
			s == "'strict-dynamic'":
			return false
		}
	}
	return unsafeInline
}
