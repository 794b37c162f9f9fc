package core

import (
	"riskagent/browser"
	"riskagent/utils"
)

// CheckOrigins flags a page or referrer host outside the organization
// allowlist. Both flags stay false when the allowlist is empty, and an
// empty referrer is never flagged.
func CheckOrigins(w browser.Window, orgHosts utils.HostAllowlist) OriginSignals {
	var s OriginSignals
	if !orgHosts.Enabled() {
		return s
	}
	s.PageOriginNotFromOrg, _ = attempt(func() (bool, error) {
		return !orgHosts.Contains(utils.HostFromURL(w.Location())), nil
	})
	s.ReferrerNotFromOrg, _ = attempt(func() (bool, error) {
		ref := w.Referrer()
		if ref == "" {
			return false, nil
		}
		return !orgHosts.Contains(utils.HostFromURL(ref)), nil
	})
	return s
}
