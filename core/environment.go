package core

import (
	"riskagent/browser"
	"riskagent/utils"
)

// ProbeEnvironment reads stage 1. Unreadable attributes keep their zero value.
func ProbeEnvironment(w browser.Window) RawSignalSet {
	s := RawSignalSet{Languages: []string{}}

	if nav, ok := attempt(func() (browser.Navigator, error) { return w.Navigator() }); ok {
		s.UserAgent = nav.UserAgent
		s.Platform = nav.Platform
		s.Language = nav.Language
		if nav.Languages != nil {
			s.Languages = nav.Languages
		}
		s.Webdriver = nav.Webdriver
		s.HardwareConcurrency = nav.HardwareConcurrency
		s.DeviceMemory = nav.DeviceMemory
		s.CookieEnabled = nav.CookieEnabled
		s.DoNotTrack = nav.DoNotTrack
	}

	if scr, ok := attempt(func() (browser.Screen, error) { return w.Screen() }); ok {
		s.Screen = ScreenInfo{
			Width:      scr.Width,
			Height:     scr.Height,
			ColorDepth: scr.ColorDepth,
			PixelRatio: scr.PixelRatio,
		}
	}

	s.Timezone, _ = attempt(func() (string, error) { return w.Timezone(), nil })
	s.Referrer, _ = attempt(func() (string, error) { return w.Referrer(), nil })
	s.Origin, _ = attempt(func() (string, error) { return pageOrigin(w), nil })
	return s
}

// pageOrigin serializes the origin of the page URL, "null" when opaque.
func pageOrigin(w browser.Window) string {
	u, err := utils.ResolveURL("", w.Location())
	if err != nil {
		return "null"
	}
	return utils.Origin(u)
}
