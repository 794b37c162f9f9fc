package core

import (
	"errors"
	"strings"

	"riskagent/browser"
)

const nativeCodeMarker = "[native code]"

// Storage probe key and value. The key is removed again on every path.
const (
	storageProbeKey   = "_risk_agent_test_"
	storageProbeValue = "1"
)

var errEchoMismatch = errors.New("storage echoed a different value")

// DetectAutomation reads the automation markers. Each read defaults to
// false or zero on failure.
func DetectAutomation(w browser.Window) AutomationSignals {
	var a AutomationSignals
	if nav, ok := attempt(func() (browser.Navigator, error) { return w.Navigator() }); ok {
		a.Webdriver = nav.Webdriver
		a.PluginsLength = nav.Plugins
		a.MimeTypesLength = nav.MimeTypes
	}
	a.HasChrome, _ = attempt(func() (bool, error) { return w.HasGlobal("chrome"), nil })
	a.HasWebdriverScriptFn, _ = attempt(func() (bool, error) {
		doc, err := w.Document()
		if err != nil {
			return false, err
		}
		return doc.HasProperty("__webdriver_script_fn"), nil
	})
	return a
}

// DetectFunctionTampering reports true unless Function.prototype.toString
// still serializes as native code. Failing to read it counts as tampered.
func DetectFunctionTampering(w browser.Window) bool {
	src, ok := attempt(func() (string, error) { return w.NativeFunctionSource() })
	return !ok || !strings.Contains(src, nativeCodeMarker)
}

// ProbeStorage round-trips a test key through local storage, session
// storage and the cookie jar. Any failure in any facility fails the probe.
func ProbeStorage(w browser.Window) bool {
	err := capture(func() error {
		for _, kind := range []browser.StorageKind{browser.LocalStorage, browser.SessionStorage} {
			if err := storageRoundTrip(w, kind); err != nil {
				return err
			}
		}
		return cookieRoundTrip(w)
	})
	return err == nil
}

func storageRoundTrip(w browser.Window, kind browser.StorageKind) error {
	s, err := w.Storage(kind)
	if err != nil {
		return err
	}
	if err := s.SetItem(storageProbeKey, storageProbeValue); err != nil {
		return err
	}
	got, found, getErr := s.GetItem(storageProbeKey)
	if err := s.RemoveItem(storageProbeKey); err != nil {
		return err
	}
	if getErr != nil {
		return getErr
	}
	if !found || got != storageProbeValue {
		return errEchoMismatch
	}
	return nil
}

func cookieRoundTrip(w browser.Window) error {
	jar, err := w.Cookies()
	if err != nil {
		return err
	}
	if err := jar.SetCookie(storageProbeKey + "=" + storageProbeValue + "; path=/"); err != nil {
		return err
	}
	cookies, readErr := jar.Cookie()
	if err := jar.SetCookie(storageProbeKey + "=; path=/; expires=Thu, 01 Jan 1970 00:00:00 GMT"); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	if got, found := browser.CookieValue(cookies, storageProbeKey); !found || got != storageProbeValue {
		return errEchoMismatch
	}
	return nil
}

// ProbeContentPolicy injects an inert script into head and removes it.
// Failure to do so means a restrictive policy (true).
func ProbeContentPolicy(w browser.Window) bool {
	err := capture(func() error {
		doc, err := w.Document()
		if err != nil {
			return err
		}
		head, err := doc.Head()
		if err != nil {
			return err
		}
		script, err := doc.CreateElement("script")
		if err != nil {
			return err
		}
		if err := script.SetText("void 0;"); err != nil {
			return err
		}
		if err := head.AppendChild(script); err != nil {
			return err
		}
		return head.RemoveChild(script)
	})
	return err != nil
}
