package core

import (
	"strings"

	"riskagent/browser"
	"riskagent/utils"
)

// IframeScanner classifies every frame in the document for clickjacking
// risk. OrgHosts is the organization allowlist; when empty, notFromOrg is
// never raised.
type IframeScanner struct {
	OrgHosts utils.HostAllowlist
}

type frameClass struct {
	hidden      bool
	offscreen   bool
	crossOrigin bool
	notFromOrg  bool
}

func (c frameClass) suspicious() bool {
	return c.hidden || c.offscreen || c.crossOrigin || c.notFromOrg
}

func (s IframeScanner) Scan(w browser.Window) IframeScan {
	var res IframeScan

	frames, ok := attempt(func() ([]browser.Frame, error) {
		doc, err := w.Document()
		if err != nil {
			return nil, err
		}
		return doc.Frames()
	})
	if !ok || len(frames) == 0 {
		return res
	}
	res.Total = len(frames)

	var vp *browser.Viewport
	if v, ok := attempt(func() (browser.Viewport, error) { return w.Viewport() }); ok {
		vp = &v
	}
	origin, _ := attempt(func() (string, error) { return pageOrigin(w), nil })

	for _, f := range frames {
		c := s.classify(f, vp, origin)
		if c.hidden {
			res.Hidden++
		}
		if c.offscreen {
			res.Offscreen++
		}
		if c.crossOrigin {
			res.CrossOrigin++
		}
		if c.notFromOrg {
			res.NotFromOrg++
		}
		if c.suspicious() {
			res.Suspicious++
		}
	}
	return res
}

// classify evaluates the four predicates for one frame. A failure part way
// marks the frame hidden and keeps whatever was already established. With
// no viewport only the left and top edges can be judged.
func (s IframeScanner) classify(f browser.Frame, vp *browser.Viewport, origin string) frameClass {
	var c frameClass
	err := capture(func() error {
		style, err := f.ComputedStyle()
		if err != nil {
			return err
		}
		rect, err := f.BoundingRect()
		if err != nil {
			return err
		}

		c.hidden = style.Display == "none" ||
			style.Visibility == "hidden" ||
			style.Opacity <= 0 ||
			rect.Width <= 0 || rect.Height <= 0

		// entirely outside the viewport; partial overlap is on screen
		c.offscreen = rect.Left+rect.Width < 0 || rect.Top+rect.Height < 0
		if vp != nil && (rect.Left >= vp.Width || rect.Top >= vp.Height) {
			c.offscreen = true
		}

		src := f.Src()
		if src == "" {
			return nil
		}
		u, err := utils.ResolveURL("", src)
		if err != nil {
			c.crossOrigin = true
			return nil
		}
		// about: and blob: documents carry the creator's origin
		if !inheritsOrigin(u.Scheme) && !sameOrigin(utils.Origin(u), origin) {
			c.crossOrigin = true
		}
		if host := strings.ToLower(u.Hostname()); host != "" && s.OrgHosts.Enabled() && !s.OrgHosts.Contains(host) {
			c.notFromOrg = true
		}
		return nil
	})
	if err != nil {
		c.hidden = true
	}
	return c
}

// sameOrigin compares serialized origins. Opaque origins all serialize as
// "null" yet never equal one another.
func sameOrigin(a, b string) bool {
	return a != "null" && b != "null" && a == b
}

func inheritsOrigin(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "about", "blob", "javascript":
		return true
	}
	return false
}
