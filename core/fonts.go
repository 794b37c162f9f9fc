package core

import (
	"fmt"

	"riskagent/browser"
)

var (
	baselineFamilies = []string{"monospace", "sans-serif", "serif"}
	candidateFonts   = []string{
		"Arial", "Arial Black", "Comic Sans MS", "Courier New", "Georgia",
		"Impact", "Times New Roman", "Trebuchet MS", "Verdana", "Lucida Console",
		"Tahoma", "Palatino Linotype", "Lucida Sans Unicode", "MS Gothic",
	}
)

// FontProbe detects installed fonts by text width: a font is present when
// layering it over a generic family changes the measured width.
type FontProbe struct {
	Baselines  []string
	Candidates []string
	TestString string
	Size       string
}

func DefaultFontProbe() FontProbe {
	return FontProbe{
		Baselines:  baselineFamilies,
		Candidates: candidateFonts,
		TestString: "mmmmmmmmmmlli",
		Size:       "72px",
	}
}

// Detect returns present candidates in candidate order. ok is false when no
// 2D canvas is available or measuring fails.
func (p FontProbe) Detect(w browser.Window) ([]string, bool) {
	return attempt(func() ([]string, error) {
		c, err := w.NewCanvas(300, 150)
		if err != nil {
			return nil, err
		}
		measure := func(font string) (float64, error) {
			if err := c.SetFont(font); err != nil {
				return 0, err
			}
			return c.MeasureText(p.TestString)
		}

		base := make(map[string]float64, len(p.Baselines))
		for _, fam := range p.Baselines {
			width, err := measure(p.Size + " " + fam)
			if err != nil {
				return nil, err
			}
			base[fam] = width
		}

		found := []string{}
		for _, font := range p.Candidates {
			for _, fam := range p.Baselines {
				width, err := measure(fmt.Sprintf("%s '%s', %s", p.Size, font, fam))
				if err != nil {
					return nil, err
				}
				if width != base[fam] {
					found = append(found, font)
					break
				}
			}
		}
		return found, nil
	})
}
