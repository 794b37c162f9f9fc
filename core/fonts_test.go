package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskagent/browser"
)

// widthCanvas measures 100 for a font string naming a present candidate
// and 50 otherwise.
type widthCanvas struct {
	browser.Canvas
	present map[string]bool
	font    string
	fail    bool
}

func (c *widthCanvas) SetFont(font string) error {
	c.font = font
	return nil
}

func (c *widthCanvas) MeasureText(string) (float64, error) {
	if c.fail {
		return 0, errors.New("measure failed")
	}
	for name := range c.present {
		if strings.Contains(c.font, "'"+name+"'") {
			return 100, nil
		}
	}
	return 50, nil
}

func TestFontProbeReturnsPresentFontsInCandidateOrder(t *testing.T) {
	canvas := &widthCanvas{present: map[string]bool{"Georgia": true, "MS Gothic": true, "Arial": true}}
	w := &stubWindow{canvas: func() (browser.Canvas, error) { return canvas, nil }}

	fonts, ok := DefaultFontProbe().Detect(w)
	require.True(t, ok)
	assert.Equal(t, []string{"Arial", "Georgia", "MS Gothic"}, fonts)
}

func TestFontProbeWithNothingInstalled(t *testing.T) {
	canvas := &widthCanvas{}
	w := &stubWindow{canvas: func() (browser.Canvas, error) { return canvas, nil }}

	fonts, ok := DefaultFontProbe().Detect(w)
	require.True(t, ok)
	assert.NotNil(t, fonts)
	assert.Empty(t, fonts)
}

func TestFontProbeFailures(t *testing.T) {
	noCanvas := &stubWindow{canvas: func() (browser.Canvas, error) { return nil, browser.ErrUnsupported }}
	_, ok := DefaultFontProbe().Detect(noCanvas)
	assert.False(t, ok)

	broken := &stubWindow{canvas: func() (browser.Canvas, error) { return &widthCanvas{fail: true}, nil }}
	_, ok = DefaultFontProbe().Detect(broken)
	assert.False(t, ok)
}

func TestFontProbeOnEmulatedPage(t *testing.T) {
	page := newTestPage(t, "iphone", browser.PageOptions{})

	fonts, ok := DefaultFontProbe().Detect(page)
	require.True(t, ok)
	assert.Equal(t, []string{"Arial", "Courier New", "Georgia", "Times New Roman", "Trebuchet MS", "Verdana"}, fonts)

	// fonts outside the candidate list are never reported
	chrome := newTestPage(t, "chrome", browser.PageOptions{})
	fonts, ok = DefaultFontProbe().Detect(chrome)
	require.True(t, ok)
	assert.Equal(t, candidateFonts, fonts)
	assert.NotContains(t, fonts, "Segoe UI")
}
