package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drawSample(t *testing.T, c Canvas) string {
	t.Helper()
	require.NoError(t, c.SetTextBaseline("top"))
	require.NoError(t, c.SetFont("14px Arial"))
	require.NoError(t, c.SetFillStyle("#f60"))
	require.NoError(t, c.FillRect(125, 1, 62, 20))
	require.NoError(t, c.SetFillStyle("#069"))
	require.NoError(t, c.FillText("sample text", 2, 15))
	url, err := c.DataURL()
	require.NoError(t, err)
	return url
}

func TestCanvasDeterministicPerSeed(t *testing.T) {
	a := drawSample(t, newEmulatedCanvas(240, 60, []string{"Arial"}, 7))
	b := drawSample(t, newEmulatedCanvas(240, 60, []string{"Arial"}, 7))
	c := drawSample(t, newEmulatedCanvas(240, 60, []string{"Arial"}, 8))
	plain := drawSample(t, newEmulatedCanvas(240, 60, []string{"Arial"}, 0))

	assert.True(t, strings.HasPrefix(a, "data:image/png;base64,"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, plain)
}

func decodeDataURL(t *testing.T, url string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestCanvasNoiseSurvivesEncoding(t *testing.T) {
	noisy := decodeDataURL(t, drawSample(t, newEmulatedCanvas(240, 60, []string{"Arial"}, 0x5eed0133)))
	plain := decodeDataURL(t, drawSample(t, newEmulatedCanvas(240, 60, []string{"Arial"}, 0)))

	diff := 0
	b := plain.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pr, pg, pb, pa := plain.At(x, y).RGBA()
			nr, ng, nb, na := noisy.At(x, y).RGBA()
			if pr != nr || pg != ng || pb != nb || pa != na {
				diff++
				assert.Equal(t, uint32(0xffff), na, "noise lands on painted pixels")
			}
		}
	}
	assert.Greater(t, diff, 0)
	assert.LessOrEqual(t, diff, 16)
}

func TestCanvasNoiseOnBlankBitmap(t *testing.T) {
	c := newEmulatedCanvas(20, 20, nil, 7)
	blank, err := c.DataURL()
	require.NoError(t, err)
	plain, err := newEmulatedCanvas(20, 20, nil, 0).DataURL()
	require.NoError(t, err)
	assert.Equal(t, plain, blank)
}

func TestMeasureTextFallsBack(t *testing.T) {
	c := newEmulatedCanvas(10, 10, []string{"Arial"}, 0)

	width := func(font string) float64 {
		require.NoError(t, c.SetFont(font))
		w, err := c.MeasureText("mmmmmmmmmmlli")
		require.NoError(t, err)
		return w
	}

	mono := width("72px monospace")
	assert.InDelta(t, 13*0.6*72, mono, 1e-9)
	assert.Equal(t, mono, width("72px 'Impact', monospace"), "missing font resolves to the fallback")
	assert.NotEqual(t, mono, width("72px 'Arial', monospace"))
	assert.Equal(t, width("72px serif"), width("72px 'Comic Sans MS', serif"))

	// malformed fonts are ignored
	require.NoError(t, c.SetFont("72px monospace"))
	require.NoError(t, c.SetFont("bogus"))
	w, _ := c.MeasureText("mmmmmmmmmmlli")
	assert.Equal(t, mono, w)
}

func TestParseFont(t *testing.T) {
	spec, ok := parseFont(`bold 72px/1.2 'Arial Black', "Segoe UI", sans-serif`)
	require.True(t, ok)
	assert.Equal(t, 72.0, spec.size)
	assert.Equal(t, []string{"Arial Black", "Segoe UI", "sans-serif"}, spec.families)

	_, ok = parseFont("72px")
	assert.False(t, ok)
	_, ok = parseFont("large serif")
	assert.False(t, ok)
}

func TestParseColor(t *testing.T) {
	c, ok := parseColor("#f60")
	require.True(t, ok)
	assert.Equal(t, uint8(0xff), c.R)
	assert.Equal(t, uint8(0x66), c.G)
	assert.Equal(t, uint8(0x00), c.B)

	_, ok = parseColor("rgb(1,2,3)")
	assert.False(t, ok)
}

func TestWebGLParameters(t *testing.T) {
	gl := &emulatedWebGL{profile: WebGLProfile{
		Vendor:                 "WebKit",
		Renderer:               "WebKit WebGL",
		UnmaskedVendor:         "Vendor Inc.",
		UnmaskedRenderer:       "GPU 9000",
		ShadingLanguageVersion: "WebGL GLSL ES 1.0",
		Extensions:             []string{"OES_texture_float", DebugRendererInfo, "ANGLE_instanced_arrays"},
	}}

	v, err := gl.Parameter(GLUnmaskedRenderer)
	require.NoError(t, err)
	assert.Equal(t, "GPU 9000", v)

	exts, err := gl.SupportedExtensions()
	require.NoError(t, err)
	assert.Equal(t, "OES_texture_float", exts[0], "driver order is kept")

	gl.profile.Extensions = []string{"OES_texture_float"}
	_, err = gl.Parameter(GLUnmaskedVendor)
	assert.ErrorIs(t, err, ErrUnsupported)
	v, err = gl.Parameter(GLVendor)
	require.NoError(t, err)
	assert.Equal(t, "WebKit", v)

	_, err = gl.Parameter("MAX_TEXTURE_SIZE")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOfflineRender(t *testing.T) {
	ctx := context.Background()

	off := &emulatedOfflineContext{channels: 1, length: 8, sampleRate: 8}
	buf, err := off.Render(ctx, Oscillator{Type: "triangle", Frequency: 1})
	require.NoError(t, err)
	require.Len(t, buf.Channels, 1)
	assert.Equal(t, []float32{0, 0.5, 1, 0.5, 0, -0.5, -1, -0.5}, buf.Channels[0])

	skewed := &emulatedOfflineContext{channels: 1, length: 8, sampleRate: 8, skew: 0.5}
	buf, err = skewed.Render(ctx, Oscillator{Type: "triangle", Frequency: 1})
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), buf.Channels[0][2])

	_, err = off.Render(ctx, Oscillator{Type: "custom"})
	assert.ErrorIs(t, err, ErrUnsupported)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = off.Render(cancelled, Oscillator{Type: "sine", Frequency: 440})
	assert.ErrorIs(t, err, context.Canceled)
}
