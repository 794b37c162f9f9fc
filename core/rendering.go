package core

import (
	"context"
	"errors"
	"sort"
	"strings"

	"riskagent/browser"
	"riskagent/utils"
)

// Artifact is a raw rendering output that can be reduced to a digest.
type Artifact interface {
	digestInput() ([]byte, error)
}

type CanvasArtifact string

func (a CanvasArtifact) digestInput() ([]byte, error) { return []byte(a), nil }

// WebGLDescriptor serializes with the key order the digest is defined over.
type WebGLDescriptor struct {
	Vendor                 string   `json:"VENDOR"`
	Renderer               string   `json:"RENDERER"`
	ShadingLanguageVersion string   `json:"SHADING_LANGUAGE_VERSION"`
	Extensions             []string `json:"EXTENSIONS"`
}

func (d WebGLDescriptor) digestInput() ([]byte, error) { return utils.CanonicalJSON(d) }

type AudioArtifact string

func (a AudioArtifact) digestInput() ([]byte, error) { return []byte(a), nil }

// FontList is the ordered set of detected fonts.
type FontList []string

func (f FontList) digestInput() ([]byte, error) {
	if f == nil {
		f = FontList{}
	}
	return utils.CanonicalJSON([]string(f))
}

// Digest slots a Source may fill, keyed by Source.Name.
const (
	SlotCanvas = "canvas"
	SlotWebGL  = "webgl"
	SlotAudio  = "audio"
)

// Source produces one rendering artifact. ok == false is the absence marker:
// the capability is missing or probing failed. Name must be one of the Slot
// constants; NewAgent rejects anything else.
type Source interface {
	Name() string
	Produce(ctx context.Context, w browser.Window) (a Artifact, ok bool)
}

// Canvas drawing constants. They never vary so output differences come from
// the rendering stack alone.
const (
	canvasText     = "RiskEngineFingerprint"
	canvasFont     = "14px Arial"
	canvasBoxColor = "#f60"
	canvasInkColor = "#069"
)

type CanvasSource struct{}

func (CanvasSource) Name() string { return SlotCanvas }

func (CanvasSource) Produce(_ context.Context, w browser.Window) (Artifact, bool) {
	return attempt(func() (Artifact, error) {
		c, err := w.NewCanvas(300, 150)
		if err != nil {
			return nil, err
		}
		steps := []func() error{
			func() error { return c.SetTextBaseline("top") },
			func() error { return c.SetFont(canvasFont) },
			func() error { return c.SetFillStyle(canvasBoxColor) },
			func() error { return c.FillRect(125, 1, 62, 20) },
			func() error { return c.SetFillStyle(canvasInkColor) },
			func() error { return c.FillText(canvasText, 2, 15) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return nil, err
			}
		}
		url, err := c.DataURL()
		if err != nil {
			return nil, err
		}
		return CanvasArtifact(url), nil
	})
}

type WebGLSource struct{}

func (WebGLSource) Name() string { return SlotWebGL }

// Produce prefers the unmasked identifiers when the debug extension exists.
func (WebGLSource) Produce(_ context.Context, w browser.Window) (Artifact, bool) {
	return attempt(func() (Artifact, error) {
		gl, err := w.NewWebGL()
		if err != nil {
			return nil, err
		}

		vendorParam, rendererParam := browser.GLVendor, browser.GLRenderer
		if gl.HasExtension(browser.DebugRendererInfo) {
			vendorParam, rendererParam = browser.GLUnmaskedVendor, browser.GLUnmaskedRenderer
		}

		var d WebGLDescriptor
		if d.Vendor, err = gl.Parameter(vendorParam); err != nil {
			return nil, err
		}
		if d.Renderer, err = gl.Parameter(rendererParam); err != nil {
			return nil, err
		}
		if d.ShadingLanguageVersion, err = gl.Parameter(browser.GLShadingLanguageVersion); err != nil {
			return nil, err
		}

		exts, err := gl.SupportedExtensions()
		if err != nil {
			return nil, err
		}
		d.Extensions = append([]string{}, exts...)
		sort.Strings(d.Extensions)
		return d, nil
	})
}

// Offline render parameters.
const (
	audioLength     = 44100
	audioSampleRate = 44100
	audioFrequency  = 10000
	audioSamples    = 100
)

var errNoSamples = errors.New("offline render produced no samples")

type AudioSource struct{}

func (AudioSource) Name() string { return SlotAudio }

// Produce opens a realtime context only to confirm audio exists, and closes
// it on every path.
func (AudioSource) Produce(ctx context.Context, w browser.Window) (Artifact, bool) {
	return attempt(func() (Artifact, error) {
		realtime, err := w.NewAudioContext()
		if err != nil {
			return nil, err
		}
		defer realtime.Close()

		offline, err := w.NewOfflineAudioContext(1, audioLength, audioSampleRate)
		if err != nil {
			return nil, err
		}
		buf, err := offline.Render(ctx, browser.Oscillator{Type: "triangle", Frequency: audioFrequency})
		if err != nil {
			return nil, err
		}
		if len(buf.Channels) == 0 || len(buf.Channels[0]) == 0 {
			return nil, errNoSamples
		}

		samples := buf.Channels[0]
		if len(samples) > audioSamples {
			samples = samples[:audioSamples]
		}
		var b strings.Builder
		for _, s := range samples {
			b.WriteString(utils.FormatJSNumber(float64(s)))
		}
		return AudioArtifact(b.String()), nil
	})
}

func DefaultSources() []Source {
	return []Source{CanvasSource{}, WebGLSource{}, AudioSource{}}
}
