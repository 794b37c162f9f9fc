// Package browser models the page environment a collection cycle runs in.
//
// Window is the capability surface the collector probes. Page emulates it
// in-process (goja globals over an x/net/html document) and ChromeWindow
// drives a real Chrome tab over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupported means the environment lacks the capability entirely.
	ErrUnsupported = errors.New("browser: capability not supported")
	ErrDetached    = errors.New("browser: node is not attached")
	ErrBlocked     = errors.New("browser: blocked by content security policy")
	ErrSecurity    = errors.New("browser: security error")
	ErrNoDocument  = errors.New("browser: no document")
)

type StorageKind int

const (
	SessionStorage StorageKind = iota
	LocalStorage
)

func (k StorageKind) String() string {
	if k == LocalStorage {
		return "localStorage"
	}
	return "sessionStorage"
}

// Ready states reported by Document.ReadyState.
const (
	ReadyLoading     = "loading"
	ReadyInteractive = "interactive"
	ReadyComplete    = "complete"
)

type Navigator struct {
	UserAgent           string   `json:"userAgent"`
	Platform            string   `json:"platform"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	Webdriver           bool     `json:"webdriver"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	DeviceMemory        *float64 `json:"deviceMemory"`
	CookieEnabled       bool     `json:"cookieEnabled"`
	DoNotTrack          *string  `json:"doNotTrack"`
	Plugins             int      `json:"plugins"`
	MimeTypes           int      `json:"mimeTypes"`
}

type Screen struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	ColorDepth int     `json:"colorDepth"`
	PixelRatio float64 `json:"pixelRatio"`
}

type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style is the subset of a computed style the scanner reads.
type Style struct {
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	Opacity    float64 `json:"opacity"`
}

type Window interface {
	Navigator() (Navigator, error)
	Screen() (Screen, error)
	Viewport() (Viewport, error)
	// Location is the page URL, origin is derived from it.
	Location() string
	Referrer() string
	Timezone() string
	// HasGlobal reports `name in window`.
	HasGlobal(name string) bool
	// NativeFunctionSource returns Function.prototype.toString.toString().
	NativeFunctionSource() (string, error)
	Document() (Document, error)
	Storage(kind StorageKind) (Storage, error)
	Cookies() (CookieJar, error)
	NewCanvas(width, height int) (Canvas, error)
	NewWebGL() (WebGL, error)
	NewAudioContext() (AudioContext, error)
	NewOfflineAudioContext(channels, length int, sampleRate float64) (OfflineAudioContext, error)
}

type Document interface {
	ReadyState() string
	// HasProperty reports `name in document`.
	HasProperty(name string) bool
	Head() (Node, error)
	Body() (Node, error)
	CreateElement(tag string) (Element, error)
	CreateFrame() (Frame, error)
	Frames() ([]Frame, error)
	// OnReady runs fn once the document leaves the loading state, right away
	// (on another goroutine) if it already has.
	OnReady(fn func())
	// OnClick registers a capturing click listener.
	OnClick(fn func(at time.Time)) (remove func())
}

type Node interface {
	AppendChild(child Element) error
	RemoveChild(child Element) error
}

type Element interface {
	Node
	SetAttribute(name, value string) error
	SetText(text string) error
	Attached() bool
}

type Frame interface {
	Element
	Src() string
	ComputedStyle() (Style, error)
	BoundingRect() (Rect, error)
	ContentReadyState() (string, error)
	ContentNavigator() (Navigator, error)
	// OnLoad registers fn for the frame's next load event.
	OnLoad(fn func()) (cancel func())
}

// Canvas is a 2D drawing surface with its context.
type Canvas interface {
	SetFont(font string) error
	SetFillStyle(style string) error
	SetTextBaseline(baseline string) error
	FillRect(x, y, w, h float64) error
	FillText(text string, x, y float64) error
	MeasureText(text string) (float64, error)
	DataURL() (string, error)
}

// WebGL parameter names accepted by WebGL.Parameter.
const (
	GLVendor                 = "VENDOR"
	GLRenderer               = "RENDERER"
	GLShadingLanguageVersion = "SHADING_LANGUAGE_VERSION"
	GLUnmaskedVendor         = "UNMASKED_VENDOR_WEBGL"
	GLUnmaskedRenderer       = "UNMASKED_RENDERER_WEBGL"

	DebugRendererInfo = "WEBGL_debug_renderer_info"
)

type WebGL interface {
	HasExtension(name string) bool
	Parameter(name string) (string, error)
	SupportedExtensions() ([]string, error)
}

type AudioContext interface {
	Close() error
}

type Oscillator struct {
	Type      string
	Frequency float64
}

type AudioBuffer struct {
	SampleRate float64
	Channels   [][]float32
}

type OfflineAudioContext interface {
	Render(ctx context.Context, osc Oscillator) (AudioBuffer, error)
}

type Storage interface {
	SetItem(key, value string) error
	GetItem(key string) (string, bool, error)
	RemoveItem(key string) error
}

// CookieJar mirrors document.cookie.
type CookieJar interface {
	Cookie() (string, error)
	SetCookie(cookie string) error
}
