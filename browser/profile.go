package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
)

// Profile describes one emulated device: what its navigator reports, which
// rendering capabilities exist, and how its rendering stack perturbs output.
type Profile struct {
	Name      string    `json:"name"`
	Family    string    `json:"family"` // chrome, edge, firefox, safari
	Navigator Navigator `json:"navigator"`
	Screen    Screen    `json:"screen"`
	Viewport  Viewport  `json:"viewport"`
	Timezone  string    `json:"timezone"`
	Fonts     []string  `json:"fonts" validate:"optional"`

	Canvas CanvasProfile `json:"canvas"`
	WebGL  *WebGLProfile `json:"webgl"` // nil: no WebGL
	Audio  AudioProfile  `json:"audio"`

	HasChrome      bool     `json:"has_chrome"`
	Globals        []string `json:"globals" validate:"optional"`
	DocumentProps  []string `json:"document_props" validate:"optional"`
	BlockedStorage []string `json:"blocked_storage" validate:"optional"` // session, local, cookie
}

type CanvasProfile struct {
	Supported bool   `json:"supported"`
	NoiseSeed uint32 `json:"noise_seed" validate:"optional"`
}

type WebGLProfile struct {
	Vendor                 string   `json:"vendor"`
	Renderer               string   `json:"renderer"`
	UnmaskedVendor         string   `json:"unmasked_vendor" validate:"optional"`
	UnmaskedRenderer       string   `json:"unmasked_renderer" validate:"optional"`
	ShadingLanguageVersion string   `json:"shading_language_version"`
	Extensions             []string `json:"extensions"`
}

type AudioProfile struct {
	Supported bool    `json:"supported"`
	Skew      float64 `json:"skew" validate:"optional"`
}

func (p Profile) storageBlocked(name string) bool {
	for _, b := range p.BlockedStorage {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

var windowsFonts = []string{
	"Arial", "Arial Black", "Comic Sans MS", "Courier New", "Georgia", "Impact",
	"Times New Roman", "Trebuchet MS", "Verdana", "Lucida Console", "Tahoma",
	"Palatino Linotype", "Lucida Sans Unicode", "MS Gothic", "Segoe UI", "Calibri",
}

var chromeExtensions = []string{
	"ANGLE_instanced_arrays", "EXT_blend_minmax", "EXT_clip_control", "EXT_color_buffer_half_float",
	"EXT_depth_clamp", "EXT_disjoint_timer_query", "EXT_float_blend", "EXT_frag_depth",
	"EXT_polygon_offset_clamp", "EXT_shader_texture_lod", "EXT_texture_compression_bptc",
	"EXT_texture_compression_rgtc", "EXT_texture_filter_anisotropic", "EXT_sRGB",
	"KHR_parallel_shader_compile", "OES_element_index_uint", "OES_fbo_render_mipmap",
	"OES_standard_derivatives", "OES_texture_float", "OES_texture_float_linear",
	"OES_texture_half_float", "OES_texture_half_float_linear", "OES_vertex_array_object",
	"WEBGL_color_buffer_float", "WEBGL_compressed_texture_s3tc", "WEBGL_compressed_texture_s3tc_srgb",
	"WEBGL_debug_renderer_info", "WEBGL_debug_shaders", "WEBGL_depth_texture", "WEBGL_draw_buffers",
	"WEBGL_lose_context", "WEBGL_multi_draw",
}

// Built-in profiles
var builtinProfiles = []Profile{
	{
		Name:   "chrome",
		Family: "chrome",
		Navigator: Navigator{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
			Platform:            "Win32",
			Language:            "en-US",
			Languages:           []string{"en-US", "en"},
			HardwareConcurrency: 8,
			DeviceMemory:        ptr(8.0),
			CookieEnabled:       true,
			Plugins:             5,
			MimeTypes:           2,
		},
		Screen:   Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1},
		Viewport: Viewport{Width: 1920, Height: 959},
		Timezone: "America/New_York",
		Fonts:    windowsFonts,
		Canvas:   CanvasProfile{Supported: true, NoiseSeed: 0x5eed0133},
		WebGL: &WebGLProfile{
			Vendor:                 "WebKit",
			Renderer:               "WebKit WebGL",
			UnmaskedVendor:         "Google Inc. (NVIDIA)",
			UnmaskedRenderer:       "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 (0x00002504) Direct3D11 vs_5_0 ps_5_0, D3D11)",
			ShadingLanguageVersion: "WebGL GLSL ES 1.0 (OpenGL ES GLSL ES 1.0 Chromium)",
			Extensions:             chromeExtensions,
		},
		Audio:     AudioProfile{Supported: true, Skew: 1.1e-7},
		HasChrome: true,
	},
	{
		Name:   "edge",
		Family: "edge",
		Navigator: Navigator{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
			Platform:            "Win32",
			Language:            "en-GB",
			Languages:           []string{"en-GB", "en", "en-US"},
			HardwareConcurrency: 12,
			DeviceMemory:        ptr(8.0),
			CookieEnabled:       true,
			Plugins:             5,
			MimeTypes:           2,
		},
		Screen:   Screen{Width: 2560, Height: 1440, ColorDepth: 24, PixelRatio: 1.25},
		Viewport: Viewport{Width: 2048, Height: 1030},
		Timezone: "Europe/London",
		Fonts:    windowsFonts,
		Canvas:   CanvasProfile{Supported: true, NoiseSeed: 0xed6e0131},
		WebGL: &WebGLProfile{
			Vendor:                 "WebKit",
			Renderer:               "WebKit WebGL",
			UnmaskedVendor:         "Google Inc. (Intel)",
			UnmaskedRenderer:       "ANGLE (Intel, Intel(R) UHD Graphics 630 (0x00003E9B) Direct3D11 vs_5_0 ps_5_0, D3D11)",
			ShadingLanguageVersion: "WebGL GLSL ES 1.0 (OpenGL ES GLSL ES 1.0 Chromium)",
			Extensions:             chromeExtensions,
		},
		Audio:     AudioProfile{Supported: true, Skew: 1.3e-7},
		HasChrome: true,
	},
	{
		Name:   "firefox",
		Family: "firefox",
		Navigator: Navigator{
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
			Platform:            "Win32",
			Language:            "en-US",
			Languages:           []string{"en-US", "en"},
			HardwareConcurrency: 16,
			CookieEnabled:       true,
			DoNotTrack:          ptr("1"),
			Plugins:             5,
			MimeTypes:           2,
		},
		Screen:   Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1},
		Viewport: Viewport{Width: 1920, Height: 955},
		Timezone: "America/Chicago",
		Fonts:    windowsFonts[:14],
		Canvas:   CanvasProfile{Supported: true, NoiseSeed: 0xf1efe135},
		WebGL: &WebGLProfile{
			Vendor:                 "Mozilla",
			Renderer:               "Mozilla",
			UnmaskedVendor:         "Google Inc. (NVIDIA)",
			UnmaskedRenderer:       "ANGLE (NVIDIA, NVIDIA GeForce GTX 980 Direct3D11 vs_5_0 ps_5_0), or similar",
			ShadingLanguageVersion: "WebGL GLSL ES 1.0",
			Extensions: []string{
				"ANGLE_instanced_arrays", "EXT_blend_minmax", "EXT_color_buffer_half_float", "EXT_float_blend",
				"EXT_frag_depth", "EXT_shader_texture_lod", "EXT_sRGB", "EXT_texture_filter_anisotropic",
				"OES_element_index_uint", "OES_standard_derivatives", "OES_texture_float", "OES_vertex_array_object",
				"WEBGL_debug_renderer_info", "WEBGL_depth_texture", "WEBGL_draw_buffers", "WEBGL_lose_context",
			},
		},
		Audio: AudioProfile{Supported: true, Skew: -2.2e-7},
	},
	{
		Name:   "iphone",
		Family: "safari",
		Navigator: Navigator{
			UserAgent:           "Mozilla/5.0 (iPhone; CPU iPhone OS 18_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1",
			Platform:            "iPhone",
			Language:            "en-US",
			Languages:           []string{"en-US"},
			HardwareConcurrency: 4,
			CookieEnabled:       true,
		},
		Screen:   Screen{Width: 390, Height: 844, ColorDepth: 24, PixelRatio: 3},
		Viewport: Viewport{Width: 390, Height: 664},
		Timezone: "America/Los_Angeles",
		Fonts:    []string{"Arial", "Courier New", "Georgia", "Times New Roman", "Trebuchet MS", "Verdana"},
		Canvas:   CanvasProfile{Supported: true, NoiseSeed: 0x105e1802},
		WebGL: &WebGLProfile{
			Vendor:                 "WebKit",
			Renderer:               "WebKit WebGL",
			UnmaskedVendor:         "Apple Inc.",
			UnmaskedRenderer:       "Apple GPU",
			ShadingLanguageVersion: "WebGL GLSL ES 1.0 (1.0)",
			Extensions: []string{
				"ANGLE_instanced_arrays", "EXT_blend_minmax", "EXT_color_buffer_half_float", "EXT_float_blend",
				"EXT_frag_depth", "EXT_shader_texture_lod", "EXT_texture_filter_anisotropic", "OES_element_index_uint",
				"OES_fbo_render_mipmap", "OES_standard_derivatives", "OES_texture_float", "OES_texture_half_float",
				"OES_vertex_array_object", "WEBGL_color_buffer_float", "WEBGL_debug_renderer_info", "WEBGL_depth_texture",
				"WEBGL_lose_context", "WEBGL_multi_draw",
			},
		},
		Audio: AudioProfile{Supported: true, Skew: 3.7e-7},
	},
	{
		Name:   "headless",
		Family: "chrome",
		Navigator: Navigator{
			UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/133.0.0.0 Safari/537.36",
			Platform:            "Linux x86_64",
			Language:            "en-US",
			Languages:           []string{"en-US"},
			Webdriver:           true,
			HardwareConcurrency: 2,
			DeviceMemory:        ptr(2.0),
			CookieEnabled:       true,
		},
		Screen:   Screen{Width: 800, Height: 600, ColorDepth: 24, PixelRatio: 1},
		Viewport: Viewport{Width: 800, Height: 600},
		Timezone: "UTC",
		Canvas:   CanvasProfile{Supported: true},
		WebGL: &WebGLProfile{
			Vendor:                 "WebKit",
			Renderer:               "WebKit WebGL",
			UnmaskedVendor:         "Google Inc. (Google)",
			UnmaskedRenderer:       "ANGLE (Google, Vulkan 1.3.0 (SwiftShader Device (Subzero) (0x0000C0DE)), SwiftShader driver)",
			ShadingLanguageVersion: "WebGL GLSL ES 1.0 (OpenGL ES GLSL ES 1.0 Chromium)",
			Extensions:             chromeExtensions[:20],
		},
		Audio:         AudioProfile{Supported: false},
		Globals:       []string{"domAutomation", "domAutomationController"},
		DocumentProps: []string{"__webdriver_script_fn"},
	},
}

// BuiltinProfiles returns copies of the built-in profiles.
func BuiltinProfiles() []Profile {
	out := make([]Profile, len(builtinProfiles))
	copy(out, builtinProfiles)
	return out
}

// ProfileSet is a name-indexed profile catalogue.
type ProfileSet struct {
	byName map[string]Profile
}

func NewProfileSet(profiles ...Profile) (*ProfileSet, error) {
	set := &ProfileSet{byName: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := validateProfile(p, "profile '"+p.Name+"'"); err != nil {
			return nil, err
		}
		set.byName[strings.ToLower(p.Name)] = p
	}
	return set, nil
}

// LoadProfiles merges the built-ins with a JSON array of profiles from path.
// File entries replace built-ins of the same name.
func LoadProfiles(path string) (*ProfileSet, error) {
	profiles := BuiltinProfiles()
	if path == "" {
		return NewProfileSet(profiles...)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var extra []Profile
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return NewProfileSet(append(profiles, extra...)...)
}

func (s *ProfileSet) Get(name string) (Profile, bool) {
	p, ok := s.byName[strings.ToLower(name)]
	return p, ok
}

func (s *ProfileSet) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// validateProfile rejects profiles with empty required fields. Fields tagged
// validate:"optional", bools and nil pointers are skipped; nested structs and
// non-nil pointers are checked recursively.
func validateProfile(data any, context string) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		if field.Tag.Get("validate") == "optional" {
			continue
		}
		switch value.Kind() {
		case reflect.Bool:
			continue
		case reflect.Pointer:
			if value.IsNil() {
				continue
			}
			if err := validateProfile(value.Interface(), context+" > "+field.Name); err != nil {
				return err
			}
			continue
		case reflect.Struct:
			if err := validateProfile(value.Interface(), context+" > "+field.Name); err != nil {
				return err
			}
			continue
		}

		if value.IsZero() && !zeroAllowed(t, field.Name) {
			return fmt.Errorf("%s field '%s' is missing a value", context, field.Name)
		}
	}
	return nil
}

// zeroAllowed lists counters where 0 is a legitimate reading.
func zeroAllowed(t reflect.Type, field string) bool {
	if t == reflect.TypeOf(Navigator{}) {
		switch field {
		case "Plugins", "MimeTypes", "HardwareConcurrency", "Languages":
			return true
		}
	}
	return false
}
