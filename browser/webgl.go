package browser

import "fmt"

type emulatedWebGL struct {
	profile WebGLProfile
}

func (g *emulatedWebGL) HasExtension(name string) bool {
	for _, ext := range g.profile.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

func (g *emulatedWebGL) Parameter(name string) (string, error) {
	switch name {
	case GLVendor:
		return g.profile.Vendor, nil
	case GLRenderer:
		return g.profile.Renderer, nil
	case GLShadingLanguageVersion:
		return g.profile.ShadingLanguageVersion, nil
	case GLUnmaskedVendor, GLUnmaskedRenderer:
		// INVALID_ENUM until the debug extension is enabled
		if !g.HasExtension(DebugRendererInfo) {
			return "", fmt.Errorf("getParameter(%s): %w", name, ErrUnsupported)
		}
		if name == GLUnmaskedVendor {
			return g.profile.UnmaskedVendor, nil
		}
		return g.profile.UnmaskedRenderer, nil
	}
	return "", fmt.Errorf("getParameter(%s): %w", name, ErrUnsupported)
}

// SupportedExtensions returns the driver's order, which is not sorted.
func (g *emulatedWebGL) SupportedExtensions() ([]string, error) {
	out := make([]string, len(g.profile.Extensions))
	copy(out, g.profile.Extensions)
	return out, nil
}
