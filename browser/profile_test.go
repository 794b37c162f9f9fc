package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinProfilesValid(t *testing.T) {
	set, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, []string{"chrome", "edge", "firefox", "headless", "iphone"}, set.Names())

	p, ok := set.Get("Chrome")
	require.True(t, ok)
	assert.Equal(t, "chrome", p.Family)

	// copies do not alias the package table
	profiles := BuiltinProfiles()
	profiles[0].Name = "mutated"
	assert.Equal(t, "chrome", BuiltinProfiles()[0].Name)
}

func TestLoadProfilesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {
    "name": "kiosk",
    "family": "chrome",
    "navigator": {
      "userAgent": "Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) Chrome/133.0.0.0",
      "platform": "Linux x86_64",
      "language": "de-DE",
      "languages": ["de-DE"],
      "hardwareConcurrency": 4,
      "cookieEnabled": true
    },
    "screen": {"width": 1366, "height": 768, "colorDepth": 24, "pixelRatio": 1},
    "viewport": {"width": 1366, "height": 650},
    "timezone": "Europe/Berlin",
    "canvas": {"supported": false},
    "audio": {"supported": false}
  }
]`), 0o600))

	set, err := LoadProfiles(path)
	require.NoError(t, err)
	p, ok := set.Get("kiosk")
	require.True(t, ok)
	assert.Equal(t, "de-DE", p.Navigator.Language)
	assert.Nil(t, p.WebGL)
	assert.Contains(t, set.Names(), "chrome")
}

func TestLoadProfilesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfiles(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{not json`), 0o600))
	_, err = LoadProfiles(bad)
	assert.ErrorContains(t, err, "unmarshal")

	incomplete := filepath.Join(dir, "incomplete.json")
	require.NoError(t, os.WriteFile(incomplete, []byte(`[{"name": "x", "family": "chrome"}]`), 0o600))
	_, err = LoadProfiles(incomplete)
	assert.ErrorContains(t, err, "is missing a value")
}

func TestValidateProfileNested(t *testing.T) {
	p := BuiltinProfiles()[0]
	gl := *p.WebGL
	gl.ShadingLanguageVersion = ""
	p.WebGL = &gl

	err := validateProfile(p, "profile 'chrome'")
	require.Error(t, err)
	assert.Equal(t, "profile 'chrome' > WebGL field 'ShadingLanguageVersion' is missing a value", err.Error())

	p.WebGL = nil
	assert.NoError(t, validateProfile(p, "profile 'chrome'"))
}
