package browser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"
)

var genericFamilies = map[string]bool{
	"serif": true, "sans-serif": true, "monospace": true,
	"cursive": true, "fantasy": true, "system-ui": true,
}

type fontSpec struct {
	size     float64
	families []string
}

// parseFont reads the size and family list of a CSS font shorthand such as
// "bold 72px 'Arial Black', monospace".
func parseFont(font string) (fontSpec, bool) {
	fields := strings.Fields(font)
	for i, f := range fields {
		sizeTok, _, _ := strings.Cut(f, "/") // 14px/1.2
		if !strings.HasSuffix(sizeTok, "px") {
			continue
		}
		size, err := strconv.ParseFloat(strings.TrimSuffix(sizeTok, "px"), 64)
		if err != nil || size <= 0 {
			return fontSpec{}, false
		}

		var families []string
		for _, fam := range strings.Split(strings.Join(fields[i+1:], " "), ",") {
			fam = strings.Trim(strings.TrimSpace(fam), `'"`)
			if fam != "" {
				families = append(families, fam)
			}
		}
		if len(families) == 0 {
			return fontSpec{}, false
		}
		return fontSpec{size: size, families: families}, true
	}
	return fontSpec{}, false
}

// fontMetrics resolves families against the installed font set and yields
// per-glyph advances.
type fontMetrics struct {
	installed map[string]bool
}

func newFontMetrics(fonts []string) fontMetrics {
	m := fontMetrics{installed: make(map[string]bool, len(fonts))}
	for _, f := range fonts {
		m.installed[strings.ToLower(f)] = true
	}
	return m
}

func (m fontMetrics) resolve(families []string) string {
	for _, fam := range families {
		lower := strings.ToLower(fam)
		if genericFamilies[lower] || m.installed[lower] {
			return lower
		}
	}
	return "sans-serif"
}

// advance is the glyph width in ems. Monospace is fixed pitch, every other
// face gets a stable per-glyph width derived from its name.
func advance(family string, r rune) float64 {
	if family == "monospace" {
		return 0.6
	}
	h := fnv.New32a()
	h.Write([]byte(family))
	h.Write([]byte(string(r)))
	return 0.45 + float64(h.Sum32()%450)/1000
}

func (m fontMetrics) measure(spec fontSpec, text string) float64 {
	family := m.resolve(spec.families)
	width := 0.0
	for _, r := range text {
		width += advance(family, r) * spec.size
	}
	return width
}

type emulatedCanvas struct {
	mu       sync.Mutex
	img      *image.RGBA
	metrics  fontMetrics
	font     fontSpec
	fill     color.RGBA
	baseline string
	seed     uint32
}

func newEmulatedCanvas(width, height int, fonts []string, seed uint32) *emulatedCanvas {
	font, _ := parseFont("10px sans-serif")
	return &emulatedCanvas{
		img:      image.NewRGBA(image.Rect(0, 0, width, height)),
		metrics:  newFontMetrics(fonts),
		font:     font,
		fill:     color.RGBA{A: 0xff},
		baseline: "alphabetic",
		seed:     seed,
	}
}

// Invalid values are ignored, matching canvas attribute setters.
func (c *emulatedCanvas) SetFont(font string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if spec, ok := parseFont(font); ok {
		c.font = spec
	}
	return nil
}

func (c *emulatedCanvas) SetFillStyle(style string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := parseColor(style); ok {
		c.fill = col
	}
	return nil
}

func (c *emulatedCanvas) SetTextBaseline(baseline string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch baseline {
	case "top", "hanging", "middle", "alphabetic", "ideographic", "bottom":
		c.baseline = baseline
	}
	return nil
}

func (c *emulatedCanvas) FillRect(x, y, w, h float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillBox(x, y, w, h)
	return nil
}

func (c *emulatedCanvas) fillBox(x, y, w, h float64) {
	r := image.Rect(int(x), int(y), int(x+w), int(y+h)).Intersect(c.img.Bounds())
	draw.Draw(c.img, r, &image.Uniform{C: c.fill}, image.Point{}, draw.Over)
}

// FillText rasterizes each glyph as stems sized by its advance. Only the
// geometry has to be stable, not legible.
func (c *emulatedCanvas) FillText(text string, x, y float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.font.size
	ascent := size * 0.8
	top := y
	switch c.baseline {
	case "alphabetic", "ideographic":
		top = y - ascent
	case "middle":
		top = y - size/2
	case "bottom":
		top = y - size
	}

	family := c.metrics.resolve(c.font.families)
	pen := x
	for _, r := range text {
		adv := advance(family, r) * size
		stems := int(r%3) + 1
		stemW := adv / float64(2*stems+1)
		for s := 0; s < stems; s++ {
			c.fillBox(pen+stemW*float64(2*s+1), top+size*0.1, stemW, ascent-float64(r%5))
		}
		pen += adv
	}
	return nil
}

func (c *emulatedCanvas) MeasureText(text string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics.measure(c.font, text), nil
}

// DataURL encodes the bitmap as a PNG data URL. A non-zero seed perturbs
// low bits of a few painted pixels the way GPU anti-aliasing differences do.
func (c *emulatedCanvas) DataURL() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.img
	if c.seed != 0 {
		out = perturb(c.img, c.seed)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return "", fmt.Errorf("encode canvas: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// perturb flips the red low bit of up to 16 opaque pixels picked by a
// xorshift sequence. Transparent pixels would lose the flip when PNG
// encoding un-premultiplies them.
func perturb(img *image.RGBA, seed uint32) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)

	var opaque []int
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i+3] == 0xff {
			opaque = append(opaque, i)
		}
	}
	if len(opaque) == 0 {
		return out
	}

	state := seed
	for i := 0; i < 16; i++ {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		out.Pix[opaque[int(state%uint32(len(opaque)))]] ^= 1
	}
	return out
}

var namedColors = map[string]color.RGBA{
	"black": {A: 0xff},
	"white": {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	"red":   {R: 0xff, A: 0xff},
	"green": {G: 0x80, A: 0xff},
	"blue":  {B: 0xff, A: 0xff},
}

func parseColor(s string) (color.RGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	if !strings.HasPrefix(s, "#") {
		return color.RGBA{}, false
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
