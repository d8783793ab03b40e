package color

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBA represents a color with 8-bit RGBA components.
type RGBA struct {
	R, G, B, A uint8
}

// FromStdColor converts a standard library color to RGBA.
func FromStdColor(c color.Color) RGBA {
	r, g, b, a := c.RGBA()
	return RGBA{
		R: uint8(r >> 8),
		G: uint8(g >> 8),
		B: uint8(b >> 8),
		A: uint8(a >> 8),
	}
}

// ToStdColor converts RGBA to a standard library color.
func (c RGBA) ToStdColor() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// Hex returns the color as a lowercase "#rrggbb" string. Alpha is dropped.
func (c RGBA) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex parses a hex color string like "#000", "#000000", "#FF00FF".
// The leading '#' is optional.
func ParseHex(s string) (RGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RGBA{}, fmt.Errorf("invalid hex color %q: empty", s)
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if len(s) != 4 && len(s) != 7 {
		return RGBA{}, fmt.Errorf("invalid hex color %q: must be 3 or 6 hex digits", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGBA{R: r, G: g, B: b, A: 255}, nil
}

// NormalizeHex returns s as a canonical "#rrggbb" string, or false when s
// is not a valid hex color.
func NormalizeHex(s string) (string, bool) {
	c, err := ParseHex(s)
	if err != nil {
		return "", false
	}
	return c.Hex(), true
}

// Mean computes the average color of the opaque pixels of img.
// Fully transparent pixels (outside a partially out-of-bounds crop) are
// ignored. ok is false when img has no opaque pixel.
func Mean(img image.Image) (RGBA, bool) {
	if img == nil {
		return RGBA{}, false
	}
	b := img.Bounds()
	var colors []colorful.Color
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := FromStdColor(img.At(x, y))
			if px.A == 0 {
				continue
			}
			colors = append(colors, colorful.Color{
				R: float64(px.R) / 255.0,
				G: float64(px.G) / 255.0,
				B: float64(px.B) / 255.0,
			})
		}
	}
	if len(colors) == 0 {
		return RGBA{}, false
	}
	var sr, sg, sb float64
	for _, c := range colors {
		sr += c.R
		sg += c.G
		sb += c.B
	}
	n := float64(len(colors))
	avg := colorful.Color{R: sr / n, G: sg / n, B: sb / n}.Clamped()
	r, g, bl := avg.RGB255()
	return RGBA{R: r, G: g, B: bl, A: 255}, true
}

// IsLight returns true if the color is perceptually light (luminance > 0.5).
func (c RGBA) IsLight() bool {
	// Relative luminance formula
	rLin := srgbToLinear(float64(c.R) / 255.0)
	gLin := srgbToLinear(float64(c.G) / 255.0)
	bLin := srgbToLinear(float64(c.B) / 255.0)
	luminance := 0.2126*rLin + 0.7152*gLin + 0.0722*bLin
	return luminance > 0.5
}

func srgbToLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}
