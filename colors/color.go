package colors

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color4 is an RGBA color with float64 components in [0,1].
type Color4 struct {
	R, G, B, A float64
}

// FromHex builds an opaque color from a 0xRRGGBB value.
func FromHex(hex uint32) Color4 {
	return From8BitRgb(byte(hex>>16), byte(hex>>8), byte(hex), 255)
}

// named holds the CSS color keywords the scene configuration accepts.
var named = map[string]uint32{
	"black": 0x000000,
	"white": 0xffffff,
	"red":   0xff0000,
	"green": 0x008000,
	"lime":  0x00ff00,
	"blue":  0x0000ff,
	"pink":  0xffc0cb,
	"gray":  0x808080,
}

// Parse accepts a CSS keyword ("pink"), "#rrggbb" or "0xrrggbb".
func Parse(s string) (Color4, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if hex, ok := named[s]; ok {
		return FromHex(hex), nil
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "#"), "0x")
	if len(digits) != 6 {
		return Color4{}, fmt.Errorf("invalid color %q", s)
	}
	hex, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return Color4{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return FromHex(uint32(hex)), nil
}

func (c Color4) RGBA() (r, g, b, a uint32) {
	rf := clamp01(c.R)
	gf := clamp01(c.G)
	bf := clamp01(c.B)
	af := clamp01(c.A)

	// Convert to pre-multiplied 16-bit values
	return uint32(rf * af * 65535),
		uint32(gf * af * 65535),
		uint32(bf * af * 65535),
		uint32(af * 65535)
}

func FromStandardColor(c color.Color) Color4 {
	// Fast path: already a Color4
	if c4, ok := c.(Color4); ok {
		return c4
	}

	r16, g16, b16, a16 := c.RGBA()
	if a16 == 0 {
		return Color4{R: 0, G: 0, B: 0, A: 0}
	}

	// De-premultiply and normalize to [0,1]
	invA := float64(0xFFFF) / float64(a16)
	return Color4{
		R: float64(r16) * invA / 65535.0,
		G: float64(g16) * invA / 65535.0,
		B: float64(b16) * invA / 65535.0,
		A: float64(a16) / 65535.0,
	}
}

func From8BitRgb(r, g, b, a byte) Color4 {
	return Color4{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
		A: float64(a) / 255.0,
	}
}

func White() Color4 {
	return Color4{R: 1, G: 1, B: 1, A: 1}
}

func Black() Color4 {
	return Color4{R: 0, G: 0, B: 0, A: 1}
}

// Add returns c + o (component-wise).
func (c Color4) Add(o Color4) Color4 {
	return Color4{c.R + o.R, c.G + o.G, c.B + o.B, c.A + o.A}
}

// Mul returns c * o (component-wise).
func (c Color4) Mul(o Color4) Color4 {
	return Color4{c.R * o.R, c.G * o.G, c.B * o.B, c.A * o.A}
}

// Scale returns c * s (scalar).
func (c Color4) Scale(s float64) Color4 {
	return Color4{c.R * s, c.G * s, c.B * s, c.A * s}
}

// ScaleRGB scales the color channels and leaves alpha alone.
func (c Color4) ScaleRGB(s float64) Color4 {
	return Color4{c.R * s, c.G * s, c.B * s, c.A}
}

// Mix returns lerp(c, o, t) = c*(1-t) + o*t.
func (c Color4) Mix(o Color4, t float64) Color4 {
	return Color4{
		R: c.R*(1-t) + o.R*t,
		G: c.G*(1-t) + o.G*t,
		B: c.B*(1-t) + o.B*t,
		A: c.A*(1-t) + o.A*t,
	}
}

// Over composites c with opacity alpha over an opaque background.
func (c Color4) Over(background Color4, alpha float64) Color4 {
	return background.Mix(c, clamp01(alpha)).WithAlpha(background.A)
}

func (c Color4) WithAlpha(a float64) Color4 {
	return Color4{
		R: c.R,
		G: c.G,
		B: c.B,
		A: a,
	}
}

// ToNRGBA converts to 8 bits per channel, truncating.
func (c Color4) ToNRGBA() color.NRGBA {
	return color.NRGBA{
		to8bit(c.R),
		to8bit(c.G),
		to8bit(c.B),
		to8bit(c.A),
	}
}

// --- helpers ---

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// to8bit is int(255 * clamp01(x)) with truncation toward zero.
func to8bit(x float64) uint8 {
	return uint8(255.0 * clamp01(x))
}
