package model

import (
	"image/color"
	"math"

	"github.com/flanksource/docmorph/errors"
)

// Color holds normalized RGBA components in [0,1]. Input accepts either a
// packed 0xRRGGBB integer or a 3/4-float tuple; output is always the
// canonical [r,g,b,a] float form.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Black is the default color for text elements.
var Black = Color{R: 0, G: 0, B: 0, A: 1}

// White is the default page background.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// NewColor builds a color from normalized components, clamping into [0,1].
func NewColor(r, g, b, a float64) Color {
	return Color{R: clamp01(r), G: clamp01(g), B: clamp01(b), A: clamp01(a)}
}

// ParseColor accepts the two wire forms: a packed integer (0xRRGGBB, alpha
// implied opaque) or a [r,g,b] / [r,g,b,a] float array. Anything else is a
// schema error.
func ParseColor(v any) (Color, error) {
	switch c := v.(type) {
	case nil:
		return Black, nil
	case int:
		return fromPacked(int64(c))
	case int64:
		return fromPacked(c)
	case float64:
		// JSON integers arrive as float64; a packed value is always whole.
		if c != math.Trunc(c) || c < 0 {
			return Color{}, errors.New(errors.ErrCodeSchema, "packed color must be a non-negative integer, got %v", c)
		}
		return fromPacked(int64(c))
	case []float64:
		return fromTuple(c)
	case []any:
		tuple := make([]float64, 0, len(c))
		for _, e := range c {
			f, ok := e.(float64)
			if !ok {
				return Color{}, errors.New(errors.ErrCodeSchema, "color tuple component is not a number: %v", e)
			}
			tuple = append(tuple, f)
		}
		return fromTuple(tuple)
	default:
		return Color{}, errors.New(errors.ErrCodeSchema, "unsupported color form %T", v)
	}
}

func fromPacked(packed int64) (Color, error) {
	if packed < 0 || packed > 0xFFFFFF {
		return Color{}, errors.New(errors.ErrCodeSchema, "packed color out of range: %d", packed)
	}
	r := float64((packed>>16)&0xFF) / 255.0
	g := float64((packed>>8)&0xFF) / 255.0
	b := float64(packed&0xFF) / 255.0
	return Color{R: r, G: g, B: b, A: 1}, nil
}

func fromTuple(tuple []float64) (Color, error) {
	if len(tuple) != 3 && len(tuple) != 4 {
		return Color{}, errors.New(errors.ErrCodeSchema, "color tuple must have 3 or 4 components, got %d", len(tuple))
	}
	for _, f := range tuple {
		if math.IsNaN(f) || f < 0 || f > 1 {
			return Color{}, errors.New(errors.ErrCodeSchema, "color component outside [0,1]: %v", f)
		}
	}
	c := Color{R: tuple[0], G: tuple[1], B: tuple[2], A: 1}
	if len(tuple) == 4 {
		c.A = tuple[3]
	}
	return c, nil
}

// ToSlice returns the canonical [r,g,b,a] emission form.
func (c Color) ToSlice() []float64 {
	return []float64{c.R, c.G, c.B, c.A}
}

// NRGBA converts to the 8-bit form used by raster backends.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{
		R: uint8(math.Round(c.R * 255)),
		G: uint8(math.Round(c.G * 255)),
		B: uint8(math.Round(c.B * 255)),
		A: uint8(math.Round(c.A * 255)),
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
