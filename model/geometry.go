package model

import (
	"math"

	"github.com/flanksource/docmorph/errors"
)

// MaxDimension is the largest width or height a bounding box may have.
// Anything beyond this is treated as corrupt geometry rather than a real
// coordinate, and rejected before area/intersection math can produce
// meaningless numbers.
const MaxDimension = 1e6

// Point is a 2D coordinate in document space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in document units (points for pages, pixels
// for canvases).
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BBox is an axis-aligned bounding box. The invariant X0 <= X1 and Y0 <= Y1
// with all coordinates finite is checked by Validate; helpers that compute
// geometry call Validate first and refuse degenerate input.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// NewBBox builds a validated bounding box.
func NewBBox(x0, y0, x1, y1 float64) (BBox, error) {
	b := BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate checks ordering, finiteness and the dimension cap.
func (b BBox) Validate() error {
	for _, v := range []float64{b.X0, b.Y0, b.X1, b.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New(errors.ErrCodeInvalidGeometry, "bbox coordinate is not finite: %v", b)
		}
	}
	if b.X1 < b.X0 || b.Y1 < b.Y0 {
		return errors.New(errors.ErrCodeInvalidGeometry, "bbox coordinates out of order: [%g %g %g %g]", b.X0, b.Y0, b.X1, b.Y1)
	}
	if b.Width() > MaxDimension || b.Height() > MaxDimension {
		return errors.New(errors.ErrCodeInvalidGeometry, "bbox dimension exceeds %g: [%g %g %g %g]", MaxDimension, b.X0, b.Y0, b.X1, b.Y1)
	}
	return nil
}

// Width returns X1-X0. Only meaningful for a valid box.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns Y1-Y0. Only meaningful for a valid box.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Area returns the box area, refusing invalid geometry instead of returning
// NaN or an overflowed product.
func (b BBox) Area() (float64, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return b.Width() * b.Height(), nil
}

// Intersects reports whether the two boxes overlap. Boxes that merely share
// an edge are considered intersecting.
func (b BBox) Intersects(o BBox) (bool, error) {
	if err := b.Validate(); err != nil {
		return false, err
	}
	if err := o.Validate(); err != nil {
		return false, err
	}
	return b.X0 <= o.X1 && o.X0 <= b.X1 && b.Y0 <= o.Y1 && o.Y0 <= b.Y1, nil
}

// Contains reports whether o lies entirely inside b.
func (b BBox) Contains(o BBox) (bool, error) {
	if err := b.Validate(); err != nil {
		return false, err
	}
	if err := o.Validate(); err != nil {
		return false, err
	}
	return b.X0 <= o.X0 && b.Y0 <= o.Y0 && o.X1 <= b.X1 && o.Y1 <= b.Y1, nil
}

// Union returns the smallest box covering both inputs.
func (b BBox) Union(o BBox) (BBox, error) {
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	if err := o.Validate(); err != nil {
		return BBox{}, err
	}
	return BBox{
		X0: math.Min(b.X0, o.X0),
		Y0: math.Min(b.Y0, o.Y0),
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
	}, nil
}

// Intersection returns the overlapping region and whether one exists.
func (b BBox) Intersection(o BBox) (BBox, bool, error) {
	ok, err := b.Intersects(o)
	if err != nil || !ok {
		return BBox{}, false, err
	}
	return BBox{
		X0: math.Max(b.X0, o.X0),
		Y0: math.Max(b.Y0, o.Y0),
		X1: math.Min(b.X1, o.X1),
		Y1: math.Min(b.Y1, o.Y1),
	}, true, nil
}

// ToSlice returns the canonical [x0,y0,x1,y1] wire form.
func (b BBox) ToSlice() []float64 {
	return []float64{b.X0, b.Y0, b.X1, b.Y1}
}

// BBoxFromSlice parses the canonical 4-number wire form.
func BBoxFromSlice(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, errors.New(errors.ErrCodeSchema, "bbox must have 4 coordinates, got %d", len(v))
	}
	return NewBBox(v[0], v[1], v[2], v[3])
}
