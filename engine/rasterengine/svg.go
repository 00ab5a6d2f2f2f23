package rasterengine

import (
	"fmt"
	"image"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// RasterizeSVG renders SVG markup into an RGBA image of the given pixel
// size using the pure-Go oksvg/rasterx pipeline. Zero dimensions fall back
// to the SVG's own viewbox.
func RasterizeSVG(svg string, width, height int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	if width <= 0 {
		width = int(icon.ViewBox.W + 0.5)
	}
	if height <= 0 {
		height = int(icon.ViewBox.H + 0.5)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("svg has no renderable size (viewbox %gx%g)", icon.ViewBox.W, icon.ViewBox.H)
	}

	icon.SetTarget(0, 0, float64(width), float64(height))
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)
	return rgba, nil
}
