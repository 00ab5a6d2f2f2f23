package validation

import (
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"

	"github.com/flanksource/docmorph/errors"
)

// DiffImage maps the per-pixel absolute difference of two images through a
// heat colormap: identical pixels come out black, small differences blue,
// large differences red through yellow. The second image is resized to the
// first when dimensions differ.
func DiffImage(a, b image.Image) *image.NRGBA {
	ga := toGray(a)
	gb := toGray(b)
	if !ga.Bounds().Size().Eq(gb.Bounds().Size()) {
		gb = toGray(imaging.Resize(gb, ga.Bounds().Dx(), ga.Bounds().Dy(), imaging.Lanczos))
	}

	w, h := ga.Bounds().Dx(), ga.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			va := int(ga.GrayAt(x, y).Y)
			vb := int(gb.GrayAt(x, y).Y)
			d := va - vb
			if d < 0 {
				d = -d
			}
			out.SetNRGBA(x, y, heatColor(uint8(d)))
		}
	}
	return out
}

// WriteDiffImage renders the diff and saves it as PNG.
func WriteDiffImage(a, b image.Image, path string) error {
	if err := imaging.Save(DiffImage(a, b), path); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "write diff image %s", path)
	}
	return nil
}

// heatColor ramps black -> blue -> red -> yellow over the difference
// magnitude.
func heatColor(d uint8) color.NRGBA {
	switch {
	case d == 0:
		return color.NRGBA{A: 255}
	case d < 64:
		return color.NRGBA{B: 128 + d*2, A: 255}
	case d < 160:
		t := uint8((int(d) - 64) * 255 / 96)
		return color.NRGBA{R: t, B: 255 - t, A: 255}
	default:
		t := uint8((int(d) - 160) * 255 / 95)
		return color.NRGBA{R: 255, G: t, A: 255}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
