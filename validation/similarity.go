// Package validation compares an original document against its regenerated
// counterpart: both sides are rasterized, scored for structural similarity,
// classified into severity bands on failure, and aggregated into exportable
// reports.
package validation

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/flanksource/docmorph/errors"
)

// Algorithm names which scorer produced a similarity value. The fallback is
// kept in the same [0,1] range as SSIM but is not numerically identical, so
// results always carry this field.
type Algorithm string

const (
	AlgorithmSSIM Algorithm = "ssim"
	AlgorithmNCC  Algorithm = "ncc"
)

// ssimWindow is the side length of the sliding comparison window.
const ssimWindow = 8

// SSIM constants for 8-bit dynamic range.
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

// CompareImages grayscales both images, resizes the second to the first's
// dimensions when they differ, and returns a similarity score in [0,1]. It
// prefers windowed SSIM and falls back to normalized cross-correlation for
// images smaller than the SSIM window.
func CompareImages(a, b image.Image) (float64, Algorithm, []string, error) {
	if a == nil || b == nil {
		return 0, "", nil, errors.New(errors.ErrCodeValidation, "cannot compare nil images")
	}

	var diagnostics []string
	ga := toGray(a)
	gb := toGray(b)

	if !ga.Bounds().Size().Eq(gb.Bounds().Size()) {
		diagnostics = append(diagnostics,
			"image dimensions differ: "+ga.Bounds().Size().String()+" vs "+gb.Bounds().Size().String())
		gb = toGray(imaging.Resize(gb, ga.Bounds().Dx(), ga.Bounds().Dy(), imaging.Lanczos))
	}

	w, h := ga.Bounds().Dx(), ga.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0, "", diagnostics, errors.New(errors.ErrCodeValidation, "cannot compare empty images")
	}

	if w >= ssimWindow && h >= ssimWindow {
		score := ssim(ga, gb)
		return clamp01(score), AlgorithmSSIM, diagnostics, nil
	}

	diagnostics = append(diagnostics, "images smaller than ssim window, using cross-correlation")
	score := normalizedCrossCorrelation(ga, gb)
	return clamp01(score), AlgorithmNCC, diagnostics, nil
}

// ssim computes mean SSIM over non-overlapping 8x8 windows. Edge remainders
// narrower than a window are ignored; with typical render sizes they cover a
// negligible fraction of the page.
func ssim(a, b *image.Gray) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()

	var total float64
	var windows int
	for wy := 0; wy+ssimWindow <= h; wy += ssimWindow {
		for wx := 0; wx+ssimWindow <= w; wx += ssimWindow {
			total += ssimAt(a, b, wx, wy)
			windows++
		}
	}
	if windows == 0 {
		return normalizedCrossCorrelation(a, b)
	}
	return total / float64(windows)
}

func ssimAt(a, b *image.Gray, x0, y0 int) float64 {
	const n = ssimWindow * ssimWindow

	var sumA, sumB float64
	for dy := 0; dy < ssimWindow; dy++ {
		for dx := 0; dx < ssimWindow; dx++ {
			sumA += float64(a.GrayAt(x0+dx, y0+dy).Y)
			sumB += float64(b.GrayAt(x0+dx, y0+dy).Y)
		}
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for dy := 0; dy < ssimWindow; dy++ {
		for dx := 0; dx < ssimWindow; dx++ {
			da := float64(a.GrayAt(x0+dx, y0+dy).Y) - muA
			db := float64(b.GrayAt(x0+dx, y0+dy).Y) - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	return ((2*muA*muB + ssimC1) * (2*cov + ssimC2)) /
		((muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2))
}

// normalizedCrossCorrelation maps Pearson correlation of pixel intensities
// from [-1,1] into [0,1]. Two constant images compare by mean distance
// instead, since correlation is undefined at zero variance.
func normalizedCrossCorrelation(a, b *image.Gray) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	n := float64(w * h)

	var sumA, sumB float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sumA += float64(a.GrayAt(x, y).Y)
			sumB += float64(b.GrayAt(x, y).Y)
		}
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			da := float64(a.GrayAt(x, y).Y) - muA
			db := float64(b.GrayAt(x, y).Y) - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}

	if varA == 0 || varB == 0 {
		return 1 - math.Abs(muA-muB)/255
	}
	r := cov / math.Sqrt(varA*varB)
	return (r + 1) / 2
}

// toGray normalizes any image to a zero-origin grayscale buffer so window
// loops can index from (0,0).
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == image.Pt(0, 0) {
		return g
	}
	nrgba := imaging.Grayscale(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := nrgba.At(nrgba.Bounds().Min.X+x, nrgba.Bounds().Min.Y+y).RGBA()
			gray.SetGray(x, y, color.Gray{Y: uint8(r >> 8)})
		}
	}
	return gray
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
