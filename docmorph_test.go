package docmorph

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			if (x/20+y/20)%2 == 0 {
				img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 40, B: 200, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 240, G: 240, B: 240, A: 255})
			}
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestConvertPNGToPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeTestPNG(t, in)

	result, err := Convert(context.Background(), in, out, Options{Registry: NewRegistry()})
	require.NoError(t, err)

	assert.FileExists(t, out)
	assert.Equal(t, "raster", result.Renderer)
	require.NotNil(t, result.Document)
	assert.NotEmpty(t, result.Elements)
	assert.Empty(t, result.Skipped())
}

func TestConvertPNGToPDF(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.pdf")
	writeTestPNG(t, in)

	result, err := Convert(context.Background(), in, out, Options{Registry: NewRegistry()})
	require.NoError(t, err)
	assert.FileExists(t, out)
	assert.Equal(t, "pdf", result.Renderer)
}

func TestConvertTransformHook(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeTestPNG(t, in)

	var seen int
	_, err := Convert(context.Background(), in, out, Options{
		Registry: NewRegistry(),
		Transform: func(doc *model.Document) error {
			seen = len(doc.AllElements())
			return nil
		},
	})
	require.NoError(t, err)
	assert.Greater(t, seen, 0)
}

func TestConvertTransformErrorAborts(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeTestPNG(t, in)

	_, err := Convert(context.Background(), in, filepath.Join(dir, "out.png"), Options{
		Registry: NewRegistry(),
		Transform: func(doc *model.Document) error {
			return errors.New(errors.ErrCodeSchema, "rejected by hook")
		},
	})
	require.Error(t, err)
}

func TestConvertUnknownParser(t *testing.T) {
	_, err := Convert(context.Background(), "in.xyz", "out.pdf", Options{
		Registry: NewRegistry(),
		Parser:   "psd",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeEngineNotFound, errors.GetCode(err))
}

func TestConvertAndValidateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	writeTestPNG(t, in)

	converted, verdict, err := ConvertAndValidate(context.Background(), in, out, Options{
		Registry: NewRegistry(),
	})
	require.NoError(t, err)
	require.NotNil(t, converted)
	assert.Empty(t, verdict.Error)
	// The raster round trip of a raster source reproduces it closely.
	assert.Greater(t, verdict.Score, 0.9)
}

func TestValidateMissingFile(t *testing.T) {
	verdict := Validate(context.Background(), "/no/such/a.png", "/no/such/b.png", Options{
		Registry: NewRegistry(),
	})
	assert.False(t, verdict.Passed)
	assert.Equal(t, errors.ErrCodeFileNotFound, verdict.ErrorCode)
}

func TestRendererForExtension(t *testing.T) {
	assert.Equal(t, "pdf", rendererForExtension("out.pdf"))
	assert.Equal(t, "svg", rendererForExtension("out.svg"))
	assert.Equal(t, "raster", rendererForExtension("out.png"))
	assert.Equal(t, "", rendererForExtension("out.bin"))
}

func TestDefaultRegistryAdapters(t *testing.T) {
	r := DefaultRegistry()
	assert.Contains(t, r.Parsers(), "pdf")
	assert.Contains(t, r.Parsers(), "raster")
	assert.Contains(t, r.Renderers(), "pdf")
	assert.Contains(t, r.Renderers(), "raster")
	assert.Contains(t, r.Renderers(), "svg")
}

func TestConvertReportsSkippedElements(t *testing.T) {
	// The pdf backend cannot express vector drawings; a document carrying
	// one converts anyway with the drawing reported as skipped.
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	writeTestPNG(t, in)

	out := filepath.Join(dir, "out.pdf")
	result, err := Convert(context.Background(), in, out, Options{
		Registry: NewRegistry(),
		Transform: func(doc *model.Document) error {
			pages := doc.Canvases()
			if len(pages) == 0 {
				return nil
			}
			layer := pages[0].Layers()[0]
			return layer.AddElement(&model.DrawingElement{
				ElementBase: model.ElementBase{ID: "extra-drawing", BBox: model.BBox{X1: 10, Y1: 10}},
				Commands: []model.DrawCommand{
					{Op: model.DrawRect, Points: []model.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}},
				},
				Stroke: model.Black,
			})
		},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Skipped(), "extra-drawing")
	assert.Equal(t, engine.StatusSkipped, result.Elements["extra-drawing"].Status)
}
