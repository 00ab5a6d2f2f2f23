package rasterengine

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	path := filepath.Join(dir, "test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestParserCanParse(t *testing.T) {
	p := NewParser()
	assert.True(t, p.CanParse("photo.png"))
	assert.True(t, p.CanParse("photo.JPG"))
	assert.True(t, p.CanParse("scan.tiff"))
	assert.False(t, p.CanParse("document.pdf"))
	assert.False(t, p.CanParse("/nonexistent/file-without-extension"))
}

func TestParserCanParseByMagicBytes(t *testing.T) {
	path := writeTestPNG(t, t.TempDir(), 10, 10)
	// Strip the extension so only the sniff can identify it.
	renamed := filepath.Join(filepath.Dir(path), "imagefile")
	require.NoError(t, os.Rename(path, renamed))
	assert.True(t, NewParser().CanParse(renamed))
}

func TestParseBuildsSingleCanvasDocument(t *testing.T) {
	path := writeTestPNG(t, t.TempDir(), 64, 48)

	doc, err := NewParser().Parse(context.Background(), path, engine.ParseOptions{})
	require.NoError(t, err)

	canvases := doc.Canvases()
	require.Len(t, canvases, 1)
	assert.Equal(t, model.Size{Width: 64, Height: 48}, canvases[0].Size())
	assert.Empty(t, doc.Pages())

	elements := doc.AllElements()
	require.Len(t, elements, 1)
	img, ok := elements[0].(*model.ImageElement)
	require.True(t, ok)
	assert.Equal(t, path, img.Path)
	assert.Equal(t, "png", img.Format)
}

func TestParseCorruptFileIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("\x89PNG\r\n\x1a\nnot really a png"), 0o644))

	doc, err := NewParser().Parse(context.Background(), corrupt, engine.ParseOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeParsing))
	assert.Nil(t, doc, "a failed parse must never return a partial document")
}

func TestParseMissingFile(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "/no/such/file.png", engine.ParseOptions{})
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}

func TestExtractAssets(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 10, 10)
	outDir := filepath.Join(dir, "assets")

	manifest, err := NewParser().ExtractAssets(context.Background(), path, outDir)
	require.NoError(t, err)
	require.Len(t, manifest.Assets, 1)
	assert.Equal(t, model.AssetImage, manifest.Assets[0].Kind)
	assert.FileExists(t, manifest.Assets[0].Path)
}

func newInitializedRenderer(t *testing.T, dpi int) *Renderer {
	t.Helper()
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{DPI: dpi}))
	return r
}

func TestRenderBlankPage(t *testing.T) {
	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)

	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)

	img, ok := PageImage(page)
	require.True(t, ok)
	bounds := img.Bounds()
	assert.Equal(t, 612, bounds.Dx())
	assert.Equal(t, 792, bounds.Dy())

	r8, g8, b8, _ := img.At(300, 400).RGBA()
	assert.EqualValues(t, 0xffff, r8)
	assert.EqualValues(t, 0xffff, g8)
	assert.EqualValues(t, 0xffff, b8)
}

func TestRenderTextChangesPixels(t *testing.T) {
	r := newInitializedRenderer(t, 150)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)

	result := r.RenderElement(page, &model.TextElement{
		ElementBase: model.ElementBase{ID: "t1", BBox: model.BBox{X0: 50, Y0: 100, X1: 400, Y1: 130}},
		Content:     "Hello, World!",
		FontName:    "Helvetica",
		FontSize:    24,
		Color:       model.Black,
	}, &engine.Resources{})
	require.Equal(t, engine.StatusRendered, result.Status, result.Reason)

	img, _ := PageImage(page)
	dark := 0
	bounds := img.Bounds()
	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			rr, _, _, _ := img.At(x, y).RGBA()
			if rr < 0x8000 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 50, "rendered text must darken pixels")
}

func TestRenderImageElement(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestPNG(t, dir, 32, 32)

	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 200, Height: 200}, model.White)
	require.NoError(t, err)

	result := r.RenderElement(page, &model.ImageElement{
		ElementBase: model.ElementBase{ID: "i1", BBox: model.BBox{X0: 10, Y0: 10, X1: 110, Y1: 110}},
		Path:        imgPath,
	}, nil)
	assert.Equal(t, engine.StatusRendered, result.Status, result.Reason)

	missing := r.RenderElement(page, &model.ImageElement{
		ElementBase: model.ElementBase{ID: "i2", BBox: model.BBox{X0: 10, Y0: 10, X1: 110, Y1: 110}},
		Path:        "/no/such.png",
	}, nil)
	assert.Equal(t, engine.StatusFailed, missing.Status, "a bad image fails that element only")
}

func TestRenderDrawingCommands(t *testing.T) {
	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 100, Height: 100}, model.White)
	require.NoError(t, err)

	fill := model.NewColor(1, 0, 0, 1)
	result := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "d1", BBox: model.BBox{X0: 10, Y0: 10, X1: 60, Y1: 60}},
		Commands: []model.DrawCommand{
			{Op: model.DrawRect, Points: []model.Point{{X: 10, Y: 10}, {X: 60, Y: 60}}},
		},
		Stroke:      model.Black,
		Fill:        &fill,
		StrokeWidth: 1,
	}, nil)
	require.Equal(t, engine.StatusRendered, result.Status, result.Reason)

	img, _ := PageImage(page)
	rr, gg8, _, _ := img.At(35, 35).RGBA()
	assert.Greater(t, rr, uint32(0xe000), "fill should be red")
	assert.Less(t, gg8, uint32(0x4000))
}

func TestRenderSVGDrawing(t *testing.T) {
	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 100, Height: 100}, model.White)
	require.NoError(t, err)

	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 50 50"><rect x="0" y="0" width="50" height="50" fill="blue"/></svg>`
	result := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "svg1", BBox: model.BBox{X0: 20, Y0: 20, X1: 70, Y1: 70}},
		SVGSource:   svg,
		Stroke:      model.Black,
	}, nil)
	assert.Equal(t, engine.StatusRendered, result.Status, result.Reason)
}

func TestEmptyContentSkipsNotErrors(t *testing.T) {
	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 100, Height: 100}, model.White)
	require.NoError(t, err)

	result := r.RenderElement(page, &model.TextElement{
		ElementBase: model.ElementBase{ID: "t1", BBox: model.BBox{X1: 10, Y1: 10}},
	}, nil)
	assert.Equal(t, engine.StatusSkipped, result.Status)

	empty := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "d1", BBox: model.BBox{X1: 10, Y1: 10}},
	}, nil)
	assert.Equal(t, engine.StatusSkipped, empty.Status)
}

func TestFinalizeWritesPNGPerPage(t *testing.T) {
	dir := t.TempDir()
	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)

	_, err = r.AddPage(doc, model.Size{Width: 50, Height: 50}, model.White)
	require.NoError(t, err)
	_, err = r.AddPage(doc, model.Size{Width: 50, Height: 50}, model.White)
	require.NoError(t, err)

	out := filepath.Join(dir, "out.png")
	require.NoError(t, r.FinalizeDocument(doc, out))
	assert.FileExists(t, out)
	assert.FileExists(t, filepath.Join(dir, "out-page2.png"))
}

func TestFinalizeEmptyDocumentFails(t *testing.T) {
	r := newInitializedRenderer(t, 72)
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)

	err = r.FinalizeDocument(doc, filepath.Join(t.TempDir(), "out.png"))
	assert.True(t, errors.Is(err, errors.ErrCodeRendering))
}
