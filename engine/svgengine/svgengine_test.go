package svgengine

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

func newPage(t *testing.T, r *Renderer) (engine.DocumentHandle, engine.PageHandle) {
	t.Helper()
	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)
	return doc, page
}

func TestRendererWritesSVGPerPage(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
		require.NoError(t, err)
		result := r.RenderElement(page, &model.TextElement{
			ElementBase: model.ElementBase{ID: fmt.Sprintf("t%d", i), BBox: model.BBox{X0: 50, Y0: 50, X1: 300, Y1: 70}},
			Content:     "Hello, World!",
			FontName:    "Helvetica",
			FontSize:    12,
			Color:       model.Black,
		}, nil)
		require.Equal(t, engine.StatusRendered, result.Status)
	}

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.svg")
	require.NoError(t, r.FinalizeDocument(doc, outPath))

	first, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(first), "<svg")
	assert.Contains(t, string(first), "Hello, World!")
	assert.Contains(t, string(first), "font-family:Helvetica")

	second, err := os.ReadFile(filepath.Join(dir, "out-page2.svg"))
	require.NoError(t, err)
	assert.Contains(t, string(second), "<svg")
}

func TestRendererDrawingPath(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))
	doc, page := newPage(t, r)

	red := model.Color{R: 1, A: 1}
	result := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "d1", BBox: model.BBox{X0: 10, Y0: 10, X1: 110, Y1: 110}},
		Commands: []model.DrawCommand{
			{Op: model.DrawRect, Points: []model.Point{{X: 10, Y: 10}, {X: 110, Y: 110}}},
			{Op: model.DrawEllipse, Points: []model.Point{{X: 60, Y: 60}, {X: 20, Y: 30}}},
		},
		Stroke:      model.Black,
		Fill:        &red,
		StrokeWidth: 2,
	}, nil)
	require.Equal(t, engine.StatusRendered, result.Status)

	outPath := filepath.Join(t.TempDir(), "draw.svg")
	require.NoError(t, r.FinalizeDocument(doc, outPath))
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, "<path")
	assert.Contains(t, s, "fill:rgb(255,0,0)")
	assert.Contains(t, s, "stroke-width:2")
}

func TestRendererSVGSourcePassthrough(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))
	doc, page := newPage(t, r)

	result := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "d1", BBox: model.BBox{X1: 50, Y1: 50}},
		SVGSource:   `<circle cx="25" cy="25" r="20" fill="blue"/>`,
	}, nil)
	require.Equal(t, engine.StatusRendered, result.Status)

	outPath := filepath.Join(t.TempDir(), "pass.svg")
	require.NoError(t, r.FinalizeDocument(doc, outPath))
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<circle cx="25"`)
}

func TestRendererSkipsEmptyDrawing(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))
	_, page := newPage(t, r)

	result := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "d1", BBox: model.BBox{X1: 10, Y1: 10}},
	}, nil)
	assert.Equal(t, engine.StatusSkipped, result.Status)
}

func TestRendererAlignment(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))
	doc, page := newPage(t, r)

	result := r.RenderElement(page, &model.TextElement{
		ElementBase: model.ElementBase{ID: "t1", BBox: model.BBox{X0: 0, Y0: 0, X1: 100, Y1: 20}},
		Content:     "centered",
		FontSize:    12,
		Alignment:   "center",
	}, nil)
	require.Equal(t, engine.StatusRendered, result.Status)

	outPath := filepath.Join(t.TempDir(), "align.svg")
	require.NoError(t, r.FinalizeDocument(doc, outPath))
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "text-anchor:middle")
}

func TestGoConverterPNG(t *testing.T) {
	dir := t.TempDir()
	svgPath := filepath.Join(dir, "in.svg")
	svgData := `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="40"><rect x="5" y="5" width="30" height="30" fill="red"/></svg>`
	require.NoError(t, os.WriteFile(svgPath, []byte(svgData), 0o644))

	conv := NewGoConverter()
	require.True(t, conv.Available())

	outPath := filepath.Join(dir, "out.png")
	require.NoError(t, conv.Convert(context.Background(), svgPath, outPath, DefaultConvertOptions()))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

type stubConverter struct {
	name    string
	formats []string
	fail    bool
	calls   *[]string
}

func (s *stubConverter) Name() string      { return s.name }
func (s *stubConverter) Available() bool   { return true }
func (s *stubConverter) Formats() []string { return s.formats }
func (s *stubConverter) Convert(ctx context.Context, svgPath, outPath string, opts ConvertOptions) error {
	*s.calls = append(*s.calls, s.name)
	if s.fail {
		return errors.New(errors.ErrCodeRendering, "%s is broken", s.name)
	}
	return os.WriteFile(outPath, []byte("ok"), 0o644)
}

func TestConverterChainFallsThrough(t *testing.T) {
	var calls []string
	chain := &ConverterChain{converters: []Converter{
		&stubConverter{name: "first", formats: []string{"png"}, fail: true, calls: &calls},
		&stubConverter{name: "second", formats: []string{"png"}, calls: &calls},
	}}

	outPath := filepath.Join(t.TempDir(), "out.png")
	err := chain.Convert(context.Background(), "in.svg", outPath, ConvertOptions{Format: "png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestConverterChainSkipsUnsupportedFormat(t *testing.T) {
	var calls []string
	chain := &ConverterChain{converters: []Converter{
		&stubConverter{name: "pdf-only", formats: []string{"pdf"}, calls: &calls},
	}}

	err := chain.Convert(context.Background(), "in.svg", "out.png", ConvertOptions{Format: "png"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRendering, errors.GetCode(err))
	assert.Empty(t, calls)
}

func TestConverterChainReportsLastError(t *testing.T) {
	var calls []string
	chain := &ConverterChain{converters: []Converter{
		&stubConverter{name: "only", formats: []string{"png"}, fail: true, calls: &calls},
	}}

	err := chain.Convert(context.Background(), "in.svg", "out.png", ConvertOptions{Format: "png"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "only is broken"))
}

func TestNewConverterChainAlwaysHasGoFallback(t *testing.T) {
	t.Setenv("DOCMORPH_DISABLE_BROWSER", "1")
	chain := NewConverterChain()
	assert.Contains(t, chain.Names(), "go")
}
