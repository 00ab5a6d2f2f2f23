package pdfengine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

// renderSimplePDF writes a one-page PDF with the given elements and returns
// its bytes after validating the structure with pdfcpu.
func renderSimplePDF(t *testing.T, elements ...model.Element) []byte {
	t.Helper()

	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	doc, err := r.CreateDocument(map[string]any{"title": "test"})
	require.NoError(t, err)

	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)

	for _, el := range elements {
		result := r.RenderElement(page, el, &engine.Resources{})
		require.NotEqual(t, engine.StatusFailed, result.Status, "element %s: %s", el.Base().ID, result.Reason)
	}

	outPath := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, r.FinalizeDocument(doc, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	_, err = pdfcpu.ReadContext(bytes.NewReader(data), pdfcpumodel.NewDefaultConfiguration())
	require.NoError(t, err, "rendered PDF must be structurally valid")
	return data
}

func textEl(id, content string, bbox model.BBox) *model.TextElement {
	return &model.TextElement{
		ElementBase: model.ElementBase{ID: id, BBox: bbox},
		Content:     content,
		FontName:    "Helvetica",
		FontSize:    12,
		Color:       model.Black,
	}
}

func TestRendererTextDocument(t *testing.T) {
	data := renderSimplePDF(t,
		textEl("t1", "Hello, World!", model.BBox{X0: 50, Y0: 70, X1: 300, Y1: 90}),
		textEl("t2", "Second line", model.BBox{X0: 50, Y0: 110, X1: 300, Y1: 130}),
	)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRendererSkipsDrawings(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)

	result := r.RenderElement(page, &model.DrawingElement{
		ElementBase: model.ElementBase{ID: "d1", BBox: model.BBox{X1: 100, Y1: 100}},
	}, nil)
	assert.Equal(t, engine.StatusSkipped, result.Status)
	assert.Contains(t, result.Reason, "drawing")
}

func TestRendererFailsMissingImage(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)

	result := r.RenderElement(page, &model.ImageElement{
		ElementBase: model.ElementBase{ID: "i1", BBox: model.BBox{X1: 100, Y1: 100}},
		Path:        "nope.png",
	}, &engine.Resources{AssetDir: t.TempDir()})
	assert.Equal(t, engine.StatusFailed, result.Status)
}

func TestRendererRejectsForeignHandles(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	_, err := r.AddPage("not a handle", model.Size{Width: 10, Height: 10}, model.White)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRendering, errors.GetCode(err))

	result := r.RenderElement("not a page", textEl("t", "x", model.BBox{X1: 10, Y1: 10}), nil)
	assert.Equal(t, engine.StatusFailed, result.Status)
}

func TestRendererEmptyDocumentFails(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)

	err = r.FinalizeDocument(doc, filepath.Join(t.TempDir(), "empty.pdf"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRendering, errors.GetCode(err))
}

func TestRendererFeatures(t *testing.T) {
	f := NewRenderer().Features()
	assert.True(t, f.Text)
	assert.True(t, f.Images)
	assert.True(t, f.MultiPage)
	assert.True(t, f.VectorOutput)
	assert.False(t, f.Drawings)
}

func TestParserCanParse(t *testing.T) {
	p := NewParser()
	assert.True(t, p.CanParse("report.pdf"))
	assert.True(t, p.CanParse("REPORT.PDF"))
	assert.False(t, p.CanParse("image.png"))

	// No extension: sniff the header.
	sniffed := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(sniffed, []byte("%PDF-1.7\n%fake"), 0o644))
	assert.True(t, p.CanParse(sniffed))

	notPDF := filepath.Join(t.TempDir(), "blob2")
	require.NoError(t, os.WriteFile(notPDF, []byte("GIF89a"), 0o644))
	assert.False(t, p.CanParse(notPDF))
}

func TestParserMissingFile(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(context.Background(), "/no/such/file.pdf", engine.ParseOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetCode(err))
}

func TestParserCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7\nthis is not a pdf body"), 0o644))

	p := NewParser()
	doc, err := p.Parse(context.Background(), path, engine.ParseOptions{})
	require.Error(t, err, "parse is all-or-nothing on corrupt input")
	assert.Nil(t, doc)
	assert.Equal(t, errors.ErrCodeParsing, errors.GetCode(err))
}

// Round trip: render a document with maroto, parse it back, and check the
// text and page geometry survive.
func TestRenderParseRoundTrip(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Initialize(engine.Config{}))

	doc, err := r.CreateDocument(nil)
	require.NoError(t, err)
	page, err := r.AddPage(doc, model.Size{Width: 612, Height: 792}, model.White)
	require.NoError(t, err)

	result := r.RenderElement(page, textEl("t1", "Hello, World!", model.BBox{X0: 50, Y0: 700, X1: 300, Y1: 720}), nil)
	require.Equal(t, engine.StatusRendered, result.Status)

	outPath := filepath.Join(t.TempDir(), "roundtrip.pdf")
	require.NoError(t, r.FinalizeDocument(doc, outPath))

	p := NewParser()
	parsed, err := p.Parse(context.Background(), outPath, engine.ParseOptions{})
	require.NoError(t, err)

	pages := parsed.Pages()
	require.Len(t, pages, 1)
	assert.InDelta(t, 612, pages[0].PageSize.Width, 1)
	assert.InDelta(t, 792, pages[0].PageSize.Height, 1)

	var texts []string
	for _, el := range parsed.AllElements() {
		if te, ok := el.(*model.TextElement); ok {
			texts = append(texts, te.Content)
		}
	}
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "Hello")
}

func TestGroupTextRunsOrdering(t *testing.T) {
	runs := groupTextRuns(nil, 792)
	assert.Empty(t, runs)
}

func TestCleanFontName(t *testing.T) {
	assert.Equal(t, "Helvetica", cleanFontName("ABCDEF+Helvetica"))
	assert.Equal(t, "Helvetica", cleanFontName("Helvetica"))
	assert.Equal(t, "A+B", cleanFontName("A+B"), "only six-char subset prefixes are stripped")
}
