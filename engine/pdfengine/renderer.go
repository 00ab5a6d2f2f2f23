package pdfengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	marotoimage "github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/page"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontfamily"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/johnfercher/maroto/v2/pkg/repository"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

// RendererName is the registry key for the maroto-backed PDF renderer.
const RendererName = "pdf"

const ptToMM = 25.4 / 72

// Renderer produces PDF output through maroto's row grid. Absolute element
// positions are approximated by spacer rows (vertical) and spacer columns
// (horizontal); elements are laid out top to bottom regardless of the order
// they arrive in.
type Renderer struct {
	cfg engine.Config
}

// NewRenderer creates the PDF render adapter.
func NewRenderer() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string { return RendererName }

func (r *Renderer) Initialize(cfg engine.Config) error {
	r.cfg = cfg
	return nil
}

func (r *Renderer) Features() engine.FeatureSet {
	return engine.FeatureSet{
		Text:         true,
		Images:       true,
		MultiPage:    true,
		VectorOutput: true,
	}
}

// placement is one element's deferred row. Rows are sorted by top edge and
// materialized in FinalizeDocument, so callers may emit elements in any
// order.
type placement struct {
	topMM    float64
	heightMM float64
	colStart int
	colSpan  int
	build    func() core.Col
}

type pdfPage struct {
	size       model.Size
	placements []placement
}

type pdfDoc struct {
	meta  map[string]any
	pages []*pdfPage
	// customFonts maps a family name to the font file registered for it.
	customFonts map[string]string
}

func (r *Renderer) CreateDocument(meta map[string]any) (engine.DocumentHandle, error) {
	return &pdfDoc{meta: meta, customFonts: map[string]string{}}, nil
}

func (r *Renderer) AddPage(doc engine.DocumentHandle, size model.Size, background model.Color) (engine.PageHandle, error) {
	d, ok := doc.(*pdfDoc)
	if !ok {
		return nil, errors.New(errors.ErrCodeRendering, "document handle belongs to another backend")
	}
	p := &pdfPage{size: size}
	d.pages = append(d.pages, p)
	return &pageRef{doc: d, page: p}, nil
}

// pageRef keeps the owning document reachable from a page handle so text
// rendering can register custom fonts on it.
type pageRef struct {
	doc  *pdfDoc
	page *pdfPage
}

func (r *Renderer) RenderElement(pg engine.PageHandle, el model.Element, res *engine.Resources) engine.RenderResult {
	ref, ok := pg.(*pageRef)
	if !ok {
		return engine.Failed("page handle belongs to another backend")
	}
	switch e := el.(type) {
	case *model.TextElement:
		return r.renderText(ref, e, res)
	case *model.ImageElement:
		return r.renderImage(ref, e, res)
	case *model.DrawingElement:
		return engine.Skipped("vector drawings are not supported by the pdf backend")
	default:
		return engine.Skipped(fmt.Sprintf("unknown element kind %q", el.Kind()))
	}
}

func (r *Renderer) renderText(ref *pageRef, e *model.TextElement, res *engine.Resources) engine.RenderResult {
	if e.Content == "" {
		return engine.Skipped("empty text content")
	}

	family := builtinFamily(e.FontName)
	if res != nil {
		if path, ok := res.FontPaths[e.FontName]; ok && path != "" {
			family = e.FontName
			ref.doc.customFonts[family] = path
		}
	}

	textProps := props.Text{
		Family: family,
		Size:   e.FontSize,
		Style:  fontstyle.Normal,
		Align:  textAlign(e.Alignment),
		Color: &props.Color{
			Red:   int(e.Color.R * 255),
			Green: int(e.Color.G * 255),
			Blue:  int(e.Color.B * 255),
		},
	}

	content := e.Content
	start, span := gridSpan(e.BBox, ref.page.size.Width)
	ref.page.placements = append(ref.page.placements, placement{
		topMM:    e.BBox.Y0 * ptToMM,
		heightMM: (e.BBox.Y1 - e.BBox.Y0) * ptToMM,
		colStart: start,
		colSpan:  span,
		build: func() core.Col {
			return col.New(span).Add(text.New(content, textProps))
		},
	})
	return engine.Rendered()
}

func (r *Renderer) renderImage(ref *pageRef, e *model.ImageElement, res *engine.Resources) engine.RenderResult {
	path := e.Path
	if !filepath.IsAbs(path) && res != nil && res.AssetDir != "" {
		path = filepath.Join(res.AssetDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return engine.Failed(fmt.Sprintf("image file %s not readable: %v", path, err))
	}

	start, span := gridSpan(e.BBox, ref.page.size.Width)
	ref.page.placements = append(ref.page.placements, placement{
		topMM:    e.BBox.Y0 * ptToMM,
		heightMM: (e.BBox.Y1 - e.BBox.Y0) * ptToMM,
		colStart: start,
		colSpan:  span,
		build: func() core.Col {
			return col.New(span).Add(marotoimage.NewFromFile(path))
		},
	})
	return engine.Rendered()
}

func (r *Renderer) FinalizeDocument(doc engine.DocumentHandle, outPath string) error {
	d, ok := doc.(*pdfDoc)
	if !ok {
		return errors.New(errors.ErrCodeRendering, "document handle belongs to another backend")
	}
	if len(d.pages) == 0 {
		return errors.New(errors.ErrCodeRendering, "document has no pages")
	}

	builder := config.NewBuilder().
		WithDimensions(d.pages[0].size.Width*ptToMM, d.pages[0].size.Height*ptToMM).
		WithLeftMargin(0).
		WithRightMargin(0).
		WithTopMargin(0).
		WithBottomMargin(0)

	if len(d.customFonts) > 0 {
		repo := repository.New()
		for family, path := range d.customFonts {
			repo = repo.AddUTF8Font(family, fontstyle.Normal, path)
		}
		fonts, err := repo.Load()
		if err != nil {
			return errors.Wrap(errors.ErrCodeRendering, err, "load custom fonts")
		}
		builder = builder.WithCustomFonts(fonts)
	}

	m := maroto.New(builder.Build())

	pages := make([]core.Page, 0, len(d.pages))
	for _, p := range d.pages {
		pages = append(pages, buildPage(p))
	}
	m.AddPages(pages...)

	document, err := m.Generate()
	if err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "generate pdf")
	}
	if err := os.WriteFile(outPath, document.GetBytes(), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "write %s", outPath)
	}
	return nil
}

// buildPage materializes a page's placements as rows. Elements are sorted by
// top edge; the gap down to each element becomes an empty spacer row. When
// elements overlap vertically the later one flows directly below, which is
// the closest a row grid gets to absolute positioning.
func buildPage(p *pdfPage) core.Page {
	placements := make([]placement, len(p.placements))
	copy(placements, p.placements)
	sort.SliceStable(placements, func(i, j int) bool { return placements[i].topMM < placements[j].topMM })

	pg := page.New()
	cursor := 0.0
	for _, pl := range placements {
		if gap := pl.topMM - cursor; gap > 0.5 {
			pg.Add(row.New(gap))
			cursor += gap
		}
		height := pl.heightMM
		if height < 1 {
			height = 1
		}
		r := row.New(height)
		if pl.colStart > 0 {
			r.Add(col.New(pl.colStart))
		}
		r.Add(pl.build())
		pg.Add(r)
		cursor += height
	}
	return pg
}

// gridSpan maps a bbox onto maroto's 12-column grid.
func gridSpan(b model.BBox, pageWidth float64) (start, span int) {
	if pageWidth <= 0 {
		return 0, 12
	}
	start = int(b.X0 / pageWidth * 12)
	end := int((b.X1/pageWidth)*12 + 0.999)
	if start < 0 {
		start = 0
	}
	if start > 11 {
		start = 11
	}
	if end > 12 {
		end = 12
	}
	span = end - start
	if span < 1 {
		span = 1
	}
	if start+span > 12 {
		span = 12 - start
	}
	return start, span
}

func builtinFamily(name string) string {
	switch n := strings.ToLower(name); {
	case strings.Contains(n, "courier"):
		return fontfamily.Courier
	case strings.Contains(n, "times"):
		return "times"
	case strings.Contains(n, "arial"):
		return fontfamily.Arial
	default:
		return fontfamily.Helvetica
	}
}

func textAlign(a string) align.Type {
	switch a {
	case "center":
		return align.Center
	case "right":
		return align.Right
	default:
		return align.Left
	}
}
