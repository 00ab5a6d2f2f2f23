package rasterengine

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/fonts"
	"github.com/flanksource/docmorph/model"
)

// RendererName is the registry key for the raster render adapter.
const RendererName = "raster"

// DefaultDPI is used when the injected config does not set one. Model
// coordinates are points (1/72 inch) with a top-left origin.
const DefaultDPI = 150

// Renderer draws documents onto bitmap canvases with gg. Each page becomes
// one PNG; text is drawn through freetype faces resolved by the font
// subsystem, drawings through gg paths or oksvg when SVG source is present.
type Renderer struct {
	dpi         int
	fontDirs    []string
	initialized bool

	faceMu sync.Mutex
	faces  map[string]*truetype.Font
}

// NewRenderer creates an uninitialized raster render adapter.
func NewRenderer() *Renderer {
	return &Renderer{faces: map[string]*truetype.Font{}}
}

func (r *Renderer) Name() string { return RendererName }

// Initialize applies configuration. Calling it again with the same config
// is a no-op.
func (r *Renderer) Initialize(config engine.Config) error {
	if r.initialized {
		return nil
	}
	r.dpi = config.DPI
	if r.dpi <= 0 {
		r.dpi = DefaultDPI
	}
	r.fontDirs = config.FontDirs
	r.initialized = true
	return nil
}

func (r *Renderer) Features() engine.FeatureSet {
	return engine.FeatureSet{
		Text:      true,
		Images:    true,
		Drawings:  true,
		MultiPage: true,
	}
}

type rasterDoc struct {
	meta  map[string]any
	pages []*rasterPage
}

type rasterPage struct {
	ctx   *gg.Context
	scale float64
}

func (r *Renderer) CreateDocument(meta map[string]any) (engine.DocumentHandle, error) {
	if !r.initialized {
		if err := r.Initialize(engine.Config{}); err != nil {
			return nil, err
		}
	}
	return &rasterDoc{meta: meta}, nil
}

func (r *Renderer) AddPage(doc engine.DocumentHandle, size model.Size, background model.Color) (engine.PageHandle, error) {
	d, ok := doc.(*rasterDoc)
	if !ok {
		return nil, errors.New(errors.ErrCodeRendering, "document handle does not belong to the raster renderer")
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, errors.New(errors.ErrCodeRendering, "page size %gx%g is not renderable", size.Width, size.Height)
	}

	scale := float64(r.dpi) / 72.0
	w := int(size.Width*scale + 0.5)
	h := int(size.Height*scale + 0.5)
	ctx := gg.NewContext(w, h)
	ctx.SetColor(background.NRGBA())
	ctx.Clear()

	page := &rasterPage{ctx: ctx, scale: scale}
	d.pages = append(d.pages, page)
	return page, nil
}

// RenderElement draws one element. Failures are contained: a bad image file
// or font yields a failed/skipped result and the rest of the page still
// renders.
func (r *Renderer) RenderElement(page engine.PageHandle, el model.Element, res *engine.Resources) (result engine.RenderResult) {
	p, ok := page.(*rasterPage)
	if !ok {
		return engine.Failed("page handle does not belong to the raster renderer")
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = engine.Failed(fmt.Sprintf("render panic: %v", rec))
		}
	}()

	switch t := el.(type) {
	case *model.TextElement:
		return r.renderText(p, t, res)
	case *model.ImageElement:
		return r.renderImage(p, t, res)
	case *model.DrawingElement:
		return r.renderDrawing(p, t)
	default:
		return engine.Skipped(fmt.Sprintf("unsupported element kind %q", el.Kind()))
	}
}

func (r *Renderer) renderText(p *rasterPage, el *model.TextElement, res *engine.Resources) engine.RenderResult {
	if strings.TrimSpace(el.Content) == "" {
		return engine.Skipped("empty text content")
	}

	fontPath := ""
	if res != nil && res.FontPaths != nil {
		fontPath = res.FontPaths[el.FontName]
	}
	if fontPath == "" {
		// Standard fonts arrive without a file; the embedded font keeps
		// text visible with compatible metrics.
		var err error
		fontPath, err = fonts.BuiltinFontFile("")
		if err != nil {
			return engine.Failed(err.Error())
		}
	}

	parsed, err := r.loadFont(fontPath)
	if err != nil {
		return engine.Failed(err.Error())
	}
	size := el.FontSize
	if size <= 0 {
		size = 12
	}
	face := truetype.NewFace(parsed, &truetype.Options{Size: size, DPI: float64(r.dpi)})
	defer face.Close() //nolint:errcheck

	p.ctx.SetFontFace(face)
	p.ctx.SetColor(el.Color.NRGBA())

	x := el.BBox.X0 * p.scale
	baseline := el.BBox.Y1 * p.scale
	switch el.Alignment {
	case "center":
		cx := (el.BBox.X0 + el.BBox.X1) / 2 * p.scale
		p.ctx.DrawStringAnchored(el.Content, cx, baseline, 0.5, 0)
	case "right":
		p.ctx.DrawStringAnchored(el.Content, el.BBox.X1*p.scale, baseline, 1, 0)
	default:
		p.ctx.DrawString(el.Content, x, baseline)
	}
	return engine.Rendered()
}

func (r *Renderer) renderImage(p *rasterPage, el *model.ImageElement, res *engine.Resources) engine.RenderResult {
	path := el.Path
	if !filepath.IsAbs(path) && res != nil && res.AssetDir != "" {
		path = filepath.Join(res.AssetDir, path)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return engine.Failed(fmt.Sprintf("open image %s: %v", path, err))
	}

	w := int(el.BBox.Width()*p.scale + 0.5)
	h := int(el.BBox.Height()*p.scale + 0.5)
	if w <= 0 || h <= 0 {
		return engine.Skipped("image bbox has no area")
	}
	scaled := imaging.Resize(img, w, h, imaging.Lanczos)
	p.ctx.DrawImage(scaled, int(el.BBox.X0*p.scale+0.5), int(el.BBox.Y0*p.scale+0.5))
	return engine.Rendered()
}

func (r *Renderer) renderDrawing(p *rasterPage, el *model.DrawingElement) engine.RenderResult {
	if el.SVGSource != "" {
		img, err := RasterizeSVG(el.SVGSource, int(el.BBox.Width()*p.scale+0.5), int(el.BBox.Height()*p.scale+0.5))
		if err != nil {
			return engine.Failed(fmt.Sprintf("rasterize svg: %v", err))
		}
		p.ctx.DrawImage(img, int(el.BBox.X0*p.scale+0.5), int(el.BBox.Y0*p.scale+0.5))
		return engine.Rendered()
	}
	if len(el.Commands) == 0 {
		return engine.Skipped("drawing has no commands")
	}

	s := p.scale
	for _, cmd := range el.Commands {
		switch cmd.Op {
		case model.DrawMove:
			if len(cmd.Points) < 1 {
				return engine.Failed("move command without a point")
			}
			p.ctx.MoveTo(cmd.Points[0].X*s, cmd.Points[0].Y*s)
		case model.DrawLine:
			if len(cmd.Points) < 1 {
				return engine.Failed("line command without a point")
			}
			p.ctx.LineTo(cmd.Points[0].X*s, cmd.Points[0].Y*s)
		case model.DrawCurve:
			if len(cmd.Points) < 3 {
				return engine.Failed("curve command needs two control points and an endpoint")
			}
			p.ctx.CubicTo(
				cmd.Points[0].X*s, cmd.Points[0].Y*s,
				cmd.Points[1].X*s, cmd.Points[1].Y*s,
				cmd.Points[2].X*s, cmd.Points[2].Y*s,
			)
		case model.DrawRect:
			if len(cmd.Points) < 2 {
				return engine.Failed("rect command needs two corner points")
			}
			a, b := cmd.Points[0], cmd.Points[1]
			p.ctx.DrawRectangle(a.X*s, a.Y*s, (b.X-a.X)*s, (b.Y-a.Y)*s)
		case model.DrawEllipse:
			if len(cmd.Points) < 2 {
				return engine.Failed("ellipse command needs center and radii points")
			}
			c, radii := cmd.Points[0], cmd.Points[1]
			p.ctx.DrawEllipse(c.X*s, c.Y*s, radii.X*s, radii.Y*s)
		case model.DrawClose:
			p.ctx.ClosePath()
		default:
			return engine.Skipped(fmt.Sprintf("unsupported drawing op %q", cmd.Op))
		}
	}

	if el.Fill != nil {
		p.ctx.SetColor(el.Fill.NRGBA())
		p.ctx.FillPreserve()
	}
	width := el.StrokeWidth
	if width <= 0 {
		width = 1
	}
	p.ctx.SetLineWidth(width * s)
	p.ctx.SetColor(el.Stroke.NRGBA())
	p.ctx.Stroke()
	return engine.Rendered()
}

// FinalizeDocument writes each page as a PNG: the first page to outPath,
// later pages with a -pageN suffix.
func (r *Renderer) FinalizeDocument(doc engine.DocumentHandle, outPath string) error {
	d, ok := doc.(*rasterDoc)
	if !ok {
		return errors.New(errors.ErrCodeRendering, "document handle does not belong to the raster renderer")
	}
	if len(d.pages) == 0 {
		return errors.New(errors.ErrCodeRendering, "document has no pages to finalize")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "create output dir for %s", outPath)
	}

	for i, page := range d.pages {
		target := outPath
		if i > 0 {
			ext := filepath.Ext(outPath)
			target = fmt.Sprintf("%s-page%d%s", strings.TrimSuffix(outPath, ext), i+1, ext)
		}
		if err := page.ctx.SavePNG(target); err != nil {
			return errors.Wrap(errors.ErrCodeRendering, err, "write %s", target)
		}
	}
	return nil
}

// PageImage exposes a rendered page's bitmap without touching disk; the
// validation pipeline compares these directly.
func PageImage(page engine.PageHandle) (image.Image, bool) {
	p, ok := page.(*rasterPage)
	if !ok {
		return nil, false
	}
	return p.ctx.Image(), true
}

// loadFont parses and caches a TTF by path.
func (r *Renderer) loadFont(path string) (*truetype.Font, error) {
	r.faceMu.Lock()
	defer r.faceMu.Unlock()

	if cached, ok := r.faces[path]; ok {
		return cached, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	r.faces[path] = parsed
	return parsed, nil
}
