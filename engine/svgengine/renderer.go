// Package svgengine renders documents to SVG through svgo and converts SVG
// to raster formats through a pluggable converter chain (headless browser
// first, pure Go fallback).
package svgengine

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

// RendererName is the registry key for the SVG renderer.
const RendererName = "svg"

// Renderer emits one SVG file per page. Vector drawings pass through
// losslessly; raster images are referenced by path.
type Renderer struct {
	cfg engine.Config
}

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
		Drawings:     true,
		MultiPage:    true,
		VectorOutput: true,
	}
}

type svgPage struct {
	buf    bytes.Buffer
	canvas *svg.SVG
}

type svgDoc struct {
	pages []*svgPage
}

func (r *Renderer) CreateDocument(meta map[string]any) (engine.DocumentHandle, error) {
	return &svgDoc{}, nil
}

func (r *Renderer) AddPage(doc engine.DocumentHandle, size model.Size, background model.Color) (engine.PageHandle, error) {
	d, ok := doc.(*svgDoc)
	if !ok {
		return nil, errors.New(errors.ErrCodeRendering, "document handle belongs to another backend")
	}
	p := &svgPage{}
	p.canvas = svg.New(&p.buf)
	w, h := int(math.Ceil(size.Width)), int(math.Ceil(size.Height))
	p.canvas.Start(w, h)
	p.canvas.Rect(0, 0, w, h, "fill:"+cssColor(background))
	d.pages = append(d.pages, p)
	return p, nil
}

func (r *Renderer) RenderElement(pg engine.PageHandle, el model.Element, res *engine.Resources) engine.RenderResult {
	p, ok := pg.(*svgPage)
	if !ok {
		return engine.Failed("page handle belongs to another backend")
	}
	switch e := el.(type) {
	case *model.TextElement:
		return renderText(p, e)
	case *model.ImageElement:
		return renderImage(p, e, res)
	case *model.DrawingElement:
		return renderDrawing(p, e)
	default:
		return engine.Skipped(fmt.Sprintf("unknown element kind %q", el.Kind()))
	}
}

func renderText(p *svgPage, e *model.TextElement) engine.RenderResult {
	if e.Content == "" {
		return engine.Skipped("empty text content")
	}
	size := e.FontSize
	if size <= 0 {
		size = 12
	}
	family := e.FontName
	if family == "" {
		family = "sans-serif"
	}

	x := e.BBox.X0
	anchor := "start"
	switch e.Alignment {
	case "center":
		x = (e.BBox.X0 + e.BBox.X1) / 2
		anchor = "middle"
	case "right":
		x = e.BBox.X1
		anchor = "end"
	}

	style := fmt.Sprintf("font-family:%s;font-size:%gpt;fill:%s;text-anchor:%s",
		family, size, cssColor(e.Color), anchor)
	p.canvas.Text(int(x), int(e.BBox.Y1), e.Content, style)
	return engine.Rendered()
}

func renderImage(p *svgPage, e *model.ImageElement, res *engine.Resources) engine.RenderResult {
	path := e.Path
	if !filepath.IsAbs(path) && res != nil && res.AssetDir != "" {
		path = filepath.Join(res.AssetDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return engine.Failed(fmt.Sprintf("image file %s not readable: %v", path, err))
	}
	p.canvas.Image(int(e.BBox.X0), int(e.BBox.Y0), int(e.BBox.X1-e.BBox.X0), int(e.BBox.Y1-e.BBox.Y0), path)
	return engine.Rendered()
}

func renderDrawing(p *svgPage, e *model.DrawingElement) engine.RenderResult {
	// A drawing carrying its original SVG markup passes through unchanged.
	if e.SVGSource != "" {
		if _, err := io.WriteString(p.canvas.Writer, e.SVGSource); err != nil {
			return engine.Failed(err.Error())
		}
		return engine.Rendered()
	}
	if len(e.Commands) == 0 {
		return engine.Skipped("drawing has no commands")
	}

	d, err := pathData(e.Commands)
	if err != nil {
		return engine.Failed(err.Error())
	}
	p.canvas.Path(d, drawingStyle(e))
	return engine.Rendered()
}

// pathData converts drawing commands into an SVG path "d" attribute. Rects
// and ellipses become path segments so one element covers the whole drawing.
func pathData(cmds []model.DrawCommand) (string, error) {
	var sb strings.Builder
	for _, cmd := range cmds {
		switch cmd.Op {
		case model.DrawMove:
			if len(cmd.Points) < 1 {
				return "", fmt.Errorf("move needs a point")
			}
			fmt.Fprintf(&sb, "M%g %g ", cmd.Points[0].X, cmd.Points[0].Y)
		case model.DrawLine:
			if len(cmd.Points) < 1 {
				return "", fmt.Errorf("line needs a point")
			}
			fmt.Fprintf(&sb, "L%g %g ", cmd.Points[0].X, cmd.Points[0].Y)
		case model.DrawCurve:
			if len(cmd.Points) < 3 {
				return "", fmt.Errorf("curve needs two control points and an endpoint")
			}
			fmt.Fprintf(&sb, "C%g %g %g %g %g %g ",
				cmd.Points[0].X, cmd.Points[0].Y,
				cmd.Points[1].X, cmd.Points[1].Y,
				cmd.Points[2].X, cmd.Points[2].Y)
		case model.DrawRect:
			if len(cmd.Points) < 2 {
				return "", fmt.Errorf("rect needs two corner points")
			}
			a, b := cmd.Points[0], cmd.Points[1]
			fmt.Fprintf(&sb, "M%g %g L%g %g L%g %g L%g %g Z ",
				a.X, a.Y, b.X, a.Y, b.X, b.Y, a.X, b.Y)
		case model.DrawEllipse:
			if len(cmd.Points) < 2 {
				return "", fmt.Errorf("ellipse needs center and radii points")
			}
			c, radii := cmd.Points[0], cmd.Points[1]
			rx, ry := math.Abs(radii.X), math.Abs(radii.Y)
			fmt.Fprintf(&sb, "M%g %g A%g %g 0 1 0 %g %g A%g %g 0 1 0 %g %g ",
				c.X-rx, c.Y, rx, ry, c.X+rx, c.Y, rx, ry, c.X-rx, c.Y)
		case model.DrawClose:
			sb.WriteString("Z ")
		default:
			return "", fmt.Errorf("unknown drawing op %q", cmd.Op)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func drawingStyle(e *model.DrawingElement) string {
	fill := "none"
	if e.Fill != nil {
		fill = cssColor(*e.Fill)
	}
	width := e.StrokeWidth
	if width <= 0 {
		width = 1
	}
	return fmt.Sprintf("fill:%s;stroke:%s;stroke-width:%g", fill, cssColor(e.Stroke), width)
}

func (r *Renderer) FinalizeDocument(doc engine.DocumentHandle, outPath string) error {
	d, ok := doc.(*svgDoc)
	if !ok {
		return errors.New(errors.ErrCodeRendering, "document handle belongs to another backend")
	}
	if len(d.pages) == 0 {
		return errors.New(errors.ErrCodeRendering, "document has no pages")
	}
	for i, p := range d.pages {
		p.canvas.End()
		path := outPath
		if i > 0 {
			ext := filepath.Ext(outPath)
			path = strings.TrimSuffix(outPath, ext) + fmt.Sprintf("-page%d", i+1) + ext
		}
		if err := os.WriteFile(path, p.buf.Bytes(), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeRendering, err, "write %s", path)
		}
	}
	return nil
}

func cssColor(c model.Color) string {
	if c.A < 1 {
		return fmt.Sprintf("rgba(%d,%d,%d,%.3g)", int(c.R*255), int(c.G*255), int(c.B*255), c.A)
	}
	return fmt.Sprintf("rgb(%d,%d,%d)", int(c.R*255), int(c.G*255), int(c.B*255))
}
