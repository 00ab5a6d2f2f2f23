// Package docmorph converts documents between formats through a canonical
// intermediate model, re-renders them, and validates the result visually.
//
// The typical round trip is Parse -> transform -> Render -> Validate:
//
//	result, err := docmorph.Convert(ctx, "in.pdf", "out.pdf", docmorph.Options{})
//	verdict := docmorph.Validate(ctx, "in.pdf", "out.pdf", docmorph.Options{})
package docmorph

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/engine/pdfengine"
	"github.com/flanksource/docmorph/engine/rasterengine"
	"github.com/flanksource/docmorph/engine/svgengine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/fonts"
	"github.com/flanksource/docmorph/model"
	"github.com/flanksource/docmorph/validation"
)

// Options configures a conversion or validation run. The zero value uses
// auto-detected parsing, an output renderer inferred from the file
// extension, and default thresholds.
type Options struct {
	// Parser selects a parse adapter by name; empty auto-detects.
	Parser string
	// Renderer selects a render adapter by name; empty infers from the
	// output extension and falls back through the default chain.
	Renderer string
	// Engine carries DPI, font dirs and per-engine parameters.
	Engine engine.Config
	// Fonts configures font resolution for rendering.
	Fonts fonts.Config
	// Parse tunes asset extraction and page limits.
	Parse engine.ParseOptions
	// Validation tunes the visual comparison.
	Validation validation.Config
	// Transform, when set, edits the parsed document before rendering.
	Transform func(*model.Document) error
	// Registry overrides the default adapter registry.
	Registry *engine.Registry
}

// ConvertResult reports one conversion: the parsed model, the font audit,
// and the per-element render outcomes keyed by element id.
type ConvertResult struct {
	Document   *model.Document                `json:"-"`
	Fonts      *fonts.Resolution              `json:"fonts"`
	Elements   map[string]engine.RenderResult `json:"elements"`
	Renderer   string                         `json:"renderer"`
	OutputPath string                         `json:"output_path"`
	// Fallback is set when the default renderer chain substituted an
	// engine for the one originally requested.
	Fallback *engine.Fallback `json:"fallback,omitempty"`
}

// Skipped returns ids of elements the backend could not express.
func (r *ConvertResult) Skipped() []string {
	var ids []string
	for id, res := range r.Elements {
		if res.Status == engine.StatusSkipped {
			ids = append(ids, id)
		}
	}
	return ids
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *engine.Registry
)

// DefaultRegistry returns the shared registry with all built-in adapters
// registered. The PDF renderer is the preferred default, falling back to the
// raster and SVG backends when it cannot initialize.
func DefaultRegistry() *engine.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds a fresh registry with the built-in adapters. Most
// callers want DefaultRegistry; tests and embedders that register custom
// adapters get an isolated one here.
func NewRegistry() *engine.Registry {
	r := engine.NewRegistry()
	r.RegisterParser(pdfengine.ParserName, func() engine.FormatAdapter { return pdfengine.NewParser() })
	r.RegisterParser(rasterengine.ParserName, func() engine.FormatAdapter { return rasterengine.NewParser() })
	r.RegisterRenderer(pdfengine.RendererName, func() engine.RenderAdapter { return pdfengine.NewRenderer() })
	r.RegisterRenderer(rasterengine.RendererName, func() engine.RenderAdapter { return rasterengine.NewRenderer() })
	r.RegisterRenderer(svgengine.RendererName, func() engine.RenderAdapter { return svgengine.NewRenderer() })
	r.SetDefaultRenderer(pdfengine.RendererName, rasterengine.RendererName, svgengine.RendererName)
	return r
}

// Convert parses in, applies the optional transform, resolves fonts and
// renders to out. Per-element render failures do not abort the conversion;
// they are reported in the result.
func Convert(ctx context.Context, in, out string, opts Options) (*ConvertResult, error) {
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	parserName := opts.Parser
	if parserName == "" {
		parserName = engine.Auto
	}
	parser, err := registry.Parser(parserName, in)
	if err != nil {
		return nil, err
	}

	doc, err := parser.Parse(ctx, in, opts.Parse)
	if err != nil {
		return nil, err
	}

	if opts.Transform != nil {
		if err := opts.Transform(doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "transform hook")
		}
	}

	fontCfg := opts.Fonts
	if len(fontCfg.Dirs) == 0 {
		fontCfg.Dirs = opts.Engine.FontDirs
	}
	fontEngine, err := fonts.NewEngine(fontCfg)
	if err != nil {
		return nil, err
	}
	resolution, err := fontEngine.Resolve(ctx, doc)
	if err != nil {
		return nil, err
	}

	renderer, rendererName, fallback, err := pickRenderer(registry, opts, out)
	if err != nil {
		return nil, err
	}

	result := &ConvertResult{
		Document:   doc,
		Fonts:      resolution,
		Elements:   map[string]engine.RenderResult{},
		Renderer:   rendererName,
		OutputPath: out,
		Fallback:   fallback,
	}

	handle, err := renderer.CreateDocument(doc.Metadata)
	if err != nil {
		return nil, err
	}
	resources := &engine.Resources{
		FontPaths: resolution.FontPaths,
		AssetDir:  opts.Parse.AssetDir,
	}
	if resources.AssetDir == "" {
		resources.AssetDir = filepath.Dir(in)
	}

	for _, unit := range doc.Units {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRendering, err, "conversion interrupted")
		}
		page, err := renderer.AddPage(handle, unit.Size(), model.White)
		if err != nil {
			return nil, err
		}
		for _, el := range renderOrder(unit) {
			res := renderer.RenderElement(page, el, resources)
			result.Elements[el.Base().ID] = res
			if res.Status != engine.StatusRendered {
				logger.Debugf("element %s %s: %s", el.Base().ID, res.Status, res.Reason)
			}
		}
	}

	if err := renderer.FinalizeDocument(handle, out); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate compares an original file against its regenerated counterpart
// and reports the similarity verdict. Pipeline failures are captured inside
// the result, never returned.
func Validate(ctx context.Context, original, regenerated string, opts Options) validation.ValidationResult {
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	return validation.NewPipeline(registry, opts.Validation).Validate(ctx, original, regenerated)
}

// ConvertAndValidate runs Convert and then compares the output against the
// input. The conversion result is returned even when validation fails, so
// callers can inspect the font audit alongside the score.
func ConvertAndValidate(ctx context.Context, in, out string, opts Options) (*ConvertResult, validation.ValidationResult, error) {
	converted, err := Convert(ctx, in, out, opts)
	if err != nil {
		return nil, validation.ValidationResult{}, err
	}
	return converted, Validate(ctx, in, out, opts), nil
}

// pickRenderer resolves the render adapter: explicit name, then output
// extension, then the default fallback chain. The Fallback is non-nil only
// when the default chain substituted an engine.
func pickRenderer(registry *engine.Registry, opts Options, out string) (engine.RenderAdapter, string, *engine.Fallback, error) {
	name := opts.Renderer
	if name == "" {
		name = rendererForExtension(out)
	}
	if name == "" {
		adapter, fallback, err := registry.DefaultRenderer(opts.Engine)
		if err != nil {
			return nil, "", nil, err
		}
		return adapter, adapter.Name(), fallback, nil
	}
	adapter, err := registry.Renderer(name, opts.Engine)
	if err != nil {
		return nil, "", nil, err
	}
	return adapter, name, nil, nil
}

func rendererForExtension(out string) string {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".pdf":
		return pdfengine.RendererName
	case ".svg":
		return svgengine.RendererName
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return rasterengine.RendererName
	default:
		return ""
	}
}

// renderOrder flattens a unit's visible layers into z order.
func renderOrder(u model.Unit) []model.Element {
	var elements []model.Element
	var collect func(l *model.Layer)
	collect = func(l *model.Layer) {
		if !l.Visible {
			return
		}
		elements = append(elements, l.Elements...)
		for _, c := range l.Children {
			collect(c)
		}
	}
	for _, layer := range u.Layers() {
		collect(layer)
	}
	sort.SliceStable(elements, func(i, j int) bool {
		return elements[i].Base().ZIndex < elements[j].Base().ZIndex
	})
	return elements
}
