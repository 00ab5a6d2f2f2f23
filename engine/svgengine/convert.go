package svgengine

import (
	"context"
	"image/png"
	"os"
	"strings"
	"sync"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/docmorph/engine/rasterengine"
	"github.com/flanksource/docmorph/errors"
)

// Converter turns an SVG file into another format. Implementations vary in
// fidelity: a headless browser honors CSS and font features the pure Go
// rasterizer does not.
type Converter interface {
	Name() string
	// Available reports whether this converter can run in the current
	// environment. It must be cheap and must never panic.
	Available() bool
	// Formats lists the lowercase output formats the converter supports.
	Formats() []string
	Convert(ctx context.Context, svgPath, outPath string, opts ConvertOptions) error
}

// ConvertOptions tunes a single conversion.
type ConvertOptions struct {
	Format string // png, jpg, pdf
	Width  int    // pixels, 0 for the SVG's intrinsic width
	Height int
	DPI    int
}

// DefaultConvertOptions is PNG at screen resolution.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{Format: "png", DPI: 96}
}

// ConverterChain holds converters in fidelity order and falls through to the
// next one when a conversion fails. The pure Go converter sits last so the
// chain always has a working member.
type ConverterChain struct {
	mu         sync.RWMutex
	converters []Converter
}

// NewConverterChain probes the environment and registers whatever is
// available, highest fidelity first.
func NewConverterChain() *ConverterChain {
	c := &ConverterChain{}
	for _, candidate := range []Converter{
		NewBrowserConverter(),
		NewGoConverter(),
	} {
		if candidate.Available() {
			c.converters = append(c.converters, candidate)
		}
	}
	return c
}

// Names lists the registered converters in trial order.
func (c *ConverterChain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.converters))
	for i, conv := range c.converters {
		names[i] = conv.Name()
	}
	return names
}

// Convert tries each registered converter that supports the requested format
// until one succeeds.
func (c *ConverterChain) Convert(ctx context.Context, svgPath, outPath string, opts ConvertOptions) error {
	if opts.Format == "" {
		opts = DefaultConvertOptions()
	}

	c.mu.RLock()
	converters := make([]Converter, len(c.converters))
	copy(converters, c.converters)
	c.mu.RUnlock()

	var lastErr error
	for _, conv := range converters {
		if !supportsFormat(conv, opts.Format) {
			continue
		}
		err := conv.Convert(ctx, svgPath, outPath, opts)
		if err == nil {
			return nil
		}
		logger.Debugf("svg converter %s failed, trying next: %v", conv.Name(), err)
		lastErr = err
	}
	if lastErr == nil {
		return errors.New(errors.ErrCodeRendering, "no svg converter supports format %q", opts.Format)
	}
	return errors.Wrap(errors.ErrCodeRendering, lastErr, "all svg converters failed")
}

// Close releases converters that hold external resources.
func (c *ConverterChain) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conv := range c.converters {
		if closer, ok := conv.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

func supportsFormat(conv Converter, format string) bool {
	for _, f := range conv.Formats() {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// GoConverter rasterizes SVG in-process with oksvg. It handles the common
// shape/path subset and is always available.
type GoConverter struct{}

func NewGoConverter() *GoConverter { return &GoConverter{} }

func (c *GoConverter) Name() string      { return "go" }
func (c *GoConverter) Available() bool   { return true }
func (c *GoConverter) Formats() []string { return []string{"png"} }

func (c *GoConverter) Convert(ctx context.Context, svgPath, outPath string, opts ConvertOptions) error {
	data, err := os.ReadFile(svgPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "read %s", svgPath)
	}

	img, err := rasterengine.RasterizeSVG(string(data), opts.Width, opts.Height)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "rasterize %s", svgPath)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "create %s", outPath)
	}
	defer out.Close() //nolint:errcheck

	if err := png.Encode(out, img); err != nil {
		return errors.Wrap(errors.ErrCodeRendering, err, "encode %s", outPath)
	}
	return nil
}
