// Package rasterengine implements the raster-image side of the conversion
// pipeline: a parse adapter that models PNG/JPEG/GIF/BMP/TIFF files as
// single-canvas documents, and a render adapter that draws any document
// onto a bitmap canvas. The render adapter doubles as the rasterizer used
// by visual validation.
package rasterengine

import (
	"bytes"
	"context"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Image codecs consumed through image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

// ParserName is the registry key for the raster parse adapter.
const ParserName = "raster"

var rasterExtensions = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".gif":  "gif",
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
}

// magic prefixes for the sniff in CanParse; TIFF has two byte orders.
var rasterMagic = [][]byte{
	[]byte("\x89PNG\r\n\x1a\n"),
	{0xFF, 0xD8, 0xFF},
	[]byte("GIF8"),
	[]byte("BM"),
	{0x49, 0x49, 0x2A, 0x00},
	{0x4D, 0x4D, 0x00, 0x2A},
}

// Parser models raster images as one-canvas documents holding a single
// image element covering the full canvas.
type Parser struct{}

// NewParser creates the raster parse adapter.
func NewParser() *Parser { return &Parser{} }

func (p *Parser) Name() string { return ParserName }

// CanParse checks the extension, falling back to a magic-bytes sniff for
// extensionless files. It never panics and reads at most 8 bytes.
func (p *Parser) CanParse(path string) bool {
	if _, ok := rasterExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck

	header := make([]byte, 8)
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 {
		return false
	}
	for _, magic := range rasterMagic {
		if bytes.HasPrefix(header[:n], magic) {
			return true
		}
	}
	return false
}

// Parse decodes the image and builds the canonical single-canvas document.
// Any decode failure is a PARSING_ERROR; no partial document is returned.
func (p *Parser) Parse(ctx context.Context, path string, opts engine.ParseOptions) (*model.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "decode %s", path)
	}
	// A full decode catches truncated pixel data that the header read
	// cannot; parse is all-or-nothing.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "rewind %s", path)
	}
	if _, _, err := image.Decode(f); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "decode %s", path)
	}

	doc := model.New(ParserName, "1.0", map[string]any{
		"source_file":   filepath.Base(path),
		"source_format": format,
	})
	canvas := model.NewCanvas(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), model.Size{
		Width:  float64(cfg.Width),
		Height: float64(cfg.Height),
	})
	if err := doc.AddUnit(canvas); err != nil {
		return nil, err
	}

	layer := model.NewLayer("layer-1", "image")
	layer.LayerType = "pixel"
	layer.BBox = model.BBox{X1: float64(cfg.Width), Y1: float64(cfg.Height)}
	if err := canvas.AddLayer(layer); err != nil {
		return nil, err
	}
	if err := layer.AddElement(&model.ImageElement{
		ElementBase: model.ElementBase{
			ID:   "image-1",
			BBox: model.BBox{X1: float64(cfg.Width), Y1: float64(cfg.Height)},
		},
		Path:   path,
		Format: format,
	}); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExtractAssets copies the image itself into outDir; a raster file is its
// own only asset.
func (p *Parser) ExtractAssets(ctx context.Context, path, outDir string) (*model.AssetManifest, error) {
	manifest := model.NewAssetManifest(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "read %s", path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "create %s", outDir)
	}
	target := filepath.Join(outDir, filepath.Base(path))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "write %s", target)
	}

	manifest.Add(model.AssetRecord{
		Kind:         model.AssetImage,
		Path:         target,
		OriginalName: filepath.Base(path),
		SizeBytes:    int64(len(data)),
	})
	return manifest, nil
}
