// Package pdfengine implements the PDF adapters: parsing through
// ledongthuc/pdf (text runs with positions) and pdfcpu (structure
// validation, page geometry, embedded assets), and rendering through
// maroto.
package pdfengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

// ParserName is the registry key for the PDF parse adapter.
const ParserName = "pdf"

var pdfMagic = []byte("%PDF-")

// Parser builds canonical documents from PDF files. Parsing is
// all-or-nothing: structural validation runs first, and any failure during
// text extraction discards everything.
type Parser struct{}

// NewParser creates the PDF parse adapter.
func NewParser() *Parser { return &Parser{} }

func (p *Parser) Name() string { return ParserName }

// CanParse accepts .pdf extensions and otherwise sniffs the %PDF- header.
func (p *Parser) CanParse(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck

	header := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return bytes.Equal(header, pdfMagic)
}

// Parse extracts page geometry and positioned text runs into the canonical
// model. Coordinates are converted from PDF bottom-left origin to the
// model's top-left origin.
func (p *Parser) Parse(ctx context.Context, path string, opts engine.ParseOptions) (doc *model.Document, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, statErr, "stat %s", path)
	}

	// The text extractor panics on some malformed files; contain that to
	// a PARSING_ERROR so batch callers survive.
	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = errors.New(errors.ErrCodeParsing, "pdf extraction panicked on %s: %v", path, rec)
		}
	}()

	if err := pdfcpu.ValidateFile(path, nil); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "pdf structure validation of %s", path)
	}
	dims, err := pdfcpu.PageDimsFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "read page dimensions of %s", path)
	}

	f, reader, err := ledongthuc.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	doc = model.New(ParserName, "1.0", map[string]any{
		"source_file": filepath.Base(path),
	})

	pageCount := reader.NumPage()
	if opts.MaxPages > 0 && pageCount > opts.MaxPages {
		pageCount = opts.MaxPages
	}

	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeParsing, ctx.Err(), "parse of %s interrupted", path)
		}

		size := model.Size{Width: 612, Height: 792}
		if pageNum-1 < len(dims) {
			size = model.Size{Width: dims[pageNum-1].Width, Height: dims[pageNum-1].Height}
		}
		page := model.NewPage(pageNum, size)
		if err := doc.AddUnit(page); err != nil {
			return nil, err
		}

		pdfPage := reader.Page(pageNum)
		if pdfPage.V.IsNull() {
			continue
		}

		layer := model.NewLayer(fmt.Sprintf("page-%d-content", pageNum), "content")
		layer.LayerType = "text"
		layer.BBox = model.BBox{X1: size.Width, Y1: size.Height}
		if err := page.AddLayer(layer); err != nil {
			return nil, err
		}

		runs := groupTextRuns(pdfPage.Content().Text, size.Height)
		for i, run := range runs {
			el := &model.TextElement{
				ElementBase: model.ElementBase{
					ID:     fmt.Sprintf("p%d-text-%d", pageNum, i+1),
					BBox:   run.bbox,
					ZIndex: i,
				},
				Content:  run.content,
				FontName: run.font,
				FontSize: run.size,
				Color:    model.Black,
			}
			if err := layer.AddElement(el); err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

// textRun is a line of text sharing font and baseline.
type textRun struct {
	content string
	font    string
	size    float64
	bbox    model.BBox
}

// groupTextRuns merges individual positioned glyph strings into line runs.
// Items sharing a font, size and baseline (within half the font size) are
// one run; runs come back in top-to-bottom, left-to-right order with
// top-left-origin bboxes.
func groupTextRuns(items []ledongthuc.Text, pageHeight float64) []textRun {
	type key struct {
		font string
		size float64
		row  int
	}

	groups := map[key][]ledongthuc.Text{}
	var order []key
	for _, item := range items {
		if strings.TrimSpace(item.S) == "" {
			continue
		}
		quantum := item.FontSize / 2
		if quantum <= 0 {
			quantum = 4
		}
		k := key{font: item.Font, size: item.FontSize, row: int(math.Round(item.Y / quantum))}
		if _, exists := groups[k]; !exists {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item)
	}

	runs := make([]textRun, 0, len(order))
	for _, k := range order {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].X < group[j].X })

		var sb strings.Builder
		minX, maxX := math.Inf(1), math.Inf(-1)
		baseline := group[0].Y
		for _, item := range group {
			sb.WriteString(item.S)
			minX = math.Min(minX, item.X)
			maxX = math.Max(maxX, item.X+item.W)
		}

		size := k.size
		if size <= 0 {
			size = 12
		}
		// PDF Y is the baseline from the bottom edge; flip to top-left.
		top := pageHeight - baseline - size
		if top < 0 {
			top = 0
		}
		runs = append(runs, textRun{
			content: sb.String(),
			font:    cleanFontName(k.font),
			size:    size,
			bbox: model.BBox{
				X0: minX,
				Y0: top,
				X1: math.Max(maxX, minX+1),
				Y1: top + size,
			},
		})
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].bbox.Y0 != runs[j].bbox.Y0 {
			return runs[i].bbox.Y0 < runs[j].bbox.Y0
		}
		return runs[i].bbox.X0 < runs[j].bbox.X0
	})
	return runs
}

// cleanFontName strips the subset prefix PDFs add to embedded fonts
// (e.g. "ABCDEF+Helvetica" -> "Helvetica").
func cleanFontName(name string) string {
	if idx := strings.IndexByte(name, '+'); idx == 6 {
		return name[idx+1:]
	}
	return name
}

// ExtractAssets pulls embedded images and font programs out of the PDF with
// pdfcpu and inventories whatever lands in outDir.
func (p *Parser) ExtractAssets(ctx context.Context, path, outDir string) (*model.AssetManifest, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "create %s", outDir)
	}

	if err := pdfcpu.ExtractImagesFile(path, outDir, nil, nil); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "extract images from %s", path)
	}
	// Fonts are best-effort: many PDFs only use standard fonts and have
	// none embedded.
	_ = pdfcpu.ExtractFontsFile(path, outDir, nil, nil)

	manifest := model.NewAssetManifest(path)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParsing, err, "read %s", outDir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		kind := model.AssetOther
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			kind = model.AssetImage
		case ".ttf", ".otf", ".cff":
			kind = model.AssetFont
		}
		manifest.Add(model.AssetRecord{
			Kind:         kind,
			Path:         filepath.Join(outDir, entry.Name()),
			OriginalName: entry.Name(),
			SizeBytes:    info.Size(),
		})
	}
	return manifest, nil
}
