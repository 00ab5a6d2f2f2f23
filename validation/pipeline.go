package validation

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/flanksource/commons/logger"

	"github.com/flanksource/docmorph/engine"
	"github.com/flanksource/docmorph/engine/rasterengine"
	"github.com/flanksource/docmorph/engine/svgengine"
	"github.com/flanksource/docmorph/errors"
	"github.com/flanksource/docmorph/model"
)

// Band classifies how far a failing comparison diverged. It routes human
// attention, it is not a hard classifier.
type Band string

const (
	// BandMajor suggests missing or incorrect fonts, or gross layout error.
	BandMajor Band = "major"
	// BandModerate suggests font-rendering or layout drift.
	BandModerate Band = "moderate"
	// BandMinor suggests anti-aliasing, compression or rounding noise.
	BandMinor Band = "minor"
)

// ClassifyBand maps a failing score to its severity band.
func ClassifyBand(score float64) Band {
	switch {
	case score < 0.5:
		return BandMajor
	case score < 0.8:
		return BandModerate
	default:
		return BandMinor
	}
}

// DefaultThreshold is the pass score used when the config leaves it zero.
const DefaultThreshold = 0.95

// Config tunes a validation pipeline. The zero value works with defaults
// applied by NewPipeline.
type Config struct {
	// SSIMThreshold is the minimum passing score.
	SSIMThreshold float64 `json:"ssim_threshold" yaml:"ssim_threshold"`
	// RenderingDPI rasterizes document inputs at this resolution.
	RenderingDPI int `json:"rendering_dpi" yaml:"rendering_dpi"`
	// GenerateDiffImages writes a heat-mapped difference PNG per failure.
	GenerateDiffImages bool `json:"generate_diff_images" yaml:"generate_diff_images"`
	// DiffDir receives diff images; empty means alongside the regenerated
	// file.
	DiffDir string `json:"diff_dir,omitempty" yaml:"diff_dir,omitempty"`
	// MultiPage compares every page pair instead of only the first.
	MultiPage bool `json:"multi_page" yaml:"multi_page"`
	// FontDirs seeds the raster renderer used for document inputs.
	FontDirs []string `json:"font_dirs,omitempty" yaml:"font_dirs,omitempty"`
}

// ValidationResult is the outcome of comparing one original/regenerated
// pair. A failing score and a pipeline error are distinct: Error is set only
// when the comparison itself could not run.
type ValidationResult struct {
	ID          string        `json:"id" yaml:"id"`
	Original    string        `json:"original" yaml:"original"`
	Regenerated string        `json:"regenerated" yaml:"regenerated"`
	Score       float64       `json:"score" yaml:"score"`
	Threshold   float64       `json:"threshold" yaml:"threshold"`
	Passed      bool          `json:"passed" yaml:"passed"`
	Band        Band          `json:"band,omitempty" yaml:"band,omitempty"`
	Algorithm   Algorithm     `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	DiffImage   string        `json:"diff_image,omitempty" yaml:"diff_image,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode   errors.Code   `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Pipeline compares rendered documents. One pipeline may be reused across
// many comparisons; it holds no per-comparison state.
type Pipeline struct {
	cfg      Config
	registry *engine.Registry
}

// NewPipeline builds a pipeline over the given registry, applying defaults
// for unset config fields.
func NewPipeline(registry *engine.Registry, cfg Config) *Pipeline {
	if cfg.SSIMThreshold <= 0 {
		cfg.SSIMThreshold = DefaultThreshold
	}
	if cfg.RenderingDPI <= 0 {
		cfg.RenderingDPI = rasterengine.DefaultDPI
	}
	return &Pipeline{cfg: cfg, registry: registry}
}

// Validate compares two files. Any pipeline failure is captured in the
// result rather than returned, so a batch loop over many pairs never stops on
// one bad file.
func (p *Pipeline) Validate(ctx context.Context, original, regenerated string) (result ValidationResult) {
	start := time.Now()
	result = ValidationResult{
		ID:          resultID(original, regenerated),
		Original:    original,
		Regenerated: regenerated,
		Threshold:   p.cfg.SSIMThreshold,
	}
	defer func() {
		result.Duration = time.Since(start)
		if rec := recover(); rec != nil {
			result.Passed = false
			result.Error = fmt.Sprintf("comparison panicked: %v", rec)
			result.ErrorCode = errors.ErrCodeValidation
		}
	}()

	// Missing inputs are hard precondition failures, not low scores.
	for _, path := range []string{original, regenerated} {
		if !fileExists(path) {
			result.Error = fmt.Sprintf("input file %s does not exist", path)
			result.ErrorCode = errors.ErrCodeFileNotFound
			return result
		}
	}

	origPages, err := p.rasterize(ctx, original)
	if err != nil {
		return p.failResult(result, err)
	}
	regenPages, err := p.rasterize(ctx, regenerated)
	if err != nil {
		return p.failResult(result, err)
	}

	pairs := 1
	if p.cfg.MultiPage {
		pairs = len(origPages)
		if len(regenPages) < pairs {
			pairs = len(regenPages)
		}
		if len(origPages) != len(regenPages) {
			result.Diagnostics = append(result.Diagnostics,
				fmt.Sprintf("page count differs: %d vs %d", len(origPages), len(regenPages)))
		}
	}

	// The aggregate score over compared pages is the minimum: one badly
	// diverged page should not hide behind good siblings.
	score := 1.0
	var algorithm Algorithm
	var worstOrig, worstRegen image.Image
	for i := 0; i < pairs; i++ {
		pageScore, alg, diags, err := CompareImages(origPages[i], regenPages[i])
		if err != nil {
			return p.failResult(result, err)
		}
		result.Diagnostics = append(result.Diagnostics, diags...)
		if algorithm == "" {
			algorithm = alg
		}
		if pageScore <= score {
			score = pageScore
			worstOrig, worstRegen = origPages[i], regenPages[i]
		}
	}

	result.Score = score
	result.Algorithm = algorithm
	result.Passed = score >= p.cfg.SSIMThreshold
	if !result.Passed {
		result.Band = ClassifyBand(score)
		if p.cfg.GenerateDiffImages && worstOrig != nil {
			result.DiffImage = p.writeDiff(result, worstOrig, worstRegen)
		}
	}
	return result
}

// ValidateImages compares two already-rasterized images under the pipeline's
// threshold.
func (p *Pipeline) ValidateImages(id string, original, regenerated image.Image) ValidationResult {
	start := time.Now()
	result := ValidationResult{ID: id, Threshold: p.cfg.SSIMThreshold}

	score, alg, diags, err := CompareImages(original, regenerated)
	result.Duration = time.Since(start)
	if err != nil {
		return p.failResult(result, err)
	}
	result.Score = score
	result.Algorithm = alg
	result.Diagnostics = diags
	result.Passed = score >= p.cfg.SSIMThreshold
	if !result.Passed {
		result.Band = ClassifyBand(score)
	}
	return result
}

func (p *Pipeline) failResult(result ValidationResult, err error) ValidationResult {
	result.Passed = false
	result.Error = err.Error()
	result.ErrorCode = errors.GetCode(err)
	return result
}

// rasterize loads raster files directly, converts SVG output through the
// converter chain, and re-renders anything else through the raster backend
// at the configured DPI.
func (p *Pipeline) rasterize(ctx context.Context, path string) ([]image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		img, err := imaging.Open(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "load %s", path)
		}
		return []image.Image{img}, nil
	case ".svg":
		return p.rasterizeSVG(ctx, path)
	}

	parser, err := p.registry.Parser(engine.Auto, path)
	if err != nil {
		return nil, err
	}
	maxPages := 1
	if p.cfg.MultiPage {
		maxPages = 0
	}
	doc, err := parser.Parse(ctx, path, engine.ParseOptions{MaxPages: maxPages})
	if err != nil {
		return nil, err
	}
	return p.renderPages(doc, filepath.Dir(path))
}

// rasterizeSVG converts SVG output back into bitmaps through the converter
// chain. The svg backend writes later pages as -pageN siblings; those are
// picked up when MultiPage is set.
func (p *Pipeline) rasterizeSVG(ctx context.Context, path string) ([]image.Image, error) {
	tmp, err := os.MkdirTemp("", "docmorph-validate-")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "create conversion dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	chain := svgengine.NewConverterChain()
	defer chain.Close() //nolint:errcheck

	var images []image.Image
	for i, svgPath := range p.svgPageFiles(path) {
		outPath := filepath.Join(tmp, fmt.Sprintf("page-%d.png", i+1))
		if err := chain.Convert(ctx, svgPath, outPath, svgengine.DefaultConvertOptions()); err != nil {
			return nil, err
		}
		img, err := imaging.Open(outPath)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "load converted %s", svgPath)
		}
		images = append(images, img)
	}
	return images, nil
}

// svgPageFiles lists the files making up one svg output: the file itself
// plus any -pageN siblings.
func (p *Pipeline) svgPageFiles(path string) []string {
	files := []string{path}
	if !p.cfg.MultiPage {
		return files
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 2; ; n++ {
		sibling := fmt.Sprintf("%s-page%d%s", stem, n, ext)
		if !fileExists(sibling) {
			break
		}
		files = append(files, sibling)
	}
	return files
}

// renderPages rasterizes a parsed document with the raster backend, one
// image per unit.
func (p *Pipeline) renderPages(doc *model.Document, assetDir string) ([]image.Image, error) {
	renderer := rasterengine.NewRenderer()
	if err := renderer.Initialize(engine.Config{DPI: p.cfg.RenderingDPI, FontDirs: p.cfg.FontDirs}); err != nil {
		return nil, err
	}

	handle, err := renderer.CreateDocument(nil)
	if err != nil {
		return nil, err
	}
	res := &engine.Resources{AssetDir: assetDir}

	var images []image.Image
	for _, unit := range doc.Units {
		page, err := renderer.AddPage(handle, unit.Size(), model.White)
		if err != nil {
			return nil, err
		}
		for _, el := range unitElements(unit) {
			if result := renderer.RenderElement(page, el, res); result.Status == engine.StatusFailed {
				logger.Debugf("element %s failed to render during validation: %s", el.Base().ID, result.Reason)
			}
		}
		img, ok := rasterengine.PageImage(page)
		if !ok {
			return nil, errors.New(errors.ErrCodeValidation, "raster backend returned a foreign page handle")
		}
		images = append(images, img)
		if !p.cfg.MultiPage {
			break
		}
	}
	if len(images) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "document has no renderable pages")
	}
	return images, nil
}

// unitElements flattens a unit's visible layers into z order.
func unitElements(u model.Unit) []model.Element {
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

func (p *Pipeline) writeDiff(result ValidationResult, a, b image.Image) string {
	dir := p.cfg.DiffDir
	if dir == "" {
		dir = filepath.Dir(result.Regenerated)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warnf("cannot create diff dir %s: %v", dir, err)
		return ""
	}
	path := filepath.Join(dir, result.ID+"-diff.png")
	if err := WriteDiffImage(a, b, path); err != nil {
		logger.Warnf("cannot write diff image: %v", err)
		return ""
	}
	return path
}

func resultID(original, regenerated string) string {
	stem := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if stem == "" {
		stem = filepath.Base(regenerated)
	}
	return stem
}
