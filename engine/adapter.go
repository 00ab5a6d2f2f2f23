// Package engine defines the parse/render capability contracts implemented
// by per-format adapters, and the registry that resolves a requested engine
// name (or auto-detects one) to a concrete, initialized adapter instance
// with caching and fallback.
package engine

import (
	"context"
	"time"

	"github.com/flanksource/docmorph/model"
)

// ParseOptions tunes a parse run.
type ParseOptions struct {
	// AssetDir receives extracted images/fonts when set; empty disables
	// asset extraction during parse.
	AssetDir string
	// MaxPages limits how many pages are modeled; 0 means all.
	MaxPages int
}

// FormatAdapter is the parse capability for one source format. Parse is
// all-or-nothing: a corrupt source is not worth partially modeling, so on
// any failure it returns a PARSING_ERROR and never a half-built document.
type FormatAdapter interface {
	// Name is the registry key for this adapter.
	Name() string
	// CanParse is a cheap extension/magic-bytes check. It must never
	// panic and must not do meaningful I/O beyond a header read.
	CanParse(path string) bool
	// Parse builds the canonical document, or fails completely.
	Parse(ctx context.Context, path string, opts ParseOptions) (*model.Document, error)
	// ExtractAssets copies embedded images/fonts into outDir and reports
	// what it found.
	ExtractAssets(ctx context.Context, path, outDir string) (*model.AssetManifest, error)
}

// RenderStatus is the per-element outcome of the best-effort render side.
type RenderStatus string

const (
	StatusRendered RenderStatus = "rendered"
	StatusSkipped  RenderStatus = "skipped"
	StatusFailed   RenderStatus = "failed"
)

// RenderResult reports one element render. An unsupported element comes back
// skipped rather than as an error, so the rest of the page still renders.
type RenderResult struct {
	Status   RenderStatus  `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Rendered is the success result.
func Rendered() RenderResult { return RenderResult{Status: StatusRendered} }

// Skipped marks an element the backend cannot express.
func Skipped(reason string) RenderResult {
	return RenderResult{Status: StatusSkipped, Reason: reason}
}

// Failed marks an element the backend tried and could not render.
func Failed(reason string) RenderResult {
	return RenderResult{Status: StatusFailed, Reason: reason}
}

// DocumentHandle is an opaque in-progress output document owned by one
// render adapter. Handles must not cross adapters.
type DocumentHandle any

// PageHandle is an opaque page within a DocumentHandle.
type PageHandle any

// Resources carries side inputs for element rendering, most importantly the
// resolved font-name → font-file mapping produced by font resolution.
type Resources struct {
	// FontPaths maps requested font names to TTF files on disk.
	FontPaths map[string]string
	// AssetDir is where image elements with relative paths are resolved.
	AssetDir string
}

// FeatureSet declares what a render backend can express. The registry's
// CompareEngines diffs these without touching adapter state.
type FeatureSet struct {
	Text         bool `json:"text"`
	Images       bool `json:"images"`
	Drawings     bool `json:"drawings"`
	BlendModes   bool `json:"blend_modes"`
	MultiPage    bool `json:"multi_page"`
	VectorOutput bool `json:"vector_output"`
}

// RenderAdapter is the render capability for one output backend. In contrast
// to parsing, rendering is best-effort per element; only document-level
// finalization failures are errors.
type RenderAdapter interface {
	// Name is the registry key for this adapter.
	Name() string
	// Initialize prepares the backend; it is idempotent and returns an
	// ENGINE_INIT_FAILED error when the backend's environment is broken.
	Initialize(config Config) error
	// Features declares the backend's capability flags.
	Features() FeatureSet
	// CreateDocument starts a new output document.
	CreateDocument(meta map[string]any) (DocumentHandle, error)
	// AddPage appends a page of the given size and background color.
	AddPage(doc DocumentHandle, size model.Size, background model.Color) (PageHandle, error)
	// RenderElement draws one element, reporting rendered/skipped/failed.
	RenderElement(page PageHandle, el model.Element, res *Resources) RenderResult
	// FinalizeDocument flushes the output to disk, returning a
	// RENDERING_ERROR on I/O failure.
	FinalizeDocument(doc DocumentHandle, outPath string) error
}
