// Package fonts implements font resolution for the render side of the
// conversion pipeline: which fonts a document needs, which are available,
// what got substituted and why. Missing fonts and coverage gaps are
// first-class data in the resolution result, never errors; only font-store
// I/O failures raise.
package fonts

import (
	"context"
	"fmt"
	"os"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"github.com/flanksource/docmorph/model"
)

// Config is the injected font-management configuration.
type Config struct {
	// Dirs are extra local font directories scanned before system fonts.
	Dirs []string
	// DefaultFont is substituted for unknown fonts before the embedded
	// last resort. Empty skips this step.
	DefaultFont string
	// DownloadBaseURL enables on-demand download of missing families.
	DownloadBaseURL string
	// CacheDir holds downloaded fonts and the materialized builtin font.
	CacheDir string
}

// FontState is the terminal state of one required font.
type FontState string

const (
	StateAccepted    FontState = "accepted"
	StateSubstituted FontState = "substituted"
	StateMissing     FontState = "missing"
)

// Substitution records one font swap with enough detail to audit later.
type Substitution struct {
	OriginalFont    string `json:"original_font"`
	SubstitutedFont string `json:"substituted_font"`
	Reason          string `json:"reason"`
	ElementID       string `json:"element_id"`
	PageNumber      int    `json:"page_number"`
	TextSample      string `json:"text_sample"`
}

// CoverageIssue records an available, name-matched font that lacks glyphs
// for the text it must render. The fix differs from a missing font
// (re-encode the text vs. install the right font), so it is tracked apart.
type CoverageIssue struct {
	FontName      string `json:"font_name"`
	ElementID     string `json:"element_id"`
	PageNumber    int    `json:"page_number"`
	MissingGlyphs string `json:"missing_glyphs"`
	TextSample    string `json:"text_sample"`
}

// MessageLevel grades resolver messages. Only error-level messages fail
// validation.
type MessageLevel string

const (
	LevelInfo    MessageLevel = "info"
	LevelWarning MessageLevel = "warning"
	LevelError   MessageLevel = "error"
)

// Message is one entry of the resolution audit trail.
type Message struct {
	Level MessageLevel `json:"level"`
	Text  string       `json:"text"`
}

// Resolution is the full audit of one document's font requirements.
type Resolution struct {
	Required       []string             `json:"fonts_required"`
	Accepted       []string             `json:"fonts_accepted"`
	Missing        []string             `json:"fonts_missing"`
	States         map[string]FontState `json:"states"`
	Substitutions  []Substitution       `json:"substitutions"`
	CoverageIssues []CoverageIssue      `json:"coverage_issues"`
	Messages       []Message            `json:"messages"`
	// FontPaths maps every required font name to the file that will
	// actually render it (original or substitute).
	FontPaths map[string]string `json:"font_paths"`
	// ValidationPassed is false as soon as any error-level message is
	// recorded; warnings alone never fail it.
	ValidationPassed bool `json:"validation_passed"`
}

func (r *Resolution) addMessage(level MessageLevel, format string, args ...any) {
	r.Messages = append(r.Messages, Message{Level: level, Text: fmt.Sprintf(format, args...)})
	if level == LevelError {
		r.ValidationPassed = false
	}
}

// Engine resolves fonts for documents. All run state, notably the
// download-attempted set, is owned by the instance, so concurrent runs or
// successive documents never leak state into one another: create one Engine
// per run.
type Engine struct {
	config     Config
	store      *Store
	downloader *Downloader

	// attempted tracks families whose download was tried this run, so a
	// known-unavailable font is never re-queried.
	attempted map[string]bool
	// resolved caches the per-run outcome per font name.
	resolved map[string]fontOutcome
}

type fontOutcome struct {
	state  FontState
	path   string
	usedAs string // font actually rendering (equals name when accepted)
	reason string // substitution reason, set unless accepted
}

// NewEngine scans the font stores and prepares a resolution run. Unreadable
// configured directories fail with FONT_STORE_ERROR.
func NewEngine(config Config) (*Engine, error) {
	dirs := lo.Filter(config.Dirs, func(dir string, _ int) bool {
		_, err := os.Stat(dir)
		return err == nil
	})
	store, err := NewStore(dirs...)
	if err != nil {
		return nil, err
	}
	logger.Debugf("font store indexed %d font files", store.Len())
	return &Engine{
		config:     config,
		store:      store,
		downloader: NewDownloader(config.DownloadBaseURL, config.CacheDir),
		attempted:  map[string]bool{},
		resolved:   map[string]fontOutcome{},
	}, nil
}

// requiredFont is one text element's font requirement with provenance.
type requiredFont struct {
	name       string
	elementID  string
	pageNumber int
	text       string
}

// Resolve audits every text element of the document: determines required vs
// available fonts, applies the ordered substitution policy, and verifies
// glyph coverage of accepted fonts against the actual text.
func (e *Engine) Resolve(ctx context.Context, doc *model.Document) (*Resolution, error) {
	res := &Resolution{
		States:           map[string]FontState{},
		FontPaths:        map[string]string{},
		ValidationPassed: true,
	}

	requirements := collectRequirements(doc)
	res.Required = lo.Uniq(lo.Map(requirements, func(r requiredFont, _ int) string { return r.name }))

	for _, req := range requirements {
		outcome, err := e.resolveFont(ctx, req.name)
		if err != nil {
			return nil, err
		}

		res.States[req.name] = outcome.state
		if outcome.path != "" {
			res.FontPaths[req.name] = outcome.path
		}

		switch outcome.state {
		case StateAccepted:
			// Name-matched and available is not enough: the font must
			// actually cover the element's text.
			if outcome.path != "" {
				missing, err := MissingGlyphs(outcome.path, req.text)
				if err != nil {
					return nil, err
				}
				if len(missing) > 0 {
					res.CoverageIssues = append(res.CoverageIssues, CoverageIssue{
						FontName:      req.name,
						ElementID:     req.elementID,
						PageNumber:    req.pageNumber,
						MissingGlyphs: string(missing),
						TextSample:    sample(req.text),
					})
					res.addMessage(LevelWarning, "font %q lacks glyphs for %q in element %s", req.name, string(missing), req.elementID)
				}
			}
		case StateSubstituted, StateMissing:
			res.Substitutions = append(res.Substitutions, Substitution{
				OriginalFont:    req.name,
				SubstitutedFont: outcome.usedAs,
				Reason:          outcome.reason,
				ElementID:       req.elementID,
				PageNumber:      req.pageNumber,
				TextSample:      sample(req.text),
			})
			if outcome.state == StateMissing {
				res.addMessage(LevelWarning, "font %q not found; rendering element %s with %q", req.name, req.elementID, outcome.usedAs)
			} else {
				res.addMessage(LevelInfo, "font %q substituted with %q for element %s", req.name, outcome.usedAs, req.elementID)
			}
			// A substitute that cannot cover the text leaves the element
			// unrenderable: the substitution chain has already run.
			if outcome.path != "" {
				missing, err := MissingGlyphs(outcome.path, req.text)
				if err != nil {
					return nil, err
				}
				if len(missing) > 0 {
					res.CoverageIssues = append(res.CoverageIssues, CoverageIssue{
						FontName:      outcome.usedAs,
						ElementID:     req.elementID,
						PageNumber:    req.pageNumber,
						MissingGlyphs: string(missing),
						TextSample:    sample(req.text),
					})
					res.addMessage(LevelError, "substitute font %q lacks glyphs for %q in element %s; text will not render faithfully", outcome.usedAs, string(missing), req.elementID)
				}
			}
		}
	}

	for name, state := range res.States {
		switch state {
		case StateAccepted:
			res.Accepted = append(res.Accepted, name)
		case StateMissing:
			res.Missing = append(res.Missing, name)
		}
	}
	return res, nil
}

// resolveFont runs the ordered substitution policy for one font name,
// caching the outcome for the rest of the run. Order: exact local match,
// on-demand download (at most once per run per name), configured default,
// embedded builtin as last resort.
func (e *Engine) resolveFont(ctx context.Context, name string) (fontOutcome, error) {
	if cached, done := e.resolved[name]; done {
		return cached, nil
	}

	outcome, err := e.resolveFontUncached(ctx, name)
	if err != nil {
		return fontOutcome{}, err
	}
	e.resolved[name] = outcome
	return outcome, nil
}

func (e *Engine) resolveFontUncached(ctx context.Context, name string) (fontOutcome, error) {
	// (a) exact name match in the local stores
	if path, ok := e.store.Find(name); ok {
		return fontOutcome{state: StateAccepted, path: path, usedAs: name}, nil
	}

	// Standard fonts without a local file are still available: every
	// backend renders them, metric-compatible, without a font program.
	if IsStandardFont(name) {
		return fontOutcome{state: StateAccepted, usedAs: name}, nil
	}

	// (b) on-demand download, attempted at most once per run per name
	if e.downloader.Enabled() && !e.attempted[name] {
		e.attempted[name] = true
		path, ok, err := e.downloader.Fetch(ctx, name)
		if err != nil {
			return fontOutcome{}, err
		}
		if ok {
			return fontOutcome{state: StateAccepted, path: path, usedAs: name}, nil
		}
	}

	// (c) the configured default font
	if e.config.DefaultFont != "" && !normalizedEqual(e.config.DefaultFont, name) {
		if path, ok := e.store.Find(e.config.DefaultFont); ok {
			return fontOutcome{
				state:  StateSubstituted,
				path:   path,
				usedAs: e.config.DefaultFont,
				reason: fmt.Sprintf("font %q not found; substituted configured default %q", name, e.config.DefaultFont),
			}, nil
		}
		if IsStandardFont(e.config.DefaultFont) {
			return fontOutcome{
				state:  StateSubstituted,
				usedAs: e.config.DefaultFont,
				reason: fmt.Sprintf("font %q not found; substituted configured default %q", name, e.config.DefaultFont),
			}, nil
		}
	}

	// (d) the builtin standard font as last resort
	path, err := BuiltinFontFile(e.config.CacheDir)
	if err != nil {
		return fontOutcome{}, err
	}
	return fontOutcome{
		state:  StateMissing,
		path:   path,
		usedAs: BuiltinFontName,
		reason: fmt.Sprintf("font %q not found; using built-in %s", name, BuiltinFontName),
	}, nil
}

func collectRequirements(doc *model.Document) []requiredFont {
	var out []requiredFont
	pageNumber := 0
	for _, unit := range doc.Units {
		if p, ok := unit.(*model.Page); ok {
			pageNumber = p.PageNumber
		}
		for _, root := range unit.Layers() {
			_ = root.Walk(func(l *model.Layer) error {
				for _, el := range l.Elements {
					text, ok := el.(*model.TextElement)
					if !ok || text.FontName == "" {
						continue
					}
					out = append(out, requiredFont{
						name:       text.FontName,
						elementID:  text.ID,
						pageNumber: pageNumber,
						text:       text.Content,
					})
				}
				return nil
			})
		}
	}
	return out
}

func sample(text string) string {
	runes := []rune(text)
	if len(runes) > 40 {
		return string(runes[:40]) + "…"
	}
	return text
}

func normalizedEqual(a, b string) bool {
	return normalizeFontName(a) == normalizeFontName(b)
}
