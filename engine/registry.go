package engine

import (
	"fmt"
	"sync"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"github.com/flanksource/docmorph/errors"
)

// Auto is the pseudo engine name that triggers parser auto-detection.
const Auto = "auto"

// ParserFactory creates a fresh parse adapter.
type ParserFactory func() FormatAdapter

// RendererFactory creates a fresh, uninitialized render adapter.
type RendererFactory func() RenderAdapter

// Registry resolves engine names to adapters. Registration order is the only
// priority signal: auto-detection probes parsers in the order they were
// registered, and ties always go to the earlier registration.
//
// Render adapter instances are cached by (name, config hash), so repeated
// requests under identical configuration reuse one initialized instance.
// The cache lives for the process lifetime; mutating a cached adapter's
// configuration in place is undefined. Register a new configuration instead.
type Registry struct {
	mu sync.RWMutex

	parserOrder []string
	parsers     map[string]ParserFactory
	parserCache map[string]FormatAdapter

	rendererOrder []string
	renderers     map[string]RendererFactory
	rendererCache map[string]RenderAdapter

	defaultRenderer string
	fallbacks       []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers:       map[string]ParserFactory{},
		parserCache:   map[string]FormatAdapter{},
		renderers:     map[string]RendererFactory{},
		rendererCache: map[string]RenderAdapter{},
	}
}

// RegisterParser adds a parse adapter under its name. Re-registering a name
// replaces the factory but keeps the original position in probe order.
func (r *Registry) RegisterParser(name string, f ParserFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[name]; !exists {
		r.parserOrder = append(r.parserOrder, name)
	}
	r.parsers[name] = f
	delete(r.parserCache, name)
}

// RegisterRenderer adds a render adapter under its name.
func (r *Registry) RegisterRenderer(name string, f RendererFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[name]; !exists {
		r.rendererOrder = append(r.rendererOrder, name)
	}
	r.renderers[name] = f
}

// SetDefaultRenderer configures the preferred engine and the ordered
// fallback list tried when it fails to initialize.
func (r *Registry) SetDefaultRenderer(name string, fallbacks ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultRenderer = name
	r.fallbacks = fallbacks
}

// Parsers lists registered parser names in registration order.
func (r *Registry) Parsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.parserOrder...)
}

// Renderers lists registered renderer names in registration order.
func (r *Registry) Renderers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.rendererOrder...)
}

// Parser resolves a parse adapter. With name == Auto the path is probed
// through CanParse across parsers in registration order; the first match
// wins deterministically.
func (r *Registry) Parser(name, path string) (FormatAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == Auto || name == "" {
		for _, candidate := range r.parserOrder {
			adapter := r.parserInstance(candidate)
			if adapter.CanParse(path) {
				return adapter, nil
			}
		}
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "no registered parser recognizes %q", path)
	}

	if _, ok := r.parsers[name]; !ok {
		return nil, errors.New(errors.ErrCodeEngineNotFound, "parser %q is not registered (have %v)", name, r.parserOrder)
	}
	return r.parserInstance(name), nil
}

// parserInstance returns the cached instance, creating it on first use.
// Caller holds the lock.
func (r *Registry) parserInstance(name string) FormatAdapter {
	if cached, ok := r.parserCache[name]; ok {
		return cached
	}
	adapter := r.parsers[name]()
	r.parserCache[name] = adapter
	return adapter
}

// Renderer resolves and initializes a render adapter for the given config,
// reusing the cached instance for an identical (name, config) pair.
func (r *Registry) Renderer(name string, config Config) (RenderAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rendererLocked(name, config)
}

func (r *Registry) rendererLocked(name string, config Config) (RenderAdapter, error) {
	factory, ok := r.renderers[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeEngineNotFound, "renderer %q is not registered (have %v)", name, r.rendererOrder)
	}

	key := fmt.Sprintf("%s@%s", name, config.Hash())
	if cached, ok := r.rendererCache[key]; ok {
		return cached, nil
	}

	adapter := factory()
	if err := adapter.Initialize(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEngineInit, err, "initialize renderer %q", name)
	}
	r.rendererCache[key] = adapter
	return adapter, nil
}

// Fallback records that the preferred renderer could not initialize and
// which engine took its place. InitError is the preferred engine's
// initialization failure.
type Fallback struct {
	Requested string `json:"requested"`
	Used      string `json:"used"`
	InitError error  `json:"-"`
}

// DefaultRenderer resolves the configured default engine, retrying the fixed
// fallback list on initialization failure. Engines already tried are
// skipped. A non-nil Fallback reports that a substitute engine was used and
// carries the default's init error. When every candidate fails, the
// ORIGINAL error is surfaced; fallback exists for environment resilience,
// not to mask configuration mistakes.
func (r *Registry) DefaultRenderer(config Config) (RenderAdapter, *Fallback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaultRenderer == "" {
		return nil, nil, errors.New(errors.ErrCodeEngineNotFound, "no default renderer configured")
	}

	adapter, origErr := r.rendererLocked(r.defaultRenderer, config)
	if origErr == nil {
		return adapter, nil, nil
	}
	if !errors.Is(origErr, errors.ErrCodeEngineInit) {
		return nil, nil, origErr
	}

	tried := map[string]struct{}{r.defaultRenderer: {}}
	for _, name := range r.fallbacks {
		if _, done := tried[name]; done {
			continue
		}
		tried[name] = struct{}{}

		adapter, err := r.rendererLocked(name, config)
		if err != nil {
			logger.Warnf("fallback renderer %q also failed: %v", name, err)
			continue
		}
		logger.Infof("renderer %q unavailable, falling back to %q: %v", r.defaultRenderer, name, origErr)
		return adapter, &Fallback{Requested: r.defaultRenderer, Used: name, InitError: origErr}, nil
	}

	return nil, nil, errors.Wrap(errors.ErrCodeEngineInit, origErr,
		"default renderer %q and all fallbacks %v failed", r.defaultRenderer, r.fallbacks)
}

// FeaturePair holds one capability flag for two engines being compared.
type FeaturePair struct {
	A bool `json:"a"`
	B bool `json:"b"`
}

// CompareEngines returns the symmetric diff of two renderers' declared
// feature flags: only flags where the engines differ appear. Cached
// instances are read, never mutated.
func (r *Registry) CompareEngines(a, b string, config Config) (map[string]FeaturePair, error) {
	ra, err := r.Renderer(a, config)
	if err != nil {
		return nil, err
	}
	rb, err := r.Renderer(b, config)
	if err != nil {
		return nil, err
	}

	fa, fb := ra.Features(), rb.Features()
	flags := map[string][2]bool{
		"text":          {fa.Text, fb.Text},
		"images":        {fa.Images, fb.Images},
		"drawings":      {fa.Drawings, fb.Drawings},
		"blend_modes":   {fa.BlendModes, fb.BlendModes},
		"multi_page":    {fa.MultiPage, fb.MultiPage},
		"vector_output": {fa.VectorOutput, fb.VectorOutput},
	}
	diff := map[string]FeaturePair{}
	for flag, pair := range flags {
		if pair[0] != pair[1] {
			diff[flag] = FeaturePair{A: pair[0], B: pair[1]}
		}
	}
	return diff, nil
}

// DetectFormat reports which parser auto-detection would pick for a path,
// without parsing.
func (r *Registry) DetectFormat(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := lo.Find(r.parserOrder, func(name string) bool {
		return r.parserInstance(name).CanParse(path)
	})
	return name, ok
}
