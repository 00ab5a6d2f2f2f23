// Package model implements the canonical, engine-agnostic document model:
// a Document → Page|Canvas → Layer → Element tree with typed variants,
// geometry helpers and full round-trip serialization. The model is the
// contract between parse and render adapters; it holds no external
// resources, so dropping the last reference is the only teardown.
package model

import (
	stderrors "errors"

	"github.com/samber/lo"

	"github.com/flanksource/docmorph/errors"
)

// Version is the canonical document schema version emitted by ToDict.
const Version = "1.0"

// Document is the root of the intermediate document model. Units keep their
// insertion order; element ids are unique across the whole document.
type Document struct {
	Version       string         `json:"version"`
	Engine        string         `json:"engine"`
	EngineVersion string         `json:"engine_version"`
	Metadata      map[string]any `json:"metadata"`
	Units         []Unit         `json:"document_structure"`

	elementIDs map[string]struct{}
}

// New creates an empty document with provenance recorded.
func New(engine, engineVersion string, metadata map[string]any) *Document {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Document{
		Version:       Version,
		Engine:        engine,
		EngineVersion: engineVersion,
		Metadata:      metadata,
		elementIDs:    map[string]struct{}{},
	}
}

// AddUnit appends a unit, preserving insertion order, and adopts its layer
// tree into the document-wide element-id namespace. On a duplicate id the
// unit is not appended.
func (d *Document) AddUnit(u Unit) error {
	if u == nil {
		return errors.New(errors.ErrCodeSchema, "nil document unit")
	}
	if err := u.attach(d); err != nil {
		return err
	}
	d.Units = append(d.Units, u)
	return nil
}

// Pages returns the page units in document order.
func (d *Document) Pages() []*Page {
	return lo.FilterMap(d.Units, func(u Unit, _ int) (*Page, bool) {
		p, ok := u.(*Page)
		return p, ok
	})
}

// Canvases returns the canvas units in document order.
func (d *Document) Canvases() []*Canvas {
	return lo.FilterMap(d.Units, func(u Unit, _ int) (*Canvas, bool) {
		c, ok := u.(*Canvas)
		return c, ok
	})
}

// Walk visits every layer of every unit depth-first in document order.
func (d *Document) Walk(fn func(u Unit, l *Layer) error) error {
	for _, u := range d.Units {
		for _, root := range u.Layers() {
			if err := root.Walk(func(l *Layer) error { return fn(u, l) }); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllElements returns every element in the document in traversal order.
func (d *Document) AllElements() []Element {
	var out []Element
	_ = d.Walk(func(_ Unit, l *Layer) error {
		out = append(out, l.Elements...)
		return nil
	})
	return out
}

var errStopWalk = stderrors.New("stop walk")

// FindEnclosingLayer finds the layer directly holding the element with the
// given id by top-down traversal. Returns nil when no element matches.
func (d *Document) FindEnclosingLayer(elementID string) *Layer {
	var found *Layer
	_ = d.Walk(func(_ Unit, l *Layer) error {
		for _, e := range l.Elements {
			if e.Base().ID == elementID {
				found = l
				return errStopWalk
			}
		}
		return nil
	})
	return found
}

// Stats summarizes the document for reports.
type Stats struct {
	Pages    int `json:"pages"`
	Canvases int `json:"canvases"`
	Layers   int `json:"layers"`
	Text     int `json:"text_elements"`
	Images   int `json:"image_elements"`
	Drawings int `json:"drawing_elements"`
}

// Stats counts units, layers and elements per kind.
func (d *Document) Stats() Stats {
	s := Stats{Pages: len(d.Pages()), Canvases: len(d.Canvases())}
	_ = d.Walk(func(_ Unit, l *Layer) error {
		s.Layers++
		for _, e := range l.Elements {
			switch e.Kind() {
			case ElementText:
				s.Text++
			case ElementImage:
				s.Images++
			case ElementDrawing:
				s.Drawings++
			}
		}
		return nil
	})
	return s
}

// adoption is the staged outcome of validating one or more layer subtrees.
// Nothing touches document state until commit, so a failed adoption leaves
// no ghost element ids or half-attached layers behind.
type adoption struct {
	seen   map[*Layer]struct{}
	ids    map[string]struct{}
	layers []*Layer
}

func newAdoption() *adoption {
	return &adoption{seen: map[*Layer]struct{}{}, ids: map[string]struct{}{}}
}

// stageLayer validates a subtree against the document and the already-staged
// state: acyclicity, per-layer invariants, and element-id uniqueness.
func (d *Document) stageLayer(l *Layer, a *adoption) error {
	if l == nil {
		return errors.New(errors.ErrCodeSchema, "nil layer")
	}
	if _, dup := a.seen[l]; dup {
		return errors.New(errors.ErrCodeSchema, "layer %s appears as its own descendant", l.ID)
	}
	a.seen[l] = struct{}{}
	if err := l.Validate(); err != nil {
		return err
	}
	for _, e := range l.Elements {
		id := e.Base().ID
		if _, dup := d.elementIDs[id]; dup {
			return errors.New(errors.ErrCodeDuplicateElementID, "element id %q already exists in document", id)
		}
		if _, dup := a.ids[id]; dup {
			return errors.New(errors.ErrCodeDuplicateElementID, "element id %q already exists in document", id)
		}
		a.ids[id] = struct{}{}
	}
	a.layers = append(a.layers, l)
	for _, c := range l.Children {
		if err := d.stageLayer(c, a); err != nil {
			return err
		}
	}
	return nil
}

// commitAdoption registers the staged ids and wires the doc pointer into
// every staged layer so later AddElement calls stay checked.
func (d *Document) commitAdoption(a *adoption) {
	if d.elementIDs == nil {
		d.elementIDs = map[string]struct{}{}
	}
	for id := range a.ids {
		d.elementIDs[id] = struct{}{}
	}
	for _, l := range a.layers {
		l.doc = d
	}
}

// adoptLayer stages and commits a single layer subtree.
func (d *Document) adoptLayer(l *Layer) error {
	a := newAdoption()
	if err := d.stageLayer(l, a); err != nil {
		return err
	}
	d.commitAdoption(a)
	return nil
}

func (d *Document) registerElementID(id string) error {
	if d.elementIDs == nil {
		d.elementIDs = map[string]struct{}{}
	}
	if _, dup := d.elementIDs[id]; dup {
		return errors.New(errors.ErrCodeDuplicateElementID, "element id %q already exists in document", id)
	}
	d.elementIDs[id] = struct{}{}
	return nil
}
