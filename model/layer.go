package model

import (
	"github.com/flanksource/docmorph/errors"
)

// Layer groups content elements and child layers. A layer exclusively owns
// its children and its elements; the tree is acyclic, so no layer may appear
// as its own descendant. No parent back-pointer is kept; enclosing-layer
// queries walk top-down from the document instead.
type Layer struct {
	ID        string  `json:"layer_id"`
	Name      string  `json:"name"`
	LayerType string  `json:"layer_type,omitempty"` // e.g. group, pixel, text, adjustment
	BBox      BBox    `json:"bbox"`
	Visible   bool    `json:"visible"`
	Opacity   float64 `json:"opacity"`
	BlendMode string  `json:"blend_mode,omitempty"`

	Children []*Layer  `json:"children,omitempty"`
	Elements []Element `json:"elements,omitempty"`

	// Set when the layer is attached to a document, so AddElement can
	// enforce the document-wide element-id namespace.
	doc *Document
}

// NewLayer creates a visible, fully opaque layer.
func NewLayer(id, name string) *Layer {
	return &Layer{
		ID:      id,
		Name:    name,
		Visible: true,
		Opacity: 1.0,
	}
}

// Validate checks the layer's own invariants, not those of its subtree.
func (l *Layer) Validate() error {
	if l.ID == "" {
		return errors.New(errors.ErrCodeSchema, "layer has no id")
	}
	if l.Opacity < 0 || l.Opacity > 1 {
		return errors.New(errors.ErrCodeSchema, "layer %s opacity %g outside [0,1]", l.ID, l.Opacity)
	}
	return nil
}

// AddChild appends a child layer, refusing additions that would create a
// cycle (c containing l in its subtree, or c being l itself).
func (l *Layer) AddChild(c *Layer) error {
	if c == nil {
		return errors.New(errors.ErrCodeSchema, "nil child layer")
	}
	if c.subtreeContains(l) {
		return errors.New(errors.ErrCodeSchema, "adding layer %s under %s would create a cycle", c.ID, l.ID)
	}
	if l.doc != nil {
		if err := l.doc.adoptLayer(c); err != nil {
			return err
		}
	}
	l.Children = append(l.Children, c)
	return nil
}

// AddElement appends a content element. When the layer is attached to a
// document the element id is checked against the document-wide namespace and
// a DUPLICATE_ELEMENT_ID error is returned on conflict.
func (l *Layer) AddElement(e Element) error {
	if e == nil {
		return errors.New(errors.ErrCodeSchema, "nil element")
	}
	id := e.Base().ID
	if id == "" {
		return errors.New(errors.ErrCodeSchema, "element has no id")
	}
	if l.doc != nil {
		if err := l.doc.registerElementID(id); err != nil {
			return err
		}
	}
	l.Elements = append(l.Elements, e)
	return nil
}

// Walk visits the layer and every descendant depth-first in document order.
// Returning an error stops the walk.
func (l *Layer) Walk(fn func(*Layer) error) error {
	if err := fn(l); err != nil {
		return err
	}
	for _, c := range l.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// AllElements returns the elements of the layer and all descendants in
// document order.
func (l *Layer) AllElements() []Element {
	var out []Element
	_ = l.Walk(func(layer *Layer) error {
		out = append(out, layer.Elements...)
		return nil
	})
	return out
}

func (l *Layer) subtreeContains(target *Layer) bool {
	if l == target {
		return true
	}
	for _, c := range l.Children {
		if c.subtreeContains(target) {
			return true
		}
	}
	return false
}
