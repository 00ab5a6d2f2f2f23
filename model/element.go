package model

// ElementKind is the type discriminator for content elements. It is the
// single source of truth for both dispatch and serialization.
type ElementKind string

const (
	ElementText    ElementKind = "text"
	ElementImage   ElementKind = "image"
	ElementDrawing ElementKind = "drawing"
)

// Element is the tagged union over text, image and drawing content.
// Concrete types embed ElementBase for the fields shared by every variant.
type Element interface {
	Kind() ElementKind
	Base() *ElementBase
}

// ElementBase carries the fields common to all element variants. IDs are a
// document-wide namespace: no two elements in one document may share an ID,
// regardless of which layer holds them.
type ElementBase struct {
	ID     string `json:"id"`
	BBox   BBox   `json:"bbox"`
	ZIndex int    `json:"z_index"`
}

// TextElement is a run of text with font details.
type TextElement struct {
	ElementBase
	Content   string  `json:"content"`
	FontName  string  `json:"font_name"`
	FontSize  float64 `json:"font_size"`
	Color     Color   `json:"color"`
	Alignment string  `json:"alignment,omitempty"` // left, center, right
}

func (e *TextElement) Kind() ElementKind  { return ElementText }
func (e *TextElement) Base() *ElementBase { return &e.ElementBase }

// ImageElement references an extracted image asset by path. The file is
// owned by the filesystem, not the model.
type ImageElement struct {
	ElementBase
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	DPI    int    `json:"dpi,omitempty"`
}

func (e *ImageElement) Kind() ElementKind  { return ElementImage }
func (e *ImageElement) Base() *ElementBase { return &e.ElementBase }

// DrawOp names a vector drawing primitive.
type DrawOp string

const (
	DrawMove    DrawOp = "move"
	DrawLine    DrawOp = "line"
	DrawCurve   DrawOp = "curve" // cubic bezier: two control points then endpoint
	DrawRect    DrawOp = "rect"  // two corner points
	DrawEllipse DrawOp = "ellipse" // center point then (rx,ry) as a point
	DrawClose   DrawOp = "close"
)

// DrawCommand is one step of a vector drawing.
type DrawCommand struct {
	Op     DrawOp  `json:"op"`
	Points []Point `json:"points,omitempty"`
}

// DrawingElement is a list of vector commands with stroke/fill styling.
// SVGSource optionally carries the original SVG markup for backends that can
// rasterize it directly with higher fidelity than the command list.
type DrawingElement struct {
	ElementBase
	Commands    []DrawCommand `json:"commands"`
	Stroke      Color         `json:"stroke"`
	Fill        *Color        `json:"fill,omitempty"`
	StrokeWidth float64       `json:"stroke_width,omitempty"`
	SVGSource   string        `json:"svg_source,omitempty"`
}

func (e *DrawingElement) Kind() ElementKind  { return ElementDrawing }
func (e *DrawingElement) Base() *ElementBase { return &e.ElementBase }
