package model

// UnitKind is the type discriminator for document units.
type UnitKind string

const (
	UnitPage   UnitKind = "page"
	UnitCanvas UnitKind = "canvas"
)

// Unit is the tagged union over pages (paged formats like PDF) and canvases
// (layered raster formats like PSD). Both hold an ordered layer list.
type Unit interface {
	Kind() UnitKind
	Size() Size
	Layers() []*Layer
	// AddLayer appends a top-level layer. Once the unit is attached to a
	// document, the layer's subtree is adopted into the document-wide
	// element-id namespace.
	AddLayer(*Layer) error

	attach(*Document) error
}

type unitBase struct {
	LayerList []*Layer `json:"layers"`
	doc       *Document
}

func (u *unitBase) Layers() []*Layer { return u.LayerList }

func (u *unitBase) AddLayer(l *Layer) error {
	if u.doc != nil {
		if err := u.doc.adoptLayer(l); err != nil {
			return err
		}
	}
	u.LayerList = append(u.LayerList, l)
	return nil
}

// attach adopts every layer of the unit in one staged pass: a failure in any
// subtree leaves the document and the unit untouched.
func (u *unitBase) attach(d *Document) error {
	a := newAdoption()
	for _, l := range u.LayerList {
		if err := d.stageLayer(l, a); err != nil {
			return err
		}
	}
	d.commitAdoption(a)
	u.doc = d
	return nil
}

// Page is a numbered page with a size in points.
type Page struct {
	unitBase
	PageNumber int  `json:"page_number"`
	PageSize   Size `json:"size"`
}

// NewPage creates a page; sizes are in points (1/72 inch).
func NewPage(number int, size Size) *Page {
	return &Page{PageNumber: number, PageSize: size}
}

func (p *Page) Kind() UnitKind { return UnitPage }
func (p *Page) Size() Size     { return p.PageSize }

// Canvas is a named canvas with a size in pixels.
type Canvas struct {
	unitBase
	CanvasName string `json:"canvas_name"`
	CanvasSize Size   `json:"size"`
}

// NewCanvas creates a canvas; sizes are in pixels.
func NewCanvas(name string, size Size) *Canvas {
	return &Canvas{CanvasName: name, CanvasSize: size}
}

func (c *Canvas) Kind() UnitKind { return UnitCanvas }
func (c *Canvas) Size() Size     { return c.CanvasSize }
