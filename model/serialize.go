package model

import (
	"encoding/json"

	"github.com/flanksource/docmorph/errors"
)

// ToDict serializes the document to its canonical dict form. Every object
// carries an explicit "type" discriminator; colors are emitted as the
// canonical [r,g,b,a] float tuple and bboxes as [x0,y0,x1,y1].
func (d *Document) ToDict() map[string]any {
	units := make([]any, 0, len(d.Units))
	for _, u := range d.Units {
		units = append(units, unitToDict(u))
	}
	return map[string]any{
		"version":            d.Version,
		"engine":             d.Engine,
		"engine_version":     d.EngineVersion,
		"metadata":           d.Metadata,
		"document_structure": units,
	}
}

// ToJSON serializes the document to canonical JSON text.
func (d *Document) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(d.ToDict(), "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSchema, err, "marshal document")
	}
	return data, nil
}

// FromJSON parses canonical JSON text back into a document.
func FromJSON(data []byte) (*Document, error) {
	var dict map[string]any
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSchema, err, "invalid document JSON")
	}
	return FromDict(dict)
}

// FromDict reconstructs a document from its dict form. A missing or
// unrecognized type discriminator fails with a SCHEMA_ERROR; the function
// never guesses a variant.
func FromDict(dict map[string]any) (*Document, error) {
	doc := New(dictString(dict, "engine"), dictString(dict, "engine_version"), dictMap(dict, "metadata"))
	if v := dictString(dict, "version"); v != "" {
		doc.Version = v
	}

	rawUnits, ok := dict["document_structure"].([]any)
	if !ok && dict["document_structure"] != nil {
		return nil, errors.New(errors.ErrCodeSchema, "document_structure is not a list")
	}
	for i, raw := range rawUnits {
		ud, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeSchema, "document unit %d is not an object", i)
		}
		unit, err := unitFromDict(ud)
		if err != nil {
			return nil, err
		}
		if err := doc.AddUnit(unit); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func unitToDict(u Unit) map[string]any {
	layers := make([]any, 0, len(u.Layers()))
	for _, l := range u.Layers() {
		layers = append(layers, layerToDict(l))
	}
	size := map[string]any{"width": u.Size().Width, "height": u.Size().Height}
	switch t := u.(type) {
	case *Page:
		return map[string]any{
			"type":        string(UnitPage),
			"page_number": t.PageNumber,
			"size":        size,
			"layers":      layers,
		}
	case *Canvas:
		return map[string]any{
			"type":        string(UnitCanvas),
			"canvas_name": t.CanvasName,
			"size":        size,
			"layers":      layers,
		}
	default:
		// Unreachable while Unit stays a closed union.
		return map[string]any{"type": "unknown"}
	}
}

func unitFromDict(dict map[string]any) (Unit, error) {
	kind, err := discriminator(dict, "document unit")
	if err != nil {
		return nil, err
	}
	size, err := sizeFromDict(dictMap(dict, "size"))
	if err != nil {
		return nil, err
	}

	var unit Unit
	switch UnitKind(kind) {
	case UnitPage:
		unit = NewPage(int(dictFloat(dict, "page_number")), size)
	case UnitCanvas:
		unit = NewCanvas(dictString(dict, "canvas_name"), size)
	default:
		return nil, errors.New(errors.ErrCodeSchema, "unrecognized document unit type %q", kind)
	}

	rawLayers, _ := dict["layers"].([]any)
	for _, raw := range rawLayers {
		ld, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeSchema, "layer entry is not an object")
		}
		layer, err := layerFromDict(ld)
		if err != nil {
			return nil, err
		}
		if err := unit.AddLayer(layer); err != nil {
			return nil, err
		}
	}
	return unit, nil
}

func layerToDict(l *Layer) map[string]any {
	children := make([]any, 0, len(l.Children))
	for _, c := range l.Children {
		children = append(children, layerToDict(c))
	}
	elements := make([]any, 0, len(l.Elements))
	for _, e := range l.Elements {
		elements = append(elements, elementToDict(e))
	}
	return map[string]any{
		"type":       "layer",
		"layer_id":   l.ID,
		"name":       l.Name,
		"layer_type": l.LayerType,
		"bbox":       l.BBox.ToSlice(),
		"visible":    l.Visible,
		"opacity":    l.Opacity,
		"blend_mode": l.BlendMode,
		"children":   children,
		"elements":   elements,
	}
}

func layerFromDict(dict map[string]any) (*Layer, error) {
	kind, err := discriminator(dict, "layer")
	if err != nil {
		return nil, err
	}
	if kind != "layer" {
		return nil, errors.New(errors.ErrCodeSchema, "expected layer, got type %q", kind)
	}
	bbox, err := bboxFromAny(dict["bbox"])
	if err != nil {
		return nil, err
	}
	l := &Layer{
		ID:        dictString(dict, "layer_id"),
		Name:      dictString(dict, "name"),
		LayerType: dictString(dict, "layer_type"),
		BBox:      bbox,
		Visible:   dictBool(dict, "visible"),
		Opacity:   dictFloat(dict, "opacity"),
		BlendMode: dictString(dict, "blend_mode"),
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	rawChildren, _ := dict["children"].([]any)
	for _, raw := range rawChildren {
		cd, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeSchema, "child layer entry is not an object")
		}
		child, err := layerFromDict(cd)
		if err != nil {
			return nil, err
		}
		l.Children = append(l.Children, child)
	}

	rawElements, _ := dict["elements"].([]any)
	for _, raw := range rawElements {
		ed, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeSchema, "element entry is not an object")
		}
		el, err := elementFromDict(ed)
		if err != nil {
			return nil, err
		}
		l.Elements = append(l.Elements, el)
	}
	return l, nil
}

func elementToDict(e Element) map[string]any {
	base := e.Base()
	dict := map[string]any{
		"type":    string(e.Kind()),
		"id":      base.ID,
		"bbox":    base.BBox.ToSlice(),
		"z_index": base.ZIndex,
	}
	switch t := e.(type) {
	case *TextElement:
		dict["content"] = t.Content
		dict["font_name"] = t.FontName
		dict["font_size"] = t.FontSize
		dict["color"] = t.Color.ToSlice()
		if t.Alignment != "" {
			dict["alignment"] = t.Alignment
		}
	case *ImageElement:
		dict["path"] = t.Path
		if t.Format != "" {
			dict["format"] = t.Format
		}
		if t.DPI != 0 {
			dict["dpi"] = t.DPI
		}
	case *DrawingElement:
		commands := make([]any, 0, len(t.Commands))
		for _, cmd := range t.Commands {
			points := make([]any, 0, len(cmd.Points))
			for _, p := range cmd.Points {
				points = append(points, []any{p.X, p.Y})
			}
			commands = append(commands, map[string]any{"op": string(cmd.Op), "points": points})
		}
		dict["commands"] = commands
		dict["stroke"] = t.Stroke.ToSlice()
		if t.Fill != nil {
			dict["fill"] = t.Fill.ToSlice()
		}
		if t.StrokeWidth != 0 {
			dict["stroke_width"] = t.StrokeWidth
		}
		if t.SVGSource != "" {
			dict["svg_source"] = t.SVGSource
		}
	}
	return dict
}

func elementFromDict(dict map[string]any) (Element, error) {
	kind, err := discriminator(dict, "element")
	if err != nil {
		return nil, err
	}
	bbox, err := bboxFromAny(dict["bbox"])
	if err != nil {
		return nil, err
	}
	base := ElementBase{
		ID:     dictString(dict, "id"),
		BBox:   bbox,
		ZIndex: int(dictFloat(dict, "z_index")),
	}
	if base.ID == "" {
		return nil, errors.New(errors.ErrCodeSchema, "element has no id")
	}

	switch ElementKind(kind) {
	case ElementText:
		c, err := ParseColor(dict["color"])
		if err != nil {
			return nil, err
		}
		return &TextElement{
			ElementBase: base,
			Content:     dictString(dict, "content"),
			FontName:    dictString(dict, "font_name"),
			FontSize:    dictFloat(dict, "font_size"),
			Color:       c,
			Alignment:   dictString(dict, "alignment"),
		}, nil

	case ElementImage:
		return &ImageElement{
			ElementBase: base,
			Path:        dictString(dict, "path"),
			Format:      dictString(dict, "format"),
			DPI:         int(dictFloat(dict, "dpi")),
		}, nil

	case ElementDrawing:
		stroke, err := ParseColor(dict["stroke"])
		if err != nil {
			return nil, err
		}
		el := &DrawingElement{
			ElementBase: base,
			Stroke:      stroke,
			StrokeWidth: dictFloat(dict, "stroke_width"),
			SVGSource:   dictString(dict, "svg_source"),
		}
		if raw, ok := dict["fill"]; ok && raw != nil {
			fill, err := ParseColor(raw)
			if err != nil {
				return nil, err
			}
			el.Fill = &fill
		}
		rawCommands, _ := dict["commands"].([]any)
		for _, raw := range rawCommands {
			cd, ok := raw.(map[string]any)
			if !ok {
				return nil, errors.New(errors.ErrCodeSchema, "drawing command is not an object")
			}
			cmd := DrawCommand{Op: DrawOp(dictString(cd, "op"))}
			rawPoints, _ := cd["points"].([]any)
			for _, rp := range rawPoints {
				pair, ok := rp.([]any)
				if !ok || len(pair) != 2 {
					return nil, errors.New(errors.ErrCodeSchema, "drawing point is not an [x,y] pair")
				}
				x, xok := pair[0].(float64)
				y, yok := pair[1].(float64)
				if !xok || !yok {
					return nil, errors.New(errors.ErrCodeSchema, "drawing point coordinates are not numbers")
				}
				cmd.Points = append(cmd.Points, Point{X: x, Y: y})
			}
			el.Commands = append(el.Commands, cmd)
		}
		return el, nil

	default:
		return nil, errors.New(errors.ErrCodeSchema, "unrecognized element type %q", kind)
	}
}

// discriminator reads the mandatory "type" field.
func discriminator(dict map[string]any, what string) (string, error) {
	raw, ok := dict["type"]
	if !ok {
		return "", errors.New(errors.ErrCodeSchema, "%s is missing its type discriminator", what)
	}
	kind, ok := raw.(string)
	if !ok || kind == "" {
		return "", errors.New(errors.ErrCodeSchema, "%s has a non-string type discriminator", what)
	}
	return kind, nil
}

func sizeFromDict(dict map[string]any) (Size, error) {
	if dict == nil {
		return Size{}, errors.New(errors.ErrCodeSchema, "document unit is missing its size")
	}
	return Size{Width: dictFloat(dict, "width"), Height: dictFloat(dict, "height")}, nil
}

func bboxFromAny(raw any) (BBox, error) {
	switch v := raw.(type) {
	case nil:
		return BBox{}, nil
	case []float64:
		return BBoxFromSlice(v)
	case []any:
		coords := make([]float64, 0, len(v))
		for _, e := range v {
			f, ok := e.(float64)
			if !ok {
				return BBox{}, errors.New(errors.ErrCodeSchema, "bbox coordinate is not a number: %v", e)
			}
			coords = append(coords, f)
		}
		return BBoxFromSlice(coords)
	default:
		return BBox{}, errors.New(errors.ErrCodeSchema, "bbox is not a 4-number array: %T", raw)
	}
}

func dictString(dict map[string]any, key string) string {
	s, _ := dict[key].(string)
	return s
}

func dictFloat(dict map[string]any, key string) float64 {
	switch v := dict[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func dictBool(dict map[string]any, key string) bool {
	b, _ := dict[key].(bool)
	return b
}

func dictMap(dict map[string]any, key string) map[string]any {
	m, _ := dict[key].(map[string]any)
	return m
}
