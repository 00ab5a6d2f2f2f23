package model

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/docmorph/errors"
)

// generateDocument builds a pseudo-random but valid document for the
// round-trip property test.
func generateDocument(rng *rand.Rand) *Document {
	doc := New("generator", "1.0", map[string]any{"seed": "fixed"})
	elementID := 0
	nextID := func() string {
		elementID++
		return fmt.Sprintf("el-%d", elementID)
	}

	units := 1 + rng.Intn(3)
	for u := 0; u < units; u++ {
		var unit Unit
		if rng.Intn(2) == 0 {
			unit = NewPage(u+1, Size{Width: 612, Height: 792})
		} else {
			unit = NewCanvas(fmt.Sprintf("canvas-%d", u), Size{Width: 1024, Height: 768})
		}

		layers := 1 + rng.Intn(3)
		for l := 0; l < layers; l++ {
			layer := NewLayer(fmt.Sprintf("u%d-l%d", u, l), fmt.Sprintf("layer %d", l))
			layer.Opacity = float64(rng.Intn(101)) / 100
			layer.BlendMode = []string{"", "normal", "multiply"}[rng.Intn(3)]

			elements := rng.Intn(4)
			for e := 0; e < elements; e++ {
				x0 := float64(rng.Intn(500))
				y0 := float64(rng.Intn(700))
				bbox := BBox{X0: x0, Y0: y0, X1: x0 + 1 + float64(rng.Intn(100)), Y1: y0 + 1 + float64(rng.Intn(50))}
				var el Element
				switch rng.Intn(3) {
				case 0:
					el = &TextElement{
						ElementBase: ElementBase{ID: nextID(), BBox: bbox, ZIndex: rng.Intn(10)},
						Content:     fmt.Sprintf("text %d", e),
						FontName:    []string{"Helvetica", "Times-Roman", "Courier"}[rng.Intn(3)],
						FontSize:    8 + float64(rng.Intn(30)),
						Color:       NewColor(rng.Float64(), rng.Float64(), rng.Float64(), 1),
					}
				case 1:
					el = &ImageElement{
						ElementBase: ElementBase{ID: nextID(), BBox: bbox},
						Path:        fmt.Sprintf("assets/img-%d.png", e),
						Format:      "png",
					}
				default:
					el = &DrawingElement{
						ElementBase: ElementBase{ID: nextID(), BBox: bbox, ZIndex: rng.Intn(10)},
						Commands: []DrawCommand{
							{Op: DrawMove, Points: []Point{{X: x0, Y: y0}}},
							{Op: DrawLine, Points: []Point{{X: x0 + 10, Y: y0 + 10}}},
							{Op: DrawClose},
						},
						Stroke:      NewColor(rng.Float64(), 0, 0, 1),
						StrokeWidth: 1 + rng.Float64(),
					}
				}
				if err := layer.AddElement(el); err != nil {
					panic(err)
				}
			}
			if err := unit.AddLayer(layer); err != nil {
				panic(err)
			}
		}
		if err := doc.AddUnit(unit); err != nil {
			panic(err)
		}
	}
	return doc
}

func TestRoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		doc := generateDocument(rng)

		restored, err := FromDict(doc.ToDict())
		require.NoError(t, err, "iteration %d", i)

		assert.Equal(t, doc.Stats(), restored.Stats(), "iteration %d", i)
		assert.Equal(t, doc.ToDict(), restored.ToDict(), "iteration %d: dict form must be stable")
	}
}

func TestJSONRoundTripHelloWorld(t *testing.T) {
	doc := New("pdfcpu", "0.11.0", map[string]any{"title": "greeting"})
	page := NewPage(1, Size{Width: 612, Height: 792})
	require.NoError(t, doc.AddUnit(page))
	layer := NewLayer("l1", "text layer")
	require.NoError(t, page.AddLayer(layer))
	require.NoError(t, layer.AddElement(&TextElement{
		ElementBase: ElementBase{ID: "t1", BBox: BBox{X0: 50, Y0: 700, X1: 300, Y1: 720}},
		Content:     "Hello, World!",
		FontName:    "Arial",
		FontSize:    12,
		Color:       Black,
	}))

	data, err := doc.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	elements := restored.AllElements()
	require.Len(t, elements, 1)
	text, ok := elements[0].(*TextElement)
	require.True(t, ok)
	assert.Equal(t, "Hello, World!", text.Content)
	assert.Equal(t, "Arial", text.FontName)
	assert.Equal(t, 12.0, text.FontSize)
	assert.Equal(t, BBox{X0: 50, Y0: 700, X1: 300, Y1: 720}, text.BBox)
}

func TestFromDictMissingDiscriminator(t *testing.T) {
	dict := map[string]any{
		"engine": "x",
		"document_structure": []any{
			map[string]any{"page_number": 1.0, "size": map[string]any{"width": 612.0, "height": 792.0}},
		},
	}
	_, err := FromDict(dict)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSchema))
	assert.Contains(t, err.Error(), "discriminator")
}

func TestFromDictUnknownDiscriminator(t *testing.T) {
	dict := map[string]any{
		"document_structure": []any{
			map[string]any{"type": "scroll", "size": map[string]any{"width": 1.0, "height": 1.0}},
		},
	}
	_, err := FromDict(dict)
	assert.True(t, errors.Is(err, errors.ErrCodeSchema))

	dict = map[string]any{
		"document_structure": []any{
			map[string]any{
				"type": "page", "page_number": 1.0,
				"size": map[string]any{"width": 612.0, "height": 792.0},
				"layers": []any{map[string]any{
					"type": "layer", "layer_id": "l1", "opacity": 1.0, "visible": true,
					"elements": []any{map[string]any{
						"type": "hologram", "id": "e1", "bbox": []any{0.0, 0.0, 1.0, 1.0},
					}},
				}},
			},
		},
	}
	_, err = FromDict(dict)
	require.Error(t, err, "unknown element variants are rejected, never guessed")
	assert.True(t, errors.Is(err, errors.ErrCodeSchema))
}

func TestFromJSONMalformed(t *testing.T) {
	_, err := FromJSON([]byte(`{"version": `))
	assert.True(t, errors.Is(err, errors.ErrCodeSchema))
}

func TestColorFormsAcceptedOnLoad(t *testing.T) {
	// Packed-int and tuple color forms both load; emission is canonical.
	dict := map[string]any{
		"document_structure": []any{
			map[string]any{
				"type": "page", "page_number": 1.0,
				"size": map[string]any{"width": 612.0, "height": 792.0},
				"layers": []any{map[string]any{
					"type": "layer", "layer_id": "l1", "opacity": 1.0, "visible": true,
					"elements": []any{
						map[string]any{
							"type": "text", "id": "packed", "bbox": []any{0.0, 0.0, 10.0, 10.0},
							"content": "a", "font_name": "Helvetica", "font_size": 10.0,
							"color": float64(0xFF0000),
						},
						map[string]any{
							"type": "text", "id": "tuple", "bbox": []any{0.0, 20.0, 10.0, 30.0},
							"content": "b", "font_name": "Helvetica", "font_size": 10.0,
							"color": []any{1.0, 0.0, 0.0, 1.0},
						},
					},
				}},
			},
		},
	}
	doc, err := FromDict(dict)
	require.NoError(t, err)

	elements := doc.AllElements()
	require.Len(t, elements, 2)
	packed := elements[0].(*TextElement)
	tuple := elements[1].(*TextElement)
	assert.Equal(t, packed.Color, tuple.Color)

	out := elementToDict(packed)
	assert.Equal(t, []float64{1, 0, 0, 1}, out["color"], "emission is always the float tuple")
}
