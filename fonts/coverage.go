package fonts

import (
	"os"
	"unicode"

	"golang.org/x/image/font/sfnt"

	"github.com/flanksource/docmorph/errors"
)

// maxCoverageRunes bounds how much of an element's text is glyph-checked.
// Coverage problems show up within the first line of text; checking
// megabytes of content buys nothing.
const maxCoverageRunes = 512

// MissingGlyphs reports the distinct runes of text that the font file has no
// glyph for. Control characters and spaces are not checked. An unreadable or
// unparseable font file is a FONT_STORE_ERROR.
func MissingGlyphs(fontPath, text string) ([]rune, error) {
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFontStore, err, "read font %s", fontPath)
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFontStore, err, "parse font %s", fontPath)
	}

	var buf sfnt.Buffer
	seen := map[rune]struct{}{}
	var missing []rune
	checked := 0
	for _, r := range text {
		if checked >= maxCoverageRunes {
			break
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			continue
		}
		if _, done := seen[r]; done {
			continue
		}
		seen[r] = struct{}{}
		checked++

		idx, err := f.GlyphIndex(&buf, r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFontStore, err, "glyph lookup in %s", fontPath)
		}
		if idx == 0 {
			missing = append(missing, r)
		}
	}
	return missing, nil
}
