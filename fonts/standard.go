package fonts

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/flanksource/docmorph/errors"
)

// standard14 are the PDF base fonts every backend can render without an
// embedded font program. A request for any of these always counts as
// available.
var standard14 = map[string]struct{}{
	"courier":               {},
	"courier-bold":          {},
	"courier-oblique":       {},
	"courier-boldoblique":   {},
	"helvetica":             {},
	"helvetica-bold":        {},
	"helvetica-oblique":     {},
	"helvetica-boldoblique": {},
	"times-roman":           {},
	"times-bold":            {},
	"times-italic":          {},
	"times-bolditalic":      {},
	"symbol":                {},
	"zapfdingbats":          {},
}

// IsStandardFont reports whether name is one of the 14 standard PDF fonts.
func IsStandardFont(name string) bool {
	_, ok := standard14[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// BuiltinFontName is the name recorded when the embedded last-resort font is
// substituted.
const BuiltinFontName = "Go-Regular"

var builtinMu sync.Mutex

// BuiltinFontFile materializes the embedded Go Regular font into dir and
// returns its path. Backends that draw glyphs themselves need a real file;
// the embedded font guarantees one exists on any host.
func BuiltinFontFile(dir string) (string, error) {
	builtinMu.Lock()
	defer builtinMu.Unlock()

	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeFontStore, err, "create font cache dir")
	}
	path := filepath.Join(dir, BuiltinFontName+".ttf")
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
			return "", errors.Wrap(errors.ErrCodeFontStore, err, "write builtin font")
		}
	}
	return path, nil
}
