package fonts

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/flopp/go-findfont"

	"github.com/flanksource/docmorph/errors"
)

// Store indexes font files from configured directories plus the platform's
// standard font locations. Lookups are name-normalized: case, spaces and
// hyphens are ignored, so "Times New Roman" matches timesnewroman.ttf.
type Store struct {
	byStem map[string]string // normalized file stem -> path
	stems  []string          // deterministic iteration order for substring matches
}

// NewStore scans the given directories and the system font paths. A
// directory that cannot be read is a FONT_STORE_ERROR; missing optional
// directories should be filtered by the caller.
func NewStore(dirs ...string) (*Store, error) {
	s := &Store{byStem: map[string]string{}}

	for _, dir := range dirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && isFontFile(path) {
				s.index(path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFontStore, err, "scan font dir %s", dir)
		}
	}

	// System fonts come after configured dirs so explicit dirs win on
	// stem collisions.
	for _, path := range findfont.List() {
		if isFontFile(path) {
			s.index(path)
		}
	}
	return s, nil
}

func (s *Store) index(path string) {
	stem := normalizeFontName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if stem == "" {
		return
	}
	if _, exists := s.byStem[stem]; !exists {
		s.byStem[stem] = path
		s.stems = append(s.stems, stem)
	}
}

// Len reports how many distinct font files are indexed.
func (s *Store) Len() int { return len(s.byStem) }

// Find resolves a font name to a file path. Exact normalized-stem matches
// win; otherwise the first indexed stem containing (or contained in) the
// requested name is used.
func (s *Store) Find(name string) (string, bool) {
	want := normalizeFontName(name)
	if want == "" {
		return "", false
	}
	if path, ok := s.byStem[want]; ok {
		return path, true
	}
	for _, stem := range s.stems {
		if strings.Contains(stem, want) {
			return s.byStem[stem], true
		}
		// Reverse containment only for stems long enough to be a real
		// family name, so "n.ttf" never captures every lookup.
		if len(stem) >= 6 && strings.Contains(want, stem) {
			return s.byStem[stem], true
		}
	}
	return "", false
}

func isFontFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttf", ".otf", ".ttc":
		return true
	}
	return false
}

// normalizeFontName lowercases and strips spaces, hyphens and underscores.
func normalizeFontName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case ' ', '-', '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
