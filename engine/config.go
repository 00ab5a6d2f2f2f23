package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Config is the already-validated configuration injected into render
// adapters. Loading and validating it is the caller's concern.
type Config struct {
	// DPI used when the backend rasterizes.
	DPI int `json:"dpi,omitempty"`
	// FontDirs are extra font directories handed through to backends that
	// draw text themselves.
	FontDirs []string `json:"font_dirs,omitempty"`
	// Params holds per-engine parameter blocks keyed by engine name.
	Params map[string]any `json:"params,omitempty"`
}

// Hash returns the normalized configuration hash used as part of the
// adapter cache key. json.Marshal sorts map keys, so two configs with the
// same content always hash identically.
func (c Config) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		// Config is plain data; marshal only fails on exotic Params
		// values, which then intentionally never share a cache entry.
		data = []byte(fmt.Sprintf("%#v", c))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
