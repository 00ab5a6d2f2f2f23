package model

// AssetKind classifies extracted side-channel assets.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetFont  AssetKind = "font"
	AssetOther AssetKind = "other"
)

// AssetRecord describes a single extracted asset. Path points at the copy on
// disk; OriginalName is the name the asset had inside the source file.
type AssetRecord struct {
	Kind         AssetKind      `json:"kind"`
	Path         string         `json:"path"`
	OriginalName string         `json:"original_name,omitempty"`
	SizeBytes    int64          `json:"size_bytes,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AssetManifest is the record of assets extracted while parsing a source
// file. It lives beside the document tree, not inside it.
type AssetManifest struct {
	Source string        `json:"source"`
	Assets []AssetRecord `json:"assets"`
}

// NewAssetManifest creates an empty manifest for the given source file.
func NewAssetManifest(source string) *AssetManifest {
	return &AssetManifest{Source: source}
}

// Add appends a record.
func (m *AssetManifest) Add(r AssetRecord) {
	m.Assets = append(m.Assets, r)
}

// ByKind returns the records of one kind, preserving order.
func (m *AssetManifest) ByKind(kind AssetKind) []AssetRecord {
	var out []AssetRecord
	for _, a := range m.Assets {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
