// Package domain contains the core codespace types shared by the ledger,
// the coordinator and the live hub.
package domain

// RefKind tags how an artifact is stored.
type RefKind string

const (
	// RefInline carries the bytes directly.
	RefInline RefKind = "inline"
	// RefBlob points into the object store.
	RefBlob RefKind = "blob"
)

// Codec names the encoding of a blob's stored bytes.
type Codec string

const (
	CodecNone Codec = ""
	CodecZstd Codec = "zstd"
)

// ArtifactRef is either Inline(bytes) or Blob(key, size, location).
// Size is always the decoded length.
type ArtifactRef struct {
	Kind     RefKind `json:"kind"`
	Data     []byte  `json:"data,omitempty"`
	Key      string  `json:"key,omitempty"`
	Size     int64   `json:"size"`
	Location string  `json:"location,omitempty"`
	Codec    Codec   `json:"codec,omitempty"`
}

// InlineRef returns an inline reference holding data.
func InlineRef(data []byte) ArtifactRef {
	return ArtifactRef{Kind: RefInline, Data: data, Size: int64(len(data))}
}

// IsInline returns true if the bytes travel with the reference.
func (r ArtifactRef) IsInline() bool {
	return r.Kind == RefInline || r.Kind == ""
}

// Artifacts holds the four stored fields of a version.
type Artifacts struct {
	Source   ArtifactRef `json:"source"`
	Compiled ArtifactRef `json:"compiled"`
	HTML     ArtifactRef `json:"html"`
	CSS      ArtifactRef `json:"css"`
}

// Field names one of the four artifacts.
type Field string

const (
	FieldSource   Field = "source"
	FieldCompiled Field = "compiled"
	FieldHTML     Field = "html"
	FieldCSS      Field = "css"
)

// ParseField maps a path segment to a Field.
func ParseField(s string) (Field, bool) {
	switch Field(s) {
	case FieldSource, FieldCompiled, FieldHTML, FieldCSS:
		return Field(s), true
	}
	return "", false
}

// Ref returns the reference stored for f.
func (a Artifacts) Ref(f Field) ArtifactRef {
	switch f {
	case FieldCompiled:
		return a.Compiled
	case FieldHTML:
		return a.HTML
	case FieldCSS:
		return a.CSS
	default:
		return a.Source
	}
}
