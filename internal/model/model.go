// Package model holds the shared data types for the icon corpus: icon
// records, the forward and inverted indexes, synonym maps, and the
// transform/cache keys derived from a request.
package model

import "time"

// Variant is a style family within a source (outline vs solid, etc).
type Variant string

const (
	VariantDefault Variant = "default"
	VariantOutline Variant = "outline"
	VariantSolid   Variant = "solid"
	VariantMini    Variant = "mini"
	VariantFilled  Variant = "filled"
	VariantDuotone Variant = "duotone"
)

// ValidVariants is the full declared set from spec.md §3.
var ValidVariants = map[Variant]bool{
	VariantDefault: true,
	VariantOutline: true,
	VariantSolid:   true,
	VariantMini:    true,
	VariantFilled:  true,
	VariantDuotone: true,
}

// License describes a source's licensing terms.
type License struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Icon is one entry in the icon index, identified by (Source, Name).
type Icon struct {
	ID       string    `json:"id"` // "source:name"
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	Category string    `json:"category"`
	Tags     []string  `json:"tags"`
	Variants []Variant `json:"variants"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	ViewBox  string    `json:"viewBox"`
	Path     string    `json:"path"` // opaque blob-store content key
}

// IconID returns the canonical "source:name" identity key.
func IconID(source, name string) string {
	return source + ":" + name
}

// HasVariant reports whether the icon declares support for v.
func (i Icon) HasVariant(v Variant) bool {
	for _, have := range i.Variants {
		if have == v {
			return true
		}
	}
	return false
}

// Stats are index-wide aggregates.
type Stats struct {
	TotalIcons  int       `json:"totalIcons"`
	Sources     []string  `json:"sources"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Index maps "source:name" to its record plus aggregate stats.
type Index struct {
	Icons map[string]Icon `json:"icons"`
	Stats Stats           `json:"stats"`
}

// Posting is a per-term entry in the inverted index.
type Posting struct {
	IconIDs []string `json:"iconIds"`
	DF      int      `json:"df"`
}

// InvertedIndex supports token/prefix/source/category candidate gathering.
type InvertedIndex struct {
	Terms      map[string]Posting  `json:"terms"`
	Prefixes   map[string][]string `json:"prefixes"` // 4-char prefix -> terms
	Sources    map[string][]string `json:"sources"`
	Categories map[string][]string `json:"categories"`
	TotalDocs  int                 `json:"totalDocs"`
}

// Synonyms maps a token to its synonym tokens. Symmetry is not required.
type Synonyms map[string][]string

// TransformParams fully determines a transform output for a given input
// SVG; together with the source svg hash this is the cache fingerprint.
type TransformParams struct {
	Size             int
	StrokeWidth      float64
	Color            string
	Rotate           *float64
	Mirror           bool
	ClassName        string
	CustomAttributes map[string]string
}

// SourceConfig is per-source static metadata (spec.md §3 "Source config").
type SourceConfig struct {
	ID              string
	DisplayName     string
	Description     string
	Website         string
	Repository      string
	License         License
	Variants        []Variant
	DefaultVariant  Variant
	// VariantPath, when non-nil, maps (name, variant) to a blob-store
	// path suffix/content-key for sources whose non-default variants
	// live at a different storage path than the default.
	VariantPath func(name string, v Variant) (string, bool)
}
