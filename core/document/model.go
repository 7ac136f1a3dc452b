// Package document models the physical decomposition of manuscripts:
// material units, the documents at their roots and the archives holding them.
package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gremid/faust-app/core/graph"
)

// Type is the kind of a material unit.
type Type string

// Material unit types.
const (
	TypeDocument         Type = "DOCUMENT"
	TypeArchivalDocument Type = "ARCHIVALDOCUMENT"
	TypeSheet            Type = "SHEET"
	TypeLeaf             Type = "LEAF"
	TypeDisjunctLeaf     Type = "DISJUNCTLEAF"
	TypePage             Type = "PAGE"
	TypePatch            Type = "PATCH"
	TypePatchSurface     Type = "PATCHSURFACE"
)

var elementTypes = map[string]Type{
	"document":         TypeDocument,
	"archivalDocument": TypeArchivalDocument,
	"sheet":            TypeSheet,
	"leaf":             TypeLeaf,
	"disjunctLeaf":     TypeDisjunctLeaf,
	"page":             TypePage,
	"patch":            TypePatch,
	"patchSurface":     TypePatchSurface,
}

// TypeFromElement resolves the unit type for a descriptor element local name.
func TypeFromElement(localName string) (Type, bool) {
	t, ok := elementTypes[localName]
	return t, ok
}

// IsDocument reports whether units of this type are document roots.
func (t Type) IsDocument() bool {
	return t == TypeDocument || t == TypeArchivalDocument
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	for _, known := range elementTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Metadata maps normalized keys to ordered values. Keys may repeat values.
type Metadata map[string][]string

// Value returns the first value for key, or "".
func (m Metadata) Value(key string) string {
	if vs := m[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns all values for key.
func (m Metadata) Values(key string) []string {
	return m[key]
}

// Add appends a value to key.
func (m Metadata) Add(key, value string) {
	m[key] = append(m[key], value)
}

// Set replaces the values of key.
func (m Metadata) Set(key string, values ...string) {
	m[key] = append([]string(nil), values...)
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaterialUnit is one node of a document's physical decomposition. A unit owns
// its children.
type MaterialUnit struct {
	ID               graph.NodeID
	Type             Type
	Order            int
	Metadata         Metadata
	TranscriptSource string
	Children         []*MaterialUnit
}

// NewMaterialUnit returns an unsaved unit.
func NewMaterialUnit(t Type, order int) *MaterialUnit {
	return &MaterialUnit{Type: t, Order: order, Metadata: Metadata{}}
}

// Add appends child to the unit's children.
func (u *MaterialUnit) Add(child *MaterialUnit) {
	u.Children = append(u.Children, child)
}

// Walk visits u and its descendants depth-first in child order.
func (u *MaterialUnit) Walk(fn func(*MaterialUnit)) {
	fn(u)
	for _, c := range u.Children {
		c.Walk(fn)
	}
}

// Count returns the number of units in the subtree rooted at u.
func (u *MaterialUnit) Count() int {
	n := 0
	u.Walk(func(*MaterialUnit) { n++ })
	return n
}

func (u *MaterialUnit) String() string {
	return fmt.Sprintf("%s[%d]", strings.ToLower(string(u.Type)), u.Order)
}

// Document is the root unit of one descriptor.
type Document struct {
	MaterialUnit
	SourceURI  string
	SourceHash string
}

// NewDocument returns an unsaved document.
func NewDocument(t Type, order int, source string) *Document {
	return &Document{
		MaterialUnit: MaterialUnit{Type: t, Order: order, Metadata: Metadata{}},
		SourceURI:    source,
	}
}

// Archive returns the id of the archive holding the document.
func (d *Document) Archive() string {
	return d.Metadata.Value("archive")
}

func (d *Document) String() string {
	return fmt.Sprintf("%s <%s>", d.MaterialUnit.String(), d.SourceURI)
}

// Archive is a holding institution. Documents reference archives; archives
// do not own them.
type Archive struct {
	NodeID      graph.NodeID `json:"-"`
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Institution string       `json:"institution,omitempty"`
	City        string       `json:"city,omitempty"`
	Country     string       `json:"country,omitempty"`
	URL         string       `json:"url,omitempty"`
}
