package registry

import (
	"slices"
	"time"
)

// SchemaVersion is written into every layer record.
const SchemaVersion = 1

// Layer is the persisted record of one node in the layer graph.
// Children and descendant counts are never stored; see Graph.
type Layer struct {
	// SchemaVersion is the version of this record format
	SchemaVersion int `json:"schemaVersion"`

	// ID is the 32-digit hex identifier assigned at creation
	ID string `json:"id"`

	// Parent is the parent layer ID, empty for a root layer
	Parent string `json:"parent,omitempty"`

	// Description is nil when no description was ever set
	Description *string `json:"description"`

	// Tags is the sorted, de-duplicated tag set
	Tags []string `json:"tags"`

	// Seq orders layers by creation; siblings sort by (Seq, ID)
	Seq int64 `json:"seq"`

	// CreatedAt is when the layer was created
	CreatedAt time.Time `json:"createdAt"`
}

// IsRoot reports whether the layer has no parent.
func (l *Layer) IsRoot() bool {
	return l.Parent == ""
}

// HasTag reports whether the layer carries tag.
func (l *Layer) HasTag(tag string) bool {
	_, found := slices.BinarySearch(l.Tags, tag)
	return found
}

// DescriptionOr returns the description, or fallback when none is set.
func (l *Layer) DescriptionOr(fallback string) string {
	if l.Description == nil {
		return fallback
	}
	return *l.Description
}

// ShortID returns the first 12 hex digits of the ID.
func (l *Layer) ShortID() string {
	if len(l.ID) <= 12 {
		return l.ID
	}
	return l.ID[:12]
}

// NameIndex is the names.json file: home names mapped to layer IDs.
type NameIndex struct {
	SchemaVersion int               `json:"schemaVersion"`
	Names         map[string]string `json:"names"`
}

// NewNameIndex creates an empty NameIndex.
func NewNameIndex() *NameIndex {
	return &NameIndex{
		SchemaVersion: SchemaVersion,
		Names:         map[string]string{},
	}
}

// normalizeTags sorts and de-duplicates tags.
func normalizeTags(tags []string) []string {
	out := slices.Clone(tags)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
