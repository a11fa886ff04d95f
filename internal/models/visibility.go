package models

// System tag marking a leaf entity or project as archived. Archived leaves
// are reported separately by aggregations and are skipped when a merge
// relocates leaf entities.
const ArchivedTag = "archived"

// EntityVisibility selects which section of the data an operation
// considers: active, archived, or both when empty.
type EntityVisibility string

const (
	VisibilityActive   EntityVisibility = "active"
	VisibilityArchived EntityVisibility = "archived"
)

// Sections returns the visibility sections an aggregation should report.
func (v EntityVisibility) Sections() []EntityVisibility {
	switch v {
	case VisibilityActive, VisibilityArchived:
		return []EntityVisibility{v}
	default:
		return []EntityVisibility{VisibilityActive, VisibilityArchived}
	}
}
