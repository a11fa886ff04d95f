package models

import (
	"time"
)

// Project is a node in the hierarchical project namespace. Nesting is
// materialized twice: Path holds the ancestor ids root-to-parent, and Name
// embeds the ancestor display names as a "/"-delimited string.
type Project struct {
	ID          string    `bson:"_id" json:"id"`
	Company     string    `bson:"company" json:"company"`
	User        string    `bson:"user" json:"user"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Tags        []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	SystemTags  []string  `bson:"system_tags,omitempty" json:"system_tags,omitempty"`

	// Parent is the immediate parent id, empty for a root project.
	// Path lists ancestor ids root-to-parent, excluding the project itself,
	// so depth == len(Path)+1 and Parent is always the last Path element.
	Parent string   `bson:"parent,omitempty" json:"parent,omitempty"`
	Path   []string `bson:"path,omitempty" json:"path,omitempty"`

	DefaultOutputDestination string `bson:"default_output_destination,omitempty" json:"default_output_destination,omitempty"`

	Created    time.Time `bson:"created" json:"created"`
	LastUpdate time.Time `bson:"last_update" json:"last_update"`
}

// Depth is the number of name segments in the project's full name.
func (p *Project) Depth() int {
	return len(p.Path) + 1
}

// BaseName returns the leaf segment of the project's display name.
func (p *Project) BaseName() string {
	segments := ProjectNameSegments(p.Name)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// ProjectChild is the id/name pair reported for immediate children in
// statistics responses.
type ProjectChild struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
}

// UpdatableProjectFields is the whitelist for partial project updates.
// Renames go through the cascade path in the project service; anything not
// listed here is rejected.
var UpdatableProjectFields = map[string]bool{
	"name":                       true,
	"description":                true,
	"tags":                       true,
	"system_tags":                true,
	"default_output_destination": true,
}
