package models

import (
	"time"
)

// Model is a leaf entity owned by exactly one project, like Task but
// without execution timestamps.
type Model struct {
	ID         string   `bson:"_id" json:"id"`
	Company    string   `bson:"company,omitempty" json:"company,omitempty"`
	User       string   `bson:"user,omitempty" json:"user,omitempty"`
	Project    string   `bson:"project,omitempty" json:"project,omitempty"`
	Name       string   `bson:"name,omitempty" json:"name,omitempty"`
	Framework  string   `bson:"framework,omitempty" json:"framework,omitempty"`
	SystemTags []string `bson:"system_tags,omitempty" json:"system_tags,omitempty"`

	LastChange time.Time `bson:"last_change,omitempty" json:"last_change,omitempty"`
}
