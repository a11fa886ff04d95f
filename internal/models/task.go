package models

import (
	"time"
)

// Task statuses. Aggregations report a count for every status, zero or not.
const (
	TaskStatusCreated    = "created"
	TaskStatusQueued     = "queued"
	TaskStatusInProgress = "in_progress"
	TaskStatusStopped    = "stopped"
	TaskStatusPublishing = "publishing"
	TaskStatusPublished  = "published"
	TaskStatusClosed     = "closed"
	TaskStatusFailed     = "failed"
	TaskStatusCompleted  = "completed"
	TaskStatusUnknown    = "unknown"
)

// TaskStatuses lists every known task status.
var TaskStatuses = []string{
	TaskStatusCreated,
	TaskStatusQueued,
	TaskStatusInProgress,
	TaskStatusStopped,
	TaskStatusPublishing,
	TaskStatusPublished,
	TaskStatusClosed,
	TaskStatusFailed,
	TaskStatusCompleted,
	TaskStatusUnknown,
}

// Task types. Runtime is only accumulated for RuntimeTaskTypes.
const (
	TaskTypeTraining       = "training"
	TaskTypeTesting        = "testing"
	TaskTypeAnnotation     = "annotation"
	TaskTypeInference      = "inference"
	TaskTypeDataProcessing = "data_processing"
	TaskTypeCustom         = "custom"
)

// ExternalTaskTypes are the types exposed to callers by the distinct
// task-type query; anything else is internal bookkeeping.
var ExternalTaskTypes = []string{
	TaskTypeTraining,
	TaskTypeTesting,
	TaskTypeAnnotation,
	TaskTypeInference,
	TaskTypeDataProcessing,
	TaskTypeCustom,
}

// RuntimeTaskTypes are the task types whose started/completed interval is
// meaningful as runtime.
var RuntimeTaskTypes = []string{TaskTypeTraining, TaskTypeTesting, TaskTypeAnnotation}

// Task is a leaf entity owned by exactly one project. Only the fields the
// tree and statistics engines read are modeled here.
type Task struct {
	ID         string   `bson:"_id" json:"id"`
	Company    string   `bson:"company,omitempty" json:"company,omitempty"`
	User       string   `bson:"user,omitempty" json:"user,omitempty"`
	Project    string   `bson:"project,omitempty" json:"project,omitempty"`
	Parent     string   `bson:"parent,omitempty" json:"parent,omitempty"`
	Name       string   `bson:"name,omitempty" json:"name,omitempty"`
	Type       string   `bson:"type,omitempty" json:"type,omitempty"`
	Status     string   `bson:"status,omitempty" json:"status,omitempty"`
	SystemTags []string `bson:"system_tags,omitempty" json:"system_tags,omitempty"`

	// Millisecond epoch timestamps; zero means not started/completed.
	Started   int64 `bson:"started,omitempty" json:"started,omitempty"`
	Completed int64 `bson:"completed,omitempty" json:"completed,omitempty"`

	LastChange time.Time `bson:"last_change,omitempty" json:"last_change,omitempty"`
}
