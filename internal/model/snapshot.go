package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Snapshot field names reported in Missing when a non-essential call failed
const (
	FieldExtensions     = "extensions"
	FieldScheduledTasks = "scheduled_tasks"
)

// Extension represents an installed shop extension
type Extension struct {
	Name          string `json:"name" bson:"name"`
	Active        bool   `json:"active" bson:"active"`
	Version       string `json:"version" bson:"version"`
	LatestVersion string `json:"latest_version,omitempty" bson:"latest_version,omitempty"`
	Installed     bool   `json:"installed" bson:"installed"`
}

// ScheduledTask represents a shop scheduled task
type ScheduledTask struct {
	Name              string    `json:"name" bson:"name"`
	Status            string    `json:"status" bson:"status"` // "scheduled", "queued", "running", "failed", "inactive"
	LastExecutionTime time.Time `json:"last_execution_time,omitempty" bson:"last_execution_time,omitempty"`
	NextExecutionTime time.Time `json:"next_execution_time,omitempty" bson:"next_execution_time,omitempty"`
}

// Snapshot is the normalized, point-in-time state of a shop. Snapshots are
// never updated; every scrape inserts a new document.
type Snapshot struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ShopID             string             `json:"shop_id" bson:"shop_id"`
	PlatformVersion    string             `json:"platform_version" bson:"platform_version"`
	Extensions         []Extension        `json:"extensions" bson:"extensions"`
	ScheduledTasks     []ScheduledTask    `json:"scheduled_tasks" bson:"scheduled_tasks"`
	Environment        string             `json:"environment" bson:"environment"`
	AdminWorkerEnabled bool               `json:"admin_worker_enabled" bson:"admin_worker_enabled"`
	CapturedAt         time.Time          `json:"captured_at" bson:"captured_at"`
	Partial            bool               `json:"partial" bson:"partial"`
	Missing            []string           `json:"missing,omitempty" bson:"missing,omitempty"`
}

// Has reports whether the named field was fetched successfully
func (s *Snapshot) Has(field string) bool {
	for _, m := range s.Missing {
		if m == field {
			return false
		}
	}
	return true
}

// Extension looks up an installed extension by name
func (s *Snapshot) Extension(name string) (Extension, bool) {
	for _, ext := range s.Extensions {
		if ext.Name == name {
			return ext, true
		}
	}
	return Extension{}, false
}
