package models

import "time"

// ActionCounter is a per-viewer, per-key lifetime counter for tracked site
// and game actions (e.g., "default_vehicle_set"). Counters only ever go up,
// via an insert-or-increment upsert keyed on the composite primary key.
type ActionCounter struct {
	ViewerID  string    `gorm:"primaryKey;size:64" json:"viewer_id"`
	ActionKey string    `gorm:"primaryKey;size:128" json:"action_key"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}
